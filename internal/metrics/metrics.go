// Package metrics holds the service's Prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AttendanceAttempts counts finished attempts by outcome ("success" or the error kind).
	AttendanceAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "officeclock",
		Name:      "attendance_attempts_total",
		Help:      "Check-in and check-out attempts by outcome.",
	}, []string{"direction", "outcome"})

	FaceVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "officeclock",
		Name:      "face_verifications_total",
		Help:      "Face-match verdicts.",
	}, []string{"result"})

	FeedbackSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "officeclock",
		Name:      "feedback_submissions_total",
		Help:      "Feedback submissions by outcome.",
	}, []string{"outcome"})

	RemoteDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "officeclock",
		Name:      "remote_deliveries_total",
		Help:      "Remote log writes by event kind and outcome.",
	}, []string{"kind", "outcome"})

	OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "officeclock",
		Name:      "outbox_pending",
		Help:      "Outbox entries not yet delivered or parked.",
	})
)

// MustRegister registers every collector on reg.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		AttendanceAttempts,
		FaceVerifications,
		FeedbackSubmissions,
		RemoteDeliveries,
		OutboxPending,
	)
}
