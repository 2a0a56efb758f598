// Package logrelay delivers attendance and feedback events to the
// spreadsheet-backed remote log and reads them back for the admin view.
package logrelay

import (
	"net/url"
	"strconv"
)

const (
	KindAttendance = "attendance"
	KindFeedback   = "feedback"
)

// DefaultFeedbackSource tags feedback that arrived through a printed QR code.
const DefaultFeedbackSource = "QR"

// Event is one row to append to the remote log.
type Event interface {
	Kind() string
	Fields() map[string]string
}

// AttendanceEvent is one successful check-in or check-out.
type AttendanceEvent struct {
	EmployeeID   string `json:"employeeId"`
	EmployeeName string `json:"employeeName"`
	Status       string `json:"status"`
	Note         string `json:"note"`
	IP           string `json:"ip"`
}

func (AttendanceEvent) Kind() string { return KindAttendance }

func (e AttendanceEvent) Fields() map[string]string {
	return map[string]string{
		"kind":         KindAttendance,
		"employeeId":   e.EmployeeID,
		"employeeName": e.EmployeeName,
		"status":       e.Status,
		"note":         e.Note,
		"ip":           e.IP,
	}
}

// FeedbackEvent is one rating left on the feedback page.
type FeedbackEvent struct {
	Rating       int    `json:"rating"`
	Scope        string `json:"scope"`
	EmployeeID   string `json:"employeeId"`
	EmployeeName string `json:"employeeName"`
	Comment      string `json:"comment"`
	IP           string `json:"ip"`
	UserAgent    string `json:"userAgent"`
	Source       string `json:"source"`
}

func (FeedbackEvent) Kind() string { return KindFeedback }

func (e FeedbackEvent) Fields() map[string]string {
	source := e.Source
	if source == "" {
		source = DefaultFeedbackSource
	}
	return map[string]string{
		"kind":         KindFeedback,
		"rating":       strconv.Itoa(e.Rating),
		"scope":        e.Scope,
		"employeeId":   e.EmployeeID,
		"employeeName": e.EmployeeName,
		"comment":      e.Comment,
		"ip":           e.IP,
		"userAgent":    e.UserAgent,
		"source":       source,
	}
}

// Form encodes an event the way the spreadsheet endpoint expects it.
func Form(e Event) url.Values {
	return FormFromFields(e.Fields())
}

// FormFromFields builds form values from a flat field map.
func FormFromFields(fields map[string]string) url.Values {
	v := url.Values{}
	for k, val := range fields {
		v.Set(k, val)
	}
	return v
}
