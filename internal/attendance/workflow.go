// Package attendance runs one check-in or check-out attempt: network gate,
// optional face verification, local write, remote dispatch.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"officeclock/internal/capture"
	"officeclock/internal/facematch"
	"officeclock/internal/logrelay"
	"officeclock/internal/metrics"
	"officeclock/internal/netident"
	"officeclock/internal/records"
)

// State of an attempt.
type State string

const (
	StateIdle            State = "IDLE"
	StateCheckingNetwork State = "CHECKING_NETWORK"
	StateCapturingFace   State = "CAPTURING_FACE"
	StateVerifying       State = "VERIFYING"
	StateSubmitting      State = "SUBMITTING"
	StateDone            State = "DONE"
	StateError           State = "ERROR"
)

const (
	noteNetworkOnly = "Wi-Fi/IP only"
	noteFaceAuth    = "Face Auth (Conf: %s)"
)

// Verifier compares an enrolled reference image with a fresh capture.
type Verifier interface {
	Verify(ctx context.Context, referenceImage, currentImage string) facematch.Result
}

// Dispatcher forwards a successful attempt to the remote log.
type Dispatcher interface {
	DispatchAttendance(ctx context.Context, e logrelay.AttendanceEvent) error
}

// Capturer takes the still used for verification.
type Capturer interface {
	Capture(ctx context.Context) (capture.Still, error)
}

// Archiver stores a verification snapshot and returns its URL.
type Archiver interface {
	Archive(ctx context.Context, employeeID, dataURL string) (string, error)
}

// Settings are fixed for the lifetime of a Workflow.
type Settings struct {
	FaceAttendance bool `json:"face_attendance"`
}

// Service holds the dependencies shared by every attempt.
type Service struct {
	store      records.Store
	verifier   Verifier
	dispatcher Dispatcher
	archiver   Archiver

	now   func() time.Time
	newID func() string
}

func NewService(store records.Store, verifier Verifier, dispatcher Dispatcher) *Service {
	return &Service{
		store:      store,
		verifier:   verifier,
		dispatcher: dispatcher,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// WithArchiver enables snapshot archiving for verified attempts.
func (s *Service) WithArchiver(a Archiver) *Service {
	s.archiver = a
	return s
}

// Settings reads the persisted feature flag.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	on, err := s.store.FaceAttendanceEnabled(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("read face attendance flag: %w", err)
	}
	return Settings{FaceAttendance: on}, nil
}

// Workflow binds the service to one set of settings.
func (s *Service) Workflow(settings Settings) *Workflow {
	return &Workflow{svc: s, settings: settings}
}

// Attempt is the input of one run. Capture is only consulted when face
// attendance is on.
type Attempt struct {
	EmployeeID string
	Type       records.Direction
	Network    netident.Resolver
	Capture    Capturer
}

// Outcome describes a completed attempt.
type Outcome struct {
	Record        records.AttendanceRecord `json:"record"`
	Note          string                   `json:"note"`
	IP            string                   `json:"ip"`
	Trace         []State                  `json:"trace"`
	Dispatched    bool                     `json:"dispatched"`
	DispatchError string                   `json:"dispatch_error,omitempty"`
}

type Workflow struct {
	svc      *Service
	settings Settings
}

func (w *Workflow) Settings() Settings { return w.settings }

type run struct {
	state State
	trace []State
}

func (r *run) enter(s State) {
	r.state = s
	r.trace = append(r.trace, s)
}

func (r *run) fail(kind Kind, msg string, err error) error {
	e := &Error{Kind: kind, State: r.state, Msg: msg, Err: err}
	r.enter(StateError)
	r.enter(StateIdle)
	return e
}

// Run executes the attempt. An aborted attempt writes nothing and returns an *Error.
func (w *Workflow) Run(ctx context.Context, a Attempt) (Outcome, error) {
	r := &run{}
	r.enter(StateIdle)

	out, err := w.run(ctx, r, a)
	out.Trace = r.trace

	outcome := "success"
	if e, ok := AsError(err); ok {
		outcome = string(e.Kind)
	}
	metrics.AttendanceAttempts.WithLabelValues(string(a.Type), outcome).Inc()
	return out, err
}

func (w *Workflow) run(ctx context.Context, r *run, a Attempt) (Outcome, error) {
	s := w.svc

	if a.EmployeeID == "" {
		return Outcome{}, r.fail(KindValidation, "select an employee first", nil)
	}
	if !a.Type.Valid() {
		return Outcome{}, r.fail(KindValidation, "unknown attendance type", nil)
	}
	emp, err := s.store.GetEmployee(ctx, a.EmployeeID)
	if err != nil {
		return Outcome{}, r.fail(KindStorage, "could not load employee", err)
	}
	if emp == nil {
		return Outcome{}, r.fail(KindValidation, "employee not found", nil)
	}

	r.enter(StateCheckingNetwork)
	ip, err := w.checkNetwork(ctx, r, a.Network)
	if err != nil {
		return Outcome{}, err
	}

	confidence := 1.0
	note := noteNetworkOnly
	snapshot := ""
	archived := ""

	if w.settings.FaceAttendance {
		r.enter(StateCapturingFace)
		if a.Capture == nil {
			return Outcome{}, r.fail(KindCaptureRequired, "face capture required", capture.ErrNoFrame)
		}
		still, err := a.Capture.Capture(ctx)
		switch {
		case errors.Is(err, capture.ErrPermissionDenied):
			return Outcome{}, r.fail(KindPermission, "camera access denied", err)
		case errors.Is(err, capture.ErrNoFrame):
			return Outcome{}, r.fail(KindCaptureRequired, "face capture required", err)
		case err != nil:
			return Outcome{}, r.fail(KindValidation, "captured image could not be read", err)
		}

		r.enter(StateVerifying)
		if !emp.HasAvatar() {
			return Outcome{}, r.fail(KindEnrollmentRequired, "employee has no enrolled face", nil)
		}
		snapshot = still.DataURL()
		res := s.verifier.Verify(ctx, emp.Avatar, snapshot)
		if !res.IsMatch {
			metrics.FaceVerifications.WithLabelValues("mismatch").Inc()
			return Outcome{}, r.fail(KindVerificationMismatch, fmt.Sprintf("face does not match (%s)", res.Reasoning), nil)
		}
		metrics.FaceVerifications.WithLabelValues("match").Inc()
		confidence = res.Confidence
		note = fmt.Sprintf(noteFaceAuth, strconv.FormatFloat(confidence, 'f', -1, 64))

		if s.archiver != nil {
			url, err := s.archiver.Archive(ctx, emp.ID, snapshot)
			if err != nil {
				log.Printf("snapshot archive failed for %s: %v", emp.ID, err)
			} else {
				archived = url
			}
		}
	}

	r.enter(StateSubmitting)
	rec := records.AttendanceRecord{
		ID:           s.newID(),
		EmployeeID:   emp.ID,
		EmployeeName: emp.Name,
		Timestamp:    s.now().UTC(),
		Type:         a.Type,
		Confidence:   confidence,
		Status:       records.StatusSuccess,
		Snapshot:     snapshot,
	}
	if err := s.store.AppendAttendance(ctx, rec); err != nil {
		return Outcome{}, r.fail(KindStorage, "could not save attendance", err)
	}

	remoteNote := note
	if archived != "" {
		remoteNote += " - Snapshot: " + archived
	}
	if ip != "" {
		remoteNote += " - IP: " + ip
	}
	out := Outcome{Record: rec, Note: remoteNote, IP: ip}

	if s.dispatcher != nil {
		err := s.dispatcher.DispatchAttendance(ctx, logrelay.AttendanceEvent{
			EmployeeID:   emp.ID,
			EmployeeName: emp.Name,
			Status:       string(a.Type),
			Note:         remoteNote,
			IP:           ip,
		})
		if err != nil {
			log.Printf("attendance %s: remote dispatch failed: %v", rec.ID, err)
			metrics.RemoteDeliveries.WithLabelValues(logrelay.KindAttendance, "dispatch_failed").Inc()
			out.DispatchError = err.Error()
		} else {
			out.Dispatched = true
		}
	}

	r.enter(StateDone)
	return out, nil
}

// checkNetwork resolves the address. With no saved networks the lookup is
// best effort and never blocks the attempt.
func (w *Workflow) checkNetwork(ctx context.Context, r *run, resolver netident.Resolver) (string, error) {
	saved, err := netident.ListSavedNetworks(ctx, w.svc.store)
	if err != nil {
		return "", r.fail(KindStorage, "could not load saved networks", err)
	}

	if len(saved) == 0 {
		if resolver == nil {
			return "", nil
		}
		ip, err := resolver.ResolvePublicAddress(ctx)
		if err != nil {
			return "", nil
		}
		return ip, nil
	}

	if resolver == nil {
		return "", r.fail(KindNetworkIdentity, "cannot determine network address", netident.ErrUnresolvable)
	}
	ip, err := resolver.ResolvePublicAddress(ctx)
	if err != nil {
		return "", r.fail(KindNetworkIdentity, "cannot determine network address", err)
	}
	if !netident.IsAddressAllowed(ip, saved) {
		msg := fmt.Sprintf("connect to Wi-Fi: %s. Current IP (%s) is not allowed", netident.JoinLabels(saved), ip)
		return "", r.fail(KindNetworkIdentity, msg, nil)
	}
	return ip, nil
}
