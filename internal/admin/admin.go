// Package admin backs the admin view: a shared-password gate, the
// cross-device history dashboard and the face-attendance switch.
//
// The password gate is an access deterrent, not authentication.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"officeclock/internal/auth"
	"officeclock/internal/logrelay"
	"officeclock/internal/records"
)

var (
	ErrGateDisabled  = errors.New("admin view disabled")
	ErrWrongPassword = errors.New("wrong admin password")
)

// Gate trades the shared admin password for a session token.
type Gate struct {
	password string
	issuer   string
	key      string
	ttl      time.Duration
	now      func() time.Time
}

func NewGate(password, issuer, signingKey string, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Gate{password: password, issuer: issuer, key: signingKey, ttl: ttl, now: time.Now}
}

// Unlock compares the password in constant time and issues an admin session.
// An empty configured password disables the gate.
func (g *Gate) Unlock(password string) (auth.Session, error) {
	if g.password == "" {
		return auth.Session{}, ErrGateDisabled
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(g.password)) != 1 {
		return auth.Session{}, ErrWrongPassword
	}
	return auth.Issue("admin", auth.RoleAdmin, g.issuer, g.key, g.ttl, g.now())
}

// History reads the remote log.
type History interface {
	FetchAllAttendance(ctx context.Context) ([]logrelay.AttendanceRow, error)
	FetchAllFeedback(ctx context.Context) ([]logrelay.FeedbackRow, error)
}

// EmployeeSummary aggregates feedback for one employee id. General feedback
// is grouped under the empty id.
type EmployeeSummary struct {
	EmployeeID string  `json:"employee_id"`
	Count      int     `json:"count"`
	Average    float64 `json:"average"`
}

// Dashboard is everything the admin view renders.
type Dashboard struct {
	Attendance     []logrelay.AttendanceRow `json:"attendance"`
	Feedback       []logrelay.FeedbackRow   `json:"feedback"`
	Summary        []EmployeeSummary        `json:"summary"`
	FaceAttendance bool                     `json:"face_attendance"`
}

// Service loads the dashboard and toggles the feature flag.
type Service struct {
	history History
	store   records.Store
}

func NewService(history History, store records.Store) *Service {
	return &Service{history: history, store: store}
}

// Load fetches attendance and feedback concurrently from the remote log.
func (s *Service) Load(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.history.FetchAllAttendance(gctx)
		d.Attendance = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.history.FetchAllFeedback(gctx)
		d.Feedback = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, fmt.Errorf("load remote history: %w", err)
	}

	on, err := s.store.FaceAttendanceEnabled(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	d.FaceAttendance = on
	d.Summary = Summarize(d.Feedback)
	return d, nil
}

// FaceAttendance reports the persisted flag.
func (s *Service) FaceAttendance(ctx context.Context) (bool, error) {
	return s.store.FaceAttendanceEnabled(ctx)
}

// SetFaceAttendance persists the flag. Workflows built afterwards see the new value.
func (s *Service) SetFaceAttendance(ctx context.Context, on bool) error {
	return s.store.SetFaceAttendance(ctx, on)
}

// Summarize counts ratings and averages them per employee id, highest average first.
func Summarize(rows []logrelay.FeedbackRow) []EmployeeSummary {
	type acc struct {
		count int
		sum   float64
	}
	byID := map[string]*acc{}
	var order []string
	for _, r := range rows {
		id := string(r.EmployeeID)
		a, ok := byID[id]
		if !ok {
			a = &acc{}
			byID[id] = a
			order = append(order, id)
		}
		a.count++
		a.sum += float64(r.Rating)
	}

	out := make([]EmployeeSummary, 0, len(order))
	for _, id := range order {
		a := byID[id]
		out = append(out, EmployeeSummary{EmployeeID: id, Count: a.count, Average: a.sum / float64(a.count)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Average > out[j].Average })
	return out
}
