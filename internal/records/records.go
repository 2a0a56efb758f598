// Package records is the deployment-local record store: enrolled employees,
// capped attendance history, saved office networks and the face-attendance
// flag.
package records

import (
	"context"
	"errors"
	"time"
)

// MaxAttendanceHistory caps the local attendance list; the oldest entry is evicted first.
const MaxAttendanceHistory = 500

// Direction of an attendance event.
type Direction string

const (
	CheckIn  Direction = "CHECK_IN"
	CheckOut Direction = "CHECK_OUT"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == CheckIn || d == CheckOut
}

// Status is the outcome recorded on an AttendanceRecord.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

var (
	ErrFailedRecord  = errors.New("failed attendance records are not stored")
	ErrInvalidRecord = errors.New("invalid record")
)

// Employee is an enrolled staff member. Avatar holds the reference still as a data URL.
type Employee struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Position  string    `json:"position"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasAvatar reports whether a reference image is enrolled.
func (e Employee) HasAvatar() bool { return e.Avatar != "" }

// AttendanceRecord is one successful check-in or check-out.
type AttendanceRecord struct {
	ID           string    `json:"id"`
	EmployeeID   string    `json:"employee_id"`
	EmployeeName string    `json:"employee_name"`
	Timestamp    time.Time `json:"timestamp"`
	Type         Direction `json:"type"`
	Confidence   float64   `json:"confidence"`
	Status       Status    `json:"status"`
	Snapshot     string    `json:"snapshot,omitempty"`
}

// WifiConfig binds a human readable network label to one public address.
type WifiConfig struct {
	Name      string    `json:"name"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the local record store. GetEmployee returns nil, nil when the id is unknown.
type Store interface {
	ListEmployees(ctx context.Context) ([]Employee, error)
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	SaveEmployee(ctx context.Context, e Employee) error
	DeleteEmployee(ctx context.Context, id string) error

	AppendAttendance(ctx context.Context, rec AttendanceRecord) error
	ListAttendance(ctx context.Context) ([]AttendanceRecord, error)

	ListWifiConfigs(ctx context.Context) ([]WifiConfig, error)
	SaveWifiConfig(ctx context.Context, cfg WifiConfig) error
	RemoveWifiConfig(ctx context.Context, name string) error

	FaceAttendanceEnabled(ctx context.Context) (bool, error)
	SetFaceAttendance(ctx context.Context, enabled bool) error
}

func validateRecord(rec AttendanceRecord) error {
	if rec.Status == StatusFailed {
		return ErrFailedRecord
	}
	if rec.ID == "" || rec.EmployeeID == "" || !rec.Type.Valid() {
		return ErrInvalidRecord
	}
	return nil
}

// upsertWifi drops every entry sharing the label or the address and appends cfg.
func upsertWifi(list []WifiConfig, cfg WifiConfig) []WifiConfig {
	out := make([]WifiConfig, 0, len(list)+1)
	for _, w := range list {
		if w.Name == cfg.Name || w.IP == cfg.IP {
			continue
		}
		out = append(out, w)
	}
	return append(out, cfg)
}

func removeWifi(list []WifiConfig, name string) []WifiConfig {
	out := make([]WifiConfig, 0, len(list))
	for _, w := range list {
		if w.Name != name {
			out = append(out, w)
		}
	}
	return out
}
