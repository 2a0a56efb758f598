package records

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Memory is an in-process Store for dev and tests.
type Memory struct {
	mu         sync.Mutex
	employees  map[string]Employee
	attendance []AttendanceRecord
	wifi       []WifiConfig
	face       bool
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{employees: make(map[string]Employee)}
}

func (m *Memory) ListEmployees(_ context.Context) ([]Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Employee, 0, len(m.employees))
	for _, e := range m.employees {
		out = append(out, e)
	}
	sortEmployees(out)
	return out, nil
}

func (m *Memory) GetEmployee(_ context.Context, id string) (*Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) SaveEmployee(_ context.Context, e Employee) error {
	if e.ID == "" {
		return errors.New("employee id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) DeleteEmployee(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.employees, id)
	return nil
}

func (m *Memory) AppendAttendance(_ context.Context, rec AttendanceRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attendance = append(m.attendance, rec)
	if over := len(m.attendance) - MaxAttendanceHistory; over > 0 {
		m.attendance = append([]AttendanceRecord(nil), m.attendance[over:]...)
	}
	return nil
}

func (m *Memory) ListAttendance(_ context.Context) ([]AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AttendanceRecord(nil), m.attendance...), nil
}

func (m *Memory) ListWifiConfigs(_ context.Context) ([]WifiConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WifiConfig(nil), m.wifi...), nil
}

func (m *Memory) SaveWifiConfig(_ context.Context, cfg WifiConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wifi = upsertWifi(m.wifi, cfg)
	return nil
}

func (m *Memory) RemoveWifiConfig(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wifi = removeWifi(m.wifi, name)
	return nil
}

func (m *Memory) FaceAttendanceEnabled(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.face, nil
}

func (m *Memory) SetFaceAttendance(_ context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.face = enabled
	return nil
}

// sortEmployees orders by enrollment time, then id.
func sortEmployees(list []Employee) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
