package records

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// stores returns the implementations under test; Redis only when REDIS_TEST_ADDR is set.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	out := map[string]Store{"memory": NewMemory()}
	if addr := os.Getenv("REDIS_TEST_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		prefix := fmt.Sprintf("test:%d", time.Now().UnixNano())
		t.Cleanup(func() {
			ctx := context.Background()
			keys, _ := client.Keys(ctx, prefix+":*").Result()
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
			client.Close()
		})
		out["redis"] = NewRedis(client, prefix)
	}
	return out
}

func record(i int) AttendanceRecord {
	return AttendanceRecord{
		ID:           fmt.Sprintf("%d", i),
		EmployeeID:   "E1",
		EmployeeName: "Employee One",
		Timestamp:    time.Unix(int64(i), 0).UTC(),
		Type:         CheckIn,
		Confidence:   1,
		Status:       StatusSuccess,
	}
}

func TestAttendanceHistoryCap(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 1; i <= MaxAttendanceHistory; i++ {
				if err := s.AppendAttendance(ctx, record(i)); err != nil {
					t.Fatalf("append %d: %v", i, err)
				}
			}
			list, _ := s.ListAttendance(ctx)
			if len(list) != MaxAttendanceHistory {
				t.Fatalf("len = %d, want %d", len(list), MaxAttendanceHistory)
			}

			if err := s.AppendAttendance(ctx, record(MaxAttendanceHistory+1)); err != nil {
				t.Fatal(err)
			}
			list, _ = s.ListAttendance(ctx)
			if len(list) != MaxAttendanceHistory {
				t.Fatalf("len after overflow = %d", len(list))
			}
			if list[0].ID != "2" {
				t.Errorf("oldest = %s, want 2", list[0].ID)
			}
			if list[len(list)-1].ID != fmt.Sprintf("%d", MaxAttendanceHistory+1) {
				t.Errorf("newest = %s", list[len(list)-1].ID)
			}
		})
	}
}

func TestFailedRecordsAreRejected(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			rec := record(1)
			rec.Status = StatusFailed
			if err := s.AppendAttendance(ctx, rec); !errors.Is(err, ErrFailedRecord) {
				t.Fatalf("err = %v, want ErrFailedRecord", err)
			}
			list, _ := s.ListAttendance(ctx)
			if len(list) != 0 {
				t.Errorf("stored %d records", len(list))
			}
		})
	}
}

func TestInvalidRecordsAreRejected(t *testing.T) {
	s := NewMemory()
	rec := record(1)
	rec.Type = "LUNCH"
	if err := s.AppendAttendance(context.Background(), rec); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("err = %v", err)
	}
}

func TestSaveWifiConfigDeduplicates(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			steps := []WifiConfig{
				{Name: "Office", IP: "1.1.1.1"},
				{Name: "Annex", IP: "2.2.2.2"},
				{Name: "Office", IP: "3.3.3.3"}, // same label
				{Name: "Lobby", IP: "2.2.2.2"},  // same address
				{Name: "Lobby", IP: "3.3.3.3"},  // collides with both remaining entries
			}
			for _, c := range steps {
				if err := s.SaveWifiConfig(ctx, c); err != nil {
					t.Fatal(err)
				}
				list, _ := s.ListWifiConfigs(ctx)
				names, ips := map[string]bool{}, map[string]bool{}
				for _, w := range list {
					if names[w.Name] || ips[w.IP] {
						t.Fatalf("duplicate after saving %+v: %+v", c, list)
					}
					names[w.Name], ips[w.IP] = true, true
				}
			}
			list, _ := s.ListWifiConfigs(ctx)
			if len(list) != 1 || list[0].Name != "Lobby" || list[0].IP != "3.3.3.3" {
				t.Errorf("final list = %+v", list)
			}

			if err := s.RemoveWifiConfig(ctx, "Lobby"); err != nil {
				t.Fatal(err)
			}
			list, _ = s.ListWifiConfigs(ctx)
			if len(list) != 0 {
				t.Errorf("after remove = %+v", list)
			}
		})
	}
}

func TestEmployeesAndFlag(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			_ = s.SaveEmployee(ctx, Employee{ID: "b", Name: "B", CreatedAt: base.Add(time.Hour)})
			_ = s.SaveEmployee(ctx, Employee{ID: "a", Name: "A", CreatedAt: base})

			list, err := s.ListEmployees(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(list) != 2 || list[0].ID != "a" {
				t.Fatalf("list = %+v", list)
			}

			missing, err := s.GetEmployee(ctx, "zzz")
			if err != nil || missing != nil {
				t.Fatalf("missing = %v, %v", missing, err)
			}

			if err := s.DeleteEmployee(ctx, "a"); err != nil {
				t.Fatal(err)
			}
			got, _ := s.GetEmployee(ctx, "a")
			if got != nil {
				t.Error("employee still present after delete")
			}

			on, _ := s.FaceAttendanceEnabled(ctx)
			if on {
				t.Error("flag should default to off")
			}
			_ = s.SetFaceAttendance(ctx, true)
			on, _ = s.FaceAttendanceEnabled(ctx)
			if !on {
				t.Error("flag not persisted")
			}
		})
	}
}
