// Package outbox keeps remote log events durably until they are delivered,
// retrying with exponential backoff.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"
)

var ErrNotFound = errors.New("outbox entry not found")

// Entry is one pending remote write.
type Entry struct {
	ID            string            `json:"id"`
	Kind          string            `json:"kind"`
	Fields        map[string]string `json:"fields"`
	Attempts      int               `json:"attempts"`
	NextAttemptAt time.Time         `json:"next_attempt_at"`
	LastError     string            `json:"last_error,omitempty"`
	Parked        bool              `json:"parked"`
	CreatedAt     time.Time         `json:"created_at"`
	DeliveredAt   *time.Time        `json:"delivered_at,omitempty"`
}

// Store persists outbox entries.
type Store interface {
	Add(ctx context.Context, e Entry) error
	// Claim returns up to limit due entries and pushes their next attempt to
	// leaseUntil so that concurrent deliverers skip them.
	Claim(ctx context.Context, now, leaseUntil time.Time, limit int) ([]Entry, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, next time.Time, lastErr string, parked bool) error
	Get(ctx context.Context, id string) (Entry, error)
	Pending(ctx context.Context) (int, error)
}

func encodeFields(f map[string]string) ([]byte, error) {
	if f == nil {
		f = map[string]string{}
	}
	return json.Marshal(f)
}

func decodeFields(b []byte) (map[string]string, error) {
	f := map[string]string{}
	if len(b) == 0 {
		return f, nil
	}
	err := json.Unmarshal(b, &f)
	return f, err
}

func sortByCreated(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
}
