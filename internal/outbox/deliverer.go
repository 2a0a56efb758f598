package outbox

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"officeclock/internal/logrelay"
	"officeclock/internal/metrics"
	"officeclock/internal/queue"
)

const (
	DefaultBaseDelay   = 5 * time.Second
	DefaultMaxDelay    = 10 * time.Minute
	DefaultMaxAttempts = 8
	DefaultBatchSize   = 50
	DefaultLease       = 2 * time.Minute
)

// Dispatcher records events in the outbox and wakes the deliverer.
type Dispatcher struct {
	store Store
	queue queue.Queue
	now   func() time.Time
}

func NewDispatcher(store Store, q queue.Queue) *Dispatcher {
	return &Dispatcher{store: store, queue: q, now: time.Now}
}

// Dispatch stores e for delivery and returns the entry id. The wake-up is
// best effort; the deliverer also polls.
func (d *Dispatcher) Dispatch(ctx context.Context, e logrelay.Event) (string, error) {
	now := d.now().UTC()
	entry := Entry{
		ID:            uuid.NewString(),
		Kind:          e.Kind(),
		Fields:        e.Fields(),
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	if err := d.store.Add(ctx, entry); err != nil {
		return "", fmt.Errorf("enqueue %s event: %w", entry.Kind, err)
	}
	metrics.OutboxPending.Inc()
	if d.queue != nil {
		if err := d.queue.Publish(ctx, queue.Message{Type: queue.TypeOutbox, ID: entry.ID}); err != nil {
			log.Printf("outbox: wake-up publish failed: %v", err)
		}
	}
	return entry.ID, nil
}

// DispatchAttendance implements attendance.Dispatcher.
func (d *Dispatcher) DispatchAttendance(ctx context.Context, e logrelay.AttendanceEvent) error {
	_, err := d.Dispatch(ctx, e)
	return err
}

// Deliverer drains due entries through a confirming writer.
type Deliverer struct {
	Store       Store
	Writer      logrelay.Writer
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	BatchSize   int
	Lease       time.Duration

	now func() time.Time
}

func NewDeliverer(store Store, w logrelay.Writer, maxAttempts int) *Deliverer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Deliverer{
		Store:       store,
		Writer:      w,
		MaxAttempts: maxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		BatchSize:   DefaultBatchSize,
		Lease:       DefaultLease,
		now:         time.Now,
	}
}

// Backoff returns the wait after the given number of failed attempts. The
// schedule doubles from BaseDelay and is capped at MaxDelay, with no jitter.
func (d *Deliverer) Backoff(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.BaseDelay
	b.MaxInterval = d.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempts && delay < d.MaxDelay; i++ {
		delay = b.NextBackOff()
	}
	return min(delay, d.MaxDelay)
}

type storedEvent struct {
	kind   string
	fields map[string]string
}

func (e storedEvent) Kind() string              { return e.kind }
func (e storedEvent) Fields() map[string]string { return e.fields }

// DeliverDue sends every entry that is due now and reports how many were
// delivered and how many failed.
func (d *Deliverer) DeliverDue(ctx context.Context) (delivered, failed int, err error) {
	now := d.now().UTC()
	entries, err := d.Store.Claim(ctx, now, now.Add(d.Lease), d.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("claim outbox entries: %w", err)
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return delivered, failed, ctx.Err()
		}
		werr := d.Writer.Write(ctx, storedEvent{kind: e.Kind, fields: e.Fields})
		if werr == nil {
			if err := d.Store.MarkDelivered(ctx, e.ID, d.now().UTC()); err != nil {
				log.Printf("outbox: mark %s delivered: %v", e.ID, err)
			}
			metrics.RemoteDeliveries.WithLabelValues(e.Kind, "delivered").Inc()
			metrics.OutboxPending.Dec()
			delivered++
			continue
		}

		failed++
		attempts := e.Attempts + 1
		parked := attempts >= d.MaxAttempts
		next := d.now().UTC().Add(d.Backoff(attempts))
		if err := d.Store.MarkFailed(ctx, e.ID, attempts, next, werr.Error(), parked); err != nil {
			log.Printf("outbox: mark %s failed: %v", e.ID, err)
		}
		if parked {
			log.Printf("outbox: %s entry %s parked after %d attempts: %v", e.Kind, e.ID, attempts, werr)
			metrics.RemoteDeliveries.WithLabelValues(e.Kind, "parked").Inc()
			metrics.OutboxPending.Dec()
		} else {
			log.Printf("outbox: %s entry %s attempt %d failed, retry at %s: %v", e.Kind, e.ID, attempts, next.Format(time.RFC3339), werr)
			metrics.RemoteDeliveries.WithLabelValues(e.Kind, "retry").Inc()
		}
	}
	return delivered, failed, nil
}

// Run delivers on every wake-up and every interval until ctx is done.
func (d *Deliverer) Run(ctx context.Context, wake <-chan queue.Message, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.syncPending(ctx)
	d.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			if msg.Type != queue.TypeOutbox {
				continue
			}
			d.drain(ctx)
		case <-ticker.C:
			d.syncPending(ctx)
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) {
	for ctx.Err() == nil {
		delivered, failed, err := d.DeliverDue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("outbox: %v", err)
			}
			return
		}
		if delivered+failed < d.BatchSize {
			return
		}
	}
}

func (d *Deliverer) syncPending(ctx context.Context) {
	n, err := d.Store.Pending(ctx)
	if err != nil {
		return
	}
	metrics.OutboxPending.Set(float64(n))
}
