package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/leadforge-service/internal/monitoring"
)

// Dispatcher hands events to a background worker so request handlers never
// wait on the relay.
type Dispatcher struct {
	relay   Relay
	queue   chan Event // Channel for background publishing
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts the worker. size bounds the queue; events beyond it are dropped.
func NewDispatcher(relay Relay, size int, timeout time.Duration) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &Dispatcher{
		relay:   relay,
		queue:   make(chan Event, size),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go d.startWorker()
	return d
}

// startWorker publishes queued events until the queue is closed
func (d *Dispatcher) startWorker() {
	defer close(d.done)
	for ev := range d.queue {
		d.publish(ev)
	}
}

func (d *Dispatcher) publish(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.relay.Publish(ctx, ev); err != nil {
		monitoring.RelayEvents.WithLabelValues("failed").Inc()
		log.Error().Err(err).
			Str("event", ev.Type).
			Str("lead_id", ev.LeadID.String()).
			Msg("Relay publish failed")
		monitoring.Alert("relay publish failed", map[string]string{
			"event":      ev.Type,
			"company_id": ev.CompanyID.String(),
		})
		return
	}
	monitoring.RelayEvents.WithLabelValues("published").Inc()
}

// Notify enqueues ev without blocking. It reports whether the event was accepted.
func (d *Dispatcher) Notify(ev Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case d.queue <- ev:
		return true
	default:
		monitoring.RelayEvents.WithLabelValues("dropped").Inc()
		log.Warn().Str("event", ev.Type).Str("lead_id", ev.LeadID.String()).Msg("Relay queue full, event dropped")
		return false
	}
}

// Close stops accepting events, drains the queue and closes the relay.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
	return d.relay.Close()
}
