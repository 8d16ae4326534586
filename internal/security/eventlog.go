package security

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/telemetry/metric"
)

// DefaultEventCapacity is the default ring size.
const DefaultEventCapacity = 10000

const sinkQueueSize = 1024

// Sink persists events outside the ring. Sink errors are logged, never
// returned to the caller of Record.
type Sink interface {
	WriteEvent(ctx context.Context, ev domain.SecurityEvent) error
}

// Filter narrows Query results. Zero fields match everything.
type Filter struct {
	Types       []domain.EventType
	Identifier  string
	MinSeverity domain.Severity
	// Limit keeps only the newest Limit matches.
	Limit int
}

func (f Filter) match(ev *domain.SecurityEvent) bool {
	if f.Identifier != "" && ev.Identifier != f.Identifier {
		return false
	}
	if ev.Severity < f.MinSeverity {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if ev.Type == t {
			return true
		}
	}
	return false
}

// EventLog is an append-only bounded ring of security events.
//
// Record holds the mutex only for the slot write; sink persistence happens
// on a background goroutine fed by a bounded queue.
type EventLog struct {
	mu      sync.RWMutex
	events  []domain.SecurityEvent
	head    int // next write position
	count   int
	evicted int64

	now     func() time.Time
	logger  *slog.Logger
	metrics *metric.Registry

	sink      Sink
	sinkQueue chan domain.SecurityEvent
	sinkDrops int64
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// EventLogOption configures an EventLog.
type EventLogOption func(*EventLog)

// WithEventClock overrides time.Now.
func WithEventClock(now func() time.Time) EventLogOption {
	return func(l *EventLog) { l.now = now }
}

// WithEventLogger sets the logger.
func WithEventLogger(logger *slog.Logger) EventLogOption {
	return func(l *EventLog) { l.logger = logger }
}

// WithEventMetrics sets the metrics registry.
func WithEventMetrics(m *metric.Registry) EventLogOption {
	return func(l *EventLog) { l.metrics = m }
}

// WithSink forwards every recorded event to sink.
func WithSink(sink Sink) EventLogOption {
	return func(l *EventLog) { l.sink = sink }
}

// NewEventLog creates a log holding at most capacity events.
func NewEventLog(capacity int, opts ...EventLogOption) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	l := &EventLog{
		events: make([]domain.SecurityEvent, capacity),
		now:    time.Now,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.sink != nil {
		l.sinkQueue = make(chan domain.SecurityEvent, sinkQueueSize)
		l.wg.Add(1)
		go l.drainSink()
	}
	return l
}

// Record assigns an id and timestamp, appends ev and returns the stored
// copy. When the ring is full the oldest event is evicted. Record never
// blocks on the sink and never fails.
func (l *EventLog) Record(_ context.Context, ev domain.SecurityEvent) domain.SecurityEvent {
	if ev.Severity == 0 {
		ev.Severity = domain.SeverityLow
	}
	if ev.Metadata != nil {
		md := make(map[string]string, len(ev.Metadata))
		for k, v := range ev.Metadata {
			md[k] = v
		}
		ev.Metadata = md
	}

	l.mu.Lock()
	// Stamped under the lock so the ring stays in timestamp order.
	ev.Timestamp = l.now()
	ev.ID = ulid.MustNew(ulid.Timestamp(ev.Timestamp), ulid.DefaultEntropy()).String()
	evicted := l.count == len(l.events)
	l.events[l.head] = ev
	l.head = (l.head + 1) % len(l.events)
	if evicted {
		l.evicted++
	} else {
		l.count++
	}
	l.mu.Unlock()

	if evicted {
		l.metrics.AddEventsEvicted(1)
	}
	l.metrics.ObserveSecurityEvent(string(ev.Type), ev.Severity.String())
	l.enqueueSink(ev)
	return ev
}

// Seed appends events that were recorded earlier, such as ones loaded from
// a sink at startup. events must be oldest first and Seed must run before
// the first Record. Seeded events are not forwarded to the sink.
func (l *EventLog) Seed(events []domain.SecurityEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range events {
		if l.count == len(l.events) {
			l.evicted++
		} else {
			l.count++
		}
		l.events[l.head] = ev
		l.head = (l.head + 1) % len(l.events)
	}
}

func (l *EventLog) enqueueSink(ev domain.SecurityEvent) {
	if l.sinkQueue == nil {
		return
	}
	select {
	case <-l.done:
	case l.sinkQueue <- ev:
	default:
		l.mu.Lock()
		l.sinkDrops++
		l.mu.Unlock()
	}
}

func (l *EventLog) drainSink() {
	defer l.wg.Done()
	for {
		select {
		case ev := <-l.sinkQueue:
			l.writeSink(ev)
		case <-l.done:
			for {
				select {
				case ev := <-l.sinkQueue:
					l.writeSink(ev)
				default:
					return
				}
			}
		}
	}
}

func (l *EventLog) writeSink(ev domain.SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.sink.WriteEvent(ctx, ev); err != nil {
		l.logger.Warn("security event sink failed", "event_id", ev.ID, "type", ev.Type, "error", err)
	}
}

// Close flushes queued sink writes and stops the background goroutine.
func (l *EventLog) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.wg.Wait()
	})
}

// Query returns events at or after since that match f, oldest first.
func (l *EventLog) Query(since time.Time, f Filter) []domain.SecurityEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.SecurityEvent
	// Walk newest to oldest; the ring is in timestamp order.
	for i := 0; i < l.count; i++ {
		idx := (l.head - 1 - i + len(l.events)) % len(l.events)
		ev := &l.events[idx]
		if ev.Timestamp.Before(since) {
			break
		}
		if !f.match(ev) {
			continue
		}
		out = append(out, *ev)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Recent returns identifier's events from the last window, oldest first.
func (l *EventLog) Recent(identifier string, window time.Duration) []domain.SecurityEvent {
	return l.Query(l.now().Add(-window), Filter{Identifier: identifier})
}

// Len returns the number of retained events.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Capacity returns the ring size.
func (l *EventLog) Capacity() int {
	return len(l.events)
}

// Evicted returns how many events were pushed out of the ring.
func (l *EventLog) Evicted() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.evicted
}

// SinkDrops returns how many events were not forwarded because the sink
// queue was full.
func (l *EventLog) SinkDrops() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sinkDrops
}
