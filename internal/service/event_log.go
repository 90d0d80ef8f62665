package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/rolegate/internal/ctxkey"
	"github.com/Sentinel-Gate/rolegate/internal/domain/audit"
)

// EventSink receives the events the services emit. Emit must not block
// the caller for long.
type EventSink interface {
	Emit(ctx context.Context, rec audit.Record)
}

type nopSink struct{}

func (nopSink) Emit(context.Context, audit.Record) {}

func sinkOrNop(s EventSink) EventSink {
	if s == nil {
		return nopSink{}
	}
	return s
}

// EventLog batches events to an audit.Store from a background worker, so
// rule changes and decisions never wait on disk.
type EventLog struct {
	store         audit.Store
	events        chan audit.Record
	wg            sync.WaitGroup
	stopOnce      sync.Once
	mu            sync.RWMutex // guards closed against the channel close
	closed        bool
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration
	sendTimeout   time.Duration
	dropped       atomic.Int64
}

// EventLogOption configures an EventLog.
type EventLogOption func(*EventLog)

// WithEventBatchSize sets how many events are written per store call.
func WithEventBatchSize(n int) EventLogOption {
	return func(l *EventLog) { l.batchSize = n }
}

// WithEventFlushInterval sets how long a partial batch may wait.
func WithEventFlushInterval(d time.Duration) EventLogOption {
	return func(l *EventLog) { l.flushInterval = d }
}

// WithEventBuffer sets the channel capacity.
func WithEventBuffer(n int) EventLogOption {
	return func(l *EventLog) { l.events = make(chan audit.Record, n) }
}

// WithEventSendTimeout bounds how long Emit waits on a full buffer before
// dropping the event. Zero drops immediately.
func WithEventSendTimeout(d time.Duration) EventLogOption {
	return func(l *EventLog) { l.sendTimeout = d }
}

// NewEventLog creates an EventLog writing to store. Call Start before
// emitting and Stop on shutdown.
func NewEventLog(store audit.Store, logger *slog.Logger, opts ...EventLogOption) *EventLog {
	l := &EventLog{
		store:         store,
		events:        make(chan audit.Record, 1000),
		logger:        logger,
		batchSize:     100,
		flushInterval: time.Second,
		sendTimeout:   50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start runs the background writer until Stop or ctx is done.
func (l *EventLog) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.worker(ctx)
}

// Emit stamps rec with an id, a timestamp and the request id from ctx,
// then queues it. A full buffer drops the event after sendTimeout. Events
// emitted after Stop are dropped.
func (l *EventLog) Emit(ctx context.Context, rec audit.Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.RequestID == "" {
		rec.RequestID = ctxkey.RequestID(ctx)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.dropped.Add(1)
		return
	}

	select {
	case l.events <- rec:
		return
	default:
	}
	if l.sendTimeout > 0 {
		timer := time.NewTimer(l.sendTimeout)
		defer timer.Stop()
		select {
		case l.events <- rec:
			return
		case <-timer.C:
		}
	}

	drops := l.dropped.Add(1)
	l.logger.Warn("event dropped", "kind", rec.Kind, "event", rec.Event, "total_drops", drops)
}

// Dropped returns how many events were discarded on a full buffer.
func (l *EventLog) Dropped() int64 {
	return l.dropped.Load()
}

// Pending returns the number of queued events.
func (l *EventLog) Pending() int {
	return len(l.events)
}

// Stop closes the queue, waits for the worker to write what is left and
// flushes the store.
func (l *EventLog) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.events)
		l.mu.Unlock()
		l.wg.Wait()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.store.Flush(ctx); err != nil {
			l.logger.Error("failed to flush event store", "error", err)
		}
	})
}

func (l *EventLog) worker(ctx context.Context) {
	defer l.wg.Done()

	batch := make([]audit.Record, 0, l.batchSize)
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	write := func() {
		if len(batch) == 0 {
			return
		}
		wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.store.Append(wctx, batch...); err != nil {
			l.logger.Error("failed to write events", "error", err, "count", len(batch))
		}
		batch = batch[:0]
	}

	done := ctx.Done()
	for {
		select {
		case rec, ok := <-l.events:
			if !ok {
				write()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= l.batchSize {
				write()
			}
		case <-ticker.C:
			write()
		case <-done:
			// Keep draining until Stop closes the channel.
			write()
			done = nil
		}
	}
}
