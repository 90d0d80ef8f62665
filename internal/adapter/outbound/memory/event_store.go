package memory

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/Sentinel-Gate/rolegate/internal/domain/audit"
)

const defaultRecentCap = 1000

// EventStore implements audit.Store writing JSON lines to a writer, usually
// stdout. It keeps a bounded ring of recent records for audit.QueryStore.
type EventStore struct {
	encoder *json.Encoder
	writer  io.Writer
	mu      sync.Mutex
	recent  []audit.Record
	cap     int
}

var (
	_ audit.Store      = (*EventStore)(nil)
	_ audit.QueryStore = (*EventStore)(nil)
)

// NewEventStore creates an EventStore writing to w. A nil w discards
// output. capacity <= 0 means 1000.
func NewEventStore(w io.Writer, capacity int) *EventStore {
	if w == nil {
		w = io.Discard
	}
	if capacity <= 0 {
		capacity = defaultRecentCap
	}
	return &EventStore{
		encoder: json.NewEncoder(w),
		writer:  w,
		recent:  make([]audit.Record, 0, capacity),
		cap:     capacity,
	}
}

// Append encodes each record as one line and keeps it in the ring.
func (s *EventStore) Append(_ context.Context, records ...audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if err := s.encoder.Encode(r); err != nil {
			return err
		}
		if len(s.recent) >= s.cap {
			copy(s.recent, s.recent[1:])
			s.recent[len(s.recent)-1] = r
		} else {
			s.recent = append(s.recent, r)
		}
	}
	return nil
}

// Flush is a no-op; every Append is written through.
func (s *EventStore) Flush(context.Context) error {
	return nil
}

// Close closes the writer when it is a file other than stdout or stderr.
func (s *EventStore) Close() error {
	if f, ok := s.writer.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Close()
	}
	return nil
}

// Recent returns records matching filter, newest first.
func (s *EventStore) Recent(filter audit.Filter) []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.EffectiveLimit()
	var result []audit.Record
	for i := len(s.recent) - 1; i >= 0 && len(result) < limit; i-- {
		if filter.Matches(s.recent[i]) {
			result = append(result, s.recent[i])
		}
	}
	return result
}
