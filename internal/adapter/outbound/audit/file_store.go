// Package audit stores event records as JSON Lines in daily files with a
// size cap, retention cleanup and an in-memory cache of recent records.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Sentinel-Gate/rolegate/internal/domain/audit"
)

const dateLayout = "2006-01-02"

// eventFilePattern matches events-YYYY-MM-DD.jsonl and events-YYYY-MM-DD-N.jsonl.
var eventFilePattern = regexp.MustCompile(`^events-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.jsonl$`)

// segment identifies one event file: a day and its size-rotation index.
type segment struct {
	date  string
	index int
}

func (s segment) filename() string {
	if s.index == 0 {
		return fmt.Sprintf("events-%s.jsonl", s.date)
	}
	return fmt.Sprintf("events-%s-%d.jsonl", s.date, s.index)
}

func (s segment) before(o segment) bool {
	if s.date != o.date {
		return s.date < o.date
	}
	return s.index < o.index
}

func parseSegment(name string) (segment, bool) {
	m := eventFilePattern.FindStringSubmatch(name)
	if m == nil {
		return segment{}, false
	}
	seg := segment{date: m[1]}
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return segment{}, false
		}
		seg.index = n
	}
	return seg, true
}

// FileConfig configures a FileStore.
type FileConfig struct {
	Dir string

	// RetentionDays is how long event files are kept. Default 30.
	RetentionDays int

	// MaxFileSizeMB rotates to a new file for the same day. Default 50.
	MaxFileSizeMB int

	// CacheSize is how many recent records Recent can return. Default 1000.
	CacheSize int
}

// FileStore implements audit.Store and audit.QueryStore.
type FileStore struct {
	dir           string
	maxFileSize   int64
	retentionDays int
	cache         *recordRing
	logger        *slog.Logger

	mu      sync.Mutex
	file    *os.File
	current segment
	size    int64
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

var (
	_ audit.Store      = (*FileStore)(nil)
	_ audit.QueryStore = (*FileStore)(nil)
)

// NewFileStore creates dir if needed, removes expired files, loads the
// newest file into the cache and opens today's file for appending. An
// hourly goroutine keeps enforcing retention until Close.
func NewFileStore(cfg FileConfig, logger *slog.Logger) (*FileStore, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 50
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create event directory: %w", err)
	}

	s := &FileStore{
		dir:           cfg.Dir,
		maxFileSize:   int64(cfg.MaxFileSizeMB) << 20,
		retentionDays: cfg.RetentionDays,
		cache:         newRecordRing(cfg.CacheSize),
		logger:        logger,
		done:          make(chan struct{}),
	}

	s.removeExpired(time.Now().UTC())
	s.loadCache()

	today := time.Now().UTC().Format(dateLayout)
	if err := s.openLocked(s.latestSegment(today)); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.retentionLoop(ctx)
	return s, nil
}

// Append writes each record as one JSON line, rotating by day and size.
func (s *FileStore) Append(_ context.Context, records ...audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("event store closed")
	}

	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		line = append(line, '\n')

		if date := rec.Timestamp.UTC().Format(dateLayout); date != s.current.date {
			if err := s.openLocked(s.latestSegment(date)); err != nil {
				return err
			}
		} else if s.size > 0 && s.size+int64(len(line)) > s.maxFileSize {
			if err := s.openLocked(segment{date: date, index: s.current.index + 1}); err != nil {
				return err
			}
		}

		n, err := s.file.Write(line)
		s.size += int64(n)
		if err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		s.cache.add(rec)
	}
	return nil
}

// Flush syncs the current file.
func (s *FileStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Sync()
}

// Close stops retention cleanup and closes the current file. It is safe
// to call more than once.
func (s *FileStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	var err error
	if s.file != nil {
		_ = s.file.Sync()
		err = s.file.Close()
		s.file = nil
	}
	s.mu.Unlock()

	<-s.done
	return err
}

// Recent returns cached records matching filter, newest first.
func (s *FileStore) Recent(filter audit.Filter) []audit.Record {
	return s.cache.recent(filter)
}

// openLocked closes the current file and opens seg for appending.
func (s *FileStore) openLocked(seg segment) error {
	if s.file != nil {
		_ = s.file.Sync()
		_ = s.file.Close()
		s.file = nil
	}

	f, err := os.OpenFile(filepath.Join(s.dir, seg.filename()), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open event file %s: %w", seg.filename(), err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat event file %s: %w", seg.filename(), err)
	}

	s.file = f
	s.current = seg
	s.size = info.Size()
	return nil
}

// segments lists the event files in dir in chronological order.
func (s *FileStore) segments() []segment {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("failed to read event directory", "dir", s.dir, "error", err)
		return nil
	}
	var segs []segment
	for _, e := range entries {
		if seg, ok := parseSegment(e.Name()); ok {
			segs = append(segs, seg)
		}
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].before(segs[j]) })
	return segs
}

// latestSegment returns the highest-index segment of date, so a restart
// keeps appending to the file it left off in.
func (s *FileStore) latestSegment(date string) segment {
	latest := segment{date: date}
	for _, seg := range s.segments() {
		if seg.date == date && seg.index > latest.index {
			latest = seg
		}
	}
	return latest
}

// removeExpired deletes files dated before the retention window.
func (s *FileStore) removeExpired(now time.Time) {
	cutoff := now.AddDate(0, 0, -s.retentionDays).Format(dateLayout)
	removed := 0
	for _, seg := range s.segments() {
		if seg.date >= cutoff {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, seg.filename())); err != nil {
			s.logger.Error("failed to remove expired event file", "file", seg.filename(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("removed expired event files", "count", removed)
	}
}

func (s *FileStore) retentionLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.removeExpired(now.UTC())
		}
	}
}

// loadCache fills the cache from the newest non-empty file.
func (s *FileStore) loadCache() {
	segs := s.segments()
	for i := len(segs) - 1; i >= 0; i-- {
		path := filepath.Join(s.dir, segs[i].filename())
		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			continue
		}
		s.readInto(path)
		return
	}
}

func (s *FileStore) readInto(path string) {
	f, err := os.Open(path)
	if err != nil {
		s.logger.Error("failed to open event file", "path", path, "error", err)
		return
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec audit.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			s.logger.Warn("skipping malformed event line", "path", path, "error", err)
			continue
		}
		s.cache.add(rec)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Error("failed to read event file", "path", path, "error", err)
	}
}

// recordRing keeps the last size records.
type recordRing struct {
	mu      sync.RWMutex
	entries []audit.Record
	next    int
	count   int
}

func newRecordRing(size int) *recordRing {
	return &recordRing{entries: make([]audit.Record, size)}
}

func (r *recordRing) add(rec audit.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = rec
	r.next = (r.next + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
}

func (r *recordRing) recent(filter audit.Filter) []audit.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := filter.EffectiveLimit()
	out := make([]audit.Record, 0, min(limit, r.count))
	for i := 0; i < r.count && len(out) < limit; i++ {
		rec := r.entries[(r.next-1-i+len(r.entries))%len(r.entries)]
		if filter.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func (r *recordRing) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
