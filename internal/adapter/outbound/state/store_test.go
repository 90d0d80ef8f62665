package state

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) (*FileStateStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	return NewFileStateStore(path, testLogger()), path
}

func sampleRole(id uint16) RoleEntry {
	return RoleEntry{
		ID: id,
		Targets: []TargetEntry{
			{
				Address:   "0x00000000000000000000000000000000000000A1",
				Clearance: "target",
				Options:   "send",
			},
			{
				Address:   "0x00000000000000000000000000000000000000b2",
				Clearance: "function",
				Options:   "none",
				Functions: []FunctionEntry{
					{
						Selector: "0xa9059cbb",
						Allowed:  true,
						Options:  "none",
						Parameters: []ParameterEntry{
							{Index: 1, Type: "static", Comparison: "lt", Values: []string{"0x" + strings.Repeat("00", 31) + "64"}},
						},
					},
				},
			},
		},
	}
}

func readState(t *testing.T, path string) AppState {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var st AppState
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("unmarshal %s: %v", path, err)
	}
	return st
}

// ---------------------------------------------------------------------------
// DefaultState / Load
// ---------------------------------------------------------------------------

func TestDefaultState_Empty(t *testing.T) {
	s, _ := newTestStore(t)
	st := s.DefaultState()

	if st.Version != SchemaVersion {
		t.Errorf("expected Version %q, got %q", SchemaVersion, st.Version)
	}
	if st.Roles == nil || len(st.Roles) != 0 {
		t.Errorf("expected empty Roles slice, got %v", st.Roles)
	}
	if st.Members == nil || len(st.Members) != 0 {
		t.Errorf("expected empty Members slice, got %v", st.Members)
	}
	if st.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestLoad_NoFile_ReturnsDefaultState(t *testing.T) {
	s, _ := newTestStore(t)

	st, err := s.Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if st.Version != SchemaVersion || len(st.Roles) != 0 || len(st.Members) != 0 {
		t.Errorf("expected default state, got %+v", st)
	}
}

func TestLoad_MissingCollections_AreNonNil(t *testing.T) {
	s, path := newTestStore(t)
	if err := os.WriteFile(path, []byte(`{"version":"1"}`), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	st, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if st.Roles == nil || st.Members == nil {
		t.Errorf("expected non-nil collections, got roles=%v members=%v", st.Roles, st.Members)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"corrupt json", "{invalid json", "parse state file"},
		{"future version", `{"version":"2"}`, "unsupported state version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, path := newTestStore(t)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := s.Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantMsg)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Save
// ---------------------------------------------------------------------------

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	def := uint16(2)
	original := s.DefaultState()
	original.Roles = []RoleEntry{sampleRole(1), sampleRole(2)}
	original.Members = []MemberEntry{
		{Module: "0x1111111111111111111111111111111111111111", Roles: []uint16{1, 2}, DefaultRole: &def},
		{Module: "0x2222222222222222222222222222222222222222", Roles: []uint16{1}},
	}

	if err := s.Save(original); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if !reflect.DeepEqual(loaded.Roles, original.Roles) {
		t.Errorf("roles differ after round trip:\n got  %+v\n want %+v", loaded.Roles, original.Roles)
	}
	if !reflect.DeepEqual(loaded.Members, original.Members) {
		t.Errorf("members differ after round trip:\n got  %+v\n want %+v", loaded.Members, original.Members)
	}
	if !loaded.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("CreatedAt changed: got %v, want %v", loaded.CreatedAt, original.CreatedAt)
	}
}

func TestSave_SetsVersionWhenMissing(t *testing.T) {
	s, path := newTestStore(t)

	if err := s.Save(&AppState{}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if got := readState(t, path).Version; got != SchemaVersion {
		t.Errorf("expected version %q, got %q", SchemaVersion, got)
	}
}

func TestSave_SetsFilePermissions0600(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	s, path := newTestStore(t)

	if err := s.Save(s.DefaultState()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := os.Chmod(path, 0644); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := s.Save(s.DefaultState()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected 0600 after save, got %04o", perm)
	}
}

func TestSave_CreatesBackup(t *testing.T) {
	s, path := newTestStore(t)

	first := s.DefaultState()
	first.Roles = []RoleEntry{sampleRole(1)}
	if err := s.Save(first); err != nil {
		t.Fatalf("first Save() failed: %v", err)
	}

	second := s.DefaultState()
	second.Roles = []RoleEntry{sampleRole(7)}
	if err := s.Save(second); err != nil {
		t.Fatalf("second Save() failed: %v", err)
	}

	backup := readState(t, path+".bak")
	if len(backup.Roles) != 1 || backup.Roles[0].ID != 1 {
		t.Errorf("expected backup to hold role 1, got %+v", backup.Roles)
	}
	current := readState(t, path)
	if len(current.Roles) != 1 || current.Roles[0].ID != 7 {
		t.Errorf("expected current to hold role 7, got %+v", current.Roles)
	}
}

func TestSave_AtomicWrite_NoTmpFileLeftBehind(t *testing.T) {
	s, path := newTestStore(t)

	if err := s.Save(s.DefaultState()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("expected .tmp file to not exist after save")
	}
}

func TestSave_UpdatesUpdatedAt(t *testing.T) {
	s, _ := newTestStore(t)

	st := s.DefaultState()
	before := st.UpdatedAt
	time.Sleep(10 * time.Millisecond)

	if err := s.Save(st); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if !st.UpdatedAt.After(before) {
		t.Errorf("expected UpdatedAt to advance, before=%v after=%v", before, st.UpdatedAt)
	}
}

func TestReset_ClearsStateAndKeepsBackup(t *testing.T) {
	s, path := newTestStore(t)

	st := s.DefaultState()
	st.Roles = []RoleEntry{sampleRole(1)}
	if err := s.Save(st); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}

	if got := readState(t, path); len(got.Roles) != 0 {
		t.Errorf("expected no roles after reset, got %d", len(got.Roles))
	}
	if got := readState(t, path+".bak"); len(got.Roles) != 1 {
		t.Errorf("expected backup with 1 role, got %d", len(got.Roles))
	}
}

// ---------------------------------------------------------------------------
// Exists / Path
// ---------------------------------------------------------------------------

func TestExists(t *testing.T) {
	s, path := newTestStore(t)

	if s.Exists() {
		t.Error("expected Exists() to return false for missing file")
	}
	if err := os.WriteFile(path, []byte("{}"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !s.Exists() {
		t.Error("expected Exists() to return true for existing file")
	}
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestConcurrentSaves_DoNotCorruptFile(t *testing.T) {
	s, path := newTestStore(t)

	const goroutines = 20
	var wg sync.WaitGroup
	errs := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			st := s.DefaultState()
			st.Roles = []RoleEntry{sampleRole(uint16(n))}
			if err := s.Save(st); err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Save() error: %v", err)
	}

	final := readState(t, path)
	if len(final.Roles) != 1 {
		t.Errorf("expected exactly one role after concurrent saves, got %d", len(final.Roles))
	}
}

// ---------------------------------------------------------------------------
// Permissions
// ---------------------------------------------------------------------------

func TestLoad_Permissions_Warning(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}

	tests := []struct {
		name     string
		mode     os.FileMode
		wantWarn bool
	}{
		{"too open", 0644, true},
		{"owner only", 0600, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			if err := os.WriteFile(path, []byte(`{"version":"1","roles":[],"members":[]}`), tt.mode); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := os.Chmod(path, tt.mode); err != nil {
				t.Fatalf("chmod: %v", err)
			}

			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
			if _, err := NewFileStateStore(path, logger).Load(); err != nil {
				t.Fatalf("Load() error: %v", err)
			}

			if got := strings.Contains(buf.String(), "too-open permissions"); got != tt.wantWarn {
				t.Errorf("warning logged = %v, want %v (log: %q)", got, tt.wantWarn, buf.String())
			}
		})
	}
}
