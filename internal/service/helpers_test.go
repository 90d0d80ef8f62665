package service

import (
	"context"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/state"
	"github.com/Sentinel-Gate/rolegate/internal/domain/audit"
	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
)

var (
	testTarget = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testOther  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	testModule = common.HexToAddress("0x0000000000000000000000000000000000001111")

	transferSel = roles.Selector{0xa9, 0x05, 0x9c, 0xbb}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testStateStore returns a FileStateStore in a temp dir initialized with
// the default state.
func testStateStore(t *testing.T) *state.FileStateStore {
	t.Helper()
	store := state.NewFileStateStore(filepath.Join(t.TempDir(), "state.json"), testLogger())
	if err := store.Save(store.DefaultState()); err != nil {
		t.Fatalf("save default state: %v", err)
	}
	return store
}

type roleAdminEnv struct {
	svc      *RoleAdminService
	store    *memory.RoleStore
	state    *state.FileStateStore
	recorder *countingRecorder
}

func newRoleAdminEnv(t *testing.T) *roleAdminEnv {
	t.Helper()
	env := &roleAdminEnv{
		store:    memory.NewRoleStore(),
		state:    testStateStore(t),
		recorder: newCountingRecorder(),
	}
	env.svc = NewRoleAdminService(env.store, NewStatePersister(env.state), env.recorder, testLogger())
	return env
}

func (e *roleAdminEnv) loadState(t *testing.T) *state.AppState {
	t.Helper()
	st, err := e.state.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return st
}

// word left-pads n into a 32-byte word.
func word(n int64) []byte {
	return common.LeftPadBytes(big.NewInt(n).Bytes(), 32)
}

// transferCall encodes transfer(to, amount).
func transferCall(to common.Address, amount int64) []byte {
	data := append([]byte{}, transferSel[:]...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	return append(data, word(amount)...)
}

type countingRecorder struct {
	mu        sync.Mutex
	checks    map[string]int
	mutations map[string]int
	execs     map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		checks:    make(map[string]int),
		mutations: make(map[string]int),
		execs:     make(map[string]int),
	}
}

func (r *countingRecorder) ObserveCheck(reason string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[reason]++
}

func (r *countingRecorder) AdminMutation(op, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations[op+"/"+status]++
}

func (r *countingRecorder) Execution(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs[status]++
}

func (r *countingRecorder) mutation(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutations[key]
}

func (r *countingRecorder) check(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checks[reason]
}

func (r *countingRecorder) exec(status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.execs[status]
}

// fakeForwarder records forwarded transactions and returns a fixed result.
type fakeForwarder struct {
	mu     sync.Mutex
	calls  []roles.Transaction
	result roles.ExecResult
	err    error
}

func (f *fakeForwarder) Exec(_ context.Context, tx roles.Transaction) (roles.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tx)
	return f.result, f.err
}

func (f *fakeForwarder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// captureSink keeps every emitted event in order.
type captureSink struct {
	mu      sync.Mutex
	records []audit.Record
}

func (c *captureSink) Emit(_ context.Context, rec audit.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func (c *captureSink) all() []audit.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audit.Record(nil), c.records...)
}

func (c *captureSink) last(t *testing.T) audit.Record {
	t.Helper()
	recs := c.all()
	if len(recs) == 0 {
		t.Fatal("no events emitted")
	}
	return recs[len(recs)-1]
}
