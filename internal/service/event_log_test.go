package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/goleak"

	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/rolegate/internal/ctxkey"
	"github.com/Sentinel-Gate/rolegate/internal/domain/audit"
	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
)

type memEventStore struct {
	mu      sync.Mutex
	records []audit.Record
	appends int
	flushes int
	block   chan struct{}
}

func (m *memEventStore) Append(_ context.Context, records ...audit.Record) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	m.appends++
	return nil
}

func (m *memEventStore) Flush(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

func (m *memEventStore) Close() error { return nil }

func (m *memEventStore) snapshot() ([]audit.Record, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Record(nil), m.records...), m.appends, m.flushes
}

func TestEventLog_StopWritesPending(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &memEventStore{}
	log := NewEventLog(store, testLogger(), WithEventFlushInterval(time.Hour))
	log.Start(context.Background())

	ctx := context.WithValue(context.Background(), ctxkey.RequestIDKey{}, "req-1")
	for range 5 {
		log.Emit(ctx, audit.Record{Kind: audit.KindCheck, Event: "check"})
	}
	log.Stop()

	recs, _, flushes := store.snapshot()
	if len(recs) != 5 {
		t.Fatalf("stored %d records, want 5", len(recs))
	}
	if flushes != 1 {
		t.Errorf("flushes = %d, want 1", flushes)
	}
	seen := make(map[string]bool)
	for _, r := range recs {
		if r.ID == "" || seen[r.ID] {
			t.Errorf("record id %q missing or duplicated", r.ID)
		}
		seen[r.ID] = true
		if r.Timestamp.IsZero() {
			t.Error("timestamp not set")
		}
		if r.RequestID != "req-1" {
			t.Errorf("request id = %q, want req-1", r.RequestID)
		}
	}
}

func TestEventLog_Batching(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &memEventStore{}
	log := NewEventLog(store, testLogger(), WithEventBatchSize(4), WithEventFlushInterval(time.Hour))
	log.Start(context.Background())

	for range 8 {
		log.Emit(context.Background(), audit.Record{Kind: audit.KindRole})
	}
	log.Stop()

	recs, appends, _ := store.snapshot()
	if len(recs) != 8 {
		t.Fatalf("stored %d records, want 8", len(recs))
	}
	if appends != 2 {
		t.Errorf("appends = %d, want 2 full batches", appends)
	}
}

func TestEventLog_FlushInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &memEventStore{}
	log := NewEventLog(store, testLogger(), WithEventFlushInterval(10*time.Millisecond))
	log.Start(context.Background())
	defer log.Stop()

	log.Emit(context.Background(), audit.Record{Kind: audit.KindExec})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if recs, _, _ := store.snapshot(); len(recs) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("partial batch not written by the ticker")
}

func TestEventLog_DropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &memEventStore{block: make(chan struct{})}
	log := NewEventLog(store, testLogger(),
		WithEventBuffer(1),
		WithEventBatchSize(1),
		WithEventSendTimeout(0),
		WithEventFlushInterval(time.Hour),
	)
	log.Start(context.Background())

	// The worker takes the first event and blocks in Append; the second
	// fills the buffer.
	log.Emit(context.Background(), audit.Record{Event: "first"})
	deadline := time.Now().Add(2 * time.Second)
	for log.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	log.Emit(context.Background(), audit.Record{Event: "second"})
	log.Emit(context.Background(), audit.Record{Event: "third"})

	if got := log.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}

	close(store.block)
	log.Stop()

	recs, _, _ := store.snapshot()
	if len(recs) != 2 {
		t.Errorf("stored %d records, want 2", len(recs))
	}
}

func TestEventLog_EmitAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &memEventStore{}
	log := NewEventLog(store, testLogger())
	log.Start(context.Background())
	log.Stop()
	log.Stop()

	log.Emit(context.Background(), audit.Record{Event: "late"})
	if got := log.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}

func TestEventLog_ContextCancelKeepsDraining(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &memEventStore{}
	log := NewEventLog(store, testLogger(), WithEventFlushInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	log.Start(ctx)

	log.Emit(context.Background(), audit.Record{Event: "before"})
	cancel()
	log.Emit(context.Background(), audit.Record{Event: "after"})
	log.Stop()

	if recs, _, _ := store.snapshot(); len(recs) != 2 {
		t.Errorf("stored %d records, want 2", len(recs))
	}
}

func TestAuthorizationService_EmitsCheckEvents(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	env := newAuthEnv(t, WithEvents(sink))
	ctx := context.Background()

	must(t, env.svc.Check(ctx, 1, roles.Transaction{To: testTarget, Data: transferCall(recipient, 1)}))
	rec := sink.last(t)
	if rec.Kind != audit.KindCheck || rec.Decision != audit.DecisionAllow || rec.Reason != "allowed" {
		t.Errorf("allowed check event = %+v", rec)
	}
	if rec.Selector != transferSel.String() || rec.Target != testTarget.Hex() {
		t.Errorf("selector/target = %s/%s", rec.Selector, rec.Target)
	}
	if rec.Role == nil || *rec.Role != 1 || rec.Module != "" {
		t.Errorf("role/module = %v/%q", rec.Role, rec.Module)
	}

	_ = env.svc.Check(ctx, 1, roles.Transaction{To: testTarget, Data: transferCall(recipient, 500)})
	rec = sink.last(t)
	if rec.Decision != audit.DecisionDeny || rec.Reason != "parameter_greater_than_allowed" {
		t.Errorf("rejected check event = %+v", rec)
	}

	_ = env.svc.Check(ctx, 1, roles.Transaction{To: testTarget, Data: []byte{0x01}})
	if rec = sink.last(t); rec.Selector != "" {
		t.Errorf("short calldata selector = %q, want empty", rec.Selector)
	}
}

func TestAuthorizationService_EmitsExecEvents(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	env := newAuthEnv(t, WithEvents(sink))
	ctx := context.Background()
	tx := roles.Transaction{To: testTarget, Data: transferCall(recipient, 1)}

	if _, err := env.svc.ExecTransactionWithRole(ctx, testModule, tx, 1, true); err != nil {
		t.Fatalf("exec: %v", err)
	}
	recs := sink.all()
	if len(recs) != 1 {
		t.Fatalf("emitted %d events, want 1 exec event", len(recs))
	}
	rec := recs[0]
	if rec.Kind != audit.KindExec || rec.Event != "exec_transaction_with_role" || rec.Decision != audit.DecisionAllow {
		t.Errorf("exec event = %+v", rec)
	}
	if rec.Module != testModule.Hex() || rec.Details["success"] != true {
		t.Errorf("module/details = %q/%v", rec.Module, rec.Details)
	}

	other := common.HexToAddress("0x0000000000000000000000000000000000002222")
	_, _ = env.svc.ExecTransactionWithRole(ctx, other, tx, 1, true)
	if rec = sink.last(t); rec.Reason != "no_membership" || rec.Decision != audit.DecisionDeny {
		t.Errorf("non-member event = %+v", rec)
	}

	env.forwarder.result = roles.ExecResult{Success: false}
	_, _ = env.svc.ExecTransactionWithRole(ctx, testModule, tx, 1, true)
	if rec = sink.last(t); rec.Reason != "module_transaction_failed" || rec.Decision != audit.DecisionAllow {
		t.Errorf("failed exec event = %+v", rec)
	}

	env.forwarder.err = errors.New("connection refused")
	_, _ = env.svc.ExecTransactionWithRole(ctx, testModule, tx, 1, true)
	if rec = sink.last(t); rec.Reason != "error" || rec.Decision != "" {
		t.Errorf("forwarding error event = %+v", rec)
	}

	_, _ = env.svc.ExecTransactionFromModule(ctx, other, tx)
	if rec = sink.last(t); rec.Event != "exec_transaction_from_module" || rec.Reason != "no_default_role" {
		t.Errorf("no default role event = %+v", rec)
	}
}

func TestRoleAdminService_EmitsMutationEvents(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	svc := NewRoleAdminService(memory.NewRoleStore(), nil, nil, testLogger(), WithAdminEvents(sink))
	ctx := context.Background()

	must(t, svc.ScopeTarget(ctx, 3, testTarget))
	must(t, svc.ScopeAllowFunction(ctx, 3, testTarget, transferSel, roles.ExecSend))
	if err := svc.ScopeAllowFunction(ctx, 3, testOther, transferSel, roles.ExecNone); err == nil {
		t.Fatal("allowing a function on an unscoped target succeeded")
	}

	recs := sink.all()
	if len(recs) != 2 {
		t.Fatalf("emitted %d events, want 2 (rejections are not emitted)", len(recs))
	}
	rec := recs[1]
	if rec.Kind != audit.KindRole || rec.Event != "scope_allow_function" {
		t.Errorf("event = %+v", rec)
	}
	if rec.Role == nil || *rec.Role != 3 || rec.Target != testTarget.Hex() || rec.Selector != transferSel.String() {
		t.Errorf("role/target/selector = %v/%s/%s", rec.Role, rec.Target, rec.Selector)
	}
	if rec.Details["options"] != roles.ExecSend.String() {
		t.Errorf("details = %v", rec.Details)
	}
}

func TestMembershipService_EmitsEvents(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	svc := NewMembershipService(memory.NewMembershipStore(), nil, nil, testLogger(), WithAdminEvents(sink))
	ctx := context.Background()

	must(t, svc.AssignRoles(ctx, testModule, []uint16{1, 2}, []bool{true, true}))
	must(t, svc.SetDefaultRole(ctx, testModule, 2))

	recs := sink.all()
	if len(recs) != 2 {
		t.Fatalf("emitted %d events, want 2", len(recs))
	}
	if recs[0].Kind != audit.KindMembership || recs[0].Event != "assign_roles" || recs[0].Module != testModule.Hex() {
		t.Errorf("assign event = %+v", recs[0])
	}
	if recs[1].Event != "set_default_role" || recs[1].Role == nil || *recs[1].Role != 2 {
		t.Errorf("default role event = %+v", recs[1])
	}
}

func TestMutationRecord(t *testing.T) {
	t.Parallel()
	rec := mutationRecord("scope_parameter", 7, []any{"target", "0xabc", "selector", "0x12345678", "index", 2, 42, "ignored"})
	if rec.Target != "0xabc" || rec.Selector != "0x12345678" {
		t.Errorf("target/selector = %s/%s", rec.Target, rec.Selector)
	}
	if len(rec.Details) != 1 || rec.Details["index"] != 2 {
		t.Errorf("details = %v", rec.Details)
	}
}
