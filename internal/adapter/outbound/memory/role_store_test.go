package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
)

var (
	targetA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	moduleA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	moduleB = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestRoleStore_GetRole_UnknownIsEmpty(t *testing.T) {
	t.Parallel()

	store := NewRoleStore()
	r, err := store.GetRole(context.Background(), 9)
	if err != nil {
		t.Fatalf("GetRole() error: %v", err)
	}
	if r.ID != 9 || len(r.Targets) != 0 {
		t.Errorf("GetRole() = %+v, want empty role 9", r)
	}
}

func TestRoleStore_SaveAndGet_Copies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRoleStore()

	r := roles.NewRole(1)
	if err := r.AllowTarget(targetA, roles.ExecSend); err != nil {
		t.Fatalf("AllowTarget() error: %v", err)
	}
	if err := store.SaveRole(ctx, r); err != nil {
		t.Fatalf("SaveRole() error: %v", err)
	}

	// Mutating the caller's role after saving must not reach the store.
	r.RevokeTarget(targetA)

	got, err := store.GetRole(ctx, 1)
	if err != nil {
		t.Fatalf("GetRole() error: %v", err)
	}
	if got.Target(targetA).Clearance != roles.ClearanceTarget {
		t.Fatalf("stored clearance = %s, want target", got.Target(targetA).Clearance)
	}

	// Mutating a returned role must not reach the store either.
	got.RevokeTarget(targetA)
	again, _ := store.GetRole(ctx, 1)
	if again.Target(targetA).Clearance != roles.ClearanceTarget {
		t.Errorf("store changed through returned copy")
	}
}

func TestRoleStore_ListRoles_Ordered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRoleStore()
	for _, id := range []uint16{7, 1, 4} {
		if err := store.SaveRole(ctx, roles.NewRole(id)); err != nil {
			t.Fatalf("SaveRole(%d) error: %v", id, err)
		}
	}

	list, err := store.ListRoles(ctx)
	if err != nil {
		t.Fatalf("ListRoles() error: %v", err)
	}
	want := []uint16{1, 4, 7}
	if len(list) != len(want) {
		t.Fatalf("ListRoles() returned %d roles, want %d", len(list), len(want))
	}
	for i, r := range list {
		if r.ID != want[i] {
			t.Errorf("ListRoles()[%d].ID = %d, want %d", i, r.ID, want[i])
		}
	}

	store.Reset()
	if list, _ := store.ListRoles(ctx); len(list) != 0 {
		t.Errorf("ListRoles() after Reset returned %d roles", len(list))
	}
}

func TestRoleStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRoleStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(id uint16) {
			defer wg.Done()
			r := roles.NewRole(id)
			r.ScopeTarget(targetA)
			_ = store.SaveRole(ctx, r)
		}(uint16(i % 5))
		go func(id uint16) {
			defer wg.Done()
			_, _ = store.GetRole(ctx, id)
			_, _ = store.ListRoles(ctx)
		}(uint16(i % 5))
	}
	wg.Wait()

	list, _ := store.ListRoles(ctx)
	if len(list) != 5 {
		t.Errorf("expected 5 roles after concurrent saves, got %d", len(list))
	}
}
