package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
)

func TestMembershipStore_AssignRoles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMembershipStore()

	if err := store.AssignRoles(ctx, moduleA, []uint16{1, 2, 3}, []bool{true, true, false}); err != nil {
		t.Fatalf("AssignRoles() error: %v", err)
	}

	tests := []struct {
		role uint16
		want bool
	}{
		{1, true},
		{2, true},
		{3, false},
		{4, false},
	}
	for _, tt := range tests {
		got, err := store.IsMember(ctx, moduleA, tt.role)
		if err != nil {
			t.Fatalf("IsMember() error: %v", err)
		}
		if got != tt.want {
			t.Errorf("IsMember(moduleA, %d) = %v, want %v", tt.role, got, tt.want)
		}
	}

	if got, _ := store.IsMember(ctx, moduleB, 1); got {
		t.Error("moduleB should not hold role 1")
	}

	if err := store.AssignRoles(ctx, moduleA, []uint16{1}, []bool{false}); err != nil {
		t.Fatalf("AssignRoles() revoke error: %v", err)
	}
	if got, _ := store.IsMember(ctx, moduleA, 1); got {
		t.Error("role 1 should be revoked")
	}
	if got, _ := store.IsMember(ctx, moduleA, 2); !got {
		t.Error("role 2 should be untouched by revoking role 1")
	}
}

func TestMembershipStore_AssignRoles_LengthMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMembershipStore()

	err := store.AssignRoles(ctx, moduleA, []uint16{1, 2}, []bool{true})
	if !errors.Is(err, roles.ErrArraysDifferentLength) {
		t.Fatalf("AssignRoles() error = %v, want ErrArraysDifferentLength", err)
	}
	if got, _ := store.IsMember(ctx, moduleA, 1); got {
		t.Error("failed AssignRoles must not grant anything")
	}
}

func TestMembershipStore_DefaultRole(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMembershipStore()

	if _, ok, err := store.DefaultRole(ctx, moduleA); err != nil || ok {
		t.Fatalf("DefaultRole() on empty store = ok %v, err %v", ok, err)
	}

	if err := store.SetDefaultRole(ctx, moduleA, 5); err != nil {
		t.Fatalf("SetDefaultRole() error: %v", err)
	}
	role, ok, err := store.DefaultRole(ctx, moduleA)
	if err != nil || !ok || role != 5 {
		t.Errorf("DefaultRole() = %d, %v, %v; want 5, true, nil", role, ok, err)
	}

	// A default role does not confer membership.
	if got, _ := store.IsMember(ctx, moduleA, 5); got {
		t.Error("default role must not imply membership")
	}
}

func TestMembershipStore_List(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMembershipStore()

	_ = store.AssignRoles(ctx, moduleB, []uint16{3, 1}, []bool{true, true})
	_ = store.SetDefaultRole(ctx, moduleA, 2)
	_ = store.AssignRoles(ctx, moduleA, []uint16{2}, []bool{true})

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() returned %d members, want 2", len(list))
	}
	if list[0].Module != moduleA || list[1].Module != moduleB {
		t.Errorf("List() not ordered by address: %v, %v", list[0].Module, list[1].Module)
	}
	if !list[0].HasDefault || list[0].DefaultRole != 2 {
		t.Errorf("moduleA default = %d/%v, want 2/true", list[0].DefaultRole, list[0].HasDefault)
	}
	if len(list[1].Roles) != 2 || list[1].Roles[0] != 1 || list[1].Roles[1] != 3 {
		t.Errorf("moduleB roles = %v, want [1 3]", list[1].Roles)
	}

	// Revoking the last role of a module without a default removes it.
	_ = store.AssignRoles(ctx, moduleB, []uint16{1, 3}, []bool{false, false})
	if list, _ := store.List(ctx); len(list) != 1 {
		t.Errorf("List() after revoking moduleB returned %d members, want 1", len(list))
	}

	store.Reset()
	if list, _ := store.List(ctx); len(list) != 0 {
		t.Errorf("List() after Reset returned %d members", len(list))
	}
}
