package rbac_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/nextlevelbuilder/agentgate/internal/rbac"
	"github.com/nextlevelbuilder/agentgate/internal/store"
	"github.com/nextlevelbuilder/agentgate/internal/store/memory"
)

func seedRoles(s *memory.RBACStore) {
	s.PutRole(rbac.Role{Name: rbac.RoleSuperadmin, Weight: 1000, Permissions: []string{rbac.PermissionWildcard}, Enabled: true})
	s.PutRole(rbac.Role{Name: rbac.RoleAdmin, Weight: 100, Permissions: []string{"chat:send", "agents:create", "group_mappings:list", "group_mappings:view"}, Enabled: true})
	s.PutRole(rbac.Role{Name: rbac.RoleEditor, Weight: 50, Permissions: []string{"chat:send", "agents:list"}, Enabled: true})
	s.PutRole(rbac.Role{Name: rbac.RoleViewer, Weight: 10, Permissions: []string{"chat:send"}, Enabled: true})
}

func superadminActor() *rbac.UserContext {
	return &rbac.UserContext{
		UserID:       "admin-1",
		Email:        "root@example.com",
		IsSuperadmin: true,
		Role:         rbac.Role{Name: rbac.RoleSuperadmin, Permissions: []string{rbac.PermissionWildcard}},
	}
}

// TestResolve_SuperadminOverride verifies the whitelist is checked
// before group mappings: a whitelisted email gets the superadmin role
// even when its groups map to a lower role.
func TestResolve_SuperadminOverride(t *testing.T) {
	ctx := context.Background()
	st := memory.NewRBACStore()
	seedRoles(st)
	if _, err := st.AddSuperadmin(ctx, "Boss@Example.COM", "seed", ""); err != nil {
		t.Fatalf("add superadmin: %v", err)
	}
	if _, err := st.CreateRoleMapping(ctx, &rbac.GroupRoleMapping{
		GroupName: "Interns", RoleName: rbac.RoleViewer, Weight: 5, Enabled: true,
	}); err != nil {
		t.Fatalf("create mapping: %v", err)
	}

	svc := rbac.NewService(st)
	// Email comparison is case-insensitive.
	uc, err := svc.Resolve(ctx, "u1", "boss@example.com", "", []string{"Interns"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !uc.IsSuperadmin {
		t.Error("expected IsSuperadmin = true")
	}
	if uc.Role.Name != rbac.RoleSuperadmin {
		t.Errorf("role = %q, want superadmin", uc.Role.Name)
	}
	if !uc.HasPermission("anything:at_all") {
		t.Error("superadmin should hold every permission")
	}
}

// TestResolve_WeightedRole verifies group→role resolution picks the
// highest-weight mapping among the user's groups.
func TestResolve_WeightedRole(t *testing.T) {
	ctx := context.Background()
	st := memory.NewRBACStore()
	seedRoles(st)
	for _, m := range []rbac.GroupRoleMapping{
		{GroupName: "Everyone", RoleName: rbac.RoleViewer, Weight: 1, Enabled: true},
		{GroupName: "Engineers", RoleName: rbac.RoleEditor, Weight: 50, Enabled: true},
		{GroupName: "Platform-Admins", RoleName: rbac.RoleAdmin, Weight: 100, Enabled: true},
	} {
		m := m
		if _, err := st.CreateRoleMapping(ctx, &m); err != nil {
			t.Fatalf("create mapping %s: %v", m.GroupName, err)
		}
	}
	svc := rbac.NewService(st)

	tests := []struct {
		name     string
		groups   []string
		wantRole string
	}{
		{"single group", []string{"Engineers"}, rbac.RoleEditor},
		{"highest weight wins", []string{"Everyone", "Engineers", "Platform-Admins"}, rbac.RoleAdmin},
		{"unmapped groups get default", []string{"Marketing"}, rbac.DefaultRole},
		{"no groups get default", nil, rbac.DefaultRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, err := svc.Resolve(ctx, "u1", "user@example.com", "", tt.groups)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if uc.Role.Name != tt.wantRole {
				t.Errorf("role = %q, want %q", uc.Role.Name, tt.wantRole)
			}
			if uc.IsSuperadmin {
				t.Error("unexpected superadmin status")
			}
		})
	}
}

// TestResolve_Idempotent verifies resolving the same (email, groups)
// snapshot twice yields an equal context: resolution holds no hidden
// state.
func TestResolve_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.NewRBACStore()
	seedRoles(st)
	if _, err := st.CreateRoleMapping(ctx, &rbac.GroupRoleMapping{
		GroupName: "Engineers", RoleName: rbac.RoleEditor, Weight: 50, Enabled: true,
	}); err != nil {
		t.Fatalf("create mapping: %v", err)
	}
	svc := rbac.NewService(st)

	first, err := svc.Resolve(ctx, "u1", "user@example.com", "t1", []string{"Engineers"})
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	second, err := svc.Resolve(ctx, "u1", "user@example.com", "t1", []string{"Engineers"})
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("contexts differ:\n%+v\n%+v", first, second)
	}
}

// TestResolve_DisabledRoleFallsBack verifies a mapping pointing at a
// disabled role degrades to the default role instead of failing.
func TestResolve_DisabledRoleFallsBack(t *testing.T) {
	ctx := context.Background()
	st := memory.NewRBACStore()
	seedRoles(st)
	st.PutRole(rbac.Role{Name: "legacy", Weight: 70, Permissions: []string{"chat:send"}, Enabled: false})
	if _, err := st.CreateRoleMapping(ctx, &rbac.GroupRoleMapping{
		GroupName: "Old-Guard", RoleName: "legacy", Weight: 99, Enabled: true,
	}); err != nil {
		t.Fatalf("create mapping: %v", err)
	}

	uc, err := rbac.NewService(st).Resolve(ctx, "u1", "user@example.com", "", []string{"Old-Guard"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if uc.Role.Name != rbac.DefaultRole {
		t.Errorf("role = %q, want default %q", uc.Role.Name, rbac.DefaultRole)
	}
}

// TestResolve_DefaultRoleMissing verifies the fatal configuration error
// when no mapping matches and the default role row is absent.
func TestResolve_DefaultRoleMissing(t *testing.T) {
	st := memory.NewRBACStore() // no roles seeded at all
	svc := rbac.NewService(st)

	_, err := svc.Resolve(context.Background(), "u1", "user@example.com", "", []string{"Anything"})
	if !errors.Is(err, rbac.ErrDefaultRoleMissing) {
		t.Errorf("err = %v, want ErrDefaultRoleMissing", err)
	}

	if err := svc.VerifyDefaultRole(context.Background()); !errors.Is(err, rbac.ErrDefaultRoleMissing) {
		t.Errorf("VerifyDefaultRole err = %v, want ErrDefaultRoleMissing", err)
	}
}

// TestResolve_WhitelistWithoutRoleRow verifies that a whitelisted user
// is never locked out by a missing superadmin role definition.
func TestResolve_WhitelistWithoutRoleRow(t *testing.T) {
	ctx := context.Background()
	st := memory.NewRBACStore() // superadmin role row deliberately absent
	if _, err := st.AddSuperadmin(ctx, "root@example.com", "seed", ""); err != nil {
		t.Fatalf("add superadmin: %v", err)
	}

	uc, err := rbac.NewService(st).Resolve(ctx, "u1", "root@example.com", "", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !uc.IsSuperadmin || !uc.HasPermission("roles:delete") {
		t.Errorf("expected full superadmin context, got %+v", uc)
	}
}

// TestSuperadminManagement covers the guard chain on whitelist
// mutations: permission predicate, invariants, then audit.
func TestSuperadminManagement(t *testing.T) {
	ctx := context.Background()

	t.Run("non-superadmin cannot add", func(t *testing.T) {
		st := memory.NewRBACStore()
		seedRoles(st)
		svc := rbac.NewService(st)
		actor := &rbac.UserContext{Email: "user@example.com", Role: rbac.Role{Name: rbac.RoleAdmin}}

		_, err := svc.AddSuperadmin(ctx, actor, "new@example.com", "", "10.0.0.1")
		if !errors.Is(err, rbac.ErrPermissionDenied) {
			t.Errorf("err = %v, want ErrPermissionDenied", err)
		}
	})

	t.Run("duplicate add is a validation error", func(t *testing.T) {
		st := memory.NewRBACStore()
		seedRoles(st)
		svc := rbac.NewService(st)
		if _, err := svc.AddSuperadmin(ctx, superadminActor(), "dup@example.com", "", ""); err != nil {
			t.Fatalf("first add: %v", err)
		}
		_, err := svc.AddSuperadmin(ctx, superadminActor(), "DUP@example.com", "", "")
		if !rbac.IsValidation(err) {
			t.Errorf("err = %v, want validation error", err)
		}
	})

	t.Run("cannot remove the last superadmin", func(t *testing.T) {
		st := memory.NewRBACStore()
		seedRoles(st)
		svc := rbac.NewService(st)
		if _, err := svc.AddSuperadmin(ctx, superadminActor(), "only@example.com", "", ""); err != nil {
			t.Fatalf("add: %v", err)
		}
		_, err := svc.RemoveSuperadmin(ctx, superadminActor(), "only@example.com", "")
		if !rbac.IsValidation(err) {
			t.Errorf("err = %v, want validation error", err)
		}
	})

	t.Run("mutations are audited", func(t *testing.T) {
		st := memory.NewRBACStore()
		seedRoles(st)
		svc := rbac.NewService(st)
		if _, err := svc.AddSuperadmin(ctx, superadminActor(), "a@example.com", "oncall", "10.0.0.1"); err != nil {
			t.Fatalf("add a: %v", err)
		}
		if _, err := svc.AddSuperadmin(ctx, superadminActor(), "b@example.com", "", ""); err != nil {
			t.Fatalf("add b: %v", err)
		}
		if _, err := svc.RemoveSuperadmin(ctx, superadminActor(), "b@example.com", ""); err != nil {
			t.Fatalf("remove b: %v", err)
		}

		entries, err := svc.ListAudit(ctx, superadminActor(), 10, 0)
		if err != nil {
			t.Fatalf("ListAudit: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("got %d audit entries, want 3", len(entries))
		}
		// Newest first.
		if entries[0].Action != "superadmin_removed" {
			t.Errorf("newest action = %q, want superadmin_removed", entries[0].Action)
		}
		if entries[2].Action != "superadmin_added" || entries[2].IPAddress != "10.0.0.1" {
			t.Errorf("oldest entry = %+v, want superadmin_added from 10.0.0.1", entries[2])
		}
	})
}

// TestRoleMappingManagement covers mapping mutation invariants: the role
// must exist and at most one enabled mapping may exist per group.
func TestRoleMappingManagement(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects unknown role", func(t *testing.T) {
		st := memory.NewRBACStore()
		seedRoles(st)
		svc := rbac.NewService(st)
		_, err := svc.CreateRoleMapping(ctx, superadminActor(), &rbac.GroupRoleMapping{
			GroupName: "Engineers", RoleName: "nonexistent", Weight: 10,
		}, "")
		if !rbac.IsValidation(err) {
			t.Errorf("err = %v, want validation error", err)
		}
	})

	t.Run("rejects duplicate enabled group", func(t *testing.T) {
		st := memory.NewRBACStore()
		seedRoles(st)
		svc := rbac.NewService(st)
		m := &rbac.GroupRoleMapping{GroupName: "Engineers", RoleName: rbac.RoleEditor, Weight: 10}
		if _, err := svc.CreateRoleMapping(ctx, superadminActor(), m, ""); err != nil {
			t.Fatalf("first create: %v", err)
		}
		_, err := svc.CreateRoleMapping(ctx, superadminActor(), &rbac.GroupRoleMapping{
			GroupName: "engineers", RoleName: rbac.RoleViewer, Weight: 5,
		}, "")
		if !rbac.IsValidation(err) {
			t.Errorf("err = %v, want validation error (group match is case-insensitive)", err)
		}
	})

	t.Run("update validates new role name", func(t *testing.T) {
		st := memory.NewRBACStore()
		seedRoles(st)
		svc := rbac.NewService(st)
		created, err := svc.CreateRoleMapping(ctx, superadminActor(), &rbac.GroupRoleMapping{
			GroupName: "Engineers", RoleName: rbac.RoleEditor, Weight: 10,
		}, "")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		bogus := "ghost"
		_, err = svc.UpdateRoleMapping(ctx, superadminActor(), created.ID,
			store.RoleMappingPatch{RoleName: &bogus}, "")
		if !rbac.IsValidation(err) {
			t.Errorf("err = %v, want validation error", err)
		}

		w := 42
		updated, err := svc.UpdateRoleMapping(ctx, superadminActor(), created.ID,
			store.RoleMappingPatch{Weight: &w}, "")
		if err != nil {
			t.Fatalf("update weight: %v", err)
		}
		if updated.Weight != 42 {
			t.Errorf("weight = %d, want 42", updated.Weight)
		}
	})

	t.Run("delete of missing mapping reports false without error", func(t *testing.T) {
		st := memory.NewRBACStore()
		seedRoles(st)
		svc := rbac.NewService(st)
		removed, err := svc.DeleteRoleMapping(ctx, superadminActor(), 12345, "")
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if removed {
			t.Error("expected removed = false for unknown id")
		}
	})

	t.Run("list requires permission", func(t *testing.T) {
		st := memory.NewRBACStore()
		seedRoles(st)
		svc := rbac.NewService(st)
		viewer := &rbac.UserContext{Email: "v@example.com", Role: rbac.Role{Name: rbac.RoleViewer, Permissions: []string{"chat:send"}, Enabled: true}}
		_, err := svc.ListRoleMappings(ctx, viewer, true)
		if !errors.Is(err, rbac.ErrPermissionDenied) {
			t.Errorf("err = %v, want ErrPermissionDenied", err)
		}
	})
}

// TestUserContext_Permissions exercises wildcard and literal permission
// checks on the resolved context.
func TestUserContext_Permissions(t *testing.T) {
	editor := &rbac.UserContext{Role: rbac.Role{Permissions: []string{"chat:send", "sessions:list"}}}
	if !editor.HasPermission("chat:send") {
		t.Error("literal permission should match")
	}
	if editor.HasPermission("agents:delete") {
		t.Error("missing permission should not match")
	}
	if !editor.CanAccess("sessions", "list") {
		t.Error("CanAccess should join resource:action")
	}
	if !editor.HasAnyPermission([]string{"agents:delete", "chat:send"}) {
		t.Error("HasAnyPermission should match on any element")
	}

	admin := &rbac.UserContext{Role: rbac.Role{Permissions: []string{rbac.PermissionWildcard}}}
	if !admin.HasPermission("whatever:this_is") {
		t.Error("wildcard should grant everything")
	}
}
