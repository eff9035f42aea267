package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/shopcove/identity-service/internal/apperror"
	"github.com/shopcove/identity-service/internal/permission"
	"github.com/shopcove/identity-service/internal/repository"
)

func newTestRoleService(roles *stubRoleStore) *RoleService {
	return NewRoleService(roles, permission.Default(), zerolog.Nop())
}

func TestCreateRole(t *testing.T) {
	roles := newStubRoleStore()
	svc := newTestRoleService(roles)

	role, err := svc.CreateRole(context.Background(), "Support", nil)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if role.ID == "" {
		t.Fatal("expected an ID assigned")
	}

	if _, err := svc.CreateRole(context.Background(), "Support", nil); apperror.CodeOf(err) != apperror.CodeConflict {
		t.Fatalf("code = %v, want conflict for duplicate name", apperror.CodeOf(err))
	}
	if _, err := svc.CreateRole(context.Background(), "  ", nil); apperror.CodeOf(err) != apperror.CodeValidation {
		t.Fatalf("code = %v, want validation for blank name", apperror.CodeOf(err))
	}
}

func TestUpdateRoleAdminProtected(t *testing.T) {
	roles := newStubRoleStore(&repository.Role{ID: "r-admin", Name: RoleAdmin})
	svc := newTestRoleService(roles)

	_, err := svc.UpdateRole(context.Background(), "r-admin", "SuperAdmin", nil)
	if apperror.CodeOf(err) != apperror.CodeForbidden {
		t.Fatalf("code = %v, want forbidden", apperror.CodeOf(err))
	}
}

func TestDeleteRoleAdminProtected(t *testing.T) {
	roles := newStubRoleStore(&repository.Role{ID: "r-admin", Name: RoleAdmin})
	svc := newTestRoleService(roles)

	if err := svc.DeleteRole(context.Background(), "r-admin"); apperror.CodeOf(err) != apperror.CodeForbidden {
		t.Fatalf("code = %v, want forbidden", apperror.CodeOf(err))
	}
}

func TestDeleteRoleInUse(t *testing.T) {
	roles := newStubRoleStore(&repository.Role{ID: "r1", Name: "Support"})
	roles.userCounts["r1"] = 3
	svc := newTestRoleService(roles)

	if err := svc.DeleteRole(context.Background(), "r1"); apperror.CodeOf(err) != apperror.CodeConflict {
		t.Fatalf("code = %v, want conflict for role in use", apperror.CodeOf(err))
	}
}

func TestDeleteRole(t *testing.T) {
	roles := newStubRoleStore(&repository.Role{ID: "r1", Name: "Support"})
	svc := newTestRoleService(roles)

	if err := svc.DeleteRole(context.Background(), "r1"); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	if len(roles.deleted) != 1 || roles.deleted[0] != "r1" {
		t.Fatalf("deleted = %v, want [r1]", roles.deleted)
	}
	if err := svc.DeleteRole(context.Background(), "r1"); apperror.CodeOf(err) != apperror.CodeNotFound {
		t.Fatalf("code = %v, want not found after delete", apperror.CodeOf(err))
	}
}

func TestSetRolePermissionsUnknownPermission(t *testing.T) {
	roles := newStubRoleStore(&repository.Role{ID: "r1", Name: "Support"})
	svc := newTestRoleService(roles)

	err := svc.SetRolePermissions(context.Background(), "r1", []string{"Permission.Identity.Users.Frobnicate"})
	if apperror.CodeOf(err) != apperror.CodeValidation {
		t.Fatalf("code = %v, want validation", apperror.CodeOf(err))
	}
	if _, wrote := roles.replacedClaims["r1"]; wrote {
		t.Fatal("no claims may be written when any value is unknown")
	}
}

func TestSetRolePermissionsAdminProtected(t *testing.T) {
	roles := newStubRoleStore(&repository.Role{ID: "r-admin", Name: RoleAdmin})
	svc := newTestRoleService(roles)

	err := svc.SetRolePermissions(context.Background(), "r-admin", nil)
	if apperror.CodeOf(err) != apperror.CodeForbidden {
		t.Fatalf("code = %v, want forbidden", apperror.CodeOf(err))
	}
}

func TestSetRolePermissionsReplacesSet(t *testing.T) {
	roles := newStubRoleStore(&repository.Role{ID: "r1", Name: "Support"})
	svc := newTestRoleService(roles)

	first := []string{"Permission.Identity.Users.Read", "Permission.Identity.Roles.Read"}
	if err := svc.SetRolePermissions(context.Background(), "r1", first); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}

	second := []string{"Permission.Shop.Products.Read"}
	if err := svc.SetRolePermissions(context.Background(), "r1", second); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}
	got := roles.replacedClaims["r1"]
	if len(got) != 1 || got[0] != "Permission.Shop.Products.Read" {
		t.Fatalf("claims = %v, want the replacement set only", got)
	}
}

func TestSetRolePermissionsDeduplicates(t *testing.T) {
	roles := newStubRoleStore(&repository.Role{ID: "r1", Name: "Support"})
	svc := newTestRoleService(roles)

	in := []string{"Permission.Identity.Users.Read", "Permission.Identity.Users.Read"}
	if err := svc.SetRolePermissions(context.Background(), "r1", in); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}
	if got := roles.replacedClaims["r1"]; len(got) != 1 {
		t.Fatalf("claims = %v, want deduplicated", got)
	}
}

func TestGetRolePermissionsAnnotatesWholeCatalog(t *testing.T) {
	roles := newStubRoleStore(&repository.Role{ID: "r1", Name: "Support"})
	roles.claims["r1"] = []*repository.RoleClaim{
		{RoleID: "r1", ClaimType: permission.ClaimType, ClaimValue: "Permission.Identity.Users.Read"},
	}
	svc := newTestRoleService(roles)

	views, err := svc.GetRolePermissions(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetRolePermissions: %v", err)
	}
	catalog := permission.Default().All()
	if len(views) != len(catalog) {
		t.Fatalf("views = %d, want the whole catalog (%d)", len(views), len(catalog))
	}

	grantedCount := 0
	for _, v := range views {
		if v.Granted {
			grantedCount++
			if v.Name != "Permission.Identity.Users.Read" {
				t.Fatalf("unexpected granted permission %q", v.Name)
			}
		}
	}
	if grantedCount != 1 {
		t.Fatalf("granted = %d, want 1", grantedCount)
	}
}

func TestGetRolePermissionsUnknownRole(t *testing.T) {
	svc := newTestRoleService(newStubRoleStore())

	if _, err := svc.GetRolePermissions(context.Background(), "missing"); apperror.CodeOf(err) != apperror.CodeNotFound {
		t.Fatalf("code = %v, want not found", apperror.CodeOf(err))
	}
}
