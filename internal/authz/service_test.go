package authz

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthzServiceTest(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	return svc
}

func TestGrantAndRevokeRolePolicy(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	allow, err := svc.EnforceRole("provincial_analyst", "/api/v1/transactions/7/reverse", "POST")
	if err != nil || allow {
		t.Fatalf("analyst should not reverse before grant, allow=%v err=%v", allow, err)
	}

	if err := svc.GrantRolePolicy("provincial_analyst", "/api/v1/transactions/:id/reverse", "post"); err != nil {
		t.Fatalf("grant role policy failed: %v", err)
	}
	allow, err = svc.EnforceRole("role:provincial_analyst", "/api/v1/transactions/7/reverse", "POST")
	if err != nil || !allow {
		t.Fatalf("expected allow after grant, allow=%v err=%v", allow, err)
	}
	policies, err := svc.GetRolePolicies("provincial_analyst", false)
	if err != nil {
		t.Fatalf("get role policies failed: %v", err)
	}
	if len(policies) != 1 || policies[0].Object != "/transactions/:id/reverse" || policies[0].Action != "POST" || policies[0].Subject != "provincial_analyst" {
		t.Fatalf("unexpected policies: %+v", policies)
	}

	if err := svc.RevokeRolePolicy("provincial_analyst", "/transactions/:id/reverse", "POST"); err != nil {
		t.Fatalf("revoke policy failed: %v", err)
	}
	allow, err = svc.EnforceRole("provincial_analyst", "/api/v1/transactions/7/reverse", "POST")
	if err != nil || allow {
		t.Fatalf("expected revoked permission denied, allow=%v err=%v", allow, err)
	}
}

func TestUnknownRoleRejected(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("field_auditor", "/reports/*", "GET"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("grant to unknown role want ErrUnknownRole got %v", err)
	}
	if _, err := svc.EnforceRole("", "/api/v1/batches", "GET"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("empty role want ErrUnknownRole got %v", err)
	}
	if err := svc.GrantRolePolicy("national_admin", "/reports/*", " "); !errors.Is(err, ErrActionRequired) {
		t.Fatalf("blank action want ErrActionRequired got %v", err)
	}
}

func TestProtectedPolicyCannotBeRevoked(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}
	if err := svc.RevokeRolePolicy("national_admin", "/api/v1/authz/*", "*"); !errors.Is(err, ErrProtectedPolicy) {
		t.Fatalf("revoke protected policy want ErrProtectedPolicy got %v", err)
	}
	allow, err := svc.EnforceRole("national_admin", "/api/v1/authz/policies", "POST")
	if err != nil || !allow {
		t.Fatalf("admin should keep authz access, allow=%v err=%v", allow, err)
	}
}

func TestNormalizeObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "/api/v1/batches/:code", want: "/batches/:code"},
		{in: "/batches/:code", want: "/batches/:code"},
		{in: "batches", want: "/batches"},
		{in: "/api/v1", want: "/"},
		{in: "", want: "/"},
	}
	for _, item := range cases {
		got := NormalizeObject(item.in)
		if got != item.want {
			t.Fatalf("normalize object failed, in=%q want=%q got=%q", item.in, item.want, got)
		}
	}
}

func TestBootstrapBuiltinRoles(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}

	// 重复执行不应报错或产生重复策略
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("second bootstrap failed: %v", err)
	}

	roles, err := svc.ListRoles()
	if err != nil {
		t.Fatalf("list roles failed: %v", err)
	}
	if len(roles) != 3 {
		t.Fatalf("want 3 builtin roles got %+v", roles)
	}
	for _, role := range roles {
		if role.PolicyCount == 0 {
			t.Fatalf("role %s has no policies", role.Role)
		}
		if role.Role == "national_admin" && (len(role.Inherits) != 1 || role.Inherits[0] != "cooperative_operator") {
			t.Fatalf("admin should inherit operator, got %v", role.Inherits)
		}
	}

	direct, err := svc.GetRolePolicies("national_admin", false)
	if err != nil {
		t.Fatalf("get direct policies failed: %v", err)
	}
	effective, err := svc.GetRolePolicies("national_admin", true)
	if err != nil {
		t.Fatalf("get effective policies failed: %v", err)
	}
	if len(direct) != 2 || len(effective) <= len(direct) {
		t.Fatalf("effective policies should include inherited ones, direct=%d effective=%d", len(direct), len(effective))
	}

	cases := []struct {
		role   string
		object string
		action string
		want   bool
	}{
		{role: "provincial_analyst", object: "/api/v1/batches/GREEN-01/trace", action: "GET", want: true},
		{role: "provincial_analyst", object: "/api/v1/reports/rollup", action: "GET", want: true},
		{role: "provincial_analyst", object: "/api/v1/transactions/receipts", action: "POST", want: false},
		{role: "provincial_analyst", object: "/api/v1/transformations", action: "POST", want: false},
		{role: "cooperative_operator", object: "/api/v1/transactions/receipts", action: "POST", want: true},
		{role: "cooperative_operator", object: "/api/v1/transactions/7/reverse", action: "POST", want: true},
		{role: "cooperative_operator", object: "/api/v1/audits", action: "POST", want: false},
		{role: "national_admin", object: "/api/v1/transformations", action: "POST", want: true},
		{role: "national_admin", object: "/api/v1/audits", action: "POST", want: true},
	}
	for _, item := range cases {
		allow, err := svc.EnforceRole(item.role, item.object, item.action)
		if err != nil {
			t.Fatalf("enforce %s %s %s failed: %v", item.role, item.action, item.object, err)
		}
		if allow != item.want {
			t.Fatalf("enforce %s %s %s want=%v got=%v", item.role, item.action, item.object, item.want, allow)
		}
	}
}
