package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/repository"
)

func TestAuthzAuditRecordAndList(t *testing.T) {
	f := setupLedgerFixture(t)
	ctx := context.Background()
	svc := NewAuthzAuditService(repository.NewAuthzAuditLogRepository(f.db))

	if err := svc.Record(ctx, AuthzAuditRecordInput{
		OperatorSubject: "admin@national",
		Action:          constants.AuthzAuditActionGrantPolicy,
		Role:            constants.RoleProvincialAnalyst,
		Object:          "/reports/*",
		Method:          "get",
		Detail:          map[string]interface{}{"source": "console"},
	}); err != nil {
		t.Fatalf("record grant failed: %v", err)
	}
	if err := svc.Record(ctx, AuthzAuditRecordInput{
		OperatorSubject: "admin@national",
		TargetSubject:   "operator@dak-lak",
		Action:          constants.AuthzAuditActionIssueToken,
		Role:            constants.RoleCooperativeOperator,
	}); err != nil {
		t.Fatalf("record token failed: %v", err)
	}
	// 缺少操作主体时忽略
	if err := svc.Record(ctx, AuthzAuditRecordInput{Action: constants.AuthzAuditActionRevokePolicy}); err != nil {
		t.Fatalf("record without operator should be ignored: %v", err)
	}

	logs, total, err := svc.List(ctx, repository.AuthzAuditLogListFilter{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	if total != 2 || len(logs) != 2 {
		t.Fatalf("want 2 audit logs, got total=%d len=%d", total, len(logs))
	}
	if logs[0].Action != constants.AuthzAuditActionIssueToken {
		t.Fatalf("logs should be newest first, got %s", logs[0].Action)
	}
	grant := logs[1]
	if grant.Method != "GET" {
		t.Fatalf("method should be upper-cased, got %s", grant.Method)
	}
	var detail map[string]string
	if err := json.Unmarshal(grant.DetailJSON, &detail); err != nil || detail["source"] != "console" {
		t.Fatalf("unexpected detail: %s (%v)", string(grant.DetailJSON), err)
	}

	filtered, total, err := svc.List(ctx, repository.AuthzAuditLogListFilter{TargetSubject: "operator@dak-lak"})
	if err != nil {
		t.Fatalf("filtered list failed: %v", err)
	}
	if total != 1 || len(filtered) != 1 {
		t.Fatalf("want 1 filtered log, got %d", total)
	}
}
