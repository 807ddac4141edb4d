package worker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/queue"
	"github.com/coopledger/internal/service"
)

func TestScopeFromPayload(t *testing.T) {
	scope := scopeFromPayload(queue.RollupExportPayload{
		Subject:  "analyst@daklak",
		Role:     constants.RoleProvincialAnalyst,
		Province: "Dak Lak",
	})
	if scope.Subject != "analyst@daklak" || scope.Role != constants.RoleProvincialAnalyst || scope.Province != "Dak Lak" {
		t.Fatalf("unexpected scope: %+v", scope)
	}
	if err := scope.Validate(); err != nil {
		t.Fatalf("scope should be valid: %v", err)
	}
}

func TestIsPermanentExportError(t *testing.T) {
	if !isPermanentExportError(fmt.Errorf("rollup: %w", service.ErrInvalidRollup)) {
		t.Fatalf("invalid rollup should be permanent")
	}
	if !isPermanentExportError(service.ErrScopeForbidden) {
		t.Fatalf("scope forbidden should be permanent")
	}
	if isPermanentExportError(errors.New("database is locked")) {
		t.Fatalf("store error should be retried")
	}
}
