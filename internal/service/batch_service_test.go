package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/models"
	"github.com/coopledger/internal/repository"
)

func TestBatchCreateDefaultsAndParent(t *testing.T) {
	f := setupLedgerFixture(t)
	origin := f.mustCreateBatch(t, " cherry-001 ", constants.ProductCherry, "")
	if origin.Code != "CHERRY-001" {
		t.Fatalf("batch code should be normalized, got %s", origin.Code)
	}
	if origin.Unit != constants.UnitKilogram {
		t.Fatalf("default unit should be kg, got %s", origin.Unit)
	}
	if !origin.IsOrigin() {
		t.Fatalf("batch without parent should be origin")
	}

	child := f.mustCreateBatch(t, "", constants.ProductParchment, "cherry-001")
	if child.ParentCode() != "CHERRY-001" {
		t.Fatalf("unexpected parent: %s", child.ParentCode())
	}
	if !strings.HasPrefix(child.Code, "PARCHMENT-") {
		t.Fatalf("generated code should carry product prefix, got %s", child.Code)
	}
	view := f.mustStock(t, child.Code)
	assertQuantity(t, "new batch stock", view.Quantity, "0")
	if view.Status != constants.StockStatusDepleted {
		t.Fatalf("empty batch should be depleted, got %s", view.Status)
	}
}

func TestBatchCreateRejections(t *testing.T) {
	f := setupLedgerFixture(t)
	ctx := context.Background()
	f.mustCreateBatch(t, "CHERRY-001", constants.ProductCherry, "")

	foreign, err := f.batches.Create(ctx, adminScope(), CreateBatchInput{
		Code:          "LD-CHERRY-001",
		CooperativeID: f.otherCoop.ID,
		ProductType:   constants.ProductCherry,
	})
	if err != nil {
		t.Fatalf("admin create in other cooperative failed: %v", err)
	}

	cases := []struct {
		name  string
		scope Scope
		input CreateBatchInput
		want  error
	}{
		{
			name:  "duplicate code",
			scope: operatorScope(f.coop.ID),
			input: CreateBatchInput{Code: "cherry-001", CooperativeID: f.coop.ID, ProductType: constants.ProductCherry},
			want:  ErrBatchCodeConflict,
		},
		{
			name:  "missing parent",
			scope: operatorScope(f.coop.ID),
			input: CreateBatchInput{CooperativeID: f.coop.ID, ProductType: constants.ProductParchment, ParentCode: "NOPE"},
			want:  ErrInvalidParent,
		},
		{
			name:  "cross cooperative parent",
			scope: operatorScope(f.coop.ID),
			input: CreateBatchInput{CooperativeID: f.coop.ID, ProductType: constants.ProductParchment, ParentCode: foreign.Code},
			want:  ErrInvalidParent,
		},
		{
			name:  "self parent",
			scope: operatorScope(f.coop.ID),
			input: CreateBatchInput{Code: "X-1", CooperativeID: f.coop.ID, ProductType: constants.ProductCherry, ParentCode: "x-1"},
			want:  ErrInvalidParent,
		},
		{
			name:  "operator writes other cooperative",
			scope: operatorScope(f.coop.ID),
			input: CreateBatchInput{CooperativeID: f.otherCoop.ID, ProductType: constants.ProductCherry},
			want:  ErrScopeForbidden,
		},
		{
			name:  "analyst cannot write",
			scope: analystScope("Dak Lak"),
			input: CreateBatchInput{CooperativeID: f.coop.ID, ProductType: constants.ProductCherry},
			want:  ErrScopeForbidden,
		},
		{
			name:  "unknown cooperative",
			scope: adminScope(),
			input: CreateBatchInput{CooperativeID: 9999, ProductType: constants.ProductCherry},
			want:  ErrCooperativeNotFound,
		},
		{
			name:  "missing product type",
			scope: adminScope(),
			input: CreateBatchInput{CooperativeID: f.coop.ID},
			want:  ErrInvalidBatchInput,
		},
	}
	for _, tc := range cases {
		if _, err := f.batches.Create(ctx, tc.scope, tc.input); !errors.Is(err, tc.want) {
			t.Fatalf("%s: want %v, got %v", tc.name, tc.want, err)
		}
	}
}

// staleBatchRepository 查重时看不到已存在的批次，模拟并发创建的竞争窗口
type staleBatchRepository struct {
	repository.BatchRepository
}

func (r staleBatchRepository) GetByCode(code string) (*models.Batch, error) {
	return nil, nil
}

func TestCreateBatchMapsUniqueViolationToConflict(t *testing.T) {
	f := setupLedgerFixture(t)
	f.mustCreateBatch(t, "CHERRY-001", constants.ProductCherry, "")

	repo := staleBatchRepository{BatchRepository: repository.NewBatchRepository(f.db)}
	_, err := createBatchTx(repo, CreateBatchInput{
		Code:          "CHERRY-001",
		CooperativeID: f.coop.ID,
		ProductType:   constants.ProductCherry,
		Unit:          constants.UnitKilogram,
	}, "operator@dl01", time.Now())
	if !errors.Is(err, ErrBatchCodeConflict) {
		t.Fatalf("racing create should map to ErrBatchCodeConflict, got %v", err)
	}
}

func TestBatchReadScope(t *testing.T) {
	f := setupLedgerFixture(t)
	ctx := context.Background()
	f.mustCreateBatch(t, "CHERRY-001", constants.ProductCherry, "")

	if _, err := f.batches.Get(ctx, operatorScope(f.otherCoop.ID), "CHERRY-001"); !errors.Is(err, ErrScopeForbidden) {
		t.Fatalf("operator of other cooperative should be forbidden, got %v", err)
	}
	if _, err := f.batches.Get(ctx, analystScope("dak lak"), "CHERRY-001"); err != nil {
		t.Fatalf("analyst of same province should read batch: %v", err)
	}
	if _, err := f.batches.Get(ctx, analystScope("Lam Dong"), "CHERRY-001"); !errors.Is(err, ErrScopeForbidden) {
		t.Fatalf("analyst of other province should be forbidden, got %v", err)
	}
	if _, err := f.batches.Get(ctx, adminScope(), "MISSING"); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("want ErrBatchNotFound, got %v", err)
	}
	if _, err := f.batches.Get(ctx, Scope{Subject: "x", Role: "guest"}, "CHERRY-001"); !errors.Is(err, ErrScopeForbidden) {
		t.Fatalf("unknown role should be forbidden, got %v", err)
	}
}

func TestBatchListRestrictsOperatorToOwnCooperative(t *testing.T) {
	f := setupLedgerFixture(t)
	ctx := context.Background()
	f.mustCreateBatch(t, "CHERRY-001", constants.ProductCherry, "")
	f.mustCreateBatch(t, "CHERRY-002", constants.ProductCherry, "")
	if _, err := f.batches.Create(ctx, adminScope(), CreateBatchInput{
		Code:          "LD-CHERRY-001",
		CooperativeID: f.otherCoop.ID,
		ProductType:   constants.ProductCherry,
	}); err != nil {
		t.Fatalf("create foreign batch failed: %v", err)
	}

	items, total, err := f.batches.List(ctx, operatorScope(f.coop.ID), repository.BatchListFilter{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("list batches failed: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("operator should see 2 batches, got total=%d len=%d", total, len(items))
	}
	if _, _, err := f.batches.List(ctx, operatorScope(f.coop.ID), repository.BatchListFilter{CooperativeID: f.otherCoop.ID}); !errors.Is(err, ErrScopeForbidden) {
		t.Fatalf("operator filtering other cooperative should be forbidden, got %v", err)
	}
	if _, _, err := f.batches.List(ctx, analystScope("Dak Lak"), repository.BatchListFilter{}); !errors.Is(err, ErrScopeForbidden) {
		t.Fatalf("analyst without cooperative filter should be forbidden, got %v", err)
	}
	_, total, err = f.batches.List(ctx, adminScope(), repository.BatchListFilter{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("admin list failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("admin should see 3 batches, got %d", total)
	}
}
