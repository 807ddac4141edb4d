package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/coopledger/internal/config"
	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsTransientStoreError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), true},
		{&pgconn.PgError{Code: "40P01"}, true},
		{&pgconn.PgError{Code: "23505"}, false},
		{ErrInsufficientStock, false},
	}
	for _, tc := range cases {
		if got := isTransientStoreError(tc.err); got != tc.want {
			t.Fatalf("isTransientStoreError(%v): want %v, got %v", tc.err, tc.want, got)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&pgconn.PgError{Code: "23505"}, true},
		{fmt.Errorf("create batch: %w", gorm.ErrDuplicatedKey), true},
		{errors.New("constraint failed: UNIQUE constraint failed: batches.code (2067)"), true},
		{&pgconn.PgError{Code: "40001"}, false},
		{ErrBatchNotFound, false},
	}
	for _, tc := range cases {
		if got := isUniqueViolation(tc.err); got != tc.want {
			t.Fatalf("isUniqueViolation(%v): want %v, got %v", tc.err, tc.want, got)
		}
	}
}

func TestWriteRetrierRetriesTransientErrors(t *testing.T) {
	retrier := NewWriteRetrier(config.RetryConfig{MaxAttempts: 3, InitialIntervalMS: 1, MaxIntervalMS: 2}, nil)
	calls := 0
	err := retrier.Do(context.Background(), "record", func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("third attempt should succeed: %v", err)
	}
	if calls != 3 {
		t.Fatalf("want 3 attempts, got %d", calls)
	}
}

func TestWriteRetrierStopsOnBusinessError(t *testing.T) {
	retrier := NewWriteRetrier(config.RetryConfig{MaxAttempts: 5, InitialIntervalMS: 1}, nil)
	calls := 0
	err := retrier.Do(context.Background(), "record", func() error {
		calls++
		return ErrConservationViolated
	})
	if !errors.Is(err, ErrConservationViolated) {
		t.Fatalf("want business error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("business error must not be retried, got %d attempts", calls)
	}
}

func TestWriteRetrierGivesUpAfterMaxAttempts(t *testing.T) {
	retrier := NewWriteRetrier(config.RetryConfig{MaxAttempts: 2, InitialIntervalMS: 1}, nil)
	calls := 0
	err := retrier.Do(context.Background(), "record", func() error {
		calls++
		return errors.New("database is locked")
	})
	if err == nil || calls != 2 {
		t.Fatalf("want failure after 2 attempts, got err=%v calls=%d", err, calls)
	}
}

func TestScopeRules(t *testing.T) {
	coop := models.Cooperative{ID: 7, Name: "Dak Lak Highlands", Province: "Dak Lak"}
	cases := []struct {
		name      string
		scope     Scope
		canWrite  bool
		canRead   bool
		validates bool
	}{
		{"admin", Scope{Role: constants.RoleNationalAdmin}, true, true, true},
		{"own operator", Scope{Role: constants.RoleCooperativeOperator, CooperativeID: coop.ID}, true, true, true},
		{"other operator", Scope{Role: constants.RoleCooperativeOperator, CooperativeID: coop.ID + 1}, false, false, true},
		{"operator without cooperative", Scope{Role: constants.RoleCooperativeOperator}, false, false, false},
		{"analyst same province", Scope{Role: constants.RoleProvincialAnalyst, Province: " dak lak "}, false, true, true},
		{"analyst other province", Scope{Role: constants.RoleProvincialAnalyst, Province: "Gia Lai"}, false, false, true},
		{"analyst without province", Scope{Role: constants.RoleProvincialAnalyst}, false, false, false},
		{"unknown role", Scope{Role: "guest"}, false, false, false},
	}
	for _, tc := range cases {
		if got := tc.scope.Validate() == nil; got != tc.validates {
			t.Fatalf("%s: validate want %v, got %v", tc.name, tc.validates, got)
		}
		if got := tc.scope.CanWrite(coop.ID) == nil; got != tc.canWrite {
			t.Fatalf("%s: canWrite want %v, got %v", tc.name, tc.canWrite, got)
		}
		if got := tc.scope.CanRead(&coop) == nil; got != tc.canRead {
			t.Fatalf("%s: canRead want %v, got %v", tc.name, tc.canRead, got)
		}
	}
	admin := Scope{Subject: "admin@national", Role: constants.RoleNationalAdmin}
	if err := admin.CanRead(nil); err != nil {
		t.Fatalf("national scope should read without cooperative: %v", err)
	}
}
