package shared

import (
	"testing"
	"time"
)

func TestParseDateTime(t *testing.T) {
	got, err := ParseDateTime("2024-03-15")
	if err != nil {
		t.Fatalf("parse date failed: %v", err)
	}
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Fatalf("date want %v got %v", want, got)
	}

	got, err = ParseDateTime("2024-03-15T08:30:00+07:00")
	if err != nil {
		t.Fatalf("parse rfc3339 failed: %v", err)
	}
	if got.Hour() != 1 || got.Location() != time.UTC {
		t.Fatalf("expected utc normalization, got %v", got)
	}

	got, err = ParseDateTime("  ")
	if err != nil || got != nil {
		t.Fatalf("blank date should be nil, got %v err=%v", got, err)
	}

	if _, err := ParseDateTime("15/03/2024"); err == nil {
		t.Fatalf("expected error for invalid layout")
	}
}

func TestParseDateBounds(t *testing.T) {
	until, err := ParseDateUntil("2024-03-15")
	if err != nil {
		t.Fatalf("parse until failed: %v", err)
	}
	entry := time.Date(2024, 3, 15, 18, 45, 0, 0, time.UTC)
	if until == nil || until.Before(entry) {
		t.Fatalf("date-only until should cover the whole day, got %v", until)
	}
	if !until.Before(time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date-only until should stop before next day, got %v", until)
	}

	before, err := ParseDateBefore("2024-03-15")
	if err != nil {
		t.Fatalf("parse before failed: %v", err)
	}
	if want := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC); before == nil || !before.Equal(want) {
		t.Fatalf("date-only before want %v got %v", want, before)
	}

	exact, err := ParseDateUntil("2024-03-15T08:30:00Z")
	if err != nil {
		t.Fatalf("parse rfc3339 until failed: %v", err)
	}
	if want := time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC); !exact.Equal(want) {
		t.Fatalf("rfc3339 until should keep exact time, want %v got %v", want, exact)
	}
	exact, err = ParseDateBefore("2024-03-15T08:30:00Z")
	if err != nil {
		t.Fatalf("parse rfc3339 before failed: %v", err)
	}
	if want := time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC); !exact.Equal(want) {
		t.Fatalf("rfc3339 before should keep exact time, want %v got %v", want, exact)
	}

	if got, err := ParseDateUntil(""); err != nil || got != nil {
		t.Fatalf("blank until should be nil, got %v err=%v", got, err)
	}
	if _, err := ParseDateBefore("2024/03/15"); err == nil {
		t.Fatalf("expected error for invalid layout")
	}
}

func TestParseMonth(t *testing.T) {
	got, err := ParseMonth("2024-11")
	if err != nil {
		t.Fatalf("parse month failed: %v", err)
	}
	if got.Year() != 2024 || got.Month() != time.November || got.Day() != 1 {
		t.Fatalf("unexpected month: %v", got)
	}
	if _, err := ParseMonth("2024-13"); err == nil {
		t.Fatalf("expected error for invalid month")
	}
}

func TestParseOptionalDecimal(t *testing.T) {
	empty := ""
	got, err := ParseOptionalDecimal(&empty)
	if err != nil || got != nil {
		t.Fatalf("empty decimal should be nil, got %v err=%v", got, err)
	}
	raw := "12.5"
	got, err = ParseOptionalDecimal(&raw)
	if err != nil {
		t.Fatalf("parse decimal failed: %v", err)
	}
	if got.String() != "12.5" {
		t.Fatalf("decimal want 12.5 got %s", got.String())
	}
	bad := "abc"
	if _, err := ParseOptionalDecimal(&bad); err == nil {
		t.Fatalf("expected error for invalid decimal")
	}
}
