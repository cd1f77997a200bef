package timeutil

import (
	"testing"
	"time"
)

func mustZone(t *testing.T) Zone {
	t.Helper()
	z, err := LoadZone("Asia/Jerusalem")
	if err != nil {
		t.Fatalf("LoadZone failed: %v", err)
	}
	return z
}

func TestToAbsolute_ZonedLiteral(t *testing.T) {
	z := mustZone(t)
	got, err := z.ToAbsolute("2025-08-28T10:00:00+03:00")
	if err != nil {
		t.Fatalf("ToAbsolute failed: %v", err)
	}
	want := time.Date(2025, 8, 28, 7, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestToAbsolute_NaiveUsesReferenceZone(t *testing.T) {
	z := mustZone(t)
	// Israel is UTC+3 in late August (IDT).
	got, err := z.ToAbsolute("2025-08-28T10:00")
	if err != nil {
		t.Fatalf("ToAbsolute failed: %v", err)
	}
	want := time.Date(2025, 8, 28, 7, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestToAbsolute_IdempotentOnZonedStrings(t *testing.T) {
	z := mustZone(t)
	first, err := z.ToAbsolute("2025-12-01T09:30:00+02:00")
	if err != nil {
		t.Fatalf("ToAbsolute failed: %v", err)
	}
	second, err := z.ToAbsolute(first.Format(time.RFC3339))
	if err != nil {
		t.Fatalf("ToAbsolute round trip failed: %v", err)
	}
	if !first.Equal(second) {
		t.Fatalf("expected idempotent parse, got %s then %s", first, second)
	}
}

func TestToAbsolute_RejectsGarbage(t *testing.T) {
	z := mustZone(t)
	for _, input := range []string{"", "not-a-date", "28/08/2025 10:00"} {
		if _, err := z.ToAbsolute(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestCivilParts(t *testing.T) {
	z := mustZone(t)
	instant := time.Date(2025, 8, 28, 7, 0, 0, 0, time.UTC)
	date, clock := z.CivilParts(instant)
	if date != "28/08/2025" {
		t.Fatalf("expected 28/08/2025, got %s", date)
	}
	if clock != "10:00" {
		t.Fatalf("expected 10:00, got %s", clock)
	}
}

func TestAt_OffsetDays(t *testing.T) {
	z := mustZone(t)
	start := time.Date(2025, 8, 28, 7, 0, 0, 0, time.UTC) // 10:00 Jerusalem
	got := z.At(start, -1, 8, 0)
	want := time.Date(2025, 8, 27, 5, 0, 0, 0, time.UTC) // 08:00 Jerusalem, day before
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestAddMinutes(t *testing.T) {
	start := time.Date(2025, 8, 28, 7, 0, 0, 0, time.UTC)
	got := AddMinutes(start, 45)
	if !got.Equal(start.Add(45 * time.Minute)) {
		t.Fatalf("expected +45m, got %s", got)
	}
}

func TestTruncateMinute(t *testing.T) {
	instant := time.Date(2025, 8, 28, 7, 0, 42, 999, time.UTC)
	got := TruncateMinute(instant)
	if got.Second() != 0 || got.Nanosecond() != 0 {
		t.Fatalf("expected truncated minute, got %s", got)
	}
}
