package domain

import (
	"math"
	"testing"
	"time"
)

func TestNormalizePatchRepairsFields(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	rec := Record{ID: "t1", Fields: map[string]any{
		FieldTitle:    "",
		FieldStatus:   "WIP",
		FieldPriority: "URGENT",
		FieldOrder:    "abc",
	}}

	p := NormalizePatch(rec, now)
	if p.Title == nil || *p.Title != DefaultTitle {
		t.Fatalf("expected title Untitled, got %v", p.Title)
	}
	if p.Status == nil || *p.Status != StatusTodo {
		t.Fatalf("expected status todo, got %v", p.Status)
	}
	if p.Priority == nil || *p.Priority != PriorityMedium {
		t.Fatalf("expected priority medium, got %v", p.Priority)
	}
	if p.Order == nil || *p.Order != UnixMillis(now) {
		t.Fatalf("expected order now, got %v", p.Order)
	}
}

func TestNormalizePatchLeavesConsistentRecordAlone(t *testing.T) {
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := Record{ID: "t1", Fields: map[string]any{
		FieldTitle:    "Ship",
		FieldStatus:   "done",
		FieldPriority: "high",
		FieldOrder:    1500.0,
		FieldDueDate:  due,
	}}
	if p := NormalizePatch(rec, time.Now()); !p.Empty() {
		t.Fatalf("expected empty patch, got %+v", p)
	}
}

func TestNormalizePatchIsIdempotent(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	rec := Record{ID: "t1", Fields: map[string]any{
		FieldTitle:     "  ",
		FieldPriority:  "HIGH",
		FieldOrder:     math.NaN(),
		FieldLegacyDue: "2024-05-01",
	}}
	p := NormalizePatch(rec, now)
	if p.Priority == nil || *p.Priority != PriorityHigh {
		t.Fatalf("expected priority lowercased to high, got %v", p.Priority)
	}
	if p.DueDate == nil || !p.DueDate.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected legacy due parsed, got %v", p.DueDate)
	}

	for k, v := range PatchFields(p, now) {
		rec.Fields[k] = v
	}
	if again := NormalizePatch(rec, now.Add(time.Hour)); !again.Empty() {
		t.Fatalf("expected second pass to be a no-op, got %+v", again)
	}
}

func TestNormalizePatchDueDates(t *testing.T) {
	now := time.Now()
	epoch := Record{Fields: map[string]any{
		FieldTitle: "a", FieldStatus: "todo", FieldPriority: "low", FieldOrder: 1.0,
		FieldDueDate: float64(1_700_000_000_000),
	}}
	p := NormalizePatch(epoch, now)
	if p.DueDate == nil || p.DueDate.UnixMilli() != 1_700_000_000_000 {
		t.Fatalf("expected epoch ms converted, got %v", p.DueDate)
	}

	junk := Record{Fields: map[string]any{
		FieldTitle: "a", FieldStatus: "todo", FieldPriority: "low", FieldOrder: 1.0,
		FieldDueDate: "not a date",
	}}
	if p := NormalizePatch(junk, now); p.DueDate != nil {
		t.Fatalf("expected unparseable date left alone, got %v", p.DueDate)
	}
}

func TestNormalizePatchMissingStatus(t *testing.T) {
	rec := Record{Fields: map[string]any{FieldTitle: "a", FieldPriority: "low", FieldOrder: 1.0}}
	p := NormalizePatch(rec, time.Now())
	if p.Status == nil || *p.Status != StatusTodo {
		t.Fatalf("expected missing status patched to todo, got %v", p.Status)
	}
}

func TestZeroDueDateCountsAsAbsent(t *testing.T) {
	for _, due := range []any{0.0, int64(0), "", false} {
		rec := Record{ID: "t1", Fields: map[string]any{
			FieldTitle: "a", FieldStatus: "todo", FieldPriority: "low", FieldOrder: 1.0,
			FieldDueDate: due,
		}}
		if p := NormalizePatch(rec, time.Now()); p.DueDate != nil {
			t.Fatalf("due %#v: expected no due date patch, got %v", due, p.DueDate)
		}
		if got := rec.Task().DueDate; got != nil {
			t.Fatalf("due %#v: expected task without due date, got %v", due, got)
		}
	}

	legacy := Record{Fields: map[string]any{FieldDueDate: 0.0, FieldLegacyDue: "2024-05-01"}}
	got := legacy.Task().DueDate
	if got == nil || !got.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected legacy due used when due_date is zero, got %v", got)
	}
}
