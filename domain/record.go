package domain

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Field names shared by every backend.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldStatus      = "status"
	FieldPriority    = "priority"
	FieldAssignee    = "assignee"
	FieldDueDate     = "due_date"
	FieldLegacyDue   = "due"
	FieldOrder       = "order"
	FieldCreatedAt   = "created_at"
	FieldUpdatedAt   = "updated_at"
)

// Record is a task document exactly as the store holds it. Stores are
// schemaless, so any field may be missing or carry an unexpected type.
// Backends convert native date types to time.Time.
type Record struct {
	ID     string
	Fields map[string]any
}

// Get returns the raw value of a field.
func (r Record) Get(name string) (any, bool) {
	if r.Fields == nil {
		return nil, false
	}
	v, ok := r.Fields[name]
	return v, ok
}

// Order returns the record's order key if it is a finite number.
func (r Record) Order() (float64, bool) {
	v, _ := r.Get(FieldOrder)
	f, ok := AsFloat(v)
	if !ok || !IsFinite(f) {
		return 0, false
	}
	return f, true
}

// Task maps the record to a typed task, filling view defaults the same way
// the board renderer does: empty title becomes "Untitled", missing status and
// priority fall back to todo and medium. An unknown status is kept so callers
// can decide whether the task belongs to a column.
func (r Record) Task() Task {
	t := Task{ID: r.ID}
	if s, ok := stringField(r, FieldTitle); ok && s != "" {
		t.Title = s
	} else {
		t.Title = DefaultTitle
	}
	t.Description, _ = stringField(r, FieldDescription)
	t.Assignee, _ = stringField(r, FieldAssignee)
	if s, ok := stringField(r, FieldStatus); ok && s != "" {
		t.Status = Status(s)
	} else {
		t.Status = StatusTodo
	}
	if s, ok := stringField(r, FieldPriority); ok && s != "" {
		t.Priority = Priority(strings.ToLower(s))
	} else {
		t.Priority = PriorityMedium
	}
	if due, ok := r.dueValue(); ok {
		if ts, ok := AsTime(due); ok {
			t.DueDate = &ts
		}
	}
	if o, ok := r.Order(); ok {
		t.Order = o
		t.HasOrder = true
	}
	if v, ok := r.Get(FieldCreatedAt); ok {
		if ts, ok := AsTime(v); ok {
			t.CreatedAt = &ts
		}
	}
	if v, ok := r.Get(FieldUpdatedAt); ok {
		if ts, ok := AsTime(v); ok {
			t.UpdatedAt = &ts
		}
	}
	return t
}

// dueValue returns due_date, falling back to the legacy due field. Zero
// numbers, empty strings and false count as no due date.
func (r Record) dueValue() (any, bool) {
	if v, ok := r.Get(FieldDueDate); ok && !blankDue(v) {
		return v, true
	}
	if v, ok := r.Get(FieldLegacyDue); ok && !blankDue(v) {
		return v, true
	}
	return nil, false
}

func blankDue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	}
	if f, ok := AsFloat(v); ok {
		return f == 0 || math.IsNaN(f)
	}
	return false
}

func stringField(r Record, name string) (string, bool) {
	v, ok := r.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// SortRecords orders records by finite order key ascending. Records without
// a finite key go last. Ties keep their arrival order.
func SortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		oi, iok := recs[i].Order()
		oj, jok := recs[j].Order()
		switch {
		case iok && jok:
			return oi < oj
		case iok:
			return true
		default:
			return false
		}
	})
}

// RecordFromTask builds the document for a newly created task.
func RecordFromTask(t Task, now time.Time) Record {
	fields := map[string]any{
		FieldTitle:       t.Title,
		FieldDescription: t.Description,
		FieldStatus:      string(t.Status),
		FieldPriority:    string(t.Priority),
		FieldAssignee:    t.Assignee,
		FieldOrder:       t.Order,
		FieldCreatedAt:   now,
		FieldUpdatedAt:   now,
	}
	if t.DueDate != nil {
		fields[FieldDueDate] = *t.DueDate
	} else {
		fields[FieldDueDate] = nil
	}
	return Record{ID: t.ID, Fields: fields}
}

// PatchFields flattens a patch into the fields to merge. updated_at is
// always set.
func PatchFields(p TaskPatch, now time.Time) map[string]any {
	out := map[string]any{FieldUpdatedAt: now}
	if p.Title != nil {
		out[FieldTitle] = *p.Title
	}
	if p.Description != nil {
		out[FieldDescription] = *p.Description
	}
	if p.Status != nil {
		out[FieldStatus] = string(*p.Status)
	}
	if p.Priority != nil {
		out[FieldPriority] = string(*p.Priority)
	}
	if p.Assignee != nil {
		out[FieldAssignee] = *p.Assignee
	}
	if p.ClearDueDate {
		out[FieldDueDate] = nil
	} else if p.DueDate != nil {
		out[FieldDueDate] = *p.DueDate
	}
	if p.Order != nil {
		out[FieldOrder] = *p.Order
	}
	return out
}

// AsFloat accepts Go numeric types only. Numeric strings are not numbers.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// AsTime converts a native time, an epoch-millisecond number or a parseable
// date string to a time.
func AsTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, !x.IsZero()
	case string:
		return ParseDate(x)
	}
	if f, ok := AsFloat(v); ok && IsFinite(f) {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	return time.Time{}, false
}
