package domain

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// NormalizePatch returns the minimal patch that repairs a stored record so it
// renders with consistent fields. An empty patch means the record is already
// consistent. Unparseable due dates are left alone.
func NormalizePatch(rec Record, now time.Time) TaskPatch {
	var p TaskPatch

	title, ok := stringField(rec, FieldTitle)
	if !ok || strings.TrimSpace(title) == "" {
		t := DefaultTitle
		p.Title = &t
	}

	status, _ := stringField(rec, FieldStatus)
	if !Status(status).Valid() {
		s := StatusTodo
		p.Status = &s
	}

	raw, _ := stringField(rec, FieldPriority)
	if pr, ok := ParsePriority(raw); !ok {
		def := PriorityMedium
		p.Priority = &def
	} else if string(pr) != raw {
		p.Priority = &pr
	}

	if _, ok := rec.Order(); !ok {
		o := UnixMillis(now)
		p.Order = &o
	}

	if due, ok := rec.dueValue(); ok {
		switch due.(type) {
		case time.Time, *time.Time:
		default:
			if ts, ok := AsTime(due); ok {
				p.DueDate = &ts
			}
		}
	}
	return p
}

// ParseDate parses a free-form date string. Strings without a zone are read
// as UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
