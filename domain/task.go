package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Status is the column a task lives in.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// Valid reports whether s names one of the board columns.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority. The comparison is exact; use
// ParsePriority for user supplied values.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority lowercases v and reports whether it is a known priority.
func ParsePriority(v string) (Priority, bool) {
	p := Priority(strings.ToLower(v))
	return p, p.Valid()
}

const (
	MaxTitleLen       = 100
	MaxDescriptionLen = 2000
	MaxAssigneeLen    = 60

	DefaultTitle = "Untitled"
)

// Task is the typed view of a persisted task record.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	Assignee    string     `json:"assignee"`
	DueDate     *time.Time `json:"due_date"`
	Order       float64    `json:"order"`
	// HasOrder is false when the stored order was missing or not a finite number.
	HasOrder  bool       `json:"-"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TaskInput carries the fields of the task form.
type TaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	Assignee    string     `json:"assignee"`
	DueDate     *time.Time `json:"due_date"`
	Order       *float64   `json:"order"`
}

// TaskPatch is a field level update. Nil fields are left untouched.
type TaskPatch struct {
	Title        *string
	Description  *string
	Status       *Status
	Priority     *Priority
	Assignee     *string
	DueDate      *time.Time
	ClearDueDate bool
	Order        *float64
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil &&
		p.Assignee == nil && p.DueDate == nil && !p.ClearDueDate && p.Order == nil
}

// NewTask validates the form input and returns the sanitized task to persist.
// The returned task has no ID; the store assigns one.
func NewTask(in TaskInput, now time.Time) (Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Task{}, &ValidationError{Field: "title", Message: "Title is required"}
	}
	t := Task{
		Title:       Truncate(title, MaxTitleLen),
		Description: Truncate(strings.TrimSpace(in.Description), MaxDescriptionLen),
		Status:      in.Status,
		Priority:    in.Priority,
		Assignee:    Truncate(strings.TrimSpace(in.Assignee), MaxAssigneeLen),
		DueDate:     in.DueDate,
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if !t.Status.Valid() {
		return Task{}, &ValidationError{Field: "status", Message: "Unknown status " + string(in.Status)}
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	p, ok := ParsePriority(string(t.Priority))
	if !ok {
		return Task{}, &ValidationError{Field: "priority", Message: "Unknown priority " + string(in.Priority)}
	}
	t.Priority = p
	if in.Order != nil && IsFinite(*in.Order) {
		t.Order = *in.Order
	} else {
		t.Order = UnixMillis(now)
	}
	t.HasOrder = true
	return t, nil
}

// EditPatch validates an edit of the task form. Title, when present, must not
// be blank. Text fields are trimmed and truncated.
func EditPatch(p TaskPatch) (TaskPatch, error) {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return TaskPatch{}, &ValidationError{Field: "title", Message: "Title is required"}
		}
		title = Truncate(title, MaxTitleLen)
		p.Title = &title
	}
	if p.Description != nil {
		d := Truncate(strings.TrimSpace(*p.Description), MaxDescriptionLen)
		p.Description = &d
	}
	if p.Assignee != nil {
		a := Truncate(strings.TrimSpace(*p.Assignee), MaxAssigneeLen)
		p.Assignee = &a
	}
	if p.Status != nil && !p.Status.Valid() {
		return TaskPatch{}, &ValidationError{Field: "status", Message: "Unknown status " + string(*p.Status)}
	}
	if p.Priority != nil {
		pr, ok := ParsePriority(string(*p.Priority))
		if !ok {
			return TaskPatch{}, &ValidationError{Field: "priority", Message: "Unknown priority " + string(*p.Priority)}
		}
		p.Priority = &pr
	}
	if p.Order != nil && !IsFinite(*p.Order) {
		return TaskPatch{}, &ValidationError{Field: "order", Message: "Order must be a finite number"}
	}
	if p.Empty() {
		return TaskPatch{}, &ValidationError{Message: "Nothing to update"}
	}
	return p, nil
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// UnixMillis returns t as fractional-free milliseconds since the epoch.
func UnixMillis(t time.Time) float64 {
	return float64(t.UnixMilli())
}
