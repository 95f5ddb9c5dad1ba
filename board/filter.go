package board

import (
	"strings"

	"github.com/azzy787/task-board-mvp/domain"
)

// Filter narrows the visible cards. Empty fields match everything and all
// non-empty fields must match.
type Filter struct {
	Search   string        `json:"search"`
	Status   domain.Status `json:"status"`
	Assignee string        `json:"assignee"`
}

// Match reports whether a task passes the filter. Search is a
// case-insensitive title substring, status is exact and assignee is a
// case-insensitive substring.
func (f Filter) Match(t domain.Task) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(t.Title), q) {
			return false
		}
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if a := strings.ToLower(strings.TrimSpace(f.Assignee)); a != "" {
		if !strings.Contains(strings.ToLower(t.Assignee), a) {
			return false
		}
	}
	return true
}

// SetFilter replaces the filter and reapplies it.
func (v *ViewState) SetFilter(f Filter) {
	v.Filter = f
	v.ApplyFilter()
}

// ApplyFilter marks each card visible or hidden, hides columns other than the
// filtered status and recomputes the visible counts.
func (v *ViewState) ApplyFilter() {
	for _, c := range v.Columns {
		c.Hidden = v.Filter.Status != "" && c.Status != v.Filter.Status
		c.Count = 0
		for _, card := range c.Cards {
			card.Hidden = !v.Filter.Match(card.Task)
			if !card.Hidden {
				c.Count++
			}
		}
	}
	if v.onCounts != nil {
		v.onCounts(v.Counts())
	}
}
