package board

import (
	"sort"

	"github.com/azzy787/task-board-mvp/domain"
)

// Card is a task as it sits in a column.
type Card struct {
	domain.Task
	// Hidden is set when the active filter excludes the card.
	Hidden   bool `json:"hidden"`
	Selected bool `json:"selected"`
}

// Column holds the cards of one status in order.
type Column struct {
	Status domain.Status `json:"status"`
	Cards  []*Card       `json:"cards"`
	// Count is the number of visible cards.
	Count  int  `json:"count"`
	Hidden bool `json:"hidden"`
}

// ViewState is the client view of a board. It is not safe for concurrent use.
type ViewState struct {
	Title     string
	Filter    Filter
	Selecting bool
	Selected  map[string]struct{}
	// Tasks is the last rendered list in display order.
	Tasks   []domain.Task
	Columns []*Column

	onCounts func(map[domain.Status]int)
}

// NewViewState returns an empty board with one column per status.
func NewViewState() *ViewState {
	v := &ViewState{Title: domain.DefaultBoardTitle, Selected: map[string]struct{}{}}
	v.resetColumns()
	return v
}

// OnCountsChange registers a callback run after every filter pass.
func (v *ViewState) OnCountsChange(fn func(map[domain.Status]int)) {
	v.onCounts = fn
}

func (v *ViewState) resetColumns() {
	v.Columns = make([]*Column, len(domain.Statuses))
	for i, s := range domain.Statuses {
		v.Columns[i] = &Column{Status: s}
	}
}

// Column returns the column for status, or nil.
func (v *ViewState) Column(status domain.Status) *Column {
	for _, c := range v.Columns {
		if c.Status == status {
			return c
		}
	}
	return nil
}

// Render replaces the board contents with a fresh snapshot. Records without a
// finite order get a synthetic one from their snapshot position so they still
// sort deterministically. Records whose status is not a column are skipped.
func (v *ViewState) Render(recs []domain.Record) {
	tasks := make([]domain.Task, 0, len(recs))
	for i, rec := range recs {
		t := rec.Task()
		if !t.HasOrder {
			t.Order = float64(i+1) * 1000
		}
		tasks = append(tasks, t)
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Order < tasks[j].Order })
	v.Tasks = tasks

	v.resetColumns()
	for _, t := range tasks {
		col := v.Column(t.Status)
		if col == nil {
			continue
		}
		_, sel := v.Selected[t.ID]
		col.Cards = append(col.Cards, &Card{Task: t, Selected: sel})
	}
	v.ApplyFilter()
}

// find locates a card by id.
func (v *ViewState) find(id string) (*Column, int) {
	for _, c := range v.Columns {
		for i, card := range c.Cards {
			if card.ID == id {
				return c, i
			}
		}
	}
	return nil, -1
}

// Card returns the card with the given id, or nil.
func (v *ViewState) Card(id string) *Card {
	col, i := v.find(id)
	if col == nil {
		return nil
	}
	return col.Cards[i]
}

// Counts returns the visible card count of each column.
func (v *ViewState) Counts() map[domain.Status]int {
	out := make(map[domain.Status]int, len(v.Columns))
	for _, c := range v.Columns {
		out[c.Status] = c.Count
	}
	return out
}

func (c *Column) remove(i int) *Card {
	card := c.Cards[i]
	c.Cards = append(c.Cards[:i], c.Cards[i+1:]...)
	return card
}

func (c *Column) insert(i int, card *Card) {
	if i < 0 || i > len(c.Cards) {
		i = len(c.Cards)
	}
	c.Cards = append(c.Cards, nil)
	copy(c.Cards[i+1:], c.Cards[i:])
	c.Cards[i] = card
}

func (c *Column) index(id string) int {
	for i, card := range c.Cards {
		if card.ID == id {
			return i
		}
	}
	return -1
}

// syncTask copies the card's current fields back into the rendered list.
func (v *ViewState) syncTask(card *Card) {
	for i := range v.Tasks {
		if v.Tasks[i].ID == card.ID {
			v.Tasks[i] = card.Task
			return
		}
	}
}

// Snapshot is the serialisable form of the view.
type Snapshot struct {
	Title     string                `json:"title"`
	Columns   []Column              `json:"columns"`
	Counts    map[domain.Status]int `json:"counts"`
	Filter    Filter                `json:"filter"`
	Selecting bool                  `json:"selecting"`
	Selected  []string              `json:"selected,omitempty"`
}

// Snapshot copies the view for serialisation.
func (v *ViewState) Snapshot() Snapshot {
	s := Snapshot{
		Title:     v.Title,
		Counts:    v.Counts(),
		Filter:    v.Filter,
		Selecting: v.Selecting,
	}
	for _, c := range v.Columns {
		col := Column{Status: c.Status, Count: c.Count, Hidden: c.Hidden, Cards: make([]*Card, len(c.Cards))}
		for i, card := range c.Cards {
			cp := *card
			col.Cards[i] = &cp
		}
		s.Columns = append(s.Columns, col)
	}
	for id := range v.Selected {
		s.Selected = append(s.Selected, id)
	}
	sort.Strings(s.Selected)
	return s
}
