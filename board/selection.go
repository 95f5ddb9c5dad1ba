package board

import (
	"context"
	"strconv"
)

// SetSelecting turns selection mode on or off. Leaving selection mode clears
// the selection.
func (v *ViewState) SetSelecting(on bool) {
	v.Selecting = on
	if on {
		return
	}
	v.Selected = map[string]struct{}{}
	for _, c := range v.Columns {
		for _, card := range c.Cards {
			card.Selected = false
		}
	}
}

// ToggleSelected flips the selection of a card and reports whether it is now
// selected. It is a no-op outside selection mode.
func (v *ViewState) ToggleSelected(id string) bool {
	if !v.Selecting {
		return false
	}
	if v.Selected == nil {
		v.Selected = map[string]struct{}{}
	}
	_, on := v.Selected[id]
	if on {
		delete(v.Selected, id)
	} else {
		v.Selected[id] = struct{}{}
	}
	if card := v.Card(id); card != nil {
		card.Selected = !on
	}
	return !on
}

// SelectedIDs returns the selected ids in board order, followed by any
// selected ids no longer on the board.
func (v *ViewState) SelectedIDs() []string {
	out := make([]string, 0, len(v.Selected))
	seen := map[string]bool{}
	for _, t := range v.Tasks {
		if _, ok := v.Selected[t.ID]; ok {
			out = append(out, t.ID)
			seen[t.ID] = true
		}
	}
	for id := range v.Selected {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// UniqueIDs drops empty and duplicate ids, keeping first occurrence order.
func UniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// DeleteConfirmPrompt is the question put to the user before a batch delete.
func DeleteConfirmPrompt(n int) string {
	return "Delete " + strconv.Itoa(n) + " task(s)?"
}

// DeleteSelected deletes the selected tasks in one batch. confirm, when not
// nil, is asked first and may cancel the delete. Selection mode is left only
// after a successful delete.
func (s *Service) DeleteSelected(ctx context.Context, v *ViewState, confirm func(prompt string) bool) (int, error) {
	ids := UniqueIDs(v.SelectedIDs())
	if len(ids) == 0 {
		return 0, nil
	}
	if confirm != nil && !confirm(DeleteConfirmPrompt(len(ids))) {
		return 0, nil
	}
	n, err := s.DeleteTasks(ctx, ids)
	if err != nil {
		return 0, err
	}
	v.SetSelecting(false)
	return n, nil
}
