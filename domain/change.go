package domain

import "time"

// ChangeOp names the kind of write behind a change notice.
type ChangeOp string

const (
	ChangeCreate ChangeOp = "create"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
	ChangeMeta   ChangeOp = "meta"
)

// Change is published after every successful write so live queries can
// refresh their snapshot.
type Change struct {
	Board string    `json:"board"`
	Op    ChangeOp  `json:"op"`
	IDs   []string  `json:"ids,omitempty"`
	At    time.Time `json:"at"`
}
