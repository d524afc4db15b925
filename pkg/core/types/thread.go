package types

import "time"

// Thread is one ordered conversation session. Turns are append-only; insertion
// order is chronological order. The id is a time-sortable UUID, so sorting ids
// lexicographically sorts threads by creation time.
type Thread struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Turns     []Turn    `json:"turns"`
}

// Title returns a short label for thread pickers: the first user turn's text,
// or empty for a fresh thread.
func (t *Thread) Title() string {
	for _, turn := range t.Turns {
		if turn.Role == RoleUser && turn.Content != "" {
			return turn.Content
		}
	}
	return ""
}

// Clone returns an independent copy of the thread.
func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	out := *t
	out.Turns = CloneTurns(t.Turns)
	return &out
}
