// Package models defines the domain types for notes.
package models

import "time"

// Note is a single user-authored note.
type Note struct {
	ID   string    `json:"id"`
	Text string    `json:"text"`
	Date time.Time `json:"date"`
	// HTML is derived from Text on load and on every text change. It is never persisted.
	HTML string `json:"-"`
}

// Patch carries the fields of a put operation. Nil fields are left unchanged.
type Patch struct {
	Text *string
	Date *time.Time
}

// Collection is an immutable, insertion-ordered snapshot of notes keyed by ID.
// The zero value is an empty collection.
type Collection struct {
	ids   []string
	notes map[string]Note
}

// NewCollection builds a collection in the given order. A later note with a
// duplicate ID replaces the earlier one but keeps the earlier position.
func NewCollection(notes ...Note) Collection {
	var c Collection
	for _, n := range notes {
		c = c.With(n)
	}
	return c
}

// Len returns the number of notes.
func (c Collection) Len() int { return len(c.ids) }

// Get returns the note with the given ID.
func (c Collection) Get(id string) (Note, bool) {
	n, ok := c.notes[id]
	return n, ok
}

// IDs returns note IDs in insertion order.
func (c Collection) IDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// Notes returns a copy of the notes in insertion order.
func (c Collection) Notes() []Note {
	out := make([]Note, len(c.ids))
	for i, id := range c.ids {
		out[i] = c.notes[id]
	}
	return out
}

// With returns a new collection with n inserted or replaced. The receiver is not modified.
func (c Collection) With(n Note) Collection {
	notes := make(map[string]Note, len(c.notes)+1)
	for k, v := range c.notes {
		notes[k] = v
	}
	ids := c.ids
	if _, exists := c.notes[n.ID]; !exists {
		ids = make([]string, len(c.ids), len(c.ids)+1)
		copy(ids, c.ids)
		ids = append(ids, n.ID)
	}
	notes[n.ID] = n
	return Collection{ids: ids, notes: notes}
}

// WithAll is With applied to every note, copying the underlying storage once.
func (c Collection) WithAll(ns []Note) Collection {
	notes := make(map[string]Note, len(c.notes)+len(ns))
	for k, v := range c.notes {
		notes[k] = v
	}
	ids := make([]string, len(c.ids), len(c.ids)+len(ns))
	copy(ids, c.ids)
	for _, n := range ns {
		if _, exists := notes[n.ID]; !exists {
			ids = append(ids, n.ID)
		}
		notes[n.ID] = n
	}
	return Collection{ids: ids, notes: notes}
}

// Without returns a new collection with the note removed.
func (c Collection) Without(id string) Collection {
	if _, ok := c.notes[id]; !ok {
		return c
	}
	notes := make(map[string]Note, len(c.notes))
	ids := make([]string, 0, len(c.ids))
	for _, k := range c.ids {
		if k == id {
			continue
		}
		ids = append(ids, k)
		notes[k] = c.notes[k]
	}
	return Collection{ids: ids, notes: notes}
}

// Equal reports whether both collections hold the same {id, text, date}
// triples. Dates compare as instants; order and derived fields are ignored.
func (c Collection) Equal(other Collection) bool {
	if c.Len() != other.Len() {
		return false
	}
	for id, n := range c.notes {
		o, ok := other.notes[id]
		if !ok || o.Text != n.Text || !o.Date.Equal(n.Date) {
			return false
		}
	}
	return true
}
