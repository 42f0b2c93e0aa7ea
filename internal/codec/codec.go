// Package codec converts between the persisted note blob and in-memory collections.
//
// The blob is a JSON object keyed by note ID. Each record carries id, text and
// an ISO-8601 date. Derived fields are never written and are recomputed on load.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/notes/internal/models"
)

// ErrMalformedBlob is returned when the blob is not a JSON object of records.
var ErrMalformedBlob = errors.New("codec: malformed blob")

// MalformedDateError reports a record whose date is missing or not ISO-8601.
type MalformedDateError struct {
	ID    string
	Value string
	Err   error
}

func (e *MalformedDateError) Error() string {
	return fmt.Sprintf("codec: note %q: malformed date %q: %v", e.ID, e.Value, e.Err)
}

func (e *MalformedDateError) Unwrap() error { return e.Err }

// Renderer computes the derived HTML of a note.
type Renderer interface {
	Render(text string) (string, error)
}

// Codec encodes and decodes note collections.
type Codec struct {
	renderer Renderer
}

// New creates a Codec. A nil renderer leaves derived fields empty.
func New(r Renderer) *Codec {
	return &Codec{renderer: r}
}

type record struct {
	ID   string  `json:"id"`
	Text string  `json:"text"`
	Date *string `json:"date"`
}

// Decode parses a blob. Empty input yields an empty collection. Records with
// malformed dates are dropped; their errors are joined and returned together
// with every record that decoded cleanly.
func (c *Codec) Decode(blob []byte) (models.Collection, error) {
	trimmed := bytes.TrimSpace(blob)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return models.Collection{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return models.Collection{}, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return models.Collection{}, fmt.Errorf("%w: expected object, got %v", ErrMalformedBlob, tok)
	}

	var (
		notes []models.Note
		errs  []error
	)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return models.Collection{}, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
		}
		id, _ := keyTok.(string)

		var rec record
		if err := dec.Decode(&rec); err != nil {
			return models.Collection{}, fmt.Errorf("%w: note %q: %v", ErrMalformedBlob, id, err)
		}

		if rec.Date == nil {
			errs = append(errs, &MalformedDateError{ID: id, Err: errors.New("date is missing")})
			continue
		}
		date, err := ParseDate(*rec.Date)
		if err != nil {
			errs = append(errs, &MalformedDateError{ID: id, Value: *rec.Date, Err: err})
			continue
		}

		n := models.Note{ID: id, Text: rec.Text, Date: date}
		n, err = c.Derive(n)
		if err != nil {
			errs = append(errs, err)
		}
		notes = append(notes, n)
	}
	if _, err := dec.Token(); err != nil {
		return models.Collection{}, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}

	return models.NewCollection(notes...), errors.Join(errs...)
}

// Encode serializes the collection in insertion order. Dates are written as
// UTC instants; a date outside years 0-9999 fails with ErrDateOutOfRange.
func (c *Codec) Encode(coll models.Collection) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range coll.Notes() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(n.ID)
		if err != nil {
			return nil, fmt.Errorf("codec: encode id: %w", err)
		}
		if err := CheckDate(n.Date); err != nil {
			return nil, fmt.Errorf("codec: encode note %q: %w", n.ID, err)
		}
		date := FormatDate(n.Date)
		val, err := json.Marshal(record{ID: n.ID, Text: n.Text, Date: &date})
		if err != nil {
			return nil, fmt.Errorf("codec: encode note %q: %w", n.ID, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Derive recomputes the derived fields of n. On render failure the note is
// returned with empty HTML together with the error.
func (c *Codec) Derive(n models.Note) (models.Note, error) {
	if c.renderer == nil {
		n.HTML = ""
		return n, nil
	}
	html, err := c.renderer.Render(n.Text)
	if err != nil {
		n.HTML = ""
		return n, fmt.Errorf("codec: render note %q: %w", n.ID, err)
	}
	n.HTML = html
	return n, nil
}
