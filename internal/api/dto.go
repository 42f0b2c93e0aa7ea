package api

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notes/internal/codec"
	"github.com/starford/notes/internal/live"
	"github.com/starford/notes/internal/models"
	"github.com/starford/notes/internal/notestore"
	"github.com/starford/notes/internal/search"
)

// DateLabelLayout formats the short date shown next to each note.
const DateLabelLayout = "2 Jan 2006"

const maxTextLen = 5 << 20

// PutNoteRequest is the request body for PUT /api/notes/{id}.
// Omitted fields are left unchanged.
type PutNoteRequest struct {
	Text *string `json:"text,omitempty"`
	Date *string `json:"date,omitempty" example:"2024-05-04T10:00:00Z"`
}

// Validate validates the request.
func (r *PutNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Text, validation.Length(0, maxTextLen)),
		validation.Field(&r.Date, validation.By(isoDate)),
	)
}

// Patch converts the request to a store patch. Call Validate first.
func (r *PutNoteRequest) Patch() (models.Patch, error) {
	p := models.Patch{Text: r.Text}
	if r.Date != nil {
		d, err := codec.ParseDate(*r.Date)
		if err != nil {
			return models.Patch{}, err
		}
		p.Date = &d
	}
	return p, nil
}

func isoDate(value any) error {
	var s string
	switch v := value.(type) {
	case *string:
		if v == nil {
			return nil
		}
		s = *v
	case string:
		s = v
	default:
		return errors.New("must be a string")
	}
	if _, err := codec.ParseDate(s); err != nil {
		return errors.New("must be an ISO-8601 date")
	}
	return nil
}

// GenerateRequest is the request body for POST /api/notes/generate.
// Either Preset or both Count and Paragraphs must be set.
type GenerateRequest struct {
	Preset     string `json:"preset,omitempty" example:"hundred"`
	Count      int    `json:"count,omitempty"`
	Paragraphs int    `json:"paragraphs,omitempty"`
}

// Validate validates the request.
func (r *GenerateRequest) Validate() error {
	custom := r.Preset == ""
	return validation.ValidateStruct(r,
		validation.Field(&r.Preset, validation.In(
			string(notestore.PresetNote), string(notestore.PresetHuge), string(notestore.PresetHundred))),
		validation.Field(&r.Count, validation.When(custom, validation.Required, validation.Min(1), validation.Max(1000))),
		validation.Field(&r.Paragraphs, validation.When(custom, validation.Required, validation.Min(1), validation.Max(1000))),
	)
}

// Options resolves the request to generator options.
func (r *GenerateRequest) Options() (notestore.GenerateOptions, error) {
	if r.Preset != "" {
		return notestore.Preset(r.Preset).Options()
	}
	return notestore.GenerateOptions{Count: r.Count, Paragraphs: r.Paragraphs}, nil
}

// FilterRequest is the request body for PUT /api/filter.
type FilterRequest struct {
	Input string `json:"input"`
}

// NoteResponse is a single note.
type NoteResponse struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	HTML      string    `json:"html"`
	Date      time.Time `json:"date"`
	DateLabel string    `json:"date_label" example:"4 May 2024"`
	// Persisted is false when the change is applied but not yet durable.
	Persisted *bool `json:"persisted,omitempty"`
}

// NoteListItem is one row of the filtered note list.
type NoteListItem struct {
	ID           string    `json:"id"`
	Header       string    `json:"header"`
	HeaderMarkup string    `json:"header_markup"`
	HeaderHTML   string    `json:"header_html"`
	Date         time.Time `json:"date"`
	DateLabel    string    `json:"date_label"`
}

// NoteListResponse is the filtered, ordered note list.
type NoteListResponse struct {
	Query       string         `json:"query"`
	Notes       []NoteListItem `json:"notes"`
	Count       int            `json:"count"`
	Total       int            `json:"total"`
	Placeholder string         `json:"placeholder" example:"Filter 42 notes"`
}

// FilterResponse reports the filter input and its latest applied result.
type FilterResponse struct {
	Input      string `json:"input"`
	Seq        uint64 `json:"seq"`
	AppliedSeq uint64 `json:"applied_seq"`
	*NoteListResponse
}

// GenerateResponse lists generated note IDs.
type GenerateResponse struct {
	IDs       []string `json:"ids"`
	Persisted bool     `json:"persisted"`
}

func noteResponse(n models.Note) NoteResponse {
	return NoteResponse{
		ID:        n.ID,
		Text:      n.Text,
		HTML:      n.HTML,
		Date:      n.Date,
		DateLabel: n.Date.Format(DateLabelLayout),
	}
}

func listItem(r search.Result) NoteListItem {
	return NoteListItem{
		ID:           r.Note.ID,
		Header:       r.Header,
		HeaderMarkup: r.Markup,
		HeaderHTML:   r.HeaderHTML,
		Date:         r.Note.Date,
		DateLabel:    r.Note.Date.Format(DateLabelLayout),
	}
}

func filterResponse(input string, seq uint64, res live.Result, total int) FilterResponse {
	list := listResponse(res.Input, res.Items, total)
	return FilterResponse{Input: input, Seq: seq, AppliedSeq: res.Seq, NoteListResponse: &list}
}

// Placeholder is the filter box hint for total notes.
func Placeholder(total int) string {
	if total == 1 {
		return "Filter 1 note"
	}
	return fmt.Sprintf("Filter %d notes", total)
}
