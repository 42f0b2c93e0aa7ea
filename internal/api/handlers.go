package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/starford/notes/internal/apperr"
	"github.com/starford/notes/internal/codec"
	"github.com/starford/notes/internal/live"
	"github.com/starford/notes/internal/models"
	"github.com/starford/notes/internal/notestore"
	"github.com/starford/notes/internal/search"
)

// maxFilterWait bounds GET /api/filter?wait=<seq>.
const maxFilterWait = 5 * time.Second

// Handler holds API route handlers.
type Handler struct {
	store     *notestore.Store
	session   *live.Session
	renderer  search.InlineRenderer
	highlight []search.HighlightOption
}

// NewHandler creates a new Handler. session and renderer may be nil.
func NewHandler(store *notestore.Store, session *live.Session, renderer search.InlineRenderer, opts ...search.HighlightOption) *Handler {
	return &Handler{store: store, session: session, renderer: renderer, highlight: opts}
}

// ListNotes handles GET /api/notes.
//
//	@Summary		Filter and order notes, newest first
//	@Tags			notes
//	@Produce		json
//	@Param			q	query		string	false	"Case-insensitive substring filter"
//	@Success		200	{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	all, err := h.store.GetAll(r.Context())
	if err != nil {
		slog.Error("list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	results := search.Results(all, q, h.renderer, h.highlight...)
	writeJSON(w, http.StatusOK, listResponse(q, results, all.Len()))
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note ID"
//	@Success		200	{object}	NoteResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	note, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get note failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, noteResponse(note))
}

// PutNote handles PUT /api/notes/{id}.
//
//	@Summary		Create a note or merge fields into an existing one
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Note ID"
//	@Param			body	body		PutNoteRequest	true	"Fields to set"
//	@Success		200		{object}	NoteResponse
//	@Success		201		{object}	NoteResponse
//	@Failure		400		{object}	errResponse
//	@Failure		507		{object}	NoteResponse	"Applied but not persisted"
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) PutNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req PutNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	patch, err := req.Patch()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	note, created, err := h.store.Upsert(r.Context(), id, patch)
	switch {
	case err == nil:
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, noteResponse(note))
	case errors.Is(err, apperr.ErrPersistence):
		slog.Warn("put note not persisted", slog.String("id", id), slog.String("error", err.Error()))
		resp := noteResponse(note)
		resp.Persisted = lo.ToPtr(false)
		writeJSON(w, http.StatusInsufficientStorage, resp)
	case errors.Is(err, apperr.ErrInvalidID):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
	case errors.Is(err, codec.ErrDateOutOfRange):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		slog.Error("put note failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			id	path	string	true	"Note ID"
//	@Success		204	"Note deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.store.Delete(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrPersistence):
		slog.Warn("delete note not persisted", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInsufficientStorage, errorBody("deleted but not persisted"))
	default:
		slog.Error("delete note failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// DeleteAll handles DELETE /api/notes.
//
//	@Summary		Delete every note
//	@Tags			notes
//	@Success		204	"All notes deleted"
//	@Security		BearerAuth
//	@Router			/notes [delete]
func (h *Handler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteAll(r.Context())
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, apperr.ErrPersistence):
		slog.Warn("delete all not persisted", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInsufficientStorage, errorBody("deleted but not persisted"))
	default:
		slog.Error("delete all failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// Generate handles POST /api/notes/generate.
//
//	@Summary		Add demo notes
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		GenerateRequest	true	"Preset or count/paragraphs"
//	@Success		201		{object}	GenerateResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/generate [post]
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	opts, err := req.Options()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	notes, err := notestore.Generate(r.Context(), h.store, opts)
	resp := GenerateResponse{
		IDs:       lo.Map(notes, func(n models.Note, _ int) string { return n.ID }),
		Persisted: err == nil,
	}
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, resp)
	case errors.Is(err, apperr.ErrPersistence):
		slog.Warn("generated notes not persisted", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInsufficientStorage, resp)
	default:
		slog.Error("generate failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// SetFilter handles PUT /api/filter.
//
//	@Summary		Set the live filter input
//	@Tags			filter
//	@Accept			json
//	@Produce		json
//	@Param			body	body		FilterRequest	true	"Filter input"
//	@Success		202		{object}	FilterResponse
//	@Security		BearerAuth
//	@Router			/filter [put]
func (h *Handler) SetFilter(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody("live filter disabled"))
		return
	}
	var req FilterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	seq := h.session.SetInput(req.Input)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"seq":   seq,
		"input": req.Input,
	})
}

// GetFilter handles GET /api/filter.
//
//	@Summary		Get the live filter input and its latest applied result
//	@Tags			filter
//	@Produce		json
//	@Param			wait	query		int	false	"Block until this sequence (or newer) is applied"
//	@Success		200		{object}	FilterResponse
//	@Failure		504		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/filter [get]
func (h *Handler) GetFilter(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody("live filter disabled"))
		return
	}
	res := h.session.Result()
	if raw := r.URL.Query().Get("wait"); raw != "" {
		seq, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("wait must be a sequence number"))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), maxFilterWait)
		defer cancel()
		res, err = h.session.Wait(ctx, seq)
		if err != nil {
			writeJSON(w, http.StatusGatewayTimeout, errorBody("result not ready"))
			return
		}
	}

	all, err := h.store.GetAll(r.Context())
	if err != nil {
		slog.Error("get filter failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, filterResponse(h.session.Input(), h.session.Seq(), res, all.Len()))
}

func listResponse(query string, results []search.Result, total int) NoteListResponse {
	return NoteListResponse{
		Query:       query,
		Notes:       lo.Map(results, func(r search.Result, _ int) NoteListItem { return listItem(r) }),
		Count:       len(results),
		Total:       total,
		Placeholder: Placeholder(total),
	}
}
