package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tenxcards/services/cards"
)

func (a *API) handleCreateFlashcard(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondError(w, unauthorized("missing user"))
		return
	}

	var req struct {
		FrontText string `json:"front_text"`
		BackText  string `json:"back_text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, badRequest(err.Error()))
		return
	}

	front := strings.TrimSpace(req.FrontText)
	back := strings.TrimSpace(req.BackText)
	if err := cards.ValidateSides(front, back); err != nil {
		respondError(w, badRequest(err.Error()))
		return
	}

	card := &cards.Flashcard{
		UserID:    userID,
		FrontText: front,
		BackText:  back,
		Source:    cards.SourceManual,
	}
	if err := a.cards.Create(r.Context(), card); err != nil {
		respondError(w, internal(err))
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"flashcard": cardToAPI(*card)})
}

func (a *API) handleGetFlashcard(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondError(w, unauthorized("missing user"))
		return
	}

	cardID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, badRequest("flashcard id must be a UUID"))
		return
	}

	card, err := a.cards.Get(r.Context(), cardID, userID)
	if errors.Is(err, cards.ErrNotFound) {
		respondError(w, notFound("flashcard not found"))
		return
	}
	if err != nil {
		respondError(w, internal(err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"flashcard": cardToAPI(*card)})
}

func (a *API) handleUpdateFlashcard(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondError(w, unauthorized("missing user"))
		return
	}

	cardID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, badRequest("flashcard id must be a UUID"))
		return
	}

	var req struct {
		FrontText string `json:"front_text"`
		BackText  string `json:"back_text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, badRequest(err.Error()))
		return
	}

	front := strings.TrimSpace(req.FrontText)
	back := strings.TrimSpace(req.BackText)
	if err := cards.ValidateSides(front, back); err != nil {
		respondError(w, badRequest(err.Error()))
		return
	}

	card, err := a.cards.Update(r.Context(), cardID, userID, front, back)
	if errors.Is(err, cards.ErrNotFound) {
		respondError(w, notFound("flashcard not found"))
		return
	}
	if err != nil {
		respondError(w, internal(err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"flashcard": cardToAPI(*card)})
}

func (a *API) handleDeleteFlashcard(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondError(w, unauthorized("missing user"))
		return
	}

	cardID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, badRequest("flashcard id must be a UUID"))
		return
	}

	err = a.cards.Delete(r.Context(), cardID, userID)
	if errors.Is(err, cards.ErrNotFound) {
		respondError(w, notFound("flashcard not found"))
		return
	}
	if err != nil {
		respondError(w, internal(err))
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}

func (a *API) handleListFlashcards(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondError(w, unauthorized("missing user"))
		return
	}

	q := r.URL.Query()
	source := strings.TrimSpace(q.Get("source"))
	if source != "" && !cards.ValidSource(source) {
		respondError(w, badRequest("source must be manual, ai_original, or ai_edited"))
		return
	}

	page, pageSize := pagination(r)
	list, total, err := a.cards.List(r.Context(), userID, cards.ListParams{
		Source: source,
		Query:  strings.TrimSpace(q.Get("q")),
		Sort:   strings.TrimSpace(q.Get("sort")),
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		if errors.Is(err, cards.ErrInvalidSort) {
			respondError(w, badRequest(err.Error()))
			return
		}
		respondError(w, internal(err))
		return
	}

	out := make([]Flashcard, len(list))
	for i, card := range list {
		out[i] = cardToAPI(card)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"flashcards": out,
		"total":      total,
		"page":       page,
		"page_size":  pageSize,
	})
}
