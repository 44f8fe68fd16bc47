package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tenxcards/services/ledger"
)

const (
	minSourceTextLength = 1000
	maxSourceTextLength = 32768
)

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !a.config.GenerationEnabled {
		respondError(w, &apiError{
			Status:  http.StatusForbidden,
			Code:    codeFeatureDisabled,
			Message: "AI generation is disabled",
		})
		return
	}

	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondError(w, unauthorized("missing user"))
		return
	}

	var req struct {
		InputText       string `json:"input_text"`
		Model           string `json:"model_identifier,omitempty"`
		ClientRequestID string `json:"client_request_id,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, badRequest(err.Error()))
		return
	}

	input := strings.TrimSpace(req.InputText)
	if n := len([]rune(input)); n < minSourceTextLength || n > maxSourceTextLength {
		respondError(w, &apiError{
			Status: http.StatusBadRequest,
			Code:   codeInvalidInput,
			Message: fmt.Sprintf("input_text must be between %d and %d characters",
				minSourceTextLength, maxSourceTextLength),
			Details: map[string]any{
				"length": len([]rune(input)),
				"min":    minSourceTextLength,
				"max":    maxSourceTextLength,
			},
		})
		return
	}

	clientRequestID := uuid.Nil
	if strings.TrimSpace(req.ClientRequestID) != "" {
		parsed, err := uuid.Parse(req.ClientRequestID)
		if err != nil {
			respondError(w, badRequest("client_request_id must be a UUID"))
			return
		}
		clientRequestID = parsed
	}

	proposals, model, err := a.generator.Generate(r.Context(), input, req.Model)
	if err != nil {
		a.log.Warn().Err(err).Str("user_id", userID.String()).Msg("generation failed")
		respondError(w, mapGeneratorError(err))
		return
	}

	session, err := a.ledger.Open(r.Context(), ledger.OpenParams{
		UserID:           userID,
		ClientRequestID:  clientRequestID,
		Model:            model,
		GeneratedCount:   len(proposals),
		SourceTextLength: len([]rune(input)),
	})
	if errors.Is(err, ledger.ErrDuplicateRequest) {
		respondError(w, &apiError{
			Status:  http.StatusConflict,
			Code:    codeDuplicateRequest,
			Message: "a session with this client_request_id already exists",
		})
		return
	}
	if err != nil {
		respondError(w, internal(err))
		return
	}

	a.publishJSON(r.Context(), subjectSessionOpened, map[string]any{
		"session_id":      session.ID,
		"user_id":         session.UserID,
		"generated_count": session.GeneratedCount,
	})

	respondJSON(w, http.StatusCreated, map[string]any{
		"session":   sessionToAPI(session),
		"proposals": proposals,
	})
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondError(w, unauthorized("missing user"))
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, badRequest("session id must be a UUID"))
		return
	}

	session, err := a.ledger.Get(r.Context(), sessionID, userID)
	if errors.Is(err, ledger.ErrNotFound) {
		respondError(w, &apiError{Status: http.StatusNotFound, Code: codeSessionNotFound, Message: "generation session not found"})
		return
	}
	if err != nil {
		respondError(w, internal(err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"session": sessionToAPI(session)})
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondError(w, unauthorized("missing user"))
		return
	}

	page, pageSize := pagination(r)
	sessions, total, err := a.ledger.List(r.Context(), userID, pageSize, (page-1)*pageSize)
	if err != nil {
		respondError(w, internal(err))
		return
	}

	out := make([]Session, len(sessions))
	for i, s := range sessions {
		out[i] = sessionToAPI(s)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"sessions":  out,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func pagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
