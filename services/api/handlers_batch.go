package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"tenxcards/services/cards"
	"tenxcards/services/reconciler"
)

// Origin tags accepted on the batch endpoint.
const (
	originAIOriginal = "AI_ORIGINAL"
	originAIEdited   = "AI_EDITED"
)

func (a *API) handleBatchSave(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondError(w, unauthorized("missing user"))
		return
	}

	var req struct {
		AuditID string `json:"ai_generation_audit_id"`
		Cards   []struct {
			FrontText    string `json:"front_text"`
			BackText     string `json:"back_text"`
			OriginStatus string `json:"origin_status"`
		} `json:"cards"`
		RejectedCount int `json:"rejected_count"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, badRequest(err.Error()))
		return
	}

	sessionID, err := uuid.Parse(strings.TrimSpace(req.AuditID))
	if err != nil {
		respondError(w, badRequest("ai_generation_audit_id must be a UUID"))
		return
	}
	if len(req.Cards) == 0 {
		respondError(w, badRequest("at least one accepted card is required"))
		return
	}
	if req.RejectedCount < 0 {
		respondError(w, badRequest("rejected_count must not be negative"))
		return
	}

	accepted := make([]reconciler.AcceptedCard, len(req.Cards))
	for i, card := range req.Cards {
		var edited bool
		switch card.OriginStatus {
		case originAIOriginal:
			edited = false
		case originAIEdited:
			edited = true
		default:
			respondError(w, badRequest("origin_status must be AI_ORIGINAL or AI_EDITED"))
			return
		}
		front := strings.TrimSpace(card.FrontText)
		back := strings.TrimSpace(card.BackText)
		if err := cards.ValidateSides(front, back); err != nil {
			respondError(w, badRequest(fmt.Sprintf("cards[%d]: %v", i, err)))
			return
		}
		accepted[i] = reconciler.AcceptedCard{
			FrontText: front,
			BackText:  back,
			Edited:    edited,
		}
	}

	result, err := a.reconciler.Save(r.Context(), reconciler.SaveParams{
		SessionID:     sessionID,
		UserID:        userID,
		Accepted:      accepted,
		RejectedCount: req.RejectedCount,
	})
	if err != nil {
		respondError(w, mapBatchError(err))
		return
	}

	session := sessionToAPI(result.Session)

	a.publishJSON(r.Context(), subjectSessionCompleted, map[string]any{
		"session_id":      session.ID,
		"user_id":         userID,
		"saved_unchanged": session.SavedUnchangedCount,
		"saved_edited":    session.SavedEditedCount,
		"rejected":        session.RejectedCount,
	})
	a.publishJSON(r.Context(), subjectCardsSaved, map[string]any{
		"user_id":  userID,
		"card_ids": result.SavedCardIDs,
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"saved_card_ids": result.SavedCardIDs,
		"audit":          session,
	})
}
