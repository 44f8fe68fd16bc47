package api

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
)

// openSession runs a generation round and returns the session id.
func openSession(t *testing.T, ta *testAPI, token string) string {
	t.Helper()
	ta.generator.proposals = twoProposals()
	rec := ta.do(t, http.MethodPost, "/v1/sessions", token, map[string]any{
		"input_text": sourceText(1500),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open session status = %d: %s", rec.Code, rec.Body.String())
	}
	session := decodeBody(t, rec)["session"].(map[string]any)
	return session["id"].(string)
}

func acceptedCards(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{"front_text": "front", "back_text": "back", "origin_status": "AI_ORIGINAL"}
	}
	return out
}

func TestBatchSave(t *testing.T) {
	ta := newTestAPI(t, nil)
	token := ta.register(t, "learner@example.com")
	sessionID := openSession(t, ta, token)

	rec := ta.do(t, http.MethodPost, "/v1/batch", token, map[string]any{
		"ai_generation_audit_id": sessionID,
		"cards": []map[string]any{
			{"front_text": "What is Go?", "back_text": "A language", "origin_status": "AI_ORIGINAL"},
			{"front_text": "edited front", "back_text": "edited back", "origin_status": "AI_EDITED"},
		},
		"rejected_count": 0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if ids := body["saved_card_ids"].([]any); len(ids) != 2 {
		t.Fatalf("saved_card_ids = %v, want 2 entries", ids)
	}
	audit := body["audit"].(map[string]any)
	if audit["generation_completed_at"] == nil {
		t.Fatal("audit record must be completed")
	}
	if got := audit["saved_unchanged_count"].(float64); got != 1 {
		t.Fatalf("saved_unchanged_count = %v, want 1", got)
	}
	if got := audit["saved_edited_count"].(float64); got != 1 {
		t.Fatalf("saved_edited_count = %v, want 1", got)
	}

	// The cards show up in the collection with AI provenance.
	rec = ta.do(t, http.MethodGet, "/v1/flashcards?source=ai_edited", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["total"].(float64); got != 1 {
		t.Fatalf("ai_edited total = %v, want 1", got)
	}

	t.Run("second save conflicts", func(t *testing.T) {
		rec := ta.do(t, http.MethodPost, "/v1/batch", token, map[string]any{
			"ai_generation_audit_id": sessionID,
			"cards":                  acceptedCards(2),
			"rejected_count":         0,
		})
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}
		if code := errorCode(t, rec); code != codeSessionCompleted {
			t.Fatalf("code = %q", code)
		}
	})
}

func TestBatchSaveInvalidCounts(t *testing.T) {
	ta := newTestAPI(t, nil)
	token := ta.register(t, "learner@example.com")
	sessionID := openSession(t, ta, token) // generated_count = 2

	rec := ta.do(t, http.MethodPost, "/v1/batch", token, map[string]any{
		"ai_generation_audit_id": sessionID,
		"cards":                  acceptedCards(2),
		"rejected_count":         1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != codeInvalidCounts {
		t.Fatalf("code = %q, want %q", code, codeInvalidCounts)
	}

	env := decodeBody(t, rec)["error"].(map[string]any)
	details := env["details"].(map[string]any)
	if details["expected"].(float64) != 2 || details["received"].(float64) != 3 {
		t.Fatalf("details = %v, want expected=2 received=3", details)
	}

	// Nothing was saved and the session stays open.
	rec = ta.do(t, http.MethodGet, "/v1/flashcards", token, nil)
	if got := decodeBody(t, rec)["total"].(float64); got != 0 {
		t.Fatalf("flashcard total = %v, want 0", got)
	}
}

func TestBatchSaveErrors(t *testing.T) {
	ta := newTestAPI(t, nil)
	token := ta.register(t, "learner@example.com")

	t.Run("unknown session", func(t *testing.T) {
		rec := ta.do(t, http.MethodPost, "/v1/batch", token, map[string]any{
			"ai_generation_audit_id": uuid.NewString(),
			"cards":                  acceptedCards(1),
			"rejected_count":         0,
		})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if code := errorCode(t, rec); code != codeSessionNotFound {
			t.Fatalf("code = %q", code)
		}
	})

	t.Run("no accepted cards", func(t *testing.T) {
		rec := ta.do(t, http.MethodPost, "/v1/batch", token, map[string]any{
			"ai_generation_audit_id": uuid.NewString(),
			"cards":                  []map[string]any{},
			"rejected_count":         2,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("oversized card side", func(t *testing.T) {
		long := make([]rune, 501)
		for i := range long {
			long[i] = 'x'
		}
		rec := ta.do(t, http.MethodPost, "/v1/batch", token, map[string]any{
			"ai_generation_audit_id": uuid.NewString(),
			"cards": []map[string]any{
				{"front_text": string(long), "back_text": "back", "origin_status": "AI_ORIGINAL"},
			},
			"rejected_count": 0,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
		}
		if code := errorCode(t, rec); code != codeInvalidInput {
			t.Fatalf("code = %q, want %q", code, codeInvalidInput)
		}
	})

	t.Run("unknown origin status", func(t *testing.T) {
		rec := ta.do(t, http.MethodPost, "/v1/batch", token, map[string]any{
			"ai_generation_audit_id": uuid.NewString(),
			"cards": []map[string]any{
				{"front_text": "front", "back_text": "back", "origin_status": "MANUAL"},
			},
			"rejected_count": 0,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("malformed session id", func(t *testing.T) {
		rec := ta.do(t, http.MethodPost, "/v1/batch", token, map[string]any{
			"ai_generation_audit_id": "not-a-uuid",
			"cards":                  acceptedCards(1),
			"rejected_count":         0,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}
