package api

import (
	"net/http"
	"strings"
	"testing"
)

func createCard(t *testing.T, ta *testAPI, token, front, back string) map[string]any {
	t.Helper()
	rec := ta.do(t, http.MethodPost, "/v1/flashcards", token, map[string]string{
		"front_text": front,
		"back_text":  back,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody(t, rec)["flashcard"].(map[string]any)
}

func TestFlashcardCRUD(t *testing.T) {
	ta := newTestAPI(t, nil)
	token := ta.register(t, "learner@example.com")

	card := createCard(t, ta, token, "What is Go?", "A language")
	if card["source"].(string) != "manual" {
		t.Fatalf("source = %q, want manual", card["source"])
	}
	cardID := card["id"].(string)

	t.Run("get", func(t *testing.T) {
		rec := ta.do(t, http.MethodGet, "/v1/flashcards/"+cardID, token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("update", func(t *testing.T) {
		rec := ta.do(t, http.MethodPut, "/v1/flashcards/"+cardID, token, map[string]string{
			"front_text": "updated front",
			"back_text":  "updated back",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		updated := decodeBody(t, rec)["flashcard"].(map[string]any)
		if updated["front_text"].(string) != "updated front" {
			t.Fatalf("front_text = %q", updated["front_text"])
		}
		// Manual cards keep their source on edit.
		if updated["source"].(string) != "manual" {
			t.Fatalf("source = %q, want manual", updated["source"])
		}
	})

	t.Run("delete then get", func(t *testing.T) {
		rec := ta.do(t, http.MethodDelete, "/v1/flashcards/"+cardID, token, nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("delete status = %d", rec.Code)
		}
		rec = ta.do(t, http.MethodGet, "/v1/flashcards/"+cardID, token, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("get after delete status = %d, want 404", rec.Code)
		}
	})
}

func TestFlashcardValidation(t *testing.T) {
	ta := newTestAPI(t, nil)
	token := ta.register(t, "learner@example.com")

	tests := []struct {
		name  string
		front string
		back  string
	}{
		{name: "empty front", front: "", back: "back"},
		{name: "empty back", front: "front", back: "   "},
		{name: "front too long", front: strings.Repeat("x", 501), back: "back"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ta.do(t, http.MethodPost, "/v1/flashcards", token, map[string]string{
				"front_text": tt.front,
				"back_text":  tt.back,
			})
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if code := errorCode(t, rec); code != codeInvalidInput {
				t.Fatalf("code = %q", code)
			}
		})
	}
}

func TestFlashcardListQuery(t *testing.T) {
	ta := newTestAPI(t, nil)
	token := ta.register(t, "learner@example.com")

	createCard(t, ta, token, "What is Go?", "A language")
	createCard(t, ta, token, "Define goroutine", "Lightweight thread")
	createCard(t, ta, token, "Channels", "Typed conduits")

	t.Run("search", func(t *testing.T) {
		rec := ta.do(t, http.MethodGet, "/v1/flashcards?q=goroutine", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := decodeBody(t, rec)["total"].(float64); got != 1 {
			t.Fatalf("total = %v, want 1", got)
		}
	})

	t.Run("pagination shape", func(t *testing.T) {
		rec := ta.do(t, http.MethodGet, "/v1/flashcards?page=2&page_size=2", token, nil)
		body := decodeBody(t, rec)
		if got := body["page"].(float64); got != 2 {
			t.Fatalf("page = %v", got)
		}
		if got := len(body["flashcards"].([]any)); got != 1 {
			t.Fatalf("page 2 has %d cards, want 1", got)
		}
	})

	t.Run("page size capped", func(t *testing.T) {
		rec := ta.do(t, http.MethodGet, "/v1/flashcards?page_size=9999", token, nil)
		if got := decodeBody(t, rec)["page_size"].(float64); got != maxPageSize {
			t.Fatalf("page_size = %v, want %d", got, maxPageSize)
		}
	})

	t.Run("invalid source filter", func(t *testing.T) {
		rec := ta.do(t, http.MethodGet, "/v1/flashcards?source=telepathy", token, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("invalid sort field", func(t *testing.T) {
		rec := ta.do(t, http.MethodGet, "/v1/flashcards?sort=evil", token, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if got := errorCode(t, rec); got != codeInvalidInput {
			t.Fatalf("code = %q, want %q", got, codeInvalidInput)
		}
	})

	t.Run("isolation between users", func(t *testing.T) {
		otherToken := ta.register(t, "other@example.com")
		rec := ta.do(t, http.MethodGet, "/v1/flashcards", otherToken, nil)
		if got := decodeBody(t, rec)["total"].(float64); got != 0 {
			t.Fatalf("other user's total = %v, want 0", got)
		}
	})

	t.Run("export without object storage", func(t *testing.T) {
		rec := ta.do(t, http.MethodPost, "/v1/flashcards/export", token, nil)
		if rec.Code != http.StatusFailedDependency {
			t.Fatalf("status = %d, want 424", rec.Code)
		}
	})
}
