package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"tenxcards/services/generator"
)

func sourceText(n int) string { return strings.Repeat("a", n) }

func twoProposals() []generator.Proposal {
	return []generator.Proposal{
		{TemporaryID: "t1", FrontText: "What is Go?", BackText: "A language"},
		{TemporaryID: "t2", FrontText: "What is a chan?", BackText: "A typed conduit"},
	}
}

func TestCreateSessionInputBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		length     int
		wantStatus int
	}{
		{name: "one below minimum", length: 999, wantStatus: http.StatusBadRequest},
		{name: "exact minimum", length: 1000, wantStatus: http.StatusCreated},
		{name: "exact maximum", length: 32768, wantStatus: http.StatusCreated},
		{name: "one above maximum", length: 32769, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestAPI(t, nil)
			ta.generator.proposals = twoProposals()
			token := ta.register(t, "learner@example.com")

			rec := ta.do(t, http.MethodPost, "/v1/sessions", token, map[string]any{
				"input_text": sourceText(tt.length),
			})
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusBadRequest {
				if code := errorCode(t, rec); code != codeInvalidInput {
					t.Fatalf("code = %q, want %q", code, codeInvalidInput)
				}
				if ta.generator.calls != 0 {
					t.Fatal("generator must not run on invalid input")
				}
			}
		})
	}
}

func TestCreateSessionSuccess(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.generator.proposals = twoProposals()
	token := ta.register(t, "learner@example.com")

	rec := ta.do(t, http.MethodPost, "/v1/sessions", token, map[string]any{
		"input_text": sourceText(1500),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	session := body["session"].(map[string]any)
	if got := session["generated_count"].(float64); got != 2 {
		t.Fatalf("generated_count = %v, want 2", got)
	}
	if got := session["source_text_length"].(float64); got != 1500 {
		t.Fatalf("source_text_length = %v, want 1500", got)
	}
	proposals := body["proposals"].([]any)
	if len(proposals) != 2 {
		t.Fatalf("got %d proposals, want 2", len(proposals))
	}
	first := proposals[0].(map[string]any)
	if first["temporary_id"].(string) == "" {
		t.Fatal("proposals must carry temporary ids")
	}
}

func TestCreateSessionIdempotencyKey(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.generator.proposals = twoProposals()
	token := ta.register(t, "learner@example.com")

	requestID := uuid.NewString()
	payload := map[string]any{
		"input_text":        sourceText(1200),
		"client_request_id": requestID,
	}

	rec := ta.do(t, http.MethodPost, "/v1/sessions", token, payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ta.do(t, http.MethodPost, "/v1/sessions", token, payload)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second status = %d, want 409", rec.Code)
	}
	if code := errorCode(t, rec); code != codeDuplicateRequest {
		t.Fatalf("code = %q, want %q", code, codeDuplicateRequest)
	}

	// A different user may reuse the same request id.
	otherToken := ta.register(t, "other@example.com")
	rec = ta.do(t, http.MethodPost, "/v1/sessions", otherToken, payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("other user status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateSessionFeatureDisabled(t *testing.T) {
	ta := newTestAPI(t, func(cfg *Config) { cfg.GenerationEnabled = false })
	token := ta.register(t, "learner@example.com")

	rec := ta.do(t, http.MethodPost, "/v1/sessions", token, map[string]any{
		"input_text": sourceText(1500),
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if code := errorCode(t, rec); code != codeFeatureDisabled {
		t.Fatalf("code = %q, want %q", code, codeFeatureDisabled)
	}
}

func TestCreateSessionGeneratorFailures(t *testing.T) {
	tests := []struct {
		name       string
		kind       generator.Kind
		retryAfter time.Duration
		wantStatus int
	}{
		{name: "configuration", kind: generator.KindConfiguration, wantStatus: http.StatusInternalServerError},
		{name: "rate limit", kind: generator.KindRateLimit, retryAfter: 30 * time.Second, wantStatus: http.StatusTooManyRequests},
		{name: "timeout", kind: generator.KindTimeout, wantStatus: http.StatusGatewayTimeout},
		{name: "network", kind: generator.KindNetwork, wantStatus: http.StatusServiceUnavailable},
		{name: "upstream", kind: generator.KindUpstream, wantStatus: http.StatusBadGateway},
		{name: "response validation", kind: generator.KindResponseValidation, wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestAPI(t, nil)
			ta.generator.err = &generator.Error{Kind: tt.kind, RetryAfter: tt.retryAfter}
			token := ta.register(t, "learner@example.com")

			rec := ta.do(t, http.MethodPost, "/v1/sessions", token, map[string]any{
				"input_text": sourceText(2000),
			})
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if code := errorCode(t, rec); code != string(tt.kind) {
				t.Fatalf("code = %q, want %q", code, tt.kind)
			}

			// A failed generation opens no session.
			if len(ta.ledger.sessions) != 0 {
				t.Fatal("no session must be recorded on failure")
			}

			if tt.retryAfter > 0 {
				env := decodeBody(t, rec)["error"].(map[string]any)
				details := env["details"].(map[string]any)
				if got := details["retry_after"].(float64); got != 30 {
					t.Fatalf("retry_after = %v, want 30", got)
				}
			}
		})
	}
}

func TestGetSession(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.generator.proposals = twoProposals()
	token := ta.register(t, "learner@example.com")

	rec := ta.do(t, http.MethodPost, "/v1/sessions", token, map[string]any{
		"input_text": sourceText(1200),
	})
	created := decodeBody(t, rec)["session"].(map[string]any)
	sessionID := created["id"].(string)

	rec = ta.do(t, http.MethodGet, "/v1/sessions/"+sessionID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	t.Run("unknown id", func(t *testing.T) {
		rec := ta.do(t, http.MethodGet, "/v1/sessions/"+uuid.NewString(), token, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if code := errorCode(t, rec); code != codeSessionNotFound {
			t.Fatalf("code = %q", code)
		}
	})

	t.Run("another user's session is invisible", func(t *testing.T) {
		otherToken := ta.register(t, "other@example.com")
		rec := ta.do(t, http.MethodGet, "/v1/sessions/"+sessionID, otherToken, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}
