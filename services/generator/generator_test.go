package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func chatBody(t *testing.T, content string) string {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return string(body)
}

func proposalContent(t *testing.T, pairs ...[2]string) string {
	t.Helper()
	items := make([]map[string]string, 0, len(pairs))
	for _, p := range pairs {
		items = append(items, map[string]string{"front_text": p[0], "back_text": p[1]})
	}
	raw, err := json.Marshal(map[string]any{"proposals": items})
	if err != nil {
		t.Fatalf("marshal content: %v", err)
	}
	return string(raw)
}

func newTestGenerator(t *testing.T, handler http.HandlerFunc, retries int) (*Generator, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(ClientConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		MaxRetries: retries,
	}, zerolog.Nop())
	return New(client, "", zerolog.Nop()), srv
}

func TestGenerateSuccess(t *testing.T) {
	var gotModel atomic.Value
	gen, _ := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel.Store(req.Model)
		fmt.Fprint(w, chatBody(t, proposalContent(t,
			[2]string{"What is Go?", "A programming language"},
			[2]string{"What is a goroutine?", "A lightweight thread"},
		)))
	}, 0)

	proposals, model, err := gen.Generate(context.Background(), "source text", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if model != DefaultModel {
		t.Fatalf("model = %q, want %q", model, DefaultModel)
	}
	if gotModel.Load() != DefaultModel {
		t.Fatalf("request model = %v, want %q", gotModel.Load(), DefaultModel)
	}
	if len(proposals) != 2 {
		t.Fatalf("got %d proposals, want 2", len(proposals))
	}
	if proposals[0].TemporaryID == "" || proposals[0].TemporaryID == proposals[1].TemporaryID {
		t.Fatalf("temporary ids must be unique and non-empty: %q vs %q",
			proposals[0].TemporaryID, proposals[1].TemporaryID)
	}
}

func TestGenerateMissingAPIKey(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{BaseURL: srv.URL}, zerolog.Nop())
	gen := New(client, "", zerolog.Nop())

	_, _, err := gen.Generate(context.Background(), "source text", "")
	genErr, ok := AsError(err)
	if !ok || genErr.Kind != KindConfiguration {
		t.Fatalf("want configuration error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("provider must not be called, got %d requests", calls.Load())
	}
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	gen, _ := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream busy", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, chatBody(t, proposalContent(t, [2]string{"q", "a"})))
	}, 2)

	proposals, _, err := gen.Generate(context.Background(), "source text", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(proposals) != 1 {
		t.Fatalf("got %d proposals, want 1", len(proposals))
	}
	if calls.Load() != 2 {
		t.Fatalf("got %d calls, want 2", calls.Load())
	}
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	gen, _ := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}, 2)

	_, _, err := gen.Generate(context.Background(), "source text", "")
	genErr, ok := AsError(err)
	if !ok || genErr.Kind != KindUpstream {
		t.Fatalf("want upstream error, got %v", err)
	}
	if genErr.UpstreamStatus != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", genErr.UpstreamStatus)
	}
	if calls.Load() != 1 {
		t.Fatalf("got %d calls, want exactly 1", calls.Load())
	}
}

func TestGenerateRateLimitExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	gen, _ := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "1")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}, 1)

	start := time.Now()
	_, _, err := gen.Generate(context.Background(), "source text", "")
	genErr, ok := AsError(err)
	if !ok || genErr.Kind != KindRateLimit {
		t.Fatalf("want rate limit error, got %v", err)
	}
	if genErr.RetryAfter != time.Second {
		t.Fatalf("retry-after = %v, want 1s", genErr.RetryAfter)
	}
	if calls.Load() != 2 {
		t.Fatalf("got %d calls, want 2", calls.Load())
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Fatalf("retry-after hint not honored, waited only %v", elapsed)
	}
}

func TestGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 50 * time.Millisecond,
	}, zerolog.Nop())
	gen := New(client, "", zerolog.Nop())

	_, _, err := gen.Generate(context.Background(), "source text", "")
	genErr, ok := AsError(err)
	if !ok || genErr.Kind != KindTimeout {
		t.Fatalf("want timeout error, got %v", err)
	}
}

func TestGenerateMalformedContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "here are your flashcards!"},
		{name: "empty content", content: ""},
		{name: "empty side", content: `{"proposals":[{"front_text":"q","back_text":"  "}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, _ := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, chatBody(t, tt.content))
			}, 0)

			_, _, err := gen.Generate(context.Background(), "source text", "")
			genErr, ok := AsError(err)
			if !ok || genErr.Kind != KindResponseValidation {
				t.Fatalf("want response validation error, got %v", err)
			}
		})
	}
}

func TestParseProposals(t *testing.T) {
	t.Run("empty list is valid", func(t *testing.T) {
		proposals, err := parseProposals(`{"proposals":[]}`)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if len(proposals) != 0 {
			t.Fatalf("got %d proposals, want 0", len(proposals))
		}
	})

	t.Run("sides are trimmed", func(t *testing.T) {
		proposals, err := parseProposals(`{"proposals":[{"front_text":"  q  ","back_text":" a "}]}`)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if proposals[0].FrontText != "q" || proposals[0].BackText != "a" {
			t.Fatalf("not trimmed: %+v", proposals[0])
		}
	})

	t.Run("ids unique across a large batch", func(t *testing.T) {
		items := make([]map[string]string, 25)
		for i := range items {
			items[i] = map[string]string{"front_text": "q", "back_text": "a"}
		}
		raw, _ := json.Marshal(map[string]any{"proposals": items})

		proposals, err := parseProposals(string(raw))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		seen := map[string]bool{}
		for _, p := range proposals {
			if seen[p.TemporaryID] {
				t.Fatalf("duplicate temporary id %q", p.TemporaryID)
			}
			seen[p.TemporaryID] = true
		}
	})
}

func TestClassifyTransportError(t *testing.T) {
	if got := classifyTransportError(context.DeadlineExceeded); got.Kind != KindTimeout {
		t.Fatalf("deadline exceeded → %v, want timeout", got.Kind)
	}
	if got := classifyTransportError(errors.New("connection refused")); got.Kind != KindNetwork {
		t.Fatalf("plain error → %v, want network", got.Kind)
	}
}
