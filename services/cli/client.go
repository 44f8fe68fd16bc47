// Package cli implements the cardsctl terminal client: a thin typed client
// for the cards API plus a persisted review round that survives between
// invocations.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"tenxcards/services/generator"
	"tenxcards/services/review"
)

// Client talks to the cards API with bearer authentication.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a Client for the given API base URL.
func NewClient(baseURL, token string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api base url is required")
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}, nil
}

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (http %d): %s", e.Code, e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Code != "" {
			return &APIError{Status: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
		}
		return &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: strings.TrimSpace(string(raw))}
	}

	if dest == nil {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (access, refresh string, err error) {
	var out struct {
		Tokens struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"tokens"`
	}
	err = c.do(ctx, http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return "", "", err
	}
	c.token = out.Tokens.AccessToken
	return out.Tokens.AccessToken, out.Tokens.RefreshToken, nil
}

// Session mirrors the API session shape the CLI cares about.
type Session struct {
	ID             uuid.UUID `json:"id"`
	Model          string    `json:"model_identifier"`
	GeneratedCount int       `json:"generated_count"`
}

// GenerateCards opens a generation session and returns it with the proposals.
func (c *Client) GenerateCards(ctx context.Context, inputText, model string) (Session, []generator.Proposal, error) {
	payload := map[string]any{
		"input_text":        inputText,
		"client_request_id": uuid.NewString(),
	}
	if model != "" {
		payload["model_identifier"] = model
	}

	var out struct {
		Session   Session              `json:"session"`
		Proposals []generator.Proposal `json:"proposals"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", payload, &out); err != nil {
		return Session{}, nil, err
	}
	return out.Session, out.Proposals, nil
}

// SaveBatch submits a finished review round and returns the saved card ids.
func (c *Client) SaveBatch(ctx context.Context, plan *review.SavePlan) ([]uuid.UUID, error) {
	cards := make([]map[string]any, len(plan.Accepted))
	for i, card := range plan.Accepted {
		origin := "AI_ORIGINAL"
		if card.Edited {
			origin = "AI_EDITED"
		}
		cards[i] = map[string]any{
			"front_text":    card.FrontText,
			"back_text":     card.BackText,
			"origin_status": origin,
		}
	}

	var out struct {
		SavedCardIDs []uuid.UUID `json:"saved_card_ids"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/batch", map[string]any{
		"ai_generation_audit_id": plan.SessionID,
		"cards":                  cards,
		"rejected_count":         plan.RejectedCount,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.SavedCardIDs, nil
}

// Flashcard mirrors the API card shape the CLI cares about.
type Flashcard struct {
	ID        uuid.UUID `json:"id"`
	FrontText string    `json:"front_text"`
	BackText  string    `json:"back_text"`
	Source    string    `json:"source"`
}

// ListFlashcards fetches one page of the collection.
func (c *Client) ListFlashcards(ctx context.Context, query string, page, pageSize int) ([]Flashcard, int, error) {
	path := fmt.Sprintf("/v1/flashcards?page=%d&page_size=%d", page, pageSize)
	if query != "" {
		path += "&q=" + url.QueryEscape(query)
	}

	var out struct {
		Flashcards []Flashcard `json:"flashcards"`
		Total      int         `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Flashcards, out.Total, nil
}
