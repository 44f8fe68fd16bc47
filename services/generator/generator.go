package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// DefaultModel is used when neither the request nor the configuration names
// a model identifier.
const DefaultModel = "openai/gpt-4o-mini"

// Proposal is one AI-suggested flashcard. It only lives in the generation
// response and in review state; the temporary id is client-scoped and never
// a database key.
type Proposal struct {
	TemporaryID string `json:"temporary_id"`
	FrontText   string `json:"front_text"`
	BackText    string `json:"back_text"`
}

// Service produces flashcard proposals from source text. It returns the
// proposals in provider order and the model identifier actually used.
type Service interface {
	Generate(ctx context.Context, sourceText, model string) ([]Proposal, string, error)
}

// Generator implements Service on top of the provider Client.
type Generator struct {
	client       *Client
	defaultModel string
	log          zerolog.Logger
}

// New builds a Generator. An empty defaultModel falls back to the package
// default.
func New(client *Client, defaultModel string, log zerolog.Logger) *Generator {
	model := strings.TrimSpace(defaultModel)
	if model == "" {
		model = DefaultModel
	}
	return &Generator{
		client:       client,
		defaultModel: model,
		log:          log.With().Str("component", "generator").Logger(),
	}
}

// Generate calls the provider and parses the constrained JSON response into
// proposals. An empty proposal list is a valid outcome, not an error. Every
// returned proposal carries a fresh temporary id.
func (g *Generator) Generate(ctx context.Context, sourceText, model string) ([]Proposal, string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = g.defaultModel
	}

	req := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPromptPrefix + sourceText},
		},
		Temperature:    0.7,
		ResponseFormat: responseFormat(),
	}

	content, err := g.client.complete(ctx, req)
	if err != nil {
		return nil, model, err
	}

	proposals, err := parseProposals(content)
	if err != nil {
		return nil, model, err
	}

	g.log.Info().
		Str("model", model).
		Int("proposals", len(proposals)).
		Msg("generation completed")

	return proposals, model, nil
}

type proposalPayload struct {
	Proposals []struct {
		FrontText string `json:"front_text"`
		BackText  string `json:"back_text"`
	} `json:"proposals"`
}

// parseProposals decodes the strict-JSON provider output. Anything that does
// not conform is a validation failure; the caller never retries it.
func parseProposals(content string) ([]Proposal, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, newError(KindResponseValidation, fmt.Errorf("provider returned empty content"))
	}

	var payload proposalPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, newError(KindResponseValidation, fmt.Errorf("parse proposal JSON: %w", err))
	}

	proposals := make([]Proposal, 0, len(payload.Proposals))
	for i, p := range payload.Proposals {
		front := strings.TrimSpace(p.FrontText)
		back := strings.TrimSpace(p.BackText)
		if front == "" || back == "" {
			return nil, newError(KindResponseValidation, fmt.Errorf("proposal %d has an empty side", i))
		}

		id, err := gonanoid.New()
		if err != nil {
			return nil, newError(KindResponseValidation, fmt.Errorf("assign temporary id: %w", err))
		}
		proposals = append(proposals, Proposal{
			TemporaryID: id,
			FrontText:   front,
			BackText:    back,
		})
	}

	return proposals, nil
}
