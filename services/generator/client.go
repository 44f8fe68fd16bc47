package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

const (
	defaultBaseURL    = "https://openrouter.ai/api"
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 2
	backoffBase       = 1 * time.Second
	maxRetryAfterWait = 30 * time.Second
)

// ClientConfig configures the provider HTTP client.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Client talks to the chat-completions endpoint of the LLM provider. The
// retry policy is sequential and bounded: MaxRetries extra attempts with
// exponential backoff, honoring Retry-After hints on rate limits.
type Client struct {
	apiKey     string
	baseURL    string
	maxRetries int
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient builds a Client. A missing API key is not an error here; it is
// reported as a configuration failure on first use so the API can boot with
// generation unconfigured.
func NewClient(cfg ClientConfig, log zerolog.Logger) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}

	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "generator-client").Logger(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete performs one chat completion round trip with the bounded retry
// policy applied. The returned error is always a generator *Error.
func (c *Client) complete(ctx context.Context, req chatRequest) (string, error) {
	if c.apiKey == "" {
		return "", newError(KindConfiguration, errors.New("provider API key is not configured"))
	}

	// Retry-After from the most recent 429 overrides the exponential step.
	var waitHint atomic.Int64

	base := retry.WithMaxRetries(uint64(c.maxRetries), retry.NewExponential(backoffBase))
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := base.Next()
		if stop {
			return 0, true
		}
		if hint := waitHint.Swap(0); hint > 0 {
			d = time.Duration(hint)
			if d > maxRetryAfterWait {
				d = maxRetryAfterWait
			}
		}
		return d, false
	})

	var content string
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		out, attemptErr := c.completeOnce(ctx, req)
		if attemptErr == nil {
			content = out
			return nil
		}

		genErr, _ := AsError(attemptErr)
		if genErr == nil {
			return attemptErr
		}
		if !retryableKind(genErr) {
			return attemptErr
		}
		if genErr.Kind == KindRateLimit && genErr.RetryAfter > 0 {
			waitHint.Store(int64(genErr.RetryAfter))
		}

		c.log.Warn().
			Int("attempt", attempt).
			Int("max_retries", c.maxRetries).
			Str("kind", string(genErr.Kind)).
			Err(genErr.Err).
			Msg("provider request retrying")

		return retry.RetryableError(attemptErr)
	})
	if err != nil {
		if genErr, ok := AsError(err); ok {
			return "", genErr
		}
		return "", classifyTransportError(err)
	}

	return content, nil
}

func (c *Client) completeOnce(ctx context.Context, req chatRequest) (string, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return "", newError(KindResponseValidation, fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return "", newError(KindNetwork, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(err)
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", newError(KindNetwork, readErr)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &Error{
			Kind:           KindRateLimit,
			UpstreamStatus: resp.StatusCode,
			RetryAfter:     retryAfterHint(resp),
			Err:            fmt.Errorf("provider rate limited: %s", truncate(raw)),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", &Error{
			Kind:           KindUpstream,
			UpstreamStatus: resp.StatusCode,
			Err:            fmt.Errorf("provider http %d: %s", resp.StatusCode, truncate(raw)),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", newError(KindResponseValidation, fmt.Errorf("decode provider response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", newError(KindResponseValidation, errors.New("provider response has no choices"))
	}

	return parsed.Choices[0].Message.Content, nil
}

func retryableKind(e *Error) bool {
	switch e.Kind {
	case KindRateLimit, KindNetwork, KindTimeout:
		return true
	case KindUpstream:
		return e.UpstreamStatus >= 500 && e.UpstreamStatus <= 599
	default:
		return false
	}
}

func classifyTransportError(err error) *Error {
	if genErr, ok := AsError(err); ok {
		return genErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindTimeout, err)
	}
	return newError(KindNetwork, err)
}

func retryAfterHint(resp *http.Response) time.Duration {
	ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	secs, err := strconv.Atoi(ra)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(raw []byte) string {
	const max = 512
	s := strings.TrimSpace(string(raw))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
