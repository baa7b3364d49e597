package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/config"
)

// ErrMalformedResponse marks a provider reply that failed the existence checks.
var ErrMalformedResponse = errors.New("malformed provider response")

// ProviderError is a failed recommendation call for one pilot.
type ProviderError struct {
	PilotID string
	// Status is the HTTP status returned by the provider, 0 when the call
	// never produced a response.
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("recommend: pilot %s: provider returned HTTP %d: %v", e.PilotID, e.Status, e.Err)
	}
	return fmt.Sprintf("recommend: pilot %s: %v", e.PilotID, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// retryable reports whether another attempt could succeed.
func (e *ProviderError) retryable() bool {
	if errors.Is(e.Err, ErrMalformedResponse) || errors.Is(e.Err, context.Canceled) {
		return false
	}
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Provider produces one pilot's recommendation.
type Provider interface {
	Recommend(ctx context.Context, r Request) (types.Recommendation, error)
}

// ChatClient calls an OpenAI-compatible /chat/completions endpoint.
type ChatClient struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewChatClient builds a client from cfg. The API key is read from the
// environment variable named by cfg.APIKeyEnv.
func NewChatClient(cfg config.RecommendationsConfig) *ChatClient {
	return &ChatClient{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:   cfg.APIKey(),
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Recommend sends one chat completion request and decodes the JSON object in
// the first choice.
func (c *ChatClient) Recommend(ctx context.Context, r Request) (types.Recommendation, error) {
	fail := func(status int, err error) (types.Recommendation, error) {
		return types.Recommendation{}, &ProviderError{PilotID: r.PilotID, Status: status, Err: err}
	}

	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: Prompt(r)},
		},
	}
	body.ResponseFormat.Type = "json_object"
	payload, err := json.Marshal(body)
	if err != nil {
		return fail(0, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fail(0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fail(0, fmt.Errorf("http post: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fail(resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(msg))))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return fail(0, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	if len(cr.Choices) == 0 || cr.Choices[0].Message.Content == "" {
		return fail(0, fmt.Errorf("%w: no content in response", ErrMalformedResponse))
	}

	var rec types.Recommendation
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), &rec); err != nil {
		return fail(0, fmt.Errorf("%w: content is not JSON: %v", ErrMalformedResponse, err))
	}
	if rec.FlightStatus == "" {
		return fail(0, fmt.Errorf("%w: flight_status missing", ErrMalformedResponse))
	}
	return rec, nil
}
