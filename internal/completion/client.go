package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	chatPath       = "/api/chat"
	defaultTimeout = 60 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// ErrNoCredential is returned when no API key is configured for the active
// provider. The call short-circuits locally without any network attempt,
// keeping configuration errors distinguishable from transport errors.
var ErrNoCredential = errors.New("no API key configured for provider")

// Message is one turn of a conversation exchanged with the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the completion-provider protocol request: the ordered message
// sequence (system instruction first), the provider identifier, the
// caller-held credential, and the model to use.
type Request struct {
	Provider    string    `json:"provider"`
	APIKey      string    `json:"apiKey"`
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type response struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client issues completion requests against the configured endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a completion client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Complete sends one request/response exchange and returns exactly one
// completion choice. Any non-success status, transport failure, or missing
// choice is an error; a missing credential fails before the request is built.
func (c *Client) Complete(ctx context.Context, req Request) (Message, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return Message{}, fmt.Errorf("%w %q", ErrNoCredential, req.Provider)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Message{}, fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		msg, err := c.doComplete(ctx, req.Provider, req.APIKey, body)
		if err == nil {
			return msg, nil
		}

		if !isRateLimit(err) {
			return Message{}, err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return Message{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return Message{}, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}

func (c *Client) doComplete(ctx context.Context, provider, apiKey string, body []byte) (Message, error) {
	reqCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return Message{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Provider", provider)
	httpReq.Header.Set("X-API-Key", apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Message{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Message{}, &rateLimitError{status: resp.StatusCode}
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Message{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Message{}, fmt.Errorf("decoding response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return Message{}, errors.New("no completion choices returned")
	}

	msg := parsed.Choices[0].Message
	if msg.Role == "" {
		msg.Role = "assistant"
	}
	return msg, nil
}
