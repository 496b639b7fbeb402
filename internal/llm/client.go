// Package llm talks to an OpenAI-compatible chat-completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ourmate-bot/internal/utils"
)

const bodySnippet = 300

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RemoteServiceError is any failure of a completion call: transport, status,
// or an unusable body.
type RemoteServiceError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *RemoteServiceError) Error() string {
	msg := "llm " + e.Op
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// Client is a minimal chat-completions client.
type Client struct {
	url    string
	apiKey string
	model  string
	http   *http.Client
}

func NewClient(url, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		apiKey: apiKey,
		model:  model,
		http:   &http.Client{Timeout: timeout},
	}
}

// Complete sends messages and returns the first choice. One attempt.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"model":    c.model,
		"messages": messages,
	})
	if err != nil {
		return "", &RemoteServiceError{Op: "encode", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", &RemoteServiceError{Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &RemoteServiceError{Op: "call", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &RemoteServiceError{Op: "read body", Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &RemoteServiceError{Op: "call", Status: resp.StatusCode, Body: utils.Truncate(string(data), bodySnippet)}
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", &RemoteServiceError{Op: "decode", Status: resp.StatusCode, Body: utils.Truncate(string(data), bodySnippet), Err: err}
	}
	if len(result.Choices) == 0 {
		return "", &RemoteServiceError{Op: "decode", Status: resp.StatusCode, Body: "empty choices"}
	}
	return result.Choices[0].Message.Content, nil
}
