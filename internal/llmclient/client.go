// Package llmclient is an HTTP client for the local LLM runtime used by
// the ReAct loop and agent selection. It exposes a single Complete
// method mirroring the simple prompt-in/text-out contract the rest of
// this core depends on; no tool-calling, streaming, or vendor SDK.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a local completion endpoint (Ollama-compatible: POST
// /api/generate with {model, prompt, options}).
type Client struct {
	baseURL string
	model   string
	http    *http.Client
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// New constructs a Client. BaseURL defaults to the local Ollama port.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://host:11434"
	}
	if opts.Model == "" {
		opts.Model = "llama3"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: opts.BaseURL,
		model:   opts.Model,
		http:    &http.Client{Timeout: timeout},
	}
}

// Params are the optional generation parameters spec.md §6 names.
type Params struct {
	Stop        []string
	MaxTokens   int
	Temperature float64
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete sends prompt to the local LLM and returns its text response.
// Callers in this core must scrub PHI from prompt before calling
// (coordinated via internal/safety) — this client performs no scanning
// of its own, since logging/redaction policy is a caller concern.
func (c *Client) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	options := map[string]any{}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}
	if params.MaxTokens > 0 {
		options["num_predict"] = params.MaxTokens
	}
	if params.Temperature > 0 {
		options["temperature"] = params.Temperature
	}

	reqBody := generateRequest{Model: c.model, Prompt: prompt, Stream: false, Options: options}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	return parsed.Response, nil
}
