// Package nerclient is an HTTP client for the external named-entity
// recognition service, tolerant of both its plain entity-list response
// shape and its enriched envelope shape.
package nerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Entity is one recognized span.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Result is the NER service's parsed output, flattened from whichever
// of the two response shapes the service returned.
type Result struct {
	Entities            []Entity
	EntitiesByType      map[string][]Entity
	HighPriorityEntities []Entity
}

// Client talks to the NER service's /analyze endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
}

// New constructs a Client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: opts.BaseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	Text   string `json:"text"`
	Enrich bool   `json:"enrich,omitempty"`
}

// passthroughResponse is the plain shape: a bare entity list.
type passthroughResponse struct {
	Entities []Entity `json:"entities"`
}

// enrichedResponse is the enriched shape: entities grouped by type plus
// a highlighted high-priority subset.
type enrichedResponse struct {
	EntitiesByType       map[string][]Entity `json:"entities_by_type"`
	HighPriorityEntities []Entity            `json:"high_priority_entities"`
}

// Analyze calls /analyze and returns a Result populated from whichever
// shape the service responded with. enrich requests the grouped shape
// but the client tolerates a plain list regardless.
func (c *Client) Analyze(ctx context.Context, text string, enrich bool) (Result, error) {
	payload, err := json.Marshal(analyzeRequest{Text: text, Enrich: enrich})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("ner request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("ner service returned status %d: %s", resp.StatusCode, string(body))
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return Result{}, fmt.Errorf("unmarshal response: %w", err)
	}

	if _, enriched := probe["entities_by_type"]; enriched {
		var parsed enrichedResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return Result{}, fmt.Errorf("unmarshal enriched response: %w", err)
		}
		flat := make([]Entity, 0)
		for _, group := range parsed.EntitiesByType {
			flat = append(flat, group...)
		}
		return Result{
			Entities:             flat,
			EntitiesByType:       parsed.EntitiesByType,
			HighPriorityEntities: parsed.HighPriorityEntities,
		}, nil
	}

	var plain passthroughResponse
	if err := json.Unmarshal(body, &plain); err != nil {
		return Result{}, fmt.Errorf("unmarshal passthrough response: %w", err)
	}
	return Result{Entities: plain.Entities}, nil
}
