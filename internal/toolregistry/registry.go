// Package toolregistry tracks which tools each connected tool server
// exposes, categorizes them, validates call arguments against their
// declared schema, and parses the uniform response envelope every tool
// server emits.
package toolregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/galdaer/clinical-orchestrator/internal/models"
)

// lister is the subset of *toolpool.Pool the registry needs; kept as an
// interface so tests can supply a fake without spinning up subprocesses.
type lister interface {
	ListTools(ctx context.Context, category string) ([]byte, error)
}

type rawToolList struct {
	Tools []rawTool `json:"tools"`
}

type rawTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// outputDataKeys names the JSON field inside a tool's response envelope
// that carries its payload records (§3, §4.2). tools/list carries no
// such metadata, so this is a static table keyed by tool name rather
// than something Refresh can learn from the wire. Unlisted tools fall
// back to "results", the common-case field name.
var outputDataKeys = map[string]string{
	"pubmed_search":           "articles",
	"semantic_scholar_search": "articles",
	"clinical_trials_search":  "trials",
	"drug_interaction_check":  "interactions",
	"rxnorm_lookup":           "results",
	"ner_analyze":             "entities",
	"document_extract":        "sections",
	"guideline_lookup":        "guidelines",
}

func outputDataKeyFor(toolName string) string {
	if key, ok := outputDataKeys[toolName]; ok {
		return key
	}
	return "results"
}

// Registry caches tool descriptors per category and validates/parses
// tool traffic.
type Registry struct {
	pool   lister
	logger *slog.Logger

	mu        sync.RWMutex
	byName    map[string]models.ToolDescriptor
	schemas   map[string]*jsonschema.Schema
	categories map[models.ToolCategory][]string
}

// New constructs an empty Registry backed by pool for on-demand refresh.
func New(pool lister, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		pool:       pool,
		logger:     logger.With("component", "toolregistry"),
		byName:     make(map[string]models.ToolDescriptor),
		schemas:    make(map[string]*jsonschema.Schema),
		categories: make(map[models.ToolCategory][]string),
	}
}

// Refresh calls tools/list for category and caches the resulting
// descriptors. Failures are logged and swallowed: a registry with stale
// or empty data for one category must never block queries against
// another.
func (r *Registry) Refresh(ctx context.Context, category models.ToolCategory) {
	raw, err := r.pool.ListTools(ctx, string(category))
	if err != nil {
		r.logger.Warn("tools/list failed", "category", category, "error", err)
		return
	}

	var parsed rawToolList
	if err := json.Unmarshal(raw, &parsed); err != nil {
		r.logger.Warn("tools/list result unparseable", "category", category, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(parsed.Tools))
	for _, t := range parsed.Tools {
		desc := models.ToolDescriptor{
			Name:          t.Name,
			Category:      category,
			InputSchema:   t.InputSchema,
			OutputDataKey: outputDataKeyFor(t.Name),
		}
		r.byName[t.Name] = desc
		names = append(names, t.Name)

		if len(t.InputSchema) > 0 {
			compiled, err := compileSchema(t.Name, t.InputSchema)
			if err != nil {
				r.logger.Warn("schema compile failed, skipping argument validation", "tool", t.Name, "error", err)
				continue
			}
			r.schemas[t.Name] = compiled
		}
	}
	r.categories[category] = names
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	resource := "inmem://" + name + ".json"
	if err := compiler.AddResource(resource, rawJSONReader(raw)); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	return compiler.Compile(resource)
}

func rawJSONReader(raw json.RawMessage) io.Reader {
	return bytes.NewReader(raw)
}

// ListCategory returns the cached tool names for a category.
func (r *Registry) ListCategory(category models.ToolCategory) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.categories[category]))
	copy(out, r.categories[category])
	return out
}

// Descriptor returns the cached descriptor for a tool name, if known.
func (r *Registry) Descriptor(name string) (models.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// OutputKeyOf returns the cached descriptor's output_data_key, if the
// tool is known; satisfies reactloop.ToolCatalog.OutputKeyOf.
func (r *Registry) OutputKeyOf(name string) (string, bool) {
	d, ok := r.Descriptor(name)
	if !ok {
		return "", false
	}
	return d.OutputDataKey, true
}

// ValidateArguments checks args against the tool's declared input
// schema. Tools with no cached schema are not validated (never-raise on
// missing metadata); schema validation failures are returned to the
// caller. The iteration controller does not call it, so tool calls are
// dispatched without this check.
func (r *Registry) ValidateArguments(toolName string, args map[string]any) error {
	r.mu.RLock()
	schema, ok := r.schemas[toolName]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := schema.ValidateInterface(toAnyMap(args)); err != nil {
		return fmt.Errorf("arguments for %q failed schema validation: %w", toolName, err)
	}
	return nil
}

func toAnyMap(args map[string]any) any {
	if args == nil {
		return map[string]any{}
	}
	return map[string]any(args)
}

// ParseEnvelope extracts and unmarshals the tool response envelope's
// single data field identified by outputDataKey. Tool servers never
// raise protocol-level errors for malformed payloads; a parse failure
// here returns an error (it is not logged here), never a panic. The
// iteration controller turns that error into an observation and goes on.
func ParseEnvelope(raw []byte, outputDataKey string, target any) error {
	var envelope models.ToolResponseEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	if len(envelope.Content) == 0 {
		return fmt.Errorf("envelope has no content blocks")
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal([]byte(envelope.Content[0].Text), &body); err != nil {
		return fmt.Errorf("unmarshal content text: %w", err)
	}

	field, ok := body[outputDataKey]
	if !ok {
		return fmt.Errorf("envelope content missing output key %q", outputDataKey)
	}

	if err := json.Unmarshal(field, target); err != nil {
		return fmt.Errorf("unmarshal %q: %w", outputDataKey, err)
	}
	return nil
}

// SerializeEnvelope builds a ToolResponseEnvelope wrapping value under
// outputDataKey, the mirror of ParseEnvelope used by tests to verify
// the round-trip property.
func SerializeEnvelope(outputDataKey string, value any) ([]byte, error) {
	payload, err := json.Marshal(map[string]any{outputDataKey: value})
	if err != nil {
		return nil, err
	}
	envelope := models.ToolResponseEnvelope{
		Content: []models.ToolResponseContent{{Type: "text", Text: string(payload)}},
	}
	return json.Marshal(envelope)
}
