// Package agents holds the explicit registry of domain agent bundles:
// each agent declares its own name, system prompt, allowed tools,
// per-tool argument defaults, post-processing policy, and deadline.
package agents

import (
	"fmt"
	"time"
)

// PostProcessingPolicy controls how a tool's raw output may be
// surfaced. NeverRawRecords forbids an agent from passing unformatted
// record lists straight through as its formatted summary.
type PostProcessingPolicy struct {
	NeverRawRecords bool
	MaxSnippetChars int
}

// Definition is one domain agent's declared bundle.
type Definition struct {
	Name           string
	SystemPrompt   string
	AllowedTools   []string
	ToolDefaults   map[string]map[string]any
	PostProcessing PostProcessingPolicy
	Deadline       time.Duration
}

// Registry holds every registered Definition by name.
type Registry struct {
	definitions map[string]Definition
	order       []string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[string]Definition)}
}

// Register adds a Definition. Registering the same name twice replaces
// the earlier definition, matching the "last registration wins"
// semantics a config-reload path would need.
func (r *Registry) Register(def Definition) {
	if _, exists := r.definitions[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.definitions[def.Name] = def
}

// Get returns a registered Definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	d, ok := r.definitions[name]
	return d, ok
}

// Names returns every registered agent name in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// MustGet is Get but panics if the agent is unregistered. The
// orchestrator resolves agents with Get and does not call MustGet.
func (r *Registry) MustGet(name string) Definition {
	d, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("agents: unknown agent %q referenced in configuration", name))
	}
	return d
}

// NewDefaultRegistry registers the four standard agents spec.md §4.6
// names, each with its tool allow-list and deadline.
func NewDefaultRegistry(perAgentDefault time.Duration) *Registry {
	r := NewRegistry()

	r.Register(Definition{
		Name: "medical_literature_search",
		SystemPrompt: "You search and summarize peer-reviewed medical literature. " +
			"Always cite the primary source for every claim. Never present a raw list " +
			"of search results as your answer; synthesize the relevant findings in prose.",
		AllowedTools: []string{
			"pubmed_search", "semantic_scholar_search",
			"clinical_trials_search",
			"drug_interaction_check", "rxnorm_lookup",
		},
		ToolDefaults: map[string]map[string]any{
			"pubmed_search": {"max_results": 10},
		},
		PostProcessing: PostProcessingPolicy{NeverRawRecords: true, MaxSnippetChars: 500},
		Deadline:       perAgentDefault,
	})

	r.Register(Definition{
		Name: "clinical_research",
		SystemPrompt: "You research clinical trials and treatment literature, enriched with " +
			"named-entity analysis of the query. Always cite trial registry identifiers or " +
			"primary sources. Flag conflicting evidence rather than averaging it away.",
		AllowedTools: []string{
			"pubmed_search", "semantic_scholar_search",
			"clinical_trials_search",
			"ner_analyze",
		},
		ToolDefaults: map[string]map[string]any{
			"ner_analyze": {"enrich": true},
		},
		PostProcessing: PostProcessingPolicy{NeverRawRecords: true, MaxSnippetChars: 500},
		Deadline:       perAgentDefault,
	})

	r.Register(Definition{
		Name: "intake",
		SystemPrompt: "You triage incoming clinical queries, identifying urgency and the " +
			"relevant specialty using only your own reasoning. You do not provide clinical " +
			"answers or call external tools; you route and summarize context for the other agents.",
		AllowedTools:   nil,
		PostProcessing: PostProcessingPolicy{NeverRawRecords: true},
		Deadline:       perAgentDefault,
	})

	r.Register(Definition{
		Name: "document_processor",
		SystemPrompt: "You annotate clinical documents with named entities and produce a " +
			"de-identified, entity-annotated rendering. Preserve section references so " +
			"findings can be traced back to source.",
		AllowedTools: []string{"ner_analyze"},
		ToolDefaults: map[string]map[string]any{
			"ner_analyze": {"enrich": true},
		},
		PostProcessing: PostProcessingPolicy{NeverRawRecords: true, MaxSnippetChars: 800},
		Deadline:       perAgentDefault,
	})

	return r
}
