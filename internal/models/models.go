// Package models defines the shared data types that flow between the
// orchestration core's components: queries, tool descriptors and
// invocations, agent tasks and results, citations, and the final response.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Query is the immutable request admitted into the orchestration core.
type Query struct {
	Text        string
	SessionID   string
	UserRole    string
	ArrivalTime time.Time
	IntentHint  string
}

// ToolCategory buckets tools for pool affinity and agent allow-lists.
type ToolCategory string

const (
	CategorySearch        ToolCategory = "search"
	CategoryPharmaceutical ToolCategory = "pharmaceutical"
	CategoryClinical      ToolCategory = "clinical"
	CategoryNER           ToolCategory = "ner"
	CategoryGeneral       ToolCategory = "general"
)

// ToolDescriptor describes a tool exposed by a connected tool server.
type ToolDescriptor struct {
	Name          string
	Category      ToolCategory
	InputSchema   json.RawMessage
	OutputDataKey string
}

// ToolInvocation is a single request to call a tool within a session.
type ToolInvocation struct {
	ToolName  string
	Arguments map[string]any
	SessionID string
}

// CacheKey computes the deterministic cache key for this invocation:
// hash(tool_name, canonical(arguments), session_id).
func (t ToolInvocation) CacheKey() string {
	h := sha256.New()
	h.Write([]byte(t.ToolName))
	h.Write([]byte{0})
	h.Write([]byte(canonicalizeArgs(t.Arguments)))
	h.Write([]byte{0})
	h.Write([]byte(t.SessionID))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalizeArgs produces a stable serialization of an argument map
// regardless of map iteration order, so identical argument sets always
// hash to the same cache key.
func canonicalizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := json.Marshal(args[k])
		if err != nil {
			v = []byte(`null`)
		}
		pairs = append(pairs, k+":"+string(v))
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

// ToolResponseEnvelope is the uniform wrapper every tool server emits.
type ToolResponseEnvelope struct {
	Content []ToolResponseContent `json:"content"`
}

// ToolResponseContent is one content block of a ToolResponseEnvelope.
type ToolResponseContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AgentTask is the unit of work the orchestrator hands to the iteration
// controller for a single selected agent.
type AgentTask struct {
	AgentName     string
	Query         Query
	Context       string
	Deadline      time.Time
	MaxIterations int
	AllowedTools  []string
	ToolDefaults  map[string]map[string]any
}

// ActionKind distinguishes the two shapes an agent step can take.
type ActionKind string

const (
	ActionCallTool ActionKind = "call_tool"
	ActionAnswer   ActionKind = "answer"
)

// AgentAction is the action portion of an AgentStep: either a tool call
// or a final answer.
type AgentAction struct {
	Kind      ActionKind
	ToolName  string
	Arguments map[string]any
	AnswerText string
}

// AgentStep is one iteration of the ReAct loop.
type AgentStep struct {
	IterationIndex int
	Thought        string
	Action         AgentAction
	Observation    string
}

// AgentStatus is the terminal status of an agent's run.
type AgentStatus string

const (
	StatusOK            AgentStatus = "ok"
	StatusTimeout       AgentStatus = "timeout"
	StatusError         AgentStatus = "error"
	StatusEmpty         AgentStatus = "empty"
	StatusSafetyBlocked AgentStatus = "safety_blocked"
)

// AgentResult is what a single agent task produces.
type AgentResult struct {
	AgentName         string
	Status            AgentStatus
	FormattedSummary  string
	RawPayload        json.RawMessage
	Citations         []Citation
	Confidence        float64
	DisclaimersNeeded bool
	Error             string
	ToolsInvoked      []string
}

// CitationKind identifies the primary-source category of a citation.
type CitationKind string

const (
	CitationArticle  CitationKind = "article"
	CitationTrial    CitationKind = "trial"
	CitationDrug     CitationKind = "drug"
	CitationGuideline CitationKind = "guideline"
)

// Citation references a primary source. Identifier fields are kept
// separate rather than collapsed into one "primary id" so that merge
// logic can apply the DOI > PMID > URL > (title+year) precedence and
// fill missing fields of one record from another with the same key.
type Citation struct {
	Kind        CitationKind
	DOI         string
	PMID        string
	NCTID       string // clinical trial registry id
	DrugID      string
	Title       string
	Year        string
	Journal     string
	URLPrimary  string
	URLFallback string
	Snippet     string
}

// DedupeKey returns the identity used for deduplication, following the
// precedence DOI > PMID > NCT/drug id > URL > (title+year). Only the
// highest-precedence populated identifier forms the key, so two records
// of the same source match only when that identifier is the same; a
// record with a DOI and one with only a PMID get different keys.
func (c Citation) DedupeKey() string {
	switch {
	case c.DOI != "":
		return "doi:" + c.DOI
	case c.PMID != "":
		return "pmid:" + c.PMID
	case c.NCTID != "":
		return "nct:" + c.NCTID
	case c.DrugID != "":
		return "drug:" + c.DrugID
	case c.URLPrimary != "":
		return "url:" + c.URLPrimary
	default:
		return "title:" + strings.ToLower(c.Title) + ":" + c.Year
	}
}

// PrecedenceRank returns a lower-is-better rank used by the synthesis
// merge step to pick which of two same-key citations contributes its
// identifier-bearing fields: DOI > PMID > NCT/drug id > URL > title+year.
func (c Citation) PrecedenceRank() int {
	switch {
	case c.DOI != "":
		return 0
	case c.PMID != "":
		return 1
	case c.NCTID != "", c.DrugID != "":
		return 2
	case c.URLPrimary != "":
		return 3
	default:
		return 4
	}
}

// Response is the external answer returned to the caller.
type Response struct {
	FormattedSummary string
	Citations        []Citation
	AgentsConsulted  []string
	ToolsInvoked     []string
	Disclaimers      []string
	Provenance       Provenance
}

// Provenance records how a Response was produced.
type Provenance struct {
	SelectionRationale string
	PerAgentStatus     map[string]AgentStatus
}
