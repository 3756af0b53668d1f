package reactloop

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/galdaer/clinical-orchestrator/internal/llmclient"
	"github.com/galdaer/clinical-orchestrator/internal/models"
)

var tracer = otel.Tracer("reactloop")

// ToolCaller is the subset of *toolpool.Pool the controller needs.
type ToolCaller interface {
	CallTool(ctx context.Context, category, toolName string, args map[string]any) ([]byte, error)
}

// ResponseCache is the subset of *respcache.Cache the controller needs.
type ResponseCache interface {
	Get(sessionID, key string) ([]byte, bool)
	Put(sessionID, key string, payload []byte)
}

// Completer is the subset of *llmclient.Client the controller needs.
type Completer interface {
	Complete(ctx context.Context, prompt string, params llmclient.Params) (string, error)
}

// ToolCatalog resolves a tool name to its category and output data key
// and parses its raw response envelope into records; satisfied by
// *toolregistry.Registry.
type ToolCatalog struct {
	CategoryOf  func(toolName string) (models.ToolCategory, bool)
	OutputKeyOf func(toolName string) (string, bool)
	ParseInto   func(raw []byte, outputDataKey string, target any) error
}

// MetricsRecorder receives the Prometheus counters this package can report;
// satisfied by *audit.Metrics. Optional: SetMetrics defaults to a noop.
type MetricsRecorder interface {
	RecordToolInvocation(tool, status string)
	RecordCacheLookup(hit bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordToolInvocation(tool, status string) {}
func (noopMetrics) RecordCacheLookup(hit bool)                {}

// Config parameterizes one controller instance.
type Config struct {
	MaxIterations      int
	ObservationTopK    int
	ObservationByteCap int
	PerToolTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 8
	}
	if c.ObservationTopK <= 0 {
		c.ObservationTopK = 5
	}
	if c.ObservationByteCap <= 0 {
		c.ObservationByteCap = 4096
	}
	if c.PerToolTimeout <= 0 {
		c.PerToolTimeout = 30 * time.Second
	}
	return c
}

// Controller drives the ReAct loop for one AgentTask at a time.
type Controller struct {
	cfg     Config
	llm     Completer
	pool    ToolCaller
	cache   ResponseCache
	catalog ToolCatalog
	metrics MetricsRecorder
	logger  *slog.Logger
}

// New constructs a Controller.
func New(cfg Config, llm Completer, pool ToolCaller, cache ResponseCache, catalog ToolCatalog, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:     cfg.withDefaults(),
		llm:     llm,
		pool:    pool,
		cache:   cache,
		catalog: catalog,
		metrics: noopMetrics{},
		logger:  logger.With("component", "reactloop"),
	}
}

// SetMetrics installs the Prometheus counter sink. Safe to skip.
func (c *Controller) SetMetrics(m MetricsRecorder) {
	if m == nil {
		m = noopMetrics{}
	}
	c.metrics = m
}

// record is one tool-result record collected during the loop, used by
// synthesizeOnExhaustion to build a conclusive answer.
type record struct {
	summary  string
	citation *models.Citation
}

// Run executes the ReAct loop for task and returns its AgentResult.
// Run never panics: parse failures and tool errors are folded into the
// trace as observations, and iteration exhaustion always yields prose,
// never a raw tool dump.
func (c *Controller) Run(ctx context.Context, task models.AgentTask) models.AgentResult {
	ctx, span := tracer.Start(ctx, "reactloop.run")
	span.SetAttributes(attribute.String("agent", task.AgentName))
	defer span.End()

	if deadline, ok := ctx.Deadline(); !ok || task.Deadline.Before(deadline) {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, task.Deadline)
		defer cancel()
	}

	allowed := make(map[string]bool, len(task.AllowedTools))
	for _, t := range task.AllowedTools {
		allowed[t] = true
	}

	var trace []models.AgentStep
	var collected []record
	var toolsInvoked []string
	observation := task.Query.Text

	for iteration := 0; iteration < c.cfg.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			return c.timeoutResult(task, collected, toolsInvoked)
		}

		prompt := buildPrompt(task, trace, observation)
		raw, err := c.llm.Complete(ctx, prompt, llmclient.Params{MaxTokens: 512})
		if err != nil {
			if ctx.Err() != nil {
				return c.timeoutResult(task, collected, toolsInvoked)
			}
			observation = fmt.Sprintf("error: LLM completion failed: %v", err)
			trace = append(trace, models.AgentStep{IterationIndex: iteration, Observation: observation})
			continue
		}

		step, parseErr := ParseStep(raw)
		step.IterationIndex = iteration
		if parseErr != nil {
			observation = fmt.Sprintf("error: could not parse a step from the model's output: %v", parseErr)
			step.Observation = observation
			trace = append(trace, step)
			continue
		}

		if step.Action.Kind == models.ActionAnswer {
			step.Observation = "final answer"
			trace = append(trace, step)
			return models.AgentResult{
				AgentName:        task.AgentName,
				Status:           models.StatusOK,
				FormattedSummary: step.Action.AnswerText,
				Citations:        citationsOf(collected),
				ToolsInvoked:     toolsInvoked,
			}
		}

		// call_tool
		if !allowed[step.Action.ToolName] {
			observation = fmt.Sprintf("error: tool %q is not in this agent's allow-list", step.Action.ToolName)
			step.Observation = observation
			trace = append(trace, step)
			continue
		}

		obs, rec, err := c.invokeTool(ctx, task, step.Action.ToolName, step.Action.Arguments)
		if err != nil {
			if ctx.Err() != nil {
				return c.timeoutResult(task, collected, toolsInvoked)
			}
			observation = fmt.Sprintf("error: tool %q failed: %v", step.Action.ToolName, err)
			step.Observation = observation
			trace = append(trace, step)
			continue
		}

		toolsInvoked = append(toolsInvoked, step.Action.ToolName)
		collected = append(collected, rec...)
		observation = obs
		step.Observation = observation
		trace = append(trace, step)
	}

	return c.synthesizeOnExhaustion(task, collected, toolsInvoked)
}

func (c *Controller) timeoutResult(task models.AgentTask, collected []record, toolsInvoked []string) models.AgentResult {
	summary := fmt.Sprintf("%s timed out; partial findings below if any.", task.AgentName)
	if len(collected) > 0 {
		summary += " " + narrativeFrom(collected, c.cfg.ObservationTopK)
	}
	return models.AgentResult{
		AgentName:        task.AgentName,
		Status:           models.StatusTimeout,
		FormattedSummary: summary,
		Citations:        citationsOf(collected),
		ToolsInvoked:     toolsInvoked,
	}
}

// invokeTool consults the cache, falls back to the pool on miss,
// records on success, parses the envelope into observation text
// bounded by ObservationByteCap, and returns the records collected for
// later citation synthesis.
func (c *Controller) invokeTool(ctx context.Context, task models.AgentTask, toolName string, args map[string]any) (string, []record, error) {
	category, ok := c.catalog.CategoryOf(toolName)
	if !ok {
		category = models.CategoryGeneral
	}

	args = withToolDefaults(task.ToolDefaults[toolName], args)

	invocation := models.ToolInvocation{ToolName: toolName, Arguments: args, SessionID: task.Query.SessionID}
	cacheKey := invocation.CacheKey()

	raw, hit := c.cache.Get(task.Query.SessionID, cacheKey)
	c.metrics.RecordCacheLookup(hit)
	if !hit {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.PerToolTimeout)
		result, err := c.pool.CallTool(callCtx, string(category), toolName, args)
		cancel()
		if err != nil {
			c.metrics.RecordToolInvocation(toolName, "error")
			return "", nil, err
		}
		c.metrics.RecordToolInvocation(toolName, "ok")
		raw = result
		c.cache.Put(task.Query.SessionID, cacheKey, raw)
	}

	outputDataKey := "results"
	if c.catalog.OutputKeyOf != nil {
		if key, ok := c.catalog.OutputKeyOf(toolName); ok && key != "" {
			outputDataKey = key
		}
	}

	var parsed []genericRecord
	if err := c.catalog.ParseInto(raw, outputDataKey, &parsed); err != nil {
		// Tolerate envelopes that used a different output key or shape:
		// return an observation naming the raw payload length, with no
		// records, rather than failing the whole tool call.
		obs := truncate(fmt.Sprintf("tool %q returned an unparseable envelope, raw length %d bytes", toolName, len(raw)), c.cfg.ObservationByteCap)
		return obs, nil, nil
	}

	topK := parsed
	if len(topK) > c.cfg.ObservationTopK {
		topK = topK[:c.cfg.ObservationTopK]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d record(s) found.", len(parsed))
	recs := make([]record, 0, len(topK))
	for _, r := range topK {
		fmt.Fprintf(&b, " %s (%s, %s).", r.Title, r.Year, firstN(r.Snippet, 200))
		recs = append(recs, record{
			summary: r.Title,
			citation: &models.Citation{
				Kind:       models.CitationArticle,
				DOI:        r.DOI,
				PMID:       r.PMID,
				Title:      r.Title,
				Year:       r.Year,
				Journal:    r.Journal,
				URLPrimary: r.URL,
				Snippet:    firstN(r.Snippet, 200),
			},
		})
	}

	return truncate(b.String(), c.cfg.ObservationByteCap), recs, nil
}

// withToolDefaults layers an agent's per-tool default arguments (§4.6)
// under the LLM-supplied args for one call: a default fills a key the
// LLM left out, but never overrides a key the LLM did supply.
func withToolDefaults(defaults map[string]any, args map[string]any) map[string]any {
	if len(defaults) == 0 {
		return args
	}
	merged := make(map[string]any, len(defaults)+len(args))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range args {
		merged[k] = v
	}
	return merged
}

// genericRecord is the common shape every search/lookup tool's records
// are expected to carry; tools that omit a field simply leave it zero.
type genericRecord struct {
	Title   string `json:"title"`
	Year    string `json:"year"`
	Journal string `json:"journal"`
	DOI     string `json:"doi"`
	PMID    string `json:"pmid"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func buildPrompt(task models.AgentTask, trace []models.AgentStep, observation string) string {
	var b strings.Builder
	b.WriteString(task.Context)
	b.WriteString("\n\nQuery: ")
	b.WriteString(task.Query.Text)
	b.WriteString("\n\n")
	for _, step := range trace {
		fmt.Fprintf(&b, "Thought: %s\nAction: %s\nObservation: %s\n\n", step.Thought, step.Action.Kind, step.Observation)
	}
	fmt.Fprintf(&b, "Observation: %s\n\nRespond with exactly one Thought/Action step.", observation)
	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func citationsOf(collected []record) []models.Citation {
	out := make([]models.Citation, 0, len(collected))
	for _, r := range collected {
		if r.citation != nil {
			out = append(out, *r.citation)
		}
	}
	return out
}

// synthesizeOnExhaustion builds a conclusive prose answer from
// collected records when the loop runs out of iterations without an
// explicit Answer step. This is the contract that guarantees the
// caller always receives prose, never a raw tool dump.
func (c *Controller) synthesizeOnExhaustion(task models.AgentTask, collected []record, toolsInvoked []string) models.AgentResult {
	if len(collected) == 0 {
		return models.AgentResult{
			AgentName:        task.AgentName,
			Status:           models.StatusEmpty,
			FormattedSummary: "No results found for this query.",
			ToolsInvoked:     toolsInvoked,
		}
	}

	narrative := narrativeFrom(collected, c.cfg.ObservationTopK)
	return models.AgentResult{
		AgentName:        task.AgentName,
		Status:           models.StatusOK,
		FormattedSummary: narrative,
		Citations:        dedupeCitations(citationsOf(collected)),
		ToolsInvoked:     toolsInvoked,
	}
}

func narrativeFrom(collected []record, topN int) string {
	titles := make([]string, 0, len(collected))
	seen := make(map[string]bool)
	for _, r := range collected {
		if r.summary == "" || seen[r.summary] {
			continue
		}
		seen[r.summary] = true
		titles = append(titles, r.summary)
	}
	sort.Strings(titles)
	if len(titles) > topN {
		titles = titles[:topN]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant finding(s): ", len(collected))
	b.WriteString(strings.Join(titles, "; "))
	b.WriteString(".")
	return b.String()
}

// dedupeCitations removes exact-key duplicates, keeping the
// highest-precedence (lowest PrecedenceRank) record for each key.
func dedupeCitations(cites []models.Citation) []models.Citation {
	best := make(map[string]models.Citation)
	order := make([]string, 0, len(cites))
	for _, c := range cites {
		key := c.DedupeKey()
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = c
			continue
		}
		if c.PrecedenceRank() < existing.PrecedenceRank() {
			best[key] = c
		}
	}
	out := make([]models.Citation, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}
