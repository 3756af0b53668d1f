// Package orchestrator implements query admission: the safety gate, agent
// selection, parallel/sequential dispatch, and failure isolation across
// concurrently running agent tasks. It is the component every query passes
// through before C5/C6 are ever invoked, and the one that hands the
// collected AgentResults to C8 for synthesis.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/galdaer/clinical-orchestrator/internal/agents"
	"github.com/galdaer/clinical-orchestrator/internal/config"
	"github.com/galdaer/clinical-orchestrator/internal/llmclient"
	"github.com/galdaer/clinical-orchestrator/internal/models"
	"github.com/galdaer/clinical-orchestrator/internal/reactloop"
	"github.com/galdaer/clinical-orchestrator/internal/safety"
	"github.com/galdaer/clinical-orchestrator/internal/synthesis"
)

var tracer = otel.Tracer("orchestrator")

// AgentRunner is the subset of *reactloop.Controller the orchestrator needs.
type AgentRunner interface {
	Run(ctx context.Context, task models.AgentTask) models.AgentResult
}

// Completer is the subset of *llmclient.Client the orchestrator needs for
// agent selection prompts.
type Completer interface {
	Complete(ctx context.Context, prompt string, params llmclient.Params) (string, error)
}

// AuditSink receives the orchestrator's structured events: emergency
// detection, PHI rejection, each agent selection, and the final response.
// Individual tool calls are not reported to it. Satisfied by *audit.Logger.
type AuditSink interface {
	Event(kind, sessionID, detail string, fields map[string]any)
}

// MetricsRecorder receives the Prometheus counters this package can report;
// satisfied by *audit.Metrics. Optional: SetMetrics defaults to a noop so
// callers that don't care about metrics don't have to supply one.
type MetricsRecorder interface {
	RecordAgentInvocation(agent, status string)
	RecordEmergencyDetection(category string)
	RecordPHIDetection(kind string)
}

type noopMetrics struct{}

func (noopMetrics) RecordAgentInvocation(agent, status string) {}
func (noopMetrics) RecordEmergencyDetection(category string)   {}
func (noopMetrics) RecordPHIDetection(kind string)              {}

// Orchestrator admits a Query, runs the safety gate, selects and dispatches
// agents, and returns the synthesized Response.
type Orchestrator struct {
	cfg      *config.Config
	llm      Completer
	runner   AgentRunner
	scanner  *safety.Scanner
	registry *agents.Registry
	audit    AuditSink
	metrics  MetricsRecorder
	logger   *slog.Logger
}

// New constructs an Orchestrator. audit may be nil, in which case events are
// silently dropped (useful for tests that don't care about the audit trail).
func New(cfg *config.Config, llm Completer, runner AgentRunner, scanner *safety.Scanner, registry *agents.Registry, audit AuditSink, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if audit == nil {
		audit = noopAudit{}
	}
	return &Orchestrator{
		cfg:      cfg,
		llm:      llm,
		runner:   runner,
		scanner:  scanner,
		registry: registry,
		audit:    audit,
		metrics:  noopMetrics{},
		logger:   logger.With("component", "orchestrator"),
	}
}

// SetMetrics installs the Prometheus counter sink. Safe to skip; the
// orchestrator reports nothing but still functions if never called.
func (o *Orchestrator) SetMetrics(m MetricsRecorder) {
	if m == nil {
		m = noopMetrics{}
	}
	o.metrics = m
}

type noopAudit struct{}

func (noopAudit) Event(kind, sessionID, detail string, fields map[string]any) {}

// Handle admits one Query and returns the final Response. Handle never
// panics: every failure mode (safety rejection, selection timeout, agent
// timeout or error) produces a well-formed Response rather than propagating
// an exception to the caller.
func (o *Orchestrator) Handle(ctx context.Context, query models.Query) models.Response {
	requestID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "orchestrator.handle")
	span.SetAttributes(attribute.String("request_id", requestID), attribute.String("session_id", query.SessionID))
	defer span.End()

	scan := o.scanner.Scan(query.Text)

	if emergency := safety.DetectEmergency(query.Text); emergency.Detected {
		match, _ := emergency.MostSevere()
		o.metrics.RecordEmergencyDetection(string(match.Category))
		o.audit.Event("emergency_detected", query.SessionID, string(match.Category), map[string]any{
			"severity": string(match.Severity),
		})
		return o.emergencyResponse(match)
	}

	sanitizedText, ok := o.scanner.RejectOrRedact(query.Text)
	if !ok {
		for _, s := range scan.Spans {
			o.metrics.RecordPHIDetection(string(s.Kind))
		}
		o.audit.Event("phi_rejected", query.SessionID, "", nil)
		return models.Response{
			FormattedSummary: "This request appears to contain identifying information that cannot be processed under the current privacy policy. Please remove any personal identifiers and try again.",
			Disclaimers:      safety.Disclaimers(safety.DisclaimerParams{}),
		}
	}

	selected, rationale := o.selectAgents(ctx, query, sanitizedText)
	o.audit.Event("agent_selected", query.SessionID, rationale, map[string]any{"agents": selected})

	results := o.dispatch(ctx, query, selected)

	response := synthesis.Synthesize(results, o.cfg.Synthesis.AgentPriority)
	response.Provenance.SelectionRationale = rationale

	response.Disclaimers = append(response.Disclaimers, o.disclaimersFor(query, results)...)

	o.audit.Event("final_response", query.SessionID, response.FormattedSummary, map[string]any{
		"agents_consulted": response.AgentsConsulted,
		"tools_invoked":    response.ToolsInvoked,
	})

	return response
}

func (o *Orchestrator) emergencyResponse(match safety.EmergencyMatch) models.Response {
	summary := fmt.Sprintf(
		"This may describe a medical emergency (%s). Call your local emergency number or go to the nearest emergency department immediately. This system does not provide emergency medical care.",
		match.Category,
	)
	return models.Response{
		FormattedSummary: summary,
		Disclaimers:       safety.Disclaimers(safety.DisclaimerParams{Urgency: match.Severity}),
	}
}

// selectAgents builds a selection prompt, asks the LLM for 1-3 agent names,
// and arbitrates the result against routing.always_run per the union-then-
// trim policy (spec.md §9 Open Question 1).
func (o *Orchestrator) selectAgents(ctx context.Context, query models.Query, sanitizedText string) ([]string, string) {
	selCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Router())
	defer cancel()

	prompt := buildSelectionPrompt(sanitizedText, o.registry.Names())
	raw, err := o.llm.Complete(selCtx, prompt, llmclient.Params{MaxTokens: 64})

	var picked []string
	rationale := "llm selection"
	if err != nil || selCtx.Err() != nil {
		rationale = "selection timed out or failed; using fallback"
	} else {
		picked = parseSelection(raw, o.registry)
	}

	if len(picked) == 0 {
		if o.cfg.Selection.EnableFallback || o.cfg.Selection.FallbackAgent != "" {
			picked = []string{o.cfg.Selection.FallbackAgent}
			if rationale == "llm selection" {
				rationale = "empty selection; using fallback"
			}
		}
	}

	final := arbitrate(picked, o.cfg.Routing.AlwaysRun, o.cfg.Routing.MaxConcurrentAgents)
	return final, rationale
}

func buildSelectionPrompt(queryText string, available []string) string {
	var b strings.Builder
	b.WriteString("Given the following query, choose 1 to 3 of the available agents best suited to answer it. Respond with one agent name per line, nothing else.\n\n")
	fmt.Fprintf(&b, "Query: %s\n\nAvailable agents:\n", queryText)
	for _, name := range available {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return b.String()
}

func parseSelection(raw string, registry *agents.Registry) []string {
	lines := strings.Split(raw, "\n")
	seen := make(map[string]bool, len(lines))
	var out []string
	for _, line := range lines {
		name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		if _, ok := registry.Get(name); !ok {
			continue
		}
		seen[name] = true
		out = append(out, name)
		if len(out) == 3 {
			break
		}
	}
	return out
}

// arbitrate unions llmSelected with always_run agents (always_run takes
// priority on trim) and caps the result at maxConcurrent.
func arbitrate(llmSelected []string, alwaysRun map[string]bool, maxConcurrent int) []string {
	var always []string
	for name, on := range alwaysRun {
		if on {
			always = append(always, name)
		}
	}
	sort.Strings(always)

	seen := make(map[string]bool, len(always)+len(llmSelected))
	union := make([]string, 0, len(always)+len(llmSelected))
	for _, name := range always {
		if !seen[name] {
			seen[name] = true
			union = append(union, name)
		}
	}
	for _, name := range llmSelected {
		if !seen[name] {
			seen[name] = true
			union = append(union, name)
		}
	}

	if maxConcurrent > 0 && len(union) > maxConcurrent {
		union = union[:maxConcurrent]
	}
	return union
}

// dispatch runs one AgentTask per selected agent, concurrently if
// routing.allow_parallel_helpers is set, else sequentially. A task that
// times out or errors never clears another task's successful results.
func (o *Orchestrator) dispatch(ctx context.Context, query models.Query, selected []string) []models.AgentResult {
	tasks := make([]models.AgentTask, 0, len(selected))
	for _, name := range selected {
		def, ok := o.registry.Get(name)
		if !ok {
			continue
		}
		deadline := def.Deadline
		if deadline <= 0 {
			deadline = o.cfg.Timeouts.PerAgentDefault()
		}
		if hardCap := o.cfg.Timeouts.PerAgentHardCap(); hardCap > 0 && deadline > hardCap {
			deadline = hardCap
		}
		tasks = append(tasks, models.AgentTask{
			AgentName:     name,
			Query:         query,
			Context:       def.SystemPrompt,
			Deadline:      time.Now().Add(deadline),
			MaxIterations: 8,
			AllowedTools:  def.AllowedTools,
			ToolDefaults:  def.ToolDefaults,
		})
	}

	if o.cfg.Routing.AllowParallelHelpers {
		return o.runParallel(ctx, tasks)
	}
	return o.runSequential(ctx, tasks)
}

func (o *Orchestrator) runParallel(ctx context.Context, tasks []models.AgentTask) []models.AgentResult {
	results := make([]models.AgentResult, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task models.AgentTask) {
			defer wg.Done()
			results[i] = o.runOne(ctx, task)
		}(i, task)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) runSequential(ctx context.Context, tasks []models.AgentTask) []models.AgentResult {
	results := make([]models.AgentResult, 0, len(tasks))
	for _, task := range tasks {
		results = append(results, o.runOne(ctx, task))
	}
	return results
}

// runOne executes a single agent task with panic isolation: one agent's
// failure must never take down the others' already-collected results.
func (o *Orchestrator) runOne(ctx context.Context, task models.AgentTask) (result models.AgentResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("agent task panicked", "agent", task.AgentName, "recovered", r)
			result = models.AgentResult{
				AgentName:        task.AgentName,
				Status:           models.StatusError,
				FormattedSummary: fmt.Sprintf("%s encountered an internal error and could not complete.", task.AgentName),
				Error:            "internal error",
			}
		}
		o.metrics.RecordAgentInvocation(task.AgentName, string(result.Status))
	}()
	result = o.runner.Run(ctx, task)
	return result
}

// disclaimersFor always returns at least the general disclaimer: a
// query that reached agent dispatch is medical content regardless of
// whether any agent actually succeeded (§8), so an all-failed result
// set still needs one.
func (o *Orchestrator) disclaimersFor(query models.Query, results []models.AgentResult) []string {
	return safety.Disclaimers(safety.DisclaimerParams{})
}
