// Package synthesis implements C8: selecting a primary summary from the
// agents consulted, deduplicating and merging citations across all of
// them, and assembling the provenance block attached to the final
// Response.
package synthesis

import (
	"github.com/galdaer/clinical-orchestrator/internal/models"
)

// Synthesize merges an ordered list of AgentResults into one Response.
// agentPriority determines which agent's FormattedSummary becomes the
// primary summary; if the agent at the head of the list produced no
// result or an empty summary, the next agent in the priority list with a
// non-empty summary is used instead. If every agent failed, a generic
// "services temporarily limited" message is emitted instead.
func Synthesize(results []models.AgentResult, agentPriority []string) models.Response {
	byAgent := make(map[string]models.AgentResult, len(results))
	for _, r := range results {
		byAgent[r.AgentName] = r
	}

	summary := primarySummary(byAgent, agentPriority, results)

	var allCitations []models.Citation
	var agentsConsulted []string
	var toolsInvoked []string
	perAgentStatus := make(map[string]models.AgentStatus, len(results))

	for _, r := range results {
		agentsConsulted = append(agentsConsulted, r.AgentName)
		perAgentStatus[r.AgentName] = r.Status
		toolsInvoked = append(toolsInvoked, r.ToolsInvoked...)
		allCitations = append(allCitations, r.Citations...)
	}

	return models.Response{
		FormattedSummary: summary,
		Citations:        dedupeAndMerge(allCitations),
		AgentsConsulted:  agentsConsulted,
		ToolsInvoked:      toolsInvoked,
		Provenance: models.Provenance{
			PerAgentStatus: perAgentStatus,
		},
	}
}

func primarySummary(byAgent map[string]models.AgentResult, agentPriority []string, results []models.AgentResult) string {
	for _, name := range agentPriority {
		r, ok := byAgent[name]
		if ok && r.FormattedSummary != "" {
			return r.FormattedSummary
		}
	}
	// Priority list exhausted without a hit: fall back to the first
	// non-empty summary in the original ordering.
	for _, r := range results {
		if r.FormattedSummary != "" {
			return r.FormattedSummary
		}
	}
	return "Services are temporarily limited; no agent was able to produce a summary for this request."
}

// dedupeAndMerge collapses citations sharing a DedupeKey, keeping the
// union of each field's most specific non-empty value rather than simply
// discarding the lower-precedence duplicate (spec.md §4.8: "when
// duplicates differ in fields, merge by taking the most specific
// non-empty value per field").
func dedupeAndMerge(cites []models.Citation) []models.Citation {
	merged := make(map[string]models.Citation)
	order := make([]string, 0, len(cites))
	for _, c := range cites {
		key := c.DedupeKey()
		existing, ok := merged[key]
		if !ok {
			order = append(order, key)
			merged[key] = c
			continue
		}
		merged[key] = mergeCitation(existing, c)
	}
	out := make([]models.Citation, 0, len(order))
	for _, k := range order {
		out = append(out, merged[k])
	}
	return out
}

// mergeCitation combines two Citation records referring to the same
// source, preferring a's field values and falling back to b's wherever
// a's field is empty, except for the precedence-bearing identifier
// fields where the higher-precedence (lower rank) record's identifiers win.
func mergeCitation(a, b models.Citation) models.Citation {
	primary, secondary := a, b
	if b.PrecedenceRank() < a.PrecedenceRank() {
		primary, secondary = b, a
	}

	out := primary
	out.DOI = firstNonEmpty(primary.DOI, secondary.DOI)
	out.PMID = firstNonEmpty(primary.PMID, secondary.PMID)
	out.NCTID = firstNonEmpty(primary.NCTID, secondary.NCTID)
	out.DrugID = firstNonEmpty(primary.DrugID, secondary.DrugID)
	out.Title = firstNonEmpty(primary.Title, secondary.Title)
	out.Year = firstNonEmpty(primary.Year, secondary.Year)
	out.Journal = firstNonEmpty(primary.Journal, secondary.Journal)
	out.URLPrimary = firstNonEmpty(primary.URLPrimary, secondary.URLPrimary)
	out.URLFallback = firstNonEmpty(primary.URLFallback, secondary.URLFallback)
	out.Snippet = longerOf(primary.Snippet, secondary.Snippet)
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func longerOf(a, b string) string {
	if len(a) >= len(b) {
		return a
	}
	return b
}
