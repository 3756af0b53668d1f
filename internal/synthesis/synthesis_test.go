package synthesis

import (
	"reflect"
	"testing"

	"github.com/galdaer/clinical-orchestrator/internal/models"
)

func priority() []string {
	return []string{"medical_literature_search", "clinical_research", "document_processor", "intake"}
}

func TestSynthesizePrefersPrimaryAgentByPriority(t *testing.T) {
	results := []models.AgentResult{
		{AgentName: "clinical_research", Status: models.StatusOK, FormattedSummary: "secondary summary"},
		{AgentName: "medical_literature_search", Status: models.StatusOK, FormattedSummary: "primary summary"},
	}
	resp := Synthesize(results, priority())
	if resp.FormattedSummary != "primary summary" {
		t.Errorf("expected primary-priority summary, got %q", resp.FormattedSummary)
	}
}

func TestSynthesizeFallsBackWhenPrimaryEmpty(t *testing.T) {
	results := []models.AgentResult{
		{AgentName: "medical_literature_search", Status: models.StatusEmpty, FormattedSummary: ""},
		{AgentName: "clinical_research", Status: models.StatusOK, FormattedSummary: "fallback summary"},
	}
	resp := Synthesize(results, priority())
	if resp.FormattedSummary != "fallback summary" {
		t.Errorf("expected fallback summary, got %q", resp.FormattedSummary)
	}
}

func TestSynthesizeAllAgentsFailedYieldsGenericMessage(t *testing.T) {
	results := []models.AgentResult{
		{AgentName: "medical_literature_search", Status: models.StatusError, FormattedSummary: ""},
		{AgentName: "clinical_research", Status: models.StatusTimeout, FormattedSummary: ""},
	}
	resp := Synthesize(results, priority())
	if resp.FormattedSummary == "" {
		t.Fatal("expected a non-empty fallback summary even when every agent failed")
	}
}

func TestSynthesizeDedupesAndMergesCitationFields(t *testing.T) {
	results := []models.AgentResult{
		{
			AgentName:        "medical_literature_search",
			Status:           models.StatusOK,
			FormattedSummary: "s",
			Citations: []models.Citation{
				{DOI: "10.1/abc", Title: "Metformin Review", Year: "2020"},
			},
		},
		{
			AgentName:        "clinical_research",
			Status:           models.StatusOK,
			FormattedSummary: "t",
			Citations: []models.Citation{
				{DOI: "10.1/abc", Journal: "JAMA", Snippet: "a much longer snippet of supporting text"},
			},
		},
	}
	resp := Synthesize(results, priority())
	if len(resp.Citations) != 1 {
		t.Fatalf("expected citations to merge into one, got %d", len(resp.Citations))
	}
	c := resp.Citations[0]
	if c.Journal != "JAMA" || c.Title != "Metformin Review" || c.Snippet == "" {
		t.Errorf("expected merged fields from both records, got %+v", c)
	}
}

func TestSynthesizeProvenanceRecordsPerAgentStatus(t *testing.T) {
	results := []models.AgentResult{
		{AgentName: "medical_literature_search", Status: models.StatusOK, FormattedSummary: "s"},
		{AgentName: "clinical_research", Status: models.StatusTimeout, FormattedSummary: ""},
	}
	resp := Synthesize(results, priority())
	want := map[string]models.AgentStatus{
		"medical_literature_search": models.StatusOK,
		"clinical_research":         models.StatusTimeout,
	}
	if !reflect.DeepEqual(resp.Provenance.PerAgentStatus, want) {
		t.Errorf("unexpected provenance, got %+v", resp.Provenance.PerAgentStatus)
	}
}

func TestSynthesizeIsIdempotentOnRepeatedCitations(t *testing.T) {
	results := []models.AgentResult{
		{
			AgentName:        "medical_literature_search",
			Status:           models.StatusOK,
			FormattedSummary: "s",
			Citations: []models.Citation{
				{DOI: "10.1/abc", Title: "A", Year: "2020"},
				{DOI: "10.1/abc", Title: "A", Year: "2020"},
			},
		},
	}
	first := Synthesize(results, priority())
	second := Synthesize(results, priority())
	if !reflect.DeepEqual(first.Citations, second.Citations) {
		t.Errorf("expected synthesis to be idempotent, got %+v vs %+v", first.Citations, second.Citations)
	}
	if len(first.Citations) != 1 {
		t.Fatalf("expected a single deduped citation, got %d", len(first.Citations))
	}
}
