package toolregistry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/galdaer/clinical-orchestrator/internal/models"
)

type fakeLister struct {
	raw []byte
	err error
}

func (f *fakeLister) ListTools(ctx context.Context, category string) ([]byte, error) {
	return f.raw, f.err
}

func TestRefreshPopulatesDescriptorsAndCategory(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"tools": []map[string]any{
			{"name": "pubmed_search", "description": "search", "inputSchema": map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []string{"query"},
			}},
		},
	})

	reg := New(&fakeLister{raw: raw}, nil)
	reg.Refresh(context.Background(), models.CategorySearch)

	names := reg.ListCategory(models.CategorySearch)
	if len(names) != 1 || names[0] != "pubmed_search" {
		t.Fatalf("expected [pubmed_search], got %v", names)
	}

	desc, ok := reg.Descriptor("pubmed_search")
	if !ok || desc.Category != models.CategorySearch {
		t.Fatalf("expected cached descriptor with category search, got %+v, ok=%v", desc, ok)
	}
	if desc.OutputDataKey != "articles" {
		t.Fatalf("expected output_data_key %q for pubmed_search, got %q", "articles", desc.OutputDataKey)
	}
}

func TestRefreshDefaultsOutputDataKeyForUnlistedTool(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"tools": []map[string]any{
			{"name": "some_future_tool", "description": "n/a"},
		},
	})

	reg := New(&fakeLister{raw: raw}, nil)
	reg.Refresh(context.Background(), models.CategoryGeneral)

	key, ok := reg.OutputKeyOf("some_future_tool")
	if !ok || key != "results" {
		t.Fatalf("expected default output_data_key %q, got %q, ok=%v", "results", key, ok)
	}
}

func TestOutputKeyOfUnknownTool(t *testing.T) {
	reg := New(&fakeLister{}, nil)
	if _, ok := reg.OutputKeyOf("never_registered"); ok {
		t.Fatalf("expected ok=false for a tool the registry has never cached")
	}
}

func TestRefreshSwallowsTransportFailure(t *testing.T) {
	reg := New(&fakeLister{err: context.DeadlineExceeded}, nil)
	reg.Refresh(context.Background(), models.CategoryClinical)

	if got := reg.ListCategory(models.CategoryClinical); len(got) != 0 {
		t.Fatalf("expected empty category after failed refresh, got %v", got)
	}
}

func TestValidateArgumentsRejectsMissingRequiredField(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"tools": []map[string]any{
			{"name": "pubmed_search", "inputSchema": map[string]any{
				"type":     "object",
				"required": []string{"query"},
			}},
		},
	})
	reg := New(&fakeLister{raw: raw}, nil)
	reg.Refresh(context.Background(), models.CategorySearch)

	if err := reg.ValidateArguments("pubmed_search", map[string]any{}); err == nil {
		t.Error("expected validation error for missing required field")
	}
	if err := reg.ValidateArguments("pubmed_search", map[string]any{"query": "aspirin"}); err != nil {
		t.Errorf("expected valid arguments to pass, got %v", err)
	}
}

func TestValidateArgumentsSkipsUnknownTool(t *testing.T) {
	reg := New(&fakeLister{}, nil)
	if err := reg.ValidateArguments("unknown_tool", map[string]any{"x": 1}); err != nil {
		t.Errorf("expected no error for tool with no cached schema, got %v", err)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	type record struct {
		Title string `json:"title"`
		DOI   string `json:"doi"`
	}
	records := []record{{Title: "A Study", DOI: "10.1/abc"}}

	raw, err := SerializeEnvelope("results", records)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	var got []record
	if err := ParseEnvelope(raw, "results", &got); err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(got) != 1 || got[0].Title != "A Study" || got[0].DOI != "10.1/abc" {
		t.Errorf("round-trip mismatch: got %+v", got)
	}
}

func TestParseEnvelopeMissingOutputKey(t *testing.T) {
	raw, _ := SerializeEnvelope("results", []int{1, 2})
	var target []int
	if err := ParseEnvelope(raw, "other_key", &target); err == nil {
		t.Error("expected error for missing output key")
	}
}
