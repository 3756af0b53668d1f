package nerclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnalyzePassthroughShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"entities":[{"text":"metformin","label":"DRUG","start":0,"end":9}]}`))
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL})
	result, err := c.Analyze(context.Background(), "metformin 500mg", false)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(result.Entities) != 1 || result.Entities[0].Label != "DRUG" {
		t.Errorf("unexpected entities: %+v", result.Entities)
	}
}

func TestAnalyzeEnrichedShapeFlattensEntities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"entities_by_type": {"DRUG": [{"text":"metformin","label":"DRUG"}], "DOSE": [{"text":"500mg","label":"DOSE"}]},
			"high_priority_entities": [{"text":"metformin","label":"DRUG"}]
		}`))
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL})
	result, err := c.Analyze(context.Background(), "metformin 500mg", true)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(result.Entities) != 2 {
		t.Errorf("expected flattened entities from both groups, got %+v", result.Entities)
	}
	if len(result.HighPriorityEntities) != 1 {
		t.Errorf("expected 1 high priority entity, got %+v", result.HighPriorityEntities)
	}
}

func TestAnalyzeNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL})
	_, err := c.Analyze(context.Background(), "x", false)
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
