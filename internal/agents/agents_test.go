package agents

import (
	"testing"
	"time"
)

func TestNewDefaultRegistryHasFourAgents(t *testing.T) {
	r := NewDefaultRegistry(45 * time.Second)
	names := r.Names()
	if len(names) != 4 {
		t.Fatalf("expected 4 default agents, got %d: %v", len(names), names)
	}

	for _, want := range []string{"medical_literature_search", "clinical_research", "intake", "document_processor"} {
		if _, ok := r.Get(want); !ok {
			t.Errorf("expected agent %q registered", want)
		}
	}
}

func TestDefaultAgentsForbidRawRecords(t *testing.T) {
	r := NewDefaultRegistry(time.Minute)
	for _, name := range r.Names() {
		def, _ := r.Get(name)
		if !def.PostProcessing.NeverRawRecords {
			t.Errorf("agent %q must forbid raw record passthrough", name)
		}
	}
}

func TestRegisterReplacesByName(t *testing.T) {
	r := NewRegistry()
	r.Register(Definition{Name: "a", SystemPrompt: "first"})
	r.Register(Definition{Name: "a", SystemPrompt: "second"})

	if len(r.Names()) != 1 {
		t.Fatalf("expected single registration slot for repeated name, got %v", r.Names())
	}
	def, _ := r.Get("a")
	if def.SystemPrompt != "second" {
		t.Errorf("expected latest registration to win, got %q", def.SystemPrompt)
	}
}

func TestMustGetPanicsOnUnknownAgent(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown agent")
		}
	}()
	NewRegistry().MustGet("does_not_exist")
}
