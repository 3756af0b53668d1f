package reactloop

import (
	"testing"

	"github.com/galdaer/clinical-orchestrator/internal/models"
)

func TestParseStepCallTool(t *testing.T) {
	raw := `Thought: I should search the literature first.
Action: call_tool
Tool: pubmed_search
Arguments: {"query": "metformin lactic acidosis", "max_results": 5}`

	step, err := ParseStep(raw)
	if err != nil {
		t.Fatalf("ParseStep: %v", err)
	}
	if step.Thought != "I should search the literature first." {
		t.Errorf("unexpected thought: %q", step.Thought)
	}
	if step.Action.Kind != models.ActionCallTool {
		t.Fatalf("expected call_tool action, got %s", step.Action.Kind)
	}
	if step.Action.ToolName != "pubmed_search" {
		t.Errorf("unexpected tool name: %q", step.Action.ToolName)
	}
	if step.Action.Arguments["query"] != "metformin lactic acidosis" {
		t.Errorf("unexpected arguments: %+v", step.Action.Arguments)
	}
}

func TestParseStepAnswer(t *testing.T) {
	raw := `Thought: I have enough information now.
Action: answer
Answer: Metformin is generally safe but carries a rare lactic acidosis risk in renal impairment.`

	step, err := ParseStep(raw)
	if err != nil {
		t.Fatalf("ParseStep: %v", err)
	}
	if step.Action.Kind != models.ActionAnswer {
		t.Fatalf("expected answer action, got %s", step.Action.Kind)
	}
	if step.Action.AnswerText == "" {
		t.Error("expected non-empty answer text")
	}
}

func TestParseStepToleratesPreamble(t *testing.T) {
	raw := `Sure, here is my reasoning.
Thought: Checking drug interactions.
Action: call_tool
Tool: drug_interaction_check
Arguments: {"drug_a": "warfarin", "drug_b": "aspirin"}
Some trailing commentary the model shouldn't have added.`

	step, err := ParseStep(raw)
	if err != nil {
		t.Fatalf("ParseStep: %v", err)
	}
	if step.Action.ToolName != "drug_interaction_check" {
		t.Errorf("expected tool extracted despite trailing text, got %q", step.Action.ToolName)
	}
}

func TestParseStepCallToolWithNoArguments(t *testing.T) {
	raw := `Thought: none needed
Action: call_tool
Tool: list_guidelines`

	step, err := ParseStep(raw)
	if err != nil {
		t.Fatalf("ParseStep: %v", err)
	}
	if len(step.Action.Arguments) != 0 {
		t.Errorf("expected empty arguments, got %+v", step.Action.Arguments)
	}
}

func TestParseStepMissingActionIsError(t *testing.T) {
	_, err := ParseStep("Thought: just thinking out loud with no action line.")
	if err == nil {
		t.Fatal("expected error when no Action is present")
	}
}

func TestParseStepCallToolMissingToolNameIsError(t *testing.T) {
	_, err := ParseStep("Action: call_tool\nArguments: {}")
	if err == nil {
		t.Fatal("expected error when call_tool has no Tool name")
	}
}

func TestParseStepMalformedArgumentsIsError(t *testing.T) {
	raw := `Action: call_tool
Tool: pubmed_search
Arguments: {not valid json}`
	_, err := ParseStep(raw)
	if err == nil {
		t.Fatal("expected error for malformed Arguments JSON")
	}
}
