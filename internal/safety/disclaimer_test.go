package safety

import "testing"

func TestDisclaimersAlwaysIncludesGeneralNotice(t *testing.T) {
	out := Disclaimers(DisclaimerParams{})
	if len(out) != 1 {
		t.Fatalf("expected exactly the general disclaimer, got %v", out)
	}
}

func TestDisclaimersEmergencyComesFirst(t *testing.T) {
	out := Disclaimers(DisclaimerParams{Urgency: SeverityCritical})
	if len(out) < 2 {
		t.Fatalf("expected emergency + general disclaimer, got %v", out)
	}
	if !containsSubstring(out[0], "emergency") {
		t.Errorf("expected emergency disclaimer first, got %q", out[0])
	}
}

func TestDisclaimersInteractionTypeAdditive(t *testing.T) {
	out := Disclaimers(DisclaimerParams{InteractionType: "drug_interaction"})
	found := false
	for _, d := range out {
		if containsSubstring(d, "interaction") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a drug interaction disclaimer in %v", out)
	}
}

func TestDisclaimersSpecialtyAdditive(t *testing.T) {
	out := Disclaimers(DisclaimerParams{Specialty: "oncology"})
	found := false
	for _, d := range out {
		if containsSubstring(d, "oncology") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a specialty disclaimer mentioning oncology, got %v", out)
	}
}
