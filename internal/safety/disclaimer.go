package safety

import "fmt"

// DisclaimerParams selects which disclaimer text to attach to a
// response.
type DisclaimerParams struct {
	Specialty       string // e.g. "cardiology", "" for general
	Urgency         EmergencySeverity
	InteractionType string // e.g. "drug_interaction", "diagnosis", ""
}

// Disclaimers builds the ordered set of disclaimer strings for a
// response. Emergency urgency always produces the emergency disclaimer
// first; specialty and interaction-type disclaimers are additive, never
// a substitute for it.
func Disclaimers(p DisclaimerParams) []string {
	var out []string

	if p.Urgency == SeverityCritical || p.Urgency == SeverityUrgent {
		out = append(out, "This may describe a medical emergency. Call emergency services or go to the nearest emergency room immediately; this system does not provide emergency medical care.")
	}

	out = append(out, "This information is for clinical reference only and does not constitute medical advice. Use clinical judgment and consult primary sources before acting on it.")

	if p.Specialty != "" {
		out = append(out, fmt.Sprintf("This response touches %s topics outside general practice; consider specialist consultation where appropriate.", p.Specialty))
	}

	switch p.InteractionType {
	case "drug_interaction":
		out = append(out, "Drug interaction data may be incomplete. Verify against the patient's full medication list and current prescribing information.")
	case "diagnosis":
		out = append(out, "This system does not diagnose. Findings here summarize literature and reference data only.")
	}

	return out
}
