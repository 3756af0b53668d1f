package safety

import "strings"

// EmergencyCategory classifies the kind of emergency a query hints at.
type EmergencyCategory string

const (
	EmergencyCardiac        EmergencyCategory = "cardiac"
	EmergencyRespiratory    EmergencyCategory = "respiratory"
	EmergencyNeurological   EmergencyCategory = "neurological"
	EmergencyTrauma         EmergencyCategory = "trauma"
	EmergencyAnaphylactic   EmergencyCategory = "anaphylactic"
	EmergencyToxicological  EmergencyCategory = "toxicological"
)

// EmergencySeverity grades how urgently a detected emergency should be
// escalated.
type EmergencySeverity string

const (
	SeverityCritical EmergencySeverity = "critical"
	SeverityUrgent   EmergencySeverity = "urgent"
)

// EmergencyMatch is one triggered emergency rule.
type EmergencyMatch struct {
	Category EmergencyCategory
	Severity EmergencySeverity
	Keyword  string
}

// EmergencyResult is the outcome of scanning a query for emergency
// keywords.
type EmergencyResult struct {
	Detected bool
	Matches  []EmergencyMatch
}

type emergencyRule struct {
	category EmergencyCategory
	severity EmergencySeverity
	keywords []string
}

// emergencyRules is the fixed, case-insensitive substring table the
// detector evaluates against every query. Ordered roughly by how
// immediately life-threatening the category is.
var emergencyRules = []emergencyRule{
	{EmergencyCardiac, SeverityCritical, []string{
		"chest pain", "crushing chest", "heart attack", "cardiac arrest", "no pulse",
	}},
	{EmergencyRespiratory, SeverityCritical, []string{
		"can't breathe", "cannot breathe", "not breathing", "choking", "turning blue",
	}},
	{EmergencyNeurological, SeverityCritical, []string{
		"stroke", "face drooping", "slurred speech", "sudden confusion", "worst headache of my life", "seizure",
	}},
	{EmergencyTrauma, SeverityUrgent, []string{
		"severe bleeding", "compound fracture", "head injury", "unresponsive",
	}},
	{EmergencyAnaphylactic, SeverityCritical, []string{
		"anaphylaxis", "throat closing", "severe allergic reaction", "epipen",
	}},
	{EmergencyToxicological, SeverityUrgent, []string{
		"overdose", "poisoning", "ingested poison", "swallowed pills",
	}},
}

// DetectEmergency evaluates query against the fixed keyword table,
// case-insensitively, and returns every category that matched. A query
// matching more than one category reports all of them; the caller
// decides how to act on the most severe.
func DetectEmergency(query string) EmergencyResult {
	lower := strings.ToLower(query)

	var matches []EmergencyMatch
	for _, rule := range emergencyRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				matches = append(matches, EmergencyMatch{
					Category: rule.category,
					Severity: rule.severity,
					Keyword:  kw,
				})
			}
		}
	}

	return EmergencyResult{Detected: len(matches) > 0, Matches: matches}
}

// MostSevere returns the highest-priority match (critical over urgent,
// first-declared category wins ties), or false if none were found.
func (r EmergencyResult) MostSevere() (EmergencyMatch, bool) {
	if len(r.Matches) == 0 {
		return EmergencyMatch{}, false
	}
	best := r.Matches[0]
	for _, m := range r.Matches[1:] {
		if m.Severity == SeverityCritical && best.Severity != SeverityCritical {
			best = m
		}
	}
	return best, true
}
