// Package safety implements the orchestration core's gate: PHI
// detection, a medical-terminology allowlist, emergency-keyword
// detection, and disclaimer generation.
package safety

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

// PHIKind categorizes a detected span of protected health information.
type PHIKind string

const (
	PHIGovernmentID PHIKind = "government_id"
	PHIPhone        PHIKind = "phone"
	PHIEmail        PHIKind = "email"
	PHIMRN          PHIKind = "mrn"
	PHIDOB          PHIKind = "dob"
	PHIAddress      PHIKind = "address"
)

// Span marks one detected PHI occurrence in the source text.
type Span struct {
	Kind       PHIKind
	Start      int
	End        int
	RedactedAt string // sha256 hex of the matched text, never the text itself
}

// ScanResult is the outcome of scanning a piece of text for PHI.
type ScanResult struct {
	PHIFound  bool
	Spans     []Span
	SafeToLog bool
}

type phiPattern struct {
	kind PHIKind
	re   *regexp.Regexp
}

// corePatterns are always active; extendedPatterns are opt-in via
// safety.extended_phi config entries naming additional PHIKind values.
var corePatterns = []phiPattern{
	{PHIGovernmentID, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{PHIPhone, regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{PHIEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	{PHIMRN, regexp.MustCompile(`\b(?:MRN|mrn)[:#\s]?\d{5,10}\b`)},
	{PHIDOB, regexp.MustCompile(`\b(?:0[1-9]|1[0-2])/(?:0[1-9]|[12]\d|3[01])/(?:19|20)\d{2}\b`)},
	{PHIAddress, regexp.MustCompile(`\b\d{1,5}\s+\w+(\s\w+)*\s(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr)\b`)},
}

// medicalAllowlist holds clinical coding-system names that are
// safe-to-log vocabulary. The scanner checks whether a matched span is
// wholly contained in an allowlisted phrase before reporting it; none of
// the current entries contains text that a core pattern matches, so they
// suppress no core finding.
var medicalAllowlist = []string{
	"ICD-10", "ICD-9", "CPT code", "NDC code", "HCPCS",
}

// Scanner detects PHI spans in free text.
type Scanner struct {
	patterns []phiPattern
	mode     Mode
}

// Mode selects what happens once PHI is found.
type Mode string

const (
	ModeZeroTolerance Mode = "zero_tolerance"
	ModeRedact        Mode = "redact"
)

// NewScanner builds a Scanner with the core patterns plus any extended
// kinds named in extendedKinds (unknown names are ignored, never fatal).
func NewScanner(mode Mode, extendedKinds []string) *Scanner {
	patterns := make([]phiPattern, len(corePatterns))
	copy(patterns, corePatterns)

	for _, kind := range extendedKinds {
		if p, ok := extendedPatterns[PHIKind(kind)]; ok {
			patterns = append(patterns, p)
		}
	}

	return &Scanner{patterns: patterns, mode: mode}
}

// extendedPatterns are opt-in beyond the always-on core set.
var extendedPatterns = map[PHIKind]phiPattern{
	// Insurance/member ID: a letter prefix followed by 6-12 digits.
	PHIKind("insurance_id"): {PHIKind("insurance_id"), regexp.MustCompile(`\b[A-Z]{1,3}\d{6,12}\b`)},
}

// Scan inspects text and returns every PHI span found, never raising an
// error: unscannable or empty input simply reports no findings.
func (s *Scanner) Scan(text string) ScanResult {
	if text == "" {
		return ScanResult{SafeToLog: true}
	}

	var spans []Span
	for _, p := range s.patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			matched := text[loc[0]:loc[1]]
			if isAllowlisted(text, loc[0], loc[1]) {
				continue
			}
			spans = append(spans, Span{
				Kind:       p.kind,
				Start:      loc[0],
				End:        loc[1],
				RedactedAt: hashSpan(matched),
			})
		}
	}

	return ScanResult{
		PHIFound:  len(spans) > 0,
		Spans:     spans,
		SafeToLog: len(spans) == 0,
	}
}

// isAllowlisted reports whether the span [start,end) of text falls
// entirely inside an occurrence of any allowlisted phrase.
func isAllowlisted(text string, start, end int) bool {
	for _, term := range medicalAllowlist {
		offset := 0
		for {
			idx := strings.Index(text[offset:], term)
			if idx == -1 {
				break
			}
			termStart := offset + idx
			termEnd := termStart + len(term)
			if termStart <= start && end <= termEnd {
				return true
			}
			offset = termStart + 1
		}
	}
	return false
}

func hashSpan(matched string) string {
	sum := sha256.Sum256([]byte(matched))
	return hex.EncodeToString(sum[:])
}

// Redact returns text with every detected PHI span replaced by a
// fixed-width placeholder naming its kind, never the original
// characters or their length.
func (s *Scanner) Redact(text string) string {
	result := s.Scan(text)
	if !result.PHIFound {
		return text
	}

	// Spans come grouped by pattern, so order them by offset and merge
	// overlaps, then replace back-to-front so earlier byte offsets stay valid.
	spans := append([]Span(nil), result.Spans...)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	merged := spans[:0]
	for _, sp := range spans {
		if n := len(merged); n > 0 && sp.Start < merged[n-1].End {
			if sp.End > merged[n-1].End {
				merged[n-1].End = sp.End
			}
			continue
		}
		merged = append(merged, sp)
	}
	out := text
	for i := len(merged) - 1; i >= 0; i-- {
		sp := merged[i]
		out = out[:sp.Start] + "[REDACTED:" + string(sp.Kind) + "]" + out[sp.End:]
	}
	return out
}

// RejectOrRedact applies the configured Mode: zero_tolerance returns an
// error-worthy false in ok, redact returns the scrubbed text.
func (s *Scanner) RejectOrRedact(text string) (output string, ok bool) {
	result := s.Scan(text)
	if !result.PHIFound {
		return text, true
	}
	if s.mode == ModeZeroTolerance {
		return "", false
	}
	return s.Redact(text), true
}
