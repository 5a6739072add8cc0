package moderation

import (
	"strings"
	"unicode/utf8"
)

// Profanity risk scores per severity tier.
const (
	ProfanityScoreNone     = 0
	ProfanityScoreMedium   = 50
	ProfanityScoreHigh     = 80
	ProfanityScoreCritical = 100
)

// Violation counts at which severity escalates.
const (
	highSeverityViolations     = 2
	criticalSeverityViolations = 4
)

// ScanProfanity looks for the normalized form of every banned term as a
// plain substring of the normalized text and reports the configured
// spelling. A term is recorded once, at its first offset, no matter how
// often it repeats. original is the text before normalization and is only
// used to cut highlight excerpts.
func ScanProfanity(normalized, original string, terms []BannedTerm) ProfanityResult {
	res := ProfanityResult{
		ViolatedTerms:      []string{},
		ViolationPositions: []TermPosition{},
	}

	for _, term := range terms {
		if term.Normalized == "" {
			continue
		}
		idx := strings.Index(normalized, term.Normalized)
		if idx < 0 {
			continue
		}
		offset := utf8.RuneCountInString(normalized[:idx])
		res.ViolatedTerms = append(res.ViolatedTerms, term.Term)
		res.ViolationPositions = append(res.ViolationPositions, TermPosition{
			Term:    term.Term,
			Offset:  offset,
			Excerpt: runeSlice(original, offset, offset+utf8.RuneCountInString(term.Normalized)),
		})
	}

	res.TotalViolations = len(res.ViolatedTerms)
	res.IsViolation = res.TotalViolations > 0
	res.Severity, res.RiskScore = profanitySeverity(res.TotalViolations)
	return res
}

// profanitySeverity maps a violation count to its tier and score.
func profanitySeverity(violations int) (RiskLevel, int) {
	switch {
	case violations >= criticalSeverityViolations:
		return RiskCritical, ProfanityScoreCritical
	case violations >= highSeverityViolations:
		return RiskHigh, ProfanityScoreHigh
	case violations > 0:
		return RiskMedium, ProfanityScoreMedium
	default:
		return RiskLow, ProfanityScoreNone
	}
}

// runeSlice returns the runes of s in [from, to), clamped to the string.
func runeSlice(s string, from, to int) string {
	if from < 0 {
		from = 0
	}
	start, end := -1, len(s)
	i := 0
	for pos := range s {
		if i == from {
			start = pos
		}
		if i == to {
			end = pos
			break
		}
		i++
	}
	if start < 0 {
		return ""
	}
	return s[start:end]
}
