package moderation

import "time"

// Report is the flat audit record built from a ContentAnalysis. It is what
// callers persist next to the moderation decision.
type Report struct {
	Summary         ReportSummary        `json:"summary"`
	Profanity       ProfanityReport      `json:"profanity"`
	Spam            SpamReport           `json:"spam"`
	Recommendations RecommendationReport `json:"recommendations"`
	Metadata        ReportMetadata       `json:"metadata"`
}

type ReportSummary struct {
	OverallRisk RiskLevel  `json:"overall_risk"`
	Action      Action     `json:"action"`
	Confidence  Confidence `json:"confidence"`
	TotalScore  int        `json:"total_score"`
}

type ProfanityReport struct {
	Detected bool      `json:"detected"`
	Severity RiskLevel `json:"severity"`
	Terms    []string  `json:"terms"`
	Count    int       `json:"count"`
	Score    int       `json:"score"`
}

type SpamReport struct {
	Detected   bool      `json:"detected"`
	Level      RiskLevel `json:"level"`
	Score      int       `json:"score"`
	Indicators []string  `json:"indicators"`
}

type RecommendationReport struct {
	Reason           string   `json:"reason"`
	SuggestedActions []string `json:"suggested_actions"`
}

type ReportMetadata struct {
	AnalyzedAt    time.Time   `json:"analyzed_at"`
	ContentLength int         `json:"content_length"`
	Kind          ContentKind `json:"kind,omitempty"`
}

// BuildReport packages an analysis for audit logging. The timestamp comes
// from the caller so the engine never reads the clock.
func BuildReport(a ContentAnalysis, at time.Time) Report {
	return Report{
		Summary: ReportSummary{
			OverallRisk: a.OverallRisk,
			Action:      a.Recommendations.Action,
			Confidence:  a.Recommendations.Confidence,
			TotalScore:  a.CombinedScore,
		},
		Profanity: ProfanityReport{
			Detected: a.Profanity.IsViolation,
			Severity: a.Profanity.Severity,
			Terms:    append([]string{}, a.Profanity.ViolatedTerms...),
			Count:    a.Profanity.TotalViolations,
			Score:    a.Profanity.RiskScore,
		},
		Spam: SpamReport{
			Detected:   a.Spam.IsSpam,
			Level:      a.Spam.SpamLevel,
			Score:      a.Spam.RiskScore,
			Indicators: append([]string{}, a.Spam.Indicators...),
		},
		Recommendations: RecommendationReport{
			Reason:           a.Recommendations.Reason,
			SuggestedActions: append([]string{}, a.Recommendations.SuggestedActions...),
		},
		Metadata: ReportMetadata{
			AnalyzedAt:    at.UTC(),
			ContentLength: a.ContentLength,
			Kind:          a.Kind,
		},
	}
}
