package moderation

// Combined-score thresholds used by the aggregator. All comparisons are
// strict: a combined score of exactly 80 is not critical on its own.
const (
	CriticalScoreThreshold = 80
	HighScoreThreshold     = 60
	MediumScoreThreshold   = 30
)

// Suggested follow-up actions attached to a recommendation.
const (
	SuggestBlockContent     = "block_content"
	SuggestManualReview     = "manual_review"
	SuggestRedactProfanity  = "redact_profanity"
	SuggestStripContactInfo = "strip_contact_info"
)

// Recommendation reasons, one per aggregation rule.
const (
	reasonCritical = "content exceeds the rejection threshold"
	reasonHigh     = "high risk content needs moderator review"
	reasonMedium   = "possible policy violation needs moderator review"
	reasonLow      = "no significant policy violations detected"
)

// contactIndicators are the spam indicators that expose contact details.
var contactIndicators = map[string]bool{
	IndicatorPhone:        true,
	IndicatorEmail:        true,
	IndicatorURL:          true,
	IndicatorMessagingApp: true,
}

// Aggregate combines both detector results into one verdict. Rules are
// evaluated in priority order and the first match wins.
func Aggregate(p ProfanityResult, s SpamResult) ContentAnalysis {
	a := ContentAnalysis{
		Profanity:     p,
		Spam:          s,
		CombinedScore: p.RiskScore + s.RiskScore,
	}

	var reason string
	switch {
	case p.Severity == RiskCritical || a.CombinedScore > CriticalScoreThreshold:
		a.OverallRisk = RiskCritical
		a.ShouldReject = true
		reason = reasonCritical
	case p.Severity == RiskHigh || a.CombinedScore > HighScoreThreshold:
		a.OverallRisk = RiskHigh
		a.ShouldFlag = true
		reason = reasonHigh
	case p.Severity == RiskMedium || a.CombinedScore > MediumScoreThreshold:
		a.OverallRisk = RiskMedium
		a.ShouldFlag = true
		reason = reasonMedium
	default:
		a.OverallRisk = RiskLow
		reason = reasonLow
	}

	a.Recommendations = Recommendation{
		Action:           recommendedAction(a),
		Reason:           reason,
		Confidence:       confidenceFor(a.CombinedScore),
		SuggestedActions: suggestedActions(a),
	}
	return a
}

func recommendedAction(a ContentAnalysis) Action {
	switch {
	case a.ShouldReject:
		return ActionReject
	case a.ShouldFlag:
		return ActionReview
	default:
		return ActionApprove
	}
}

func confidenceFor(combined int) Confidence {
	switch {
	case combined > HighScoreThreshold:
		return ConfidenceHigh
	case combined > MediumScoreThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func suggestedActions(a ContentAnalysis) []string {
	out := []string{}
	switch {
	case a.ShouldReject:
		out = append(out, SuggestBlockContent)
	case a.ShouldFlag:
		out = append(out, SuggestManualReview)
	}
	if a.Profanity.IsViolation {
		out = append(out, SuggestRedactProfanity)
	}
	for _, d := range a.Spam.AnalysisDetails {
		if contactIndicators[d.Type] {
			out = append(out, SuggestStripContactInfo)
			break
		}
	}
	return out
}
