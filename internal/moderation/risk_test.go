package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func profanityWith(violations int) ProfanityResult {
	sev, score := profanitySeverity(violations)
	return ProfanityResult{
		IsViolation:     violations > 0,
		Severity:        sev,
		RiskScore:       score,
		TotalViolations: violations,
	}
}

func spamWith(score int, types ...string) SpamResult {
	s := SpamResult{RiskScore: score}
	for _, typ := range types {
		s.AnalysisDetails = append(s.AnalysisDetails, SpamDetail{Type: typ, MatchCount: 1})
	}
	return s
}

func TestAggregate_Tiers(t *testing.T) {
	tests := []struct {
		name       string
		violations int
		spam       int
		risk       RiskLevel
		reject     bool
		flag       bool
		action     Action
		confidence Confidence
	}{
		{"clean", 0, 0, RiskLow, false, false, ActionApprove, ConfidenceLow},
		{"spam at medium boundary", 0, 30, RiskLow, false, false, ActionApprove, ConfidenceLow},
		{"spam above medium", 0, 31, RiskMedium, false, true, ActionReview, ConfidenceMedium},
		{"spam at high boundary", 0, 60, RiskMedium, false, true, ActionReview, ConfidenceMedium},
		{"spam above high", 0, 61, RiskHigh, false, true, ActionReview, ConfidenceHigh},
		{"spam at critical boundary", 0, 80, RiskHigh, false, true, ActionReview, ConfidenceHigh},
		{"spam above critical", 0, 81, RiskCritical, true, false, ActionReject, ConfidenceHigh},
		{"one term", 1, 0, RiskMedium, false, true, ActionReview, ConfidenceMedium},
		{"one term and short", 1, 15, RiskHigh, false, true, ActionReview, ConfidenceHigh},
		{"two terms", 2, 0, RiskHigh, false, true, ActionReview, ConfidenceHigh},
		{"two terms and a little spam", 2, 1, RiskCritical, true, false, ActionReject, ConfidenceHigh},
		{"four terms", 4, 0, RiskCritical, true, false, ActionReject, ConfidenceHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Aggregate(profanityWith(tt.violations), spamWith(tt.spam))
			assert.Equal(t, tt.risk, a.OverallRisk)
			assert.Equal(t, tt.reject, a.ShouldReject)
			assert.Equal(t, tt.flag, a.ShouldFlag)
			assert.False(t, a.ShouldReject && a.ShouldFlag)
			assert.Equal(t, tt.action, a.Recommendations.Action)
			assert.Equal(t, tt.confidence, a.Recommendations.Confidence)
		})
	}
}

func TestAggregate_CombinedScore(t *testing.T) {
	a := Aggregate(profanityWith(1), spamWith(15))
	assert.Equal(t, 65, a.CombinedScore)
	assert.Equal(t, reasonHigh, a.Recommendations.Reason)
}

func TestAggregate_Reasons(t *testing.T) {
	assert.Equal(t, reasonLow, Aggregate(profanityWith(0), spamWith(0)).Recommendations.Reason)
	assert.Equal(t, reasonMedium, Aggregate(profanityWith(1), spamWith(0)).Recommendations.Reason)
	assert.Equal(t, reasonHigh, Aggregate(profanityWith(2), spamWith(0)).Recommendations.Reason)
	assert.Equal(t, reasonCritical, Aggregate(profanityWith(4), spamWith(0)).Recommendations.Reason)
}

func TestAggregate_SuggestedActions(t *testing.T) {
	tests := []struct {
		name       string
		violations int
		spam       SpamResult
		want       []string
	}{
		{"clean", 0, spamWith(0), []string{}},
		{"contact details only", 0, spamWith(25, IndicatorPhone, IndicatorEmail),
			[]string{SuggestStripContactInfo}},
		{"flagged profanity", 1, spamWith(0),
			[]string{SuggestManualReview, SuggestRedactProfanity}},
		{"rejected with link", 4, spamWith(20, IndicatorURL),
			[]string{SuggestBlockContent, SuggestRedactProfanity, SuggestStripContactInfo}},
		{"non-contact indicators", 0, spamWith(13, IndicatorSpecialChars, IndicatorRepeatedChars), []string{}},
		{"messaging app", 0, spamWith(12, IndicatorMessagingApp), []string{SuggestStripContactInfo}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Aggregate(profanityWith(tt.violations), tt.spam)
			assert.Equal(t, tt.want, a.Recommendations.SuggestedActions)
		})
	}
}

func TestAggregate_MonotonicInSpamScore(t *testing.T) {
	p := profanityWith(0)
	prev := Aggregate(p, spamWith(0))
	for score := 1; score <= 120; score++ {
		next := Aggregate(p, spamWith(score))
		assert.GreaterOrEqual(t, next.OverallRisk.Rank(), prev.OverallRisk.Rank(), "score %d", score)
		prev = next
	}
}
