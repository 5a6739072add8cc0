package moderation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReport(t *testing.T) {
	e := NewEngine(nil)
	a := e.Analyze(Input{Kind: KindReply, Body: "This film is fucking shit, call 0912345678"})
	at := time.Date(2026, 3, 1, 15, 4, 5, 0, time.FixedZone("ICT", 7*3600))

	r := BuildReport(a, at)

	assert.Equal(t, a.OverallRisk, r.Summary.OverallRisk)
	assert.Equal(t, a.Recommendations.Action, r.Summary.Action)
	assert.Equal(t, a.Recommendations.Confidence, r.Summary.Confidence)
	assert.Equal(t, a.CombinedScore, r.Summary.TotalScore)

	assert.True(t, r.Profanity.Detected)
	assert.Equal(t, []string{"fuck", "shit"}, r.Profanity.Terms)
	assert.Equal(t, 2, r.Profanity.Count)
	assert.Equal(t, ProfanityScoreHigh, r.Profanity.Score)

	assert.Equal(t, a.Spam.RiskScore, r.Spam.Score)
	assert.Equal(t, a.Spam.Indicators, r.Spam.Indicators)

	assert.Equal(t, a.Recommendations.Reason, r.Recommendations.Reason)
	assert.Equal(t, a.Recommendations.SuggestedActions, r.Recommendations.SuggestedActions)

	assert.Equal(t, time.UTC, r.Metadata.AnalyzedAt.Location())
	assert.True(t, at.Equal(r.Metadata.AnalyzedAt))
	assert.Equal(t, a.ContentLength, r.Metadata.ContentLength)
	assert.Equal(t, KindReply, r.Metadata.Kind)
}

func TestBuildReport_DoesNotAlias(t *testing.T) {
	a := NewEngine(nil).Analyze(Input{Body: "fuck shit bitch"})
	r := BuildReport(a, time.Unix(0, 0))

	r.Profanity.Terms[0] = "changed"
	assert.Equal(t, "fuck", a.Profanity.ViolatedTerms[0])
}

func TestBuildReport_JSON(t *testing.T) {
	a := NewEngine(nil).Analyze(Input{Kind: KindThread, Body: "Great movie, the acting was superb and the ending surprised me."})
	r := BuildReport(a, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	b, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "low", m["summary"]["overall_risk"])
	assert.Equal(t, "approve", m["summary"]["action"])
	assert.Equal(t, false, m["profanity"]["detected"])
	assert.Equal(t, []any{}, m["profanity"]["terms"])
	assert.Equal(t, "2026-01-02T03:04:05Z", m["metadata"]["analyzed_at"])
	assert.Equal(t, "thread", m["metadata"]["kind"])
}
