package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinetalk/forum-app/internal/moderation"
	"github.com/cinetalk/forum-app/internal/ratelimit"
	"github.com/cinetalk/forum-app/internal/reputation"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(append([]string{"modcheck"}, args...), strings.NewReader(stdin), &out)
	return out.String(), err
}

func analyze(t *testing.T, args ...string) analyzeOutput {
	t.Helper()
	out, err := runCLI(t, "", append([]string{"analyze"}, args...)...)
	require.NoError(t, err)
	var got analyzeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	return got
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		action moderation.Action
		risk   moderation.RiskLevel
		score  int
	}{
		{
			name:   "new user thread",
			args:   []string{"Loved the cinematography, especially the night scenes."},
			action: moderation.ActionReview,
			risk:   moderation.RiskLow,
		},
		{
			name:   "trusted user thread",
			args:   []string{"--trust", "trusted", "--posts", "50", "Loved the cinematography, especially the night scenes."},
			action: moderation.ActionApprove,
			risk:   moderation.RiskLow,
		},
		{
			name:   "reply with profanity",
			args:   []string{"--kind", "reply", "du ma may"},
			action: moderation.ActionReject,
			risk:   moderation.RiskHigh,
			score:  65,
		},
		{
			name:   "admin bypass",
			args:   []string{"--kind", "reply", "--role", "admin", "du ma may"},
			action: moderation.ActionApprove,
			risk:   moderation.RiskHigh,
			score:  65,
		},
		{
			name:   "clean reply",
			args:   []string{"--kind", "reply", "nice", "plot", "twist"},
			action: moderation.ActionApprove,
			risk:   moderation.RiskLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := analyze(t, tt.args...)
			assert.Equal(t, tt.action, got.Action)
			assert.Equal(t, tt.risk, got.Analysis.OverallRisk)
			assert.Equal(t, tt.score, got.Analysis.CombinedScore)
			assert.Equal(t, tt.score, got.Report.Summary.TotalScore)
		})
	}
}

func TestAnalyze_SanitizedOutput(t *testing.T) {
	got := analyze(t, "--kind", "reply", "This film is SHIT")
	assert.Equal(t, "This film is ***", got.Sanitized)
	assert.Equal(t, []string{"shit"}, got.Report.Profanity.Terms)
}

func TestAnalyze_Stdin(t *testing.T) {
	out, err := runCLI(t, "du ma may\n", "analyze", "--kind", "reply", "-")
	require.NoError(t, err)
	var got analyzeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, moderation.ActionReject, got.Action)
}

func TestAnalyze_RulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("banned_terms:\n  - popcorn\n"), 0o600))

	got := analyze(t, "--kind", "reply", "--rules-file", path, "too much popcorn")
	assert.Equal(t, moderation.ActionReject, got.Action)
	assert.Equal(t, []string{"popcorn"}, got.Analysis.Profanity.ViolatedTerms)
}

func TestAnalyze_BadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{"kind", []string{"analyze", "--kind", "poll", "x"}, "unknown kind"},
		{"role", []string{"analyze", "--role", "owner", "x"}, "unknown role"},
		{"trust", []string{"analyze", "--trust", "gold", "x"}, "unknown trust level"},
		{"negative posts", []string{"analyze", "--posts", "-1", "x"}, "must not be negative"},
		{"no content", []string{"analyze"}, "no content"},
		{"missing rules", []string{"analyze", "--rules-file", "/does/not/exist.yaml", "x"}, "open rules"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestSanitize(t *testing.T) {
	out, err := runCLI(t, "", "sanitize", "call", "0912345678", "or", "see", "https://x.io/a")
	require.NoError(t, err)
	assert.Equal(t, "call "+moderation.PhoneToken+" or see "+moderation.LinkToken+"\n", out)
}

func TestAuditCount_BadAction(t *testing.T) {
	_, err := runCLI(t, "", "audit-count", "--database-url", "postgres://localhost/x", "--user", "u", "--action", "delete")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
}

func TestAuditShow_NoID(t *testing.T) {
	_, err := runCLI(t, "", "audit-show", "--database-url", "postgres://localhost/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no submission id")
}

func TestReputation(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	store := reputation.NewStore(rdb)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.RecordReport(ctx, "u-9"))
	}
	require.NoError(t, store.RecordPost(ctx, "u-9"))
	limiter := ratelimit.NewLimiter(rdb, nil)
	for i := 0; i < 2; i++ {
		_, err := limiter.Allow(ctx, "u-9", ratelimit.RuleModerate)
		require.NoError(t, err)
	}

	out, err := runCLI(t, "", "reputation", "--redis-addr", mr.Addr(), "--user", "u-9")
	require.NoError(t, err)
	var got reputationOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, "u-9", got.UserID)
	assert.Equal(t, moderation.TrustNew, got.TrustLevel)
	assert.Equal(t, 1, got.PostsCount)
	assert.Equal(t, 4, got.ReportsReceived)
	assert.True(t, got.BadReputation)
	assert.Equal(t, ratelimit.RuleModerate.Limit-2, got.RemainingRequests)

	out, err = runCLI(t, "", "reputation", "--redis-addr", mr.Addr(), "--user", "u-9", "--reset")
	require.NoError(t, err)
	assert.Equal(t, "reputation of u-9 reset\n", out)

	rep, err := store.Get(ctx, "u-9")
	require.NoError(t, err)
	assert.Zero(t, rep.ReportsReceived)
}
