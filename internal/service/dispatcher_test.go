package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinetalk/forum-app/internal/moderation"
	"github.com/cinetalk/forum-app/internal/protocol"
)

func decode(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m), "response %s", data)
	return m
}

func TestDispatch_Ping(t *testing.T) {
	d := NewDispatcher(nil)
	resp := decode(t, d.Dispatch(context.Background(), []byte(`{"type":"ping"}`)))
	assert.Equal(t, protocol.TypePong, resp["type"])
}

func TestDispatch_Errors(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name  string
		input string
		code  string
	}{
		{"garbage", `not json`, protocol.CodeParseError},
		{"missing type", `{"body":"x"}`, protocol.CodeParseError},
		{"unknown type", `{"type":"find_match"}`, protocol.CodeUnsupportedType},
		{"invalid kind", `{"type":"moderate","submission_id":"s","user_id":"u","kind":"poll"}`, protocol.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := decode(t, h.disp.Dispatch(context.Background(), []byte(tt.input)))
			assert.Equal(t, protocol.TypeError, resp["type"])
			assert.Equal(t, tt.code, resp["code"])
			assert.NotEmpty(t, resp["message"])
		})
	}
}

func TestDispatch_NoHandler(t *testing.T) {
	d := NewDispatcher(nil)
	resp := decode(t, d.Dispatch(context.Background(), []byte(`{"type":"sanitize","content":"x"}`)))
	assert.Equal(t, protocol.CodeUnsupportedType, resp["code"])
}

func TestDispatch_Moderate(t *testing.T) {
	h := newHarness(t, nil)

	raw := h.disp.Dispatch(context.Background(),
		[]byte(`{"type":"moderate","submission_id":"s-10","kind":"reply","user_id":"u-1","body":"du ma may"}`))

	var d protocol.DecisionMsg
	require.NoError(t, json.Unmarshal(raw, &d))
	assert.Equal(t, protocol.TypeDecision, d.Type)
	assert.Equal(t, "s-10", d.SubmissionID)
	assert.Equal(t, moderation.ActionReject, d.Action)
	assert.Equal(t, moderation.RiskHigh, d.OverallRisk)
	assert.Equal(t, 65, d.CombinedScore)
	assert.True(t, d.ShouldFlag)
	assert.Equal(t, "** ma may", d.SanitizedBody)
	assert.Equal(t, []string{"du"}, d.Report.Profanity.Terms)
}

func TestDispatch_ModerateRateLimited(t *testing.T) {
	h := newHarness(t, nil)
	req := []byte(`{"type":"moderate","submission_id":"s","kind":"reply","user_id":"u-busy","body":"nice plot twist"}`)

	for i := 0; i < 3; i++ {
		assert.Equal(t, protocol.TypeDecision, decode(t, h.disp.Dispatch(context.Background(), req))["type"])
	}
	resp := decode(t, h.disp.Dispatch(context.Background(), req))
	assert.Equal(t, protocol.TypeError, resp["type"])
	assert.Equal(t, protocol.CodeRateLimited, resp["code"])
}

func TestDispatch_Sanitize(t *testing.T) {
	h := newHarness(t, nil)
	resp := decode(t, h.disp.Dispatch(context.Background(),
		[]byte(`{"type":"sanitize","content":"see https://x.io/a now"}`)))
	assert.Equal(t, protocol.TypeSanitized, resp["type"])
	assert.Equal(t, "see "+moderation.LinkToken+" now", resp["content"])
}

func TestDispatch_ReputationEvent(t *testing.T) {
	h := newHarness(t, nil)

	resp := decode(t, h.disp.Dispatch(context.Background(),
		[]byte(`{"type":"reputation_event","user_id":"u-5","event":"profile","trust_level":"trusted","auto_approval":true}`)))
	assert.Equal(t, protocol.TypeAck, resp["type"])

	u, err := h.rep.Get(context.Background(), "u-5")
	require.NoError(t, err)
	assert.Equal(t, moderation.TrustTrusted, u.TrustLevel)
	assert.True(t, u.AutoApproval)

	h.mr.Close()
	resp = decode(t, h.disp.Dispatch(context.Background(),
		[]byte(`{"type":"reputation_event","user_id":"u-5","event":"liked"}`)))
	assert.Equal(t, protocol.CodeInternal, resp["code"])
}
