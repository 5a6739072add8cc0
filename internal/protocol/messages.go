// Package protocol defines the JSON messages exchanged between the forum
// backend and the moderation daemon. Every message carries a "type"
// discriminator; requests travel on NATS request/reply and each one gets
// exactly one response.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/cinetalk/forum-app/internal/moderation"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Backend -> moderator request types.
const (
	TypeModerate        = "moderate"
	TypeSanitize        = "sanitize"
	TypeReputationEvent = "reputation_event"
	TypePing            = "ping"
)

// Moderator -> backend response types.
const (
	TypeDecision  = "decision"
	TypeSanitized = "sanitized"
	TypeAck       = "ack"
	TypePong      = "pong"
	TypeError     = "error"
)

// Error codes carried by ErrorMsg.
const (
	CodeParseError      = "parse_error"
	CodeUnsupportedType = "unsupported_type"
	CodeInvalidRequest  = "invalid_request"
	CodeRateLimited     = "rate_limited"
	CodeInternal        = "internal_error"
)

// Reputation event kinds.
const (
	EventPostCreated = "post_created"
	EventReported    = "reported"
	EventLiked       = "liked"
	EventProfile     = "profile"
)

// DefaultMaxContentRunes caps the text handed to the engine.
const DefaultMaxContentRunes = 20000

var (
	// ErrUnknownType is returned by ParseRequest for types it cannot decode.
	ErrUnknownType = errors.New("protocol: unknown request type")

	// ErrInvalidRequest wraps validation failures of a decoded request.
	ErrInvalidRequest = errors.New("protocol: invalid request")
)

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the full payload and extracts only the "type" field.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// ModerateMsg asks for a decision on one forum submission.
type ModerateMsg struct {
	Type         string                 `json:"type"`
	SubmissionID string                 `json:"submission_id"`
	Kind         moderation.ContentKind `json:"kind"`
	UserID       string                 `json:"user_id"`
	Title        string                 `json:"title,omitempty"`
	Body         string                 `json:"body"`
}

// Validate checks the identifiers, the content kind and the text encoding.
func (m ModerateMsg) Validate() error {
	switch {
	case m.SubmissionID == "":
		return fmt.Errorf("%w: submission_id is required", ErrInvalidRequest)
	case m.UserID == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	case !m.Kind.Valid():
		return fmt.Errorf("%w: kind must be %q or %q, got %q",
			ErrInvalidRequest, moderation.KindThread, moderation.KindReply, m.Kind)
	case !utf8.ValidString(m.Title) || !utf8.ValidString(m.Body):
		return fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidRequest)
	}
	return nil
}

// Truncate cuts title and body so that together they hold at most limit
// runes. The title is kept first. It reports whether anything was cut.
func (m *ModerateMsg) Truncate(limit int) bool {
	if limit <= 0 {
		return false
	}
	titleLen := utf8.RuneCountInString(m.Title)
	if titleLen >= limit {
		m.Title = truncateRunes(m.Title, limit)
		cut := m.Body != "" || titleLen > limit
		m.Body = ""
		return cut
	}
	rest := limit - titleLen
	if utf8.RuneCountInString(m.Body) <= rest {
		return false
	}
	m.Body = truncateRunes(m.Body, rest)
	return true
}

// Input converts the request into engine input.
func (m ModerateMsg) Input() moderation.Input {
	return moderation.Input{Kind: m.Kind, Title: m.Title, Body: m.Body}
}

// SanitizeMsg asks for a redacted copy of arbitrary content.
type SanitizeMsg struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Validate checks the text encoding.
func (m SanitizeMsg) Validate() error {
	if !utf8.ValidString(m.Content) {
		return fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidRequest)
	}
	return nil
}

// ReputationEventMsg updates the stored reputation of a user. Role, trust
// level and auto approval are only read for profile events; a nil
// AutoApproval leaves the stored flag untouched.
type ReputationEventMsg struct {
	Type         string                `json:"type"`
	UserID       string                `json:"user_id"`
	Event        string                `json:"event"`
	Role         moderation.Role       `json:"role,omitempty"`
	TrustLevel   moderation.TrustLevel `json:"trust_level,omitempty"`
	AutoApproval *bool                 `json:"auto_approval,omitempty"`
}

// Validate checks the user id, the event kind and, for profile events, the
// role and trust level values.
func (m ReputationEventMsg) Validate() error {
	if m.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	switch m.Event {
	case EventPostCreated, EventReported, EventLiked:
		return nil
	case EventProfile:
	default:
		return fmt.Errorf("%w: unknown event %q", ErrInvalidRequest, m.Event)
	}

	switch m.Role {
	case "", moderation.RoleUser, moderation.RoleModerator, moderation.RoleAdmin:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, m.Role)
	}
	switch m.TrustLevel {
	case "", moderation.TrustNew, moderation.TrustBasic, moderation.TrustTrusted, moderation.TrustModerator:
	default:
		return fmt.Errorf("%w: unknown trust_level %q", ErrInvalidRequest, m.TrustLevel)
	}
	if m.Role == "" && m.TrustLevel == "" && m.AutoApproval == nil {
		return fmt.Errorf("%w: profile event carries no changes", ErrInvalidRequest)
	}
	return nil
}

// PingMsg is a keepalive probe.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// DecisionMsg is the verdict on a moderate request. SanitizedTitle and
// SanitizedBody are only set when the submission is not approved.
type DecisionMsg struct {
	Type           string                 `json:"type"`
	SubmissionID   string                 `json:"submission_id"`
	UserID         string                 `json:"user_id"`
	Kind           moderation.ContentKind `json:"kind"`
	Action         moderation.Action      `json:"action"`
	OverallRisk    moderation.RiskLevel   `json:"overall_risk"`
	CombinedScore  int                    `json:"combined_score"`
	ShouldFlag     bool                   `json:"should_flag"`
	ShouldReject   bool                   `json:"should_reject"`
	Truncated      bool                   `json:"truncated,omitempty"`
	SanitizedTitle string                 `json:"sanitized_title,omitempty"`
	SanitizedBody  string                 `json:"sanitized_body,omitempty"`
	Report         moderation.Report      `json:"report"`
}

// SanitizedMsg carries redacted content.
type SanitizedMsg struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// AckMsg confirms a reputation event was stored.
type AckMsg struct {
	Type string `json:"type"`
}

// ErrorMsg reports why a request could not be served.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg answers a ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

type validator interface {
	Validate() error
}

// ParseRequest decodes raw bytes into a typed, validated request. It returns
// the message type, the decoded struct and any error. Unknown types yield
// an error wrapping ErrUnknownType; failed validation wraps
// ErrInvalidRequest.
func ParseRequest(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: parse request: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeModerate:
		var m ModerateMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSanitize:
		var m SanitizeMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReputationEvent:
		var m ReputationEventMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: decode %q payload: %w", env.Type, err)
	}
	if v, ok := msg.(validator); ok {
		if err := v.Validate(); err != nil {
			return env.Type, nil, err
		}
	}
	return env.Type, msg, nil
}

// NewResponse JSON-encodes payload and sets its "type" field to msgType.
func NewResponse(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal response: %w", err)
	}
	return out, nil
}

// truncateRunes returns at most limit runes of s.
func truncateRunes(s string, limit int) string {
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
