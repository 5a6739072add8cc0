package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cinetalk/forum-app/internal/audit"
	"github.com/cinetalk/forum-app/internal/metrics"
	"github.com/cinetalk/forum-app/internal/moderation"
	"github.com/cinetalk/forum-app/internal/protocol"
	"github.com/cinetalk/forum-app/internal/ratelimit"
	"github.com/cinetalk/forum-app/internal/reputation"
)

// Request outcomes recorded in metrics.RequestsTotal.
const (
	outcomeOK          = "ok"
	outcomeInvalid     = "invalid"
	outcomeRateLimited = "rate_limited"
	outcomeError       = "error"
)

var (
	// ErrRateLimited is returned by Moderate when the user sent too many
	// submissions in the current window.
	ErrRateLimited = errors.New("service: rate limited")

	// ErrNoReputationStore is returned by ReputationEvent when the
	// moderator runs without a reputation store.
	ErrNoReputationStore = errors.New("service: no reputation store configured")
)

// ReputationStore loads and updates user reputations.
type ReputationStore interface {
	Get(ctx context.Context, userID string) (moderation.UserReputation, error)
	RecordPost(ctx context.Context, userID string) error
	RecordReport(ctx context.Context, userID string) error
	RecordLike(ctx context.Context, userID string) error
	SetProfile(ctx context.Context, userID string, p reputation.Profile) error
}

// AuditRecorder persists decisions.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry) (uuid.UUID, error)
}

// ReviewPublisher feeds decisions that need a human into the review queue.
type ReviewPublisher interface {
	PublishReview(data []byte) error
}

// RateLimiter throttles submissions per user.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// Config holds the Moderator's collaborators. Only Engine is required; a nil
// store, recorder, publisher or limiter switches that step off.
type Config struct {
	Engine          *moderation.Engine
	Reputation      ReputationStore
	Audit           AuditRecorder
	Reviews         ReviewPublisher
	Limiter         RateLimiter
	RateRule        ratelimit.Rule
	MaxContentRunes int
	Log             *zap.Logger

	// Now stamps reports. Defaults to time.Now.
	Now func() time.Time
}

// Moderator serves moderate, sanitize and reputation_event requests.
type Moderator struct {
	engine     *moderation.Engine
	reputation ReputationStore
	audit      AuditRecorder
	reviews    ReviewPublisher
	limiter    RateLimiter
	rule       ratelimit.Rule
	maxContent int
	now        func() time.Time
	log        *zap.Logger
}

// NewModerator builds a Moderator from cfg.
func NewModerator(cfg Config) *Moderator {
	m := &Moderator{
		engine:     cfg.Engine,
		reputation: cfg.Reputation,
		audit:      cfg.Audit,
		reviews:    cfg.Reviews,
		limiter:    cfg.Limiter,
		rule:       cfg.RateRule,
		maxContent: cfg.MaxContentRunes,
		now:        cfg.Now,
		log:        cfg.Log,
	}
	if m.engine == nil {
		m.engine = moderation.NewEngine(nil)
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	m.log = m.log.Named("moderator")
	return m
}

// Register installs the moderator's handlers on d.
func (m *Moderator) Register(d *Dispatcher) {
	d.Register(protocol.TypeModerate, m.handleModerate)
	d.Register(protocol.TypeSanitize, m.handleSanitize)
	d.Register(protocol.TypeReputationEvent, m.handleReputationEvent)
}

// Moderate analyzes one submission and decides what happens to it. Store
// failures never block a decision: an unreadable reputation is treated as a
// new user and a failed audit insert is only logged.
func (m *Moderator) Moderate(ctx context.Context, req protocol.ModerateMsg) (protocol.DecisionMsg, error) {
	log := m.log.With(
		zap.String("submission_id", req.SubmissionID),
		zap.String("user_id", req.UserID),
		zap.String("kind", string(req.Kind)),
	)

	if m.limiter != nil {
		allowed, err := m.limiter.Allow(ctx, req.UserID, m.rule)
		if err != nil {
			log.Warn("rate limiter unavailable", zap.Error(err))
		}
		if !allowed {
			return protocol.DecisionMsg{}, ErrRateLimited
		}
	}

	truncated := req.Truncate(m.maxContent)
	if truncated {
		log.Info("content truncated", zap.Int("max_runes", m.maxContent))
	}

	user := m.loadReputation(ctx, req.UserID, log)

	start := time.Now()
	analysis := m.engine.Analyze(req.Input())
	action := m.engine.SuggestAction(user, analysis, req.Kind)
	metrics.AnalysisSeconds.Observe(time.Since(start).Seconds())

	report := m.engine.BuildReport(analysis, m.now())

	decision := protocol.DecisionMsg{
		SubmissionID:  req.SubmissionID,
		UserID:        req.UserID,
		Kind:          req.Kind,
		Action:        action,
		OverallRisk:   analysis.OverallRisk,
		CombinedScore: analysis.CombinedScore,
		ShouldFlag:    analysis.ShouldFlag,
		ShouldReject:  analysis.ShouldReject,
		Truncated:     truncated,
		Report:        report,
	}
	if action != moderation.ActionApprove {
		decision.SanitizedTitle = m.engine.Sanitize(req.Title)
		decision.SanitizedBody = m.engine.Sanitize(req.Body)
	}

	if m.audit != nil {
		entry := audit.NewEntry(req.SubmissionID, req.UserID, analysis, action, report)
		if _, err := m.audit.Record(ctx, entry); err != nil {
			log.Error("audit insert failed", zap.Error(err))
		}
	}

	if action == moderation.ActionReview && m.reviews != nil {
		m.publishReview(decision, log)
	}

	metrics.DecisionsTotal.WithLabelValues(string(req.Kind), string(action)).Inc()
	metrics.RiskTotal.WithLabelValues(string(analysis.OverallRisk)).Inc()

	log.Info("decision",
		zap.String("action", string(action)),
		zap.String("overall_risk", string(analysis.OverallRisk)),
		zap.Int("combined_score", analysis.CombinedScore),
		zap.Strings("violated_terms", analysis.Profanity.ViolatedTerms),
		zap.Strings("spam_indicators", analysis.Spam.Indicators),
	)
	return decision, nil
}

// Sanitize redacts content for storage or display.
func (m *Moderator) Sanitize(req protocol.SanitizeMsg) protocol.SanitizedMsg {
	return protocol.SanitizedMsg{Content: m.engine.Sanitize(req.Content)}
}

// ReputationEvent applies one reputation change to the store.
func (m *Moderator) ReputationEvent(ctx context.Context, req protocol.ReputationEventMsg) error {
	if m.reputation == nil {
		return ErrNoReputationStore
	}

	var err error
	switch req.Event {
	case protocol.EventPostCreated:
		err = m.reputation.RecordPost(ctx, req.UserID)
	case protocol.EventReported:
		err = m.reputation.RecordReport(ctx, req.UserID)
	case protocol.EventLiked:
		err = m.reputation.RecordLike(ctx, req.UserID)
	case protocol.EventProfile:
		var p reputation.Profile
		if req.Role != "" {
			p.Role = &req.Role
		}
		if req.TrustLevel != "" {
			p.TrustLevel = &req.TrustLevel
		}
		p.AutoApproval = req.AutoApproval
		err = m.reputation.SetProfile(ctx, req.UserID, p)
	default:
		return fmt.Errorf("%w: unknown event %q", protocol.ErrInvalidRequest, req.Event)
	}
	if err != nil {
		return fmt.Errorf("service: reputation %s: %w", req.Event, err)
	}
	return nil
}

func (m *Moderator) loadReputation(ctx context.Context, userID string, log *zap.Logger) moderation.UserReputation {
	if m.reputation != nil {
		user, err := m.reputation.Get(ctx, userID)
		if err == nil {
			return user
		}
		log.Warn("reputation unavailable, treating as new user", zap.Error(err))
	}
	return moderation.UserReputation{
		UserID:     userID,
		Role:       moderation.RoleUser,
		TrustLevel: moderation.TrustNew,
	}
}

func (m *Moderator) publishReview(decision protocol.DecisionMsg, log *zap.Logger) {
	data, err := protocol.NewResponse(protocol.TypeDecision, decision)
	if err != nil {
		log.Error("encode review", zap.Error(err))
		return
	}
	if err := m.reviews.PublishReview(data); err != nil {
		log.Error("publish review failed", zap.Error(err))
	}
}

func (m *Moderator) handleModerate(ctx context.Context, msg interface{}) []byte {
	req := msg.(protocol.ModerateMsg)

	decision, err := m.Moderate(ctx, req)
	if errors.Is(err, ErrRateLimited) {
		metrics.RequestsTotal.WithLabelValues(protocol.TypeModerate, outcomeRateLimited).Inc()
		return errorResponse(m.log, protocol.CodeRateLimited, "too many submissions, try again later")
	}
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(protocol.TypeModerate, outcomeError).Inc()
		m.log.Error("moderate failed", zap.String("submission_id", req.SubmissionID), zap.Error(err))
		return errorResponse(m.log, protocol.CodeInternal, "moderation failed")
	}

	metrics.RequestsTotal.WithLabelValues(protocol.TypeModerate, outcomeOK).Inc()
	return response(m.log, protocol.TypeDecision, decision)
}

func (m *Moderator) handleSanitize(_ context.Context, msg interface{}) []byte {
	metrics.RequestsTotal.WithLabelValues(protocol.TypeSanitize, outcomeOK).Inc()
	return response(m.log, protocol.TypeSanitized, m.Sanitize(msg.(protocol.SanitizeMsg)))
}

func (m *Moderator) handleReputationEvent(ctx context.Context, msg interface{}) []byte {
	req := msg.(protocol.ReputationEventMsg)

	if err := m.ReputationEvent(ctx, req); err != nil {
		metrics.RequestsTotal.WithLabelValues(protocol.TypeReputationEvent, outcomeError).Inc()
		m.log.Error("reputation event failed",
			zap.String("user_id", req.UserID),
			zap.String("event", req.Event),
			zap.Error(err),
		)
		return errorResponse(m.log, protocol.CodeInternal, "reputation update failed")
	}

	metrics.RequestsTotal.WithLabelValues(protocol.TypeReputationEvent, outcomeOK).Inc()
	return response(m.log, protocol.TypeAck, protocol.AckMsg{})
}
