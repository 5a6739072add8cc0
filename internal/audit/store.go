// Package audit persists moderation decisions to PostgreSQL. Every analyzed
// submission leaves one row holding the decision and the full report, which
// moderators read back when a post lands in the review queue.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cinetalk/forum-app/internal/moderation"
)

// Entry is one audited decision.
type Entry struct {
	ID            uuid.UUID              `json:"id"`
	SubmissionID  string                 `json:"submission_id"`
	UserID        string                 `json:"user_id"`
	Kind          moderation.ContentKind `json:"kind"`
	Action        moderation.Action      `json:"action"`
	OverallRisk   moderation.RiskLevel   `json:"overall_risk"`
	CombinedScore int                    `json:"combined_score"`
	Report        moderation.Report      `json:"report"`
	CreatedAt     time.Time              `json:"created_at"`
}

// NewEntry builds the audit entry for a decision.
func NewEntry(submissionID, userID string, a moderation.ContentAnalysis, action moderation.Action, report moderation.Report) Entry {
	return Entry{
		SubmissionID:  submissionID,
		UserID:        userID,
		Kind:          a.Kind,
		Action:        action,
		OverallRisk:   a.OverallRisk,
		CombinedScore: a.CombinedScore,
		Report:        report,
	}
}

// Store manages audit entries in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new audit store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts e and returns its id. A zero ID is replaced by a fresh
// UUID; a zero CreatedAt lets the database stamp the row.
func (s *Store) Record(ctx context.Context, e Entry) (uuid.UUID, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	report, err := json.Marshal(e.Report)
	if err != nil {
		return uuid.Nil, fmt.Errorf("audit: marshal report: %w", err)
	}

	var createdAt interface{}
	if !e.CreatedAt.IsZero() {
		createdAt = e.CreatedAt.UTC()
	}

	const query = `
		INSERT INTO moderation_audit
			(id, submission_id, user_id, content_kind, action, overall_risk, combined_score, report, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))`

	_, err = s.db.ExecContext(ctx, query,
		e.ID.String(),
		e.SubmissionID,
		e.UserID,
		string(e.Kind),
		string(e.Action),
		string(e.OverallRisk),
		e.CombinedScore,
		string(report),
		createdAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("audit: insert: %w", err)
	}
	return e.ID, nil
}

// CountRecent returns how many decisions with the given action were taken
// on the user's submissions within window.
func (s *Store) CountRecent(ctx context.Context, userID string, action moderation.Action, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM moderation_audit
		WHERE user_id = $1
		  AND action = $2
		  AND created_at >= NOW() - make_interval(secs => $3)`

	var count int
	err := s.db.QueryRowContext(ctx, query, userID, string(action), window.Seconds()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("audit: count recent: %w", err)
	}
	return count, nil
}

// Latest returns the most recent entry for a submission, or nil when the
// submission was never audited.
func (s *Store) Latest(ctx context.Context, submissionID string) (*Entry, error) {
	const query = `
		SELECT id, submission_id, user_id, content_kind, action, overall_risk, combined_score, report, created_at
		FROM moderation_audit
		WHERE submission_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var (
		e      Entry
		id     string
		report []byte
	)
	err := s.db.QueryRowContext(ctx, query, submissionID).Scan(
		&id, &e.SubmissionID, &e.UserID, &e.Kind, &e.Action, &e.OverallRisk, &e.CombinedScore, &report, &e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: latest: %w", err)
	}

	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("audit: parse id: %w", err)
	}
	if err := json.Unmarshal(report, &e.Report); err != nil {
		return nil, fmt.Errorf("audit: unmarshal report: %w", err)
	}
	return &e, nil
}
