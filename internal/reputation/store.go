// Package reputation keeps the per-user standing the policy engine needs,
// backed by Redis hashes:
//
//	Key:    reputation:<user_id>
//	Fields: role, trust_level, auto_approval, posts_count,
//	        reports_received, likes_received
//	TTL:    refreshed on every write
package reputation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cinetalk/forum-app/internal/moderation"
)

const (
	// KeyPrefix is the Redis key prefix for reputation hashes.
	KeyPrefix = "reputation:"

	// TTL is how long an idle user's reputation survives.
	TTL = 30 * 24 * time.Hour
)

// record mirrors the hash layout. Missing fields scan as zero values.
type record struct {
	Role            string `redis:"role"`
	TrustLevel      string `redis:"trust_level"`
	AutoApproval    bool   `redis:"auto_approval"`
	PostsCount      int    `redis:"posts_count"`
	ReportsReceived int    `redis:"reports_received"`
	LikesReceived   int    `redis:"likes_received"`
}

// Profile is the part of a reputation set by the forum rather than counted.
// Nil fields are left unchanged.
type Profile struct {
	Role         *moderation.Role
	TrustLevel   *moderation.TrustLevel
	AutoApproval *bool
}

// Store reads and updates reputations in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a reputation store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Get returns the user's snapshot. Unknown users are new users with zero
// counts; a stored hash with no role or trust level gets the same defaults.
func (s *Store) Get(ctx context.Context, userID string) (moderation.UserReputation, error) {
	var rec record
	if err := s.client.HGetAll(ctx, KeyPrefix+userID).Scan(&rec); err != nil {
		return moderation.UserReputation{}, fmt.Errorf("reputation: get %s: %w", userID, err)
	}

	u := moderation.UserReputation{
		UserID:          userID,
		Role:            moderation.Role(rec.Role),
		TrustLevel:      moderation.TrustLevel(rec.TrustLevel),
		AutoApproval:    rec.AutoApproval,
		PostsCount:      max(rec.PostsCount, 0),
		ReportsReceived: max(rec.ReportsReceived, 0),
		LikesReceived:   max(rec.LikesReceived, 0),
	}
	if u.Role == "" {
		u.Role = moderation.RoleUser
	}
	if u.TrustLevel == "" {
		u.TrustLevel = moderation.TrustNew
	}
	return u, nil
}

// RecordPost counts a published post.
func (s *Store) RecordPost(ctx context.Context, userID string) error {
	return s.incr(ctx, userID, "posts_count")
}

// RecordReport counts a report filed against the user.
func (s *Store) RecordReport(ctx context.Context, userID string) error {
	return s.incr(ctx, userID, "reports_received")
}

// RecordLike counts a like the user received.
func (s *Store) RecordLike(ctx context.Context, userID string) error {
	return s.incr(ctx, userID, "likes_received")
}

// SetProfile writes the non-nil profile fields.
func (s *Store) SetProfile(ctx context.Context, userID string, p Profile) error {
	var values []interface{}
	if p.Role != nil {
		values = append(values, "role", string(*p.Role))
	}
	if p.TrustLevel != nil {
		values = append(values, "trust_level", string(*p.TrustLevel))
	}
	if p.AutoApproval != nil {
		values = append(values, "auto_approval", *p.AutoApproval)
	}
	if len(values) == 0 {
		return nil
	}

	key := KeyPrefix + userID
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, values...)
	pipe.Expire(ctx, key, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reputation: set profile %s: %w", userID, err)
	}
	return nil
}

// Delete drops everything stored for the user.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, KeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("reputation: delete %s: %w", userID, err)
	}
	return nil
}

func (s *Store) incr(ctx context.Context, userID, field string) error {
	key := KeyPrefix + userID
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, field, 1)
	pipe.Expire(ctx, key, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reputation: incr %s %s: %w", field, userID, err)
	}
	return nil
}
