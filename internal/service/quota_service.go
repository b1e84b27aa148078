// Package service provides the business logic of the stories service:
// quotas, sessions, stories and per-user data management.
package service

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mvstories/internal/domain"
	"github.com/prn-tf/mvstories/internal/metrics"
	"github.com/prn-tf/mvstories/internal/repository"
)

// nearLimitRatio is the usage ratio at which a quota is reported as nearly full.
const nearLimitRatio = 0.9

// QuotaService counts a user's objects and enforces the per-type limits.
type QuotaService struct {
	objects repository.Objects
	limits  map[domain.ObjectType]int
	logger  zerolog.Logger
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(objects repository.Objects, maxSessions, maxStories int, logger zerolog.Logger) *QuotaService {
	return &QuotaService{
		objects: objects,
		limits: map[domain.ObjectType]int{
			domain.TypeSession: maxSessions,
			domain.TypeStory:   maxStories,
		},
		logger: logger.With().Str("service", "quota").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// QuotaUsage is the usage of one object type.
type QuotaUsage struct {
	Current      int     `json:"current"`
	Limit        int     `json:"limit"`
	Remaining    int     `json:"remaining"`
	UsagePercent float64 `json:"usage_percent"`
	LimitReached bool    `json:"limit_reached"`
	NearLimit    bool    `json:"near_limit"`
}

// QuotaOverall aggregates usage across types.
type QuotaOverall struct {
	TotalObjects    int  `json:"total_objects"`
	TotalLimit      int  `json:"total_limit"`
	AnyLimitReached bool `json:"any_limit_reached"`
	AnyNearLimit    bool `json:"any_near_limit"`
}

// QuotaSummary is the quota document returned to a user.
type QuotaSummary struct {
	UserID   string       `json:"user_id"`
	UserName string       `json:"user_name"`
	Sessions QuotaUsage   `json:"sessions"`
	Stories  QuotaUsage   `json:"stories"`
	Overall  QuotaOverall `json:"overall"`
}

// =============================================================================
// Operations
// =============================================================================

// Limit returns the configured maximum for t.
func (s *QuotaService) Limit(t domain.ObjectType) int {
	return s.limits[t]
}

// Count returns the number of objects of type t owned by userID.
// Storage failures are propagated, never treated as zero.
func (s *QuotaService) Count(ctx context.Context, userID string, t domain.ObjectType) (int, error) {
	if userID == "" {
		return 0, domain.NewValidationError("user_id", "is required")
	}
	objects, err := s.objects.List(ctx, t, userID)
	if err != nil {
		return 0, err
	}
	return len(objects), nil
}

// CheckLimit fails with a *domain.QuotaError when userID already holds the
// maximum number of objects of type t.
func (s *QuotaService) CheckLimit(ctx context.Context, userID string, t domain.ObjectType) error {
	current, err := s.Count(ctx, userID, t)
	if err != nil {
		return err
	}

	limit := s.Limit(t)
	if current >= limit {
		metrics.QuotaRejectionsTotal.WithLabelValues(t.String()).Inc()
		s.logger.Warn().
			Str("user_id", userID).
			Str("type", t.String()).
			Int("current", current).
			Int("limit", limit).
			Msg("quota exceeded")
		return &domain.QuotaError{Type: t, Current: current, Limit: limit}
	}
	return nil
}

// Summary builds the quota document of identity.
func (s *QuotaService) Summary(ctx context.Context, identity domain.Identity) (*QuotaSummary, error) {
	sessions, err := s.Count(ctx, identity.Subject, domain.TypeSession)
	if err != nil {
		return nil, err
	}
	stories, err := s.Count(ctx, identity.Subject, domain.TypeStory)
	if err != nil {
		return nil, err
	}

	summary := &QuotaSummary{
		UserID:   identity.Subject,
		UserName: identity.Name,
		Sessions: usage(sessions, s.Limit(domain.TypeSession)),
		Stories:  usage(stories, s.Limit(domain.TypeStory)),
	}
	summary.Overall = QuotaOverall{
		TotalObjects:    sessions + stories,
		TotalLimit:      summary.Sessions.Limit + summary.Stories.Limit,
		AnyLimitReached: summary.Sessions.LimitReached || summary.Stories.LimitReached,
		AnyNearLimit:    summary.Sessions.NearLimit || summary.Stories.NearLimit,
	}

	s.logger.Info().
		Str("user_id", identity.Subject).
		Int("sessions", sessions).
		Int("stories", stories).
		Msg("quota summary")

	return summary, nil
}

func usage(current, limit int) QuotaUsage {
	u := QuotaUsage{
		Current:      current,
		Limit:        limit,
		Remaining:    max(0, limit-current),
		LimitReached: current >= limit,
		NearLimit:    float64(current) >= float64(limit)*nearLimitRatio,
	}
	if limit > 0 {
		u.UsagePercent = math.Round(float64(current)/float64(limit)*1000) / 10
	}
	return u
}
