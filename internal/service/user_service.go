package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mvstories/internal/domain"
	"github.com/prn-tf/mvstories/internal/metrics"
	"github.com/prn-tf/mvstories/internal/repository"
)

// UserService handles operations on a user's whole namespace.
type UserService struct {
	objects repository.Objects
	quota   *QuotaService
	logger  zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(objects repository.Objects, quota *QuotaService, logger zerolog.Logger) *UserService {
	return &UserService{
		objects: objects,
		quota:   quota,
		logger:  logger.With().Str("service", "user").Logger(),
	}
}

// Quota returns the quota document of identity.
func (s *UserService) Quota(ctx context.Context, identity domain.Identity) (*QuotaSummary, error) {
	if identity.Subject == "" {
		return nil, domain.ErrUnauthorized
	}
	return s.quota.Summary(ctx, identity)
}

// DeleteAll permanently removes every session and story of identity.
func (s *UserService) DeleteAll(ctx context.Context, identity domain.Identity) (*repository.DeletionSummary, error) {
	if identity.Subject == "" {
		return nil, domain.ErrUnauthorized
	}

	s.logger.Info().
		Str("user_id", identity.Subject).
		Str("user_name", identity.Name).
		Msg("deleting all user data")

	summary, err := s.objects.DeleteAllForUser(ctx, identity.Subject)
	if err != nil {
		return nil, err
	}

	metrics.ObjectsDeletedTotal.WithLabelValues(domain.TypeSession.String()).Add(float64(summary.SessionsDeleted))
	metrics.ObjectsDeletedTotal.WithLabelValues(domain.TypeStory.String()).Add(float64(summary.StoriesDeleted))
	return summary, nil
}
