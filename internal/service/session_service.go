package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mvstories/internal/codec"
	"github.com/prn-tf/mvstories/internal/domain"
	"github.com/prn-tf/mvstories/internal/metrics"
	"github.com/prn-tf/mvstories/internal/repository"
	"github.com/prn-tf/mvstories/internal/validation"
)

// SessionService handles session operations. Sessions are private: every
// operation requires an identity and reads are restricted to the creator.
type SessionService struct {
	objects repository.Objects
	quota   *QuotaService
	logger  zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(objects repository.Objects, quota *QuotaService, logger zerolog.Logger) *SessionService {
	return &SessionService{
		objects: objects,
		quota:   quota,
		logger:  logger.With().Str("service", "session").Logger(),
	}
}

// Create stores a validated session for identity after checking the quota.
func (s *SessionService) Create(ctx context.Context, identity domain.Identity, req *validation.SessionCreate) (*domain.Metadata, error) {
	if identity.Subject == "" {
		return nil, domain.ErrUnauthorized
	}
	if err := s.quota.CheckLimit(ctx, identity.Subject, domain.TypeSession); err != nil {
		return nil, err
	}

	meta, err := s.objects.Create(ctx, repository.CreateInput{
		Type:        domain.TypeSession,
		Filename:    req.Filename,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		Content:     req.Content,
	}, identity)
	if err != nil {
		return nil, err
	}

	metrics.ObjectsCreatedTotal.WithLabelValues(domain.TypeSession.String()).Inc()
	s.logger.Info().
		Str("session_id", meta.ID).
		Str("user_id", identity.Subject).
		Int("size", len(req.Content)).
		Msg("session created")

	return meta, nil
}

// List returns the sessions owned by identity.
func (s *SessionService) List(ctx context.Context, identity domain.Identity) ([]*domain.Metadata, error) {
	if identity.Subject == "" {
		return nil, domain.ErrUnauthorized
	}
	return s.objects.List(ctx, domain.TypeSession, identity.Subject)
}

// Get returns a session's metadata. Only the creator may read it.
func (s *SessionService) Get(ctx context.Context, identity domain.Identity, id string) (*domain.Metadata, error) {
	if identity.Subject == "" {
		return nil, domain.ErrUnauthorized
	}
	meta, err := s.objects.Find(ctx, domain.TypeSession, id)
	if err != nil {
		return nil, err
	}
	if err := repository.CheckOwnership(meta, identity.Subject, "view"); err != nil {
		return nil, err
	}
	return meta, nil
}

// Data returns the JSON-safe session content: the detected payload with every
// binary value base64 encoded.
func (s *SessionService) Data(ctx context.Context, identity domain.Identity, id string) (any, error) {
	meta, err := s.Get(ctx, identity, id)
	if err != nil {
		return nil, err
	}

	content, err := s.objects.ReadData(ctx, meta, "")
	if err != nil {
		return nil, err
	}

	value, format := codec.SessionJSON(content.Data)
	s.logger.Debug().
		Str("session_id", id).
		Str("format", format.String()).
		Msg("loaded session data")

	return value, nil
}

// Update applies a validated update on behalf of identity.
// Replacement content is stored in the current format.
func (s *SessionService) Update(ctx context.Context, identity domain.Identity, id string, u *validation.Update) (*domain.Metadata, error) {
	if identity.Subject == "" {
		return nil, domain.ErrUnauthorized
	}

	patch := repository.Patch{
		Title:       u.Title,
		Description: u.Description,
		Tags:        u.Tags,
	}
	if u.Content.IsBinary() {
		blob := u.Content.Bytes
		patch.Content = func(string) ([]byte, error) { return blob, nil }
	}

	meta, err := s.objects.Update(ctx, domain.TypeSession, id, identity.Subject, patch)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("session_id", id).
		Str("user_id", identity.Subject).
		Strs("fields", u.Fields()).
		Msg("session updated")

	return meta, nil
}

// Delete removes a session on behalf of identity.
func (s *SessionService) Delete(ctx context.Context, identity domain.Identity, id string) (*repository.DeleteResult, error) {
	if identity.Subject == "" {
		return nil, domain.ErrUnauthorized
	}

	result, err := s.objects.Delete(ctx, domain.TypeSession, id, identity.Subject)
	if err != nil {
		return nil, err
	}

	metrics.ObjectsDeletedTotal.WithLabelValues(domain.TypeSession.String()).Inc()
	return result, nil
}
