package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mvstories/internal/codec"
	"github.com/prn-tf/mvstories/internal/domain"
	"github.com/prn-tf/mvstories/internal/metrics"
	"github.com/prn-tf/mvstories/internal/repository"
	"github.com/prn-tf/mvstories/internal/storage"
	"github.com/prn-tf/mvstories/internal/validation"
)

// StoryService handles story operations. Stories are public: reads need no
// identity, writes are restricted to the creator.
type StoryService struct {
	objects   repository.Objects
	quota     *QuotaService
	validator *validation.Validator
	logger    zerolog.Logger
}

// NewStoryService creates a new StoryService.
func NewStoryService(objects repository.Objects, quota *QuotaService, validator *validation.Validator, logger zerolog.Logger) *StoryService {
	return &StoryService{
		objects:   objects,
		quota:     quota,
		validator: validator,
		logger:    logger.With().Str("service", "story").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// StoryDocument is the create request echoed back by ?return_data=true and
// POST /api/story/mvsj.
type StoryDocument struct {
	Filename    string          `json:"filename"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	Data        json.RawMessage `json:"data"`
}

// StoryData is the primary content of a story as served to clients.
type StoryData struct {
	// Format is "mvsj" or "mvsx".
	Format string

	// JSON is the document of an mvsj story.
	JSON json.RawMessage

	// Archive is the raw content of an mvsx story.
	Archive []byte
}

// =============================================================================
// Operations
// =============================================================================

// Create stores a validated story for identity after checking the quota.
func (s *StoryService) Create(ctx context.Context, identity domain.Identity, req *validation.StoryCreate) (*domain.Metadata, error) {
	if identity.Subject == "" {
		return nil, domain.ErrUnauthorized
	}
	if err := s.quota.CheckLimit(ctx, identity.Subject, domain.TypeStory); err != nil {
		return nil, err
	}

	ext := storage.DataExtension(domain.TypeStory, req.Filename)
	content, err := codec.EncodeStory(ext, req.Content)
	if err != nil {
		return nil, domain.NewValidationError("data", "%v", err)
	}

	meta, err := s.objects.Create(ctx, repository.CreateInput{
		Type:        domain.TypeStory,
		Filename:    req.Filename,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		Content:     content,
	}, identity)
	if err != nil {
		return nil, err
	}

	metrics.ObjectsCreatedTotal.WithLabelValues(domain.TypeStory.String()).Inc()
	s.logger.Info().
		Str("story_id", meta.ID).
		Str("user_id", identity.Subject).
		Str("format", storage.StoryFormat(ext)).
		Int("size", len(content)).
		Msg("story created")

	return meta, nil
}

// Document returns the create request in the shape of an mvsj file.
// Binary content is echoed as the base64 string it arrived as.
func (s *StoryService) Document(req *validation.StoryCreate) (*StoryDocument, error) {
	doc := &StoryDocument{
		Filename:    req.Filename,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
	}

	switch {
	case req.Content.Kind == domain.PayloadJSON:
		doc.Data = req.Content.JSON
	case req.Content.IsBinary():
		encoded, err := json.Marshal(base64.StdEncoding.EncodeToString(req.Content.Bytes))
		if err != nil {
			return nil, fmt.Errorf("encode story data: %w", err)
		}
		doc.Data = encoded
	default:
		doc.Data = json.RawMessage("null")
	}
	return doc, nil
}

// List returns the stories of userID, or every story when userID is empty.
func (s *StoryService) List(ctx context.Context, userID string) ([]*domain.Metadata, error) {
	return s.objects.List(ctx, domain.TypeStory, userID)
}

// Get returns a story's metadata.
func (s *StoryService) Get(ctx context.Context, id string) (*domain.Metadata, error) {
	return s.objects.Find(ctx, domain.TypeStory, id)
}

// Data returns a story's content. format may be "mvsj" or "mvsx" to force
// one extension; any other value tries both.
func (s *StoryService) Data(ctx context.Context, id, format string) (*StoryData, error) {
	meta, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	format = strings.ToLower(strings.TrimSpace(format))
	if format != storage.StoryFormat(storage.ExtMVSJ) && format != storage.StoryFormat(storage.ExtMVSX) {
		format = ""
	}

	content, err := s.objects.ReadData(ctx, meta, format)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) && format != "" {
			return nil, domain.NewDomainError(domain.ErrNotFound, fmt.Sprintf("Story data not found in %s format", format), id)
		}
		return nil, err
	}

	data := &StoryData{Format: storage.StoryFormat(content.Extension)}
	if content.Extension == storage.ExtMVSX {
		data.Archive = content.Data
		return data, nil
	}

	doc, err := codec.DecodeStoryJSON(content.Data)
	if err != nil {
		s.logger.Error().Err(err).Str("story_id", id).Msg("stored story content is not valid JSON")
		return nil, domain.NewDomainError(domain.ErrNotFound, "Story data not found", id)
	}
	data.JSON = doc
	return data, nil
}

// Format reports whether a story is stored as mvsj or mvsx.
func (s *StoryService) Format(ctx context.Context, id string) (string, error) {
	meta, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.objects.DataFormat(ctx, meta)
}

// SessionData returns the session snapshot stored with a story.
func (s *StoryService) SessionData(ctx context.Context, id string) ([]byte, error) {
	meta, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.objects.ReadCompanionSession(ctx, meta)
}

// Update applies a validated update on behalf of identity. Replacement
// content is encoded for the extension the story is already stored under.
func (s *StoryService) Update(ctx context.Context, identity domain.Identity, id string, u *validation.Update) (*domain.Metadata, error) {
	if identity.Subject == "" {
		return nil, domain.ErrUnauthorized
	}

	patch := repository.Patch{
		Title:           u.Title,
		Description:     u.Description,
		Tags:            u.Tags,
		SessionSnapshot: u.SessionSnapshot,
	}
	if !u.Content.IsEmpty() {
		content := u.Content
		patch.Content = func(ext string) ([]byte, error) {
			resolved, err := s.validator.ResolveStoryContent(ext, content)
			if err != nil {
				return nil, err
			}
			encoded, err := codec.EncodeStory(ext, resolved)
			if err != nil {
				return nil, domain.NewValidationError("data", "%v", err)
			}
			return encoded, nil
		}
	}

	meta, err := s.objects.Update(ctx, domain.TypeStory, id, identity.Subject, patch)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("story_id", id).
		Str("user_id", identity.Subject).
		Strs("fields", u.Fields()).
		Msg("story updated")

	return meta, nil
}

// Delete removes a story and all of its files on behalf of identity.
func (s *StoryService) Delete(ctx context.Context, identity domain.Identity, id string) (*repository.DeleteResult, error) {
	if identity.Subject == "" {
		return nil, domain.ErrUnauthorized
	}

	result, err := s.objects.Delete(ctx, domain.TypeStory, id, identity.Subject)
	if err != nil {
		return nil, err
	}

	metrics.ObjectsDeletedTotal.WithLabelValues(domain.TypeStory.String()).Inc()
	return result, nil
}
