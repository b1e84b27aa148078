// Package repository is the data access layer of the stories service: the
// object repository that stores metadata and content side by side in the
// bucket, and the cache interface used for identity lookups.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mvstories/internal/domain"
	"github.com/prn-tf/mvstories/internal/storage"
)

// ObjectRepository implements create/read/list/update/delete of sessions and
// stories on top of an ObjectStore. It holds no state besides the store and
// performs no locking; every call is a fresh scan.
type ObjectRepository struct {
	store  storage.ObjectStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewObjectRepository creates a new ObjectRepository.
func NewObjectRepository(store storage.ObjectStore, logger zerolog.Logger) *ObjectRepository {
	return &ObjectRepository{
		store:  store,
		logger: logger.With().Str("component", "object_repository").Logger(),
		now:    time.Now,
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// CreateInput contains the data needed to create an object.
type CreateInput struct {
	Type        domain.ObjectType
	Filename    string
	Title       string
	Description string
	Tags        []string

	// Content is the encoded primary content.
	Content []byte

	// SessionSnapshot, for stories, is written as the companion session file.
	SessionSnapshot []byte
}

// Patch lists the changes of an update. Nil fields are left unchanged.
type Patch struct {
	Title       *string
	Description *string
	Tags        []string

	// Content, when non-nil, produces the new primary content encoded for the
	// extension the object is stored under.
	Content ContentFunc

	// SessionSnapshot replaces a story's companion session file when non-nil.
	SessionSnapshot []byte
}

// ContentFunc encodes replacement content for a stored extension.
type ContentFunc func(ext string) ([]byte, error)

// DeleteResult describes a deleted object.
type DeleteResult struct {
	Type         domain.ObjectType
	ID           string
	UserID       string
	DeletedFiles []string
}

// DeletionSummary is the result of deleting everything a user owns.
type DeletionSummary struct {
	UserID              string `json:"user_id"`
	SessionsDeleted     int    `json:"sessions_deleted"`
	StoriesDeleted      int    `json:"stories_deleted"`
	TotalObjectsDeleted int    `json:"total_objects_deleted"`
	Message             string `json:"message"`
}

// Content is the primary content of an object as stored.
type Content struct {
	Data        []byte
	Extension   string
	ContentType string
}

// =============================================================================
// Create
// =============================================================================

// Create writes a new object owned by identity. Metadata is written first,
// then content; if the content write fails the metadata is removed again on
// a best-effort basis and the original error is returned.
func (r *ObjectRepository) Create(ctx context.Context, in CreateInput, identity domain.Identity) (*domain.Metadata, error) {
	if !in.Type.IsValid() {
		return nil, domain.NewValidationError("type", "invalid data type: %s", in.Type)
	}
	if strings.TrimSpace(in.Filename) == "" {
		return nil, domain.NewValidationError("filename", "Filename is required for %s", in.Type)
	}
	if !storage.HasAllowedExtension(in.Type, in.Filename) {
		return nil, domain.NewValidationError("filename", "invalid file extension for %s: %s", in.Type, in.Filename)
	}

	meta := domain.NewMetadata(in.Type, identity, in.Title, in.Description, in.Tags, r.now())
	if err := meta.Validate(in.Type); err != nil {
		return nil, err
	}

	objectPath := storage.ObjectPath(identity.Subject, in.Type, meta.ID)
	ext := storage.DataExtension(in.Type, in.Filename)

	if err := r.putMetadata(ctx, objectPath, meta); err != nil {
		return nil, err
	}

	dataKey := storage.DataKey(objectPath, ext)
	if err := r.store.Put(ctx, dataKey, in.Content, storage.ContentType(in.Type, ext)); err != nil {
		r.logger.Error().Err(err).Str("key", dataKey).Msg("failed to write content, removing metadata")
		r.rollback(ctx, storage.MetadataKey(objectPath))
		return nil, storageError("put", dataKey, err)
	}

	if in.Type == domain.TypeStory && in.SessionSnapshot != nil {
		if err := r.putCompanion(ctx, objectPath, in.SessionSnapshot); err != nil {
			return nil, err
		}
	}

	r.logger.Info().
		Str("type", in.Type.String()).
		Str("id", meta.ID).
		Str("user_id", identity.Subject).
		Str("path", objectPath).
		Msg("object created")

	return meta, nil
}

func (r *ObjectRepository) rollback(ctx context.Context, key string) {
	// The request context may already be canceled; the cleanup still runs.
	cleanupCtx := context.WithoutCancel(ctx)
	if err := r.store.Remove(cleanupCtx, key); err != nil {
		r.logger.Error().Err(err).Str("key", key).Msg("failed to remove metadata after content write failure")
	}
}

// =============================================================================
// Read
// =============================================================================

// Find returns the object of type t with the given id, scanning every user.
// Returns domain.ErrNotFound when no object matches.
func (r *ObjectRepository) Find(ctx context.Context, t domain.ObjectType, id string) (*domain.Metadata, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "%s ID is required", t)
	}

	objects, err := r.List(ctx, t, "")
	if err != nil {
		return nil, err
	}
	for _, meta := range objects {
		if meta.ID == id {
			return meta, nil
		}
	}
	return nil, domain.NewDomainError(domain.ErrNotFound, fmt.Sprintf("%s not found", t), id)
}

// List returns the objects of type t owned by userID, or by every user when
// userID is empty. Corrupt or mismatched metadata is logged and skipped.
// Results are ordered by UpdatedAt, newest first.
func (r *ObjectRepository) List(ctx context.Context, t domain.ObjectType, userID string) ([]*domain.Metadata, error) {
	var prefixes []string
	if userID != "" {
		prefixes = []string{storage.TypePrefix(userID, t)}
	} else {
		users, err := r.userIDs(ctx)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			prefixes = append(prefixes, storage.TypePrefix(u, t))
		}
	}

	result := make([]*domain.Metadata, 0)
	for _, prefix := range prefixes {
		dirs, err := r.objectDirs(ctx, prefix)
		if err != nil {
			return nil, err
		}
		for _, dir := range dirs {
			meta, err := r.loadMetadata(ctx, dir, t)
			if err != nil {
				if errors.Is(err, domain.ErrStorageFailure) {
					return nil, err
				}
				r.logger.Warn().Err(err).Str("path", dir).Msg("skipping object with unreadable metadata")
				continue
			}
			result = append(result, meta)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt.Time) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt.Time)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// userIDs discovers every user namespace from the bucket root.
func (r *ObjectRepository) userIDs(ctx context.Context) ([]string, error) {
	entries, err := r.store.List(ctx, "", false)
	if err != nil {
		return nil, storageError("list", "", err)
	}

	var users []string
	for _, e := range entries {
		if !e.IsPrefix {
			continue
		}
		if u := strings.TrimSuffix(e.Key, "/"); u != "" {
			users = append(users, u)
		}
	}
	return users, nil
}

// objectDirs returns the distinct object directories below prefix, in key order.
func (r *ObjectRepository) objectDirs(ctx context.Context, prefix string) ([]string, error) {
	entries, err := r.store.List(ctx, prefix, true)
	if err != nil {
		return nil, storageError("list", prefix, err)
	}

	seen := make(map[string]struct{})
	var dirs []string
	for _, e := range entries {
		dir, ok := storage.ObjectDirFromKey(e.Key)
		if !ok {
			continue
		}
		if _, dup := seen[dir]; dup {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

// loadMetadata reads and validates the metadata of an object directory.
// A missing metadata file surfaces as domain.ErrNotFound.
func (r *ObjectRepository) loadMetadata(ctx context.Context, objectPath string, t domain.ObjectType) (*domain.Metadata, error) {
	key := storage.MetadataKey(objectPath)
	data, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, storageError("get", key, err)
	}

	meta, err := domain.DecodeMetadata(data)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrValidation, err.Error(), key)
	}
	if err := meta.Validate(t); err != nil {
		return nil, domain.NewDomainError(domain.ErrValidation, err.Error(), key)
	}
	return meta, nil
}

// CheckOwnership fails with a domain.AccessError unless requesterID created meta.
func CheckOwnership(meta *domain.Metadata, requesterID, action string) error {
	if meta.IsOwnedBy(requesterID) {
		return nil
	}
	return &domain.AccessError{
		Type:        meta.Type,
		ID:          meta.ID,
		CreatorID:   meta.Creator.ID,
		RequesterID: requesterID,
		Action:      action,
	}
}

// ReadData returns the primary content of an object. For stories the stored
// extension is discovered by trying .mvsj then .mvsx; format, when not empty,
// restricts the lookup to that extension.
func (r *ObjectRepository) ReadData(ctx context.Context, meta *domain.Metadata, format string) (*Content, error) {
	objectPath := pathOf(meta)

	candidates := []string{storage.ExtSession}
	if meta.Type == domain.TypeStory {
		candidates = []string{storage.ExtMVSJ, storage.ExtMVSX}
		if format != "" {
			candidates = []string{"." + strings.TrimPrefix(format, ".")}
		}
	}

	for _, ext := range candidates {
		key := storage.DataKey(objectPath, ext)
		data, err := r.store.Get(ctx, key)
		if errors.Is(err, storage.ErrObjectNotFound) {
			continue
		}
		if err != nil {
			return nil, storageError("get", key, err)
		}
		return &Content{Data: data, Extension: ext, ContentType: storage.ContentType(meta.Type, ext)}, nil
	}
	return nil, domain.NewDomainError(domain.ErrNotFound, fmt.Sprintf("%s data not found", meta.Type), meta.ID)
}

// DataFormat reports the stored format of a story ("mvsj" or "mvsx") by
// checking which content file exists.
func (r *ObjectRepository) DataFormat(ctx context.Context, meta *domain.Metadata) (string, error) {
	ext, err := r.storyExtension(ctx, pathOf(meta))
	if err != nil {
		return "", err
	}
	return storage.StoryFormat(ext), nil
}

func (r *ObjectRepository) storyExtension(ctx context.Context, objectPath string) (string, error) {
	for _, ext := range []string{storage.ExtMVSJ, storage.ExtMVSX} {
		key := storage.DataKey(objectPath, ext)
		_, err := r.store.Stat(ctx, key)
		if err == nil {
			return ext, nil
		}
		if !errors.Is(err, storage.ErrObjectNotFound) {
			return "", storageError("stat", key, err)
		}
	}
	return "", domain.NewDomainError(domain.ErrNotFound, "story data not found", objectPath)
}

// ReadCompanionSession returns the session snapshot stored next to a story.
func (r *ObjectRepository) ReadCompanionSession(ctx context.Context, meta *domain.Metadata) ([]byte, error) {
	key := storage.CompanionSessionKey(pathOf(meta))
	data, err := r.store.Get(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, domain.NewDomainError(domain.ErrNotFound, "session data not found for story", meta.ID)
	}
	if err != nil {
		return nil, storageError("get", key, err)
	}
	return data, nil
}

// StoredExtension returns the extension the object's content is stored under.
func (r *ObjectRepository) StoredExtension(ctx context.Context, meta *domain.Metadata) (string, error) {
	if meta.Type != domain.TypeStory {
		return storage.ExtSession, nil
	}
	return r.storyExtension(ctx, pathOf(meta))
}

// =============================================================================
// Update
// =============================================================================

// Update applies patch to the object of type t with the given id. Only the
// creator may update. Metadata is re-validated before anything is written;
// content follows the metadata write.
func (r *ObjectRepository) Update(ctx context.Context, t domain.ObjectType, id, requesterID string, patch Patch) (*domain.Metadata, error) {
	if requesterID == "" {
		return nil, domain.ErrUnauthorized
	}

	current, err := r.Find(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if err := CheckOwnership(current, requesterID, "modify"); err != nil {
		return nil, err
	}

	updated := current.Clone()
	if patch.Title != nil {
		updated.Title = *patch.Title
	}
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if patch.Tags != nil {
		updated.Tags = append([]string{}, patch.Tags...)
	}
	updated.Touch(r.now())

	if err := updated.Validate(t); err != nil {
		return nil, err
	}

	objectPath := pathOf(updated)

	// Content is resolved and encoded before the metadata write so a bad
	// payload fails the update without touching anything.
	var dataKey, ext string
	var content []byte
	if patch.Content != nil {
		ext, err = r.StoredExtension(ctx, updated)
		if errors.Is(err, domain.ErrNotFound) {
			// A story without a content file is repaired as JSON.
			ext = storage.ExtMVSJ
		} else if err != nil {
			return nil, err
		}
		content, err = patch.Content(ext)
		if err != nil {
			return nil, err
		}
		dataKey = storage.DataKey(objectPath, ext)
	}

	if err := r.putMetadata(ctx, objectPath, updated); err != nil {
		return nil, err
	}

	if patch.Content != nil {
		if err := r.store.Put(ctx, dataKey, content, storage.ContentType(t, ext)); err != nil {
			return nil, storageError("put", dataKey, err)
		}
	}

	if t == domain.TypeStory && patch.SessionSnapshot != nil {
		if err := r.putCompanion(ctx, objectPath, patch.SessionSnapshot); err != nil {
			return nil, err
		}
	}

	r.logger.Info().
		Str("type", t.String()).
		Str("id", id).
		Str("user_id", requesterID).
		Bool("content", patch.Content != nil).
		Msg("object updated")

	return updated, nil
}

// =============================================================================
// Delete
// =============================================================================

// Delete removes the object of type t with the given id. Only the creator may
// delete. Stories are removed by prefix scan since their content extension
// and companion files are not known statically.
func (r *ObjectRepository) Delete(ctx context.Context, t domain.ObjectType, id, requesterID string) (*DeleteResult, error) {
	if requesterID == "" {
		return nil, domain.ErrUnauthorized
	}

	meta, err := r.Find(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if err := CheckOwnership(meta, requesterID, "modify"); err != nil {
		return nil, err
	}

	objectPath := pathOf(meta)
	metadataKey := storage.MetadataKey(objectPath)
	if err := r.store.Remove(ctx, metadataKey); err != nil {
		return nil, storageError("remove", metadataKey, err)
	}
	deleted := []string{metadataKey}

	if t == domain.TypeSession {
		dataKey := storage.DataKey(objectPath, storage.ExtSession)
		if err := r.store.Remove(ctx, dataKey); err != nil {
			return nil, storageError("remove", dataKey, err)
		}
		deleted = append(deleted, dataKey)
	} else {
		entries, err := r.store.List(ctx, objectPath+"/", true)
		if err != nil {
			return nil, storageError("list", objectPath, err)
		}
		for _, e := range entries {
			if e.Key == metadataKey {
				continue
			}
			if err := r.store.Remove(ctx, e.Key); err != nil {
				return nil, storageError("remove", e.Key, err)
			}
			deleted = append(deleted, e.Key)
		}
		if len(deleted) == 1 {
			r.logger.Warn().Str("path", objectPath).Msg("no data files found for story")
		}
	}

	r.logger.Info().
		Str("type", t.String()).
		Str("id", id).
		Str("user_id", requesterID).
		Int("files", len(deleted)).
		Msg("object deleted")

	return &DeleteResult{Type: t, ID: id, UserID: requesterID, DeletedFiles: deleted}, nil
}

// DeleteAllForUser removes every key in the user's namespace. Individual
// removal failures are logged and skipped. Sessions and stories are counted
// per object directory; TotalObjectsDeleted is the number of files removed.
func (r *ObjectRepository) DeleteAllForUser(ctx context.Context, userID string) (*DeletionSummary, error) {
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "User ID is required for deletion")
	}

	prefix := storage.UserPrefix(userID)
	entries, err := r.store.List(ctx, prefix, true)
	if err != nil {
		return nil, storageError("list", prefix, err)
	}

	summary := &DeletionSummary{UserID: userID}
	if len(entries) == 0 {
		summary.Message = "No data found for user"
		return summary, nil
	}

	sessionDirs := make(map[string]struct{})
	storyDirs := make(map[string]struct{})
	sessionPlural := storage.PluralType(domain.TypeSession)
	storyPlural := storage.PluralType(domain.TypeStory)

	for _, e := range entries {
		if err := r.store.Remove(ctx, e.Key); err != nil {
			r.logger.Error().Err(err).Str("key", e.Key).Msg("failed to delete object")
			continue
		}
		summary.TotalObjectsDeleted++

		ref, ok := storage.ParseObjectKey(e.Key)
		if !ok {
			continue
		}
		switch ref.Plural {
		case sessionPlural:
			sessionDirs[ref.Path()] = struct{}{}
		case storyPlural:
			storyDirs[ref.Path()] = struct{}{}
		}
	}

	summary.SessionsDeleted = len(sessionDirs)
	summary.StoriesDeleted = len(storyDirs)
	summary.Message = "Successfully deleted all data for user " + userID

	r.logger.Info().
		Str("user_id", userID).
		Int("sessions", summary.SessionsDeleted).
		Int("stories", summary.StoriesDeleted).
		Int("files", summary.TotalObjectsDeleted).
		Msg("deleted all user data")

	return summary, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (r *ObjectRepository) putMetadata(ctx context.Context, objectPath string, meta *domain.Metadata) error {
	data, err := meta.Encode()
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	key := storage.MetadataKey(objectPath)
	if err := r.store.Put(ctx, key, data, storage.ContentTypeJSON); err != nil {
		return storageError("put", key, err)
	}
	return nil
}

func (r *ObjectRepository) putCompanion(ctx context.Context, objectPath string, snapshot []byte) error {
	key := storage.CompanionSessionKey(objectPath)
	if err := r.store.Put(ctx, key, snapshot, storage.ContentTypeMsgpack); err != nil {
		return storageError("put", key, err)
	}
	return nil
}

func pathOf(meta *domain.Metadata) string {
	return storage.ObjectPath(meta.Creator.ID, meta.Type, meta.ID)
}

// storageError normalizes store errors: not-found becomes domain.ErrNotFound,
// anything not already a storage failure is wrapped as one.
func storageError(op, key string, err error) error {
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return domain.NewDomainError(domain.ErrNotFound, "object not found", key)
	case errors.Is(err, domain.ErrStorageFailure):
		return err
	default:
		return &domain.StorageError{Op: op, Key: key, Err: err}
	}
}
