package repository

import (
	"context"

	"github.com/prn-tf/mvstories/internal/domain"
)

// Objects defines the object operations the service layer depends on.
// ObjectRepository is the only production implementation.
type Objects interface {
	// Create writes a new object owned by identity.
	Create(ctx context.Context, in CreateInput, identity domain.Identity) (*domain.Metadata, error)

	// Find returns the object of type t with the given id.
	// Returns domain.ErrNotFound if no object matches.
	Find(ctx context.Context, t domain.ObjectType, id string) (*domain.Metadata, error)

	// List returns objects of type t, restricted to userID when not empty.
	List(ctx context.Context, t domain.ObjectType, userID string) ([]*domain.Metadata, error)

	// Update applies patch on behalf of requesterID.
	Update(ctx context.Context, t domain.ObjectType, id, requesterID string, patch Patch) (*domain.Metadata, error)

	// Delete removes an object on behalf of requesterID.
	Delete(ctx context.Context, t domain.ObjectType, id, requesterID string) (*DeleteResult, error)

	// DeleteAllForUser removes everything in a user's namespace.
	DeleteAllForUser(ctx context.Context, userID string) (*DeletionSummary, error)

	// ReadData returns an object's primary content.
	ReadData(ctx context.Context, meta *domain.Metadata, format string) (*Content, error)

	// DataFormat reports whether a story is stored as mvsj or mvsx.
	DataFormat(ctx context.Context, meta *domain.Metadata) (string, error)

	// ReadCompanionSession returns the session snapshot stored with a story.
	ReadCompanionSession(ctx context.Context, meta *domain.Metadata) ([]byte, error)
}

// Ensure ObjectRepository implements Objects.
var _ Objects = (*ObjectRepository)(nil)
