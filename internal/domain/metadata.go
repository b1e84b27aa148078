package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ObjectType is the kind of stored object. The type is also the visibility policy:
// sessions are private to their creator, stories are readable by anyone.
type ObjectType string

const (
	// TypeSession is private, user-owned editor state.
	TypeSession ObjectType = "session"

	// TypeStory is public, shareable published content.
	TypeStory ObjectType = "story"
)

// IsValid checks if the object type is known.
func (t ObjectType) IsValid() bool {
	return t == TypeSession || t == TypeStory
}

// IsPublic reports whether objects of this type are readable without ownership.
func (t ObjectType) IsPublic() bool {
	return t == TypeStory
}

// String returns the string representation.
func (t ObjectType) String() string {
	return string(t)
}

// ParseObjectType converts a string to an ObjectType.
func ParseObjectType(s string) (ObjectType, error) {
	t := ObjectType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", NewValidationError("type", "unknown object type %q", s)
	}
	return t, nil
}

// Metadata constraints.
const (
	// MetadataVersion is the schema version written into every record.
	MetadataVersion = "1.0"

	// MaxTitleLength is the maximum title length in characters.
	MaxTitleLength = 200

	// MaxDescriptionLength is the maximum description length in characters.
	MaxDescriptionLength = 2000

	// MaxTags is the maximum number of tags per object.
	MaxTags = 20

	// MaxTagLength is the maximum length of a single tag in characters.
	MaxTagLength = 50

	// ObjectIDLength is the length of generated object ids.
	ObjectIDLength = 8
)

// Creator identifies the user who created an object. It never changes after creation.
type Creator struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Metadata is the JSON record stored next to every object's content.
// It is the authoritative owner of the object's lifecycle.
type Metadata struct {
	// ID is the short object identifier, immutable.
	ID string `json:"id"`

	// Type is session or story, immutable.
	Type ObjectType `json:"type"`

	// CreatedAt is when the object was created (UTC).
	CreatedAt Timestamp `json:"created_at"`

	// UpdatedAt advances on every metadata or content mutation (UTC).
	UpdatedAt Timestamp `json:"updated_at"`

	// Creator is captured from the authenticated identity at creation.
	Creator Creator `json:"creator"`

	// Title is a human readable title.
	Title string `json:"title"`

	// Description is a longer free-text description.
	Description string `json:"description"`

	// Tags is an ordered list of labels.
	Tags []string `json:"tags"`

	// Version is the schema version, currently MetadataVersion.
	Version string `json:"version"`
}

// NewObjectID generates a short object identifier from a random UUID.
func NewObjectID() string {
	return uuid.NewString()[:ObjectIDLength]
}

// NewMetadata builds the metadata record for a new object owned by identity.
func NewMetadata(t ObjectType, identity Identity, title, description string, tags []string, now time.Time) *Metadata {
	ts := NewTimestamp(now)
	return &Metadata{
		ID:          NewObjectID(),
		Type:        t,
		CreatedAt:   ts,
		UpdatedAt:   ts,
		Creator:     identity.Creator(),
		Title:       title,
		Description: description,
		Tags:        normalizeTags(tags),
		Version:     MetadataVersion,
	}
}

// IsOwnedBy reports whether subject is the creator of the object.
func (m *Metadata) IsOwnedBy(subject string) bool {
	return subject != "" && m.Creator.ID == subject
}

// Touch stamps UpdatedAt.
func (m *Metadata) Touch(now time.Time) {
	m.UpdatedAt = NewTimestamp(now)
}

// Clone returns a deep copy of the record.
func (m *Metadata) Clone() *Metadata {
	c := *m
	c.Tags = append([]string(nil), m.Tags...)
	return &c
}

// Validate enforces the metadata schema for the expected type.
func (m *Metadata) Validate(expected ObjectType) error {
	if m.ID == "" {
		return NewValidationError("id", "is required")
	}
	if !m.Type.IsValid() {
		return NewValidationError("type", "unknown object type %q", m.Type)
	}
	if m.Type != expected {
		return NewValidationError("type", "expected %s, got %s", expected, m.Type)
	}
	if m.CreatedAt.IsZero() {
		return NewValidationError("created_at", "is required")
	}
	if m.UpdatedAt.IsZero() {
		return NewValidationError("updated_at", "is required")
	}
	if m.Creator.ID == "" {
		return NewValidationError("creator.id", "is required")
	}
	if m.Version == "" {
		return NewValidationError("version", "is required")
	}
	return ValidateFields(m.Title, m.Description, m.Tags)
}

// ValidateFields checks the user-editable fields against their bounds.
func ValidateFields(title, description string, tags []string) error {
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return NewValidationError("title", "must be %d characters or less", MaxTitleLength)
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return NewValidationError("description", "must be %d characters or less", MaxDescriptionLength)
	}
	if len(tags) > MaxTags {
		return NewValidationError("tags", "maximum %d tags allowed", MaxTags)
	}
	for i, tag := range tags {
		if utf8.RuneCountInString(tag) > MaxTagLength {
			return NewValidationError(fmt.Sprintf("tags[%d]", i), "must be %d characters or less", MaxTagLength)
		}
	}
	return nil
}

// Encode serializes the record as stored in metadata.json.
func (m *Metadata) Encode() ([]byte, error) {
	out := *m
	out.Tags = normalizeTags(m.Tags)
	return json.MarshalIndent(&out, "", "  ")
}

// DecodeMetadata parses a stored metadata.json strictly: unknown fields are rejected.
func DecodeMetadata(data []byte) (*Metadata, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var m Metadata
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	m.Tags = normalizeTags(m.Tags)
	return &m, nil
}

func normalizeTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
