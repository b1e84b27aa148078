package validation

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/prn-tf/mvstories/internal/codec"
	"github.com/prn-tf/mvstories/internal/domain"
	"github.com/prn-tf/mvstories/internal/storage"
)

// Validator decodes and checks create/update requests against the limits.
type Validator struct {
	limits Limits
}

// New creates a Validator.
func New(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// Limits returns the configured ceilings.
func (v *Validator) Limits() Limits {
	return v.limits
}

// SessionCreate is a validated session create request.
type SessionCreate struct {
	Filename    string
	Title       string
	Description string
	Tags        []string

	// Content is the session blob exactly as it will be stored.
	Content []byte
}

// StoryCreate is a validated story create request.
type StoryCreate struct {
	Filename    string
	Title       string
	Description string
	Tags        []string
	Content     domain.Payload
}

// Update is a validated update request. Nil fields are left unchanged.
type Update struct {
	Title       *string
	Description *string

	// Tags replaces the tag list when non-nil.
	Tags []string

	// Content replaces the primary content when not PayloadNone.
	Content domain.Payload

	// SessionSnapshot, for stories, replaces the companion session file.
	SessionSnapshot []byte
}

// IsEmpty reports whether the update changes nothing.
func (u *Update) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Tags == nil &&
		u.Content.IsEmpty() && u.SessionSnapshot == nil
}

// Fields lists the names of the fields the update touches, for logging.
func (u *Update) Fields() []string {
	var fields []string
	if u.Title != nil {
		fields = append(fields, "title")
	}
	if u.Description != nil {
		fields = append(fields, "description")
	}
	if u.Tags != nil {
		fields = append(fields, "tags")
	}
	if !u.Content.IsEmpty() {
		fields = append(fields, "data")
	}
	if u.SessionSnapshot != nil {
		fields = append(fields, "session_data")
	}
	return fields
}

type createBody struct {
	Filename    string          `json:"filename"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	Data        json.RawMessage `json:"data"`
}

type sessionUpdateBody struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
	Data        *string  `json:"data"`
}

type storyUpdateBody struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Tags        []string        `json:"tags"`
	Data        json.RawMessage `json:"data"`
	SessionData *string         `json:"session_data"`
}

// SessionCreateJSON validates a JSON session create body whose data is a
// base64 encoded session blob.
func (v *Validator) SessionCreateJSON(r io.Reader) (*SessionCreate, error) {
	var body createBody
	if err := DecodeJSON(r, &body); err != nil {
		return nil, err
	}

	in, err := v.sessionHeader(body.Filename, body.Title, body.Description, body.Tags)
	if err != nil {
		return nil, err
	}

	if isNull(body.Data) {
		return nil, fieldRequired("data")
	}
	var encoded string
	if err := json.Unmarshal(body.Data, &encoded); err != nil {
		return nil, domain.NewValidationError("data", "Session data must be a base64-encoded string")
	}
	content, err := v.sessionBlobFromBase64("data", encoded)
	if err != nil {
		return nil, err
	}
	in.Content = content
	return in, nil
}

// sessionHeader checks the descriptive fields shared by JSON and form creates.
func (v *Validator) sessionHeader(filename, title, description string, tags []string) (*SessionCreate, error) {
	filename = strings.TrimSpace(filename)
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)

	if title == "" {
		return nil, fieldRequired("title")
	}
	if filename == "" {
		return nil, fieldRequired("filename")
	}
	if err := mustHaveExtension(filename, domain.TypeSession, storage.AllowedExtensions(domain.TypeSession)); err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []string{}
	}
	if err := domain.ValidateFields(title, description, tags); err != nil {
		return nil, err
	}

	return &SessionCreate{
		Filename:    filename,
		Title:       title,
		Description: description,
		Tags:        tags,
	}, nil
}

func (v *Validator) sessionBlobFromBase64(field, encoded string) ([]byte, error) {
	decoded, err := v.decodeBase64(field, encoded)
	if err != nil {
		return nil, err
	}
	return v.checkSessionBlob(field, decoded)
}

// checkSessionBlob applies the byte ceiling and requires a (possibly
// deflated) msgpack value.
func (v *Validator) checkSessionBlob(field string, blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, domain.NewValidationError(field, "cannot be empty")
	}
	if int64(len(blob)) > v.limits.MaxUploadBytes {
		return nil, &domain.PayloadTooLargeError{Limit: v.limits.MaxUploadBytes, Received: int64(len(blob))}
	}
	if err := codec.ValidateSessionUpload(blob, v.limits.InflateLimit()); err != nil {
		return nil, domain.NewValidationError(field, "Invalid session file format: %v", err)
	}
	return blob, nil
}

// SessionUpdateJSON validates a JSON session update body.
func (v *Validator) SessionUpdateJSON(r io.Reader) (*Update, error) {
	var body sessionUpdateBody
	if err := DecodeJSON(r, &body); err != nil {
		return nil, err
	}

	u := &Update{Title: body.Title, Description: body.Description, Tags: body.Tags}
	if body.Data != nil {
		blob, err := v.sessionBlobFromBase64("data", *body.Data)
		if err != nil {
			return nil, err
		}
		u.Content = domain.Base64Payload(blob)
	}
	return u, v.checkUpdate(u)
}

// StoryCreateJSON validates a JSON story create body. For .mvsx stories a
// string data is a base64 ZIP archive; any other data is a JSON document.
func (v *Validator) StoryCreateJSON(r io.Reader) (*StoryCreate, error) {
	var body createBody
	if err := DecodeJSON(r, &body); err != nil {
		return nil, err
	}

	filename := strings.TrimSpace(body.Filename)
	if filename == "" {
		return nil, domain.NewValidationError("filename", "Filename cannot be empty")
	}
	if err := mustHaveExtension(filename, domain.TypeStory, storage.AllowedExtensions(domain.TypeStory)); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(body.Title)
	if title == "" {
		return nil, fieldRequired("title")
	}

	tags := body.Tags
	if tags == nil {
		tags = []string{}
	}
	if err := domain.ValidateFields(title, body.Description, tags); err != nil {
		return nil, err
	}

	if isNull(body.Data) {
		return nil, fieldRequired("data")
	}
	content, err := v.storyPayload(storage.DataExtension(domain.TypeStory, filename), body.Data)
	if err != nil {
		return nil, err
	}

	return &StoryCreate{
		Filename:    filename,
		Title:       title,
		Description: body.Description,
		Tags:        tags,
		Content:     content,
	}, nil
}

// StoryUpdateJSON validates a JSON story update body. The content format is
// resolved later against the stored extension with ResolveStoryContent.
func (v *Validator) StoryUpdateJSON(r io.Reader) (*Update, error) {
	var body storyUpdateBody
	if err := DecodeJSON(r, &body); err != nil {
		return nil, err
	}

	u := &Update{Title: body.Title, Description: body.Description, Tags: body.Tags}
	if !isNull(body.Data) {
		content, err := v.storyUpdateContent(body.Data)
		if err != nil {
			return nil, err
		}
		u.Content = content
	}
	if body.SessionData != nil {
		blob, err := v.sessionBlobFromBase64("session_data", *body.SessionData)
		if err != nil {
			return nil, err
		}
		u.SessionSnapshot = blob
	}
	return u, v.checkUpdate(u)
}

// storyUpdateContent applies the ceiling matching the shape of data: the
// base64 character ceiling for strings, the serialized size otherwise.
func (v *Validator) storyUpdateContent(raw json.RawMessage) (domain.Payload, error) {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if int64(len(encoded)) > v.limits.MaxBase64Chars() {
			return domain.Payload{}, domain.NewValidationError("data", "too large: %d characters (max: %d characters for %dMB)",
				len(encoded), v.limits.MaxBase64Chars(), v.limits.MaxUploadMB())
		}
		return domain.JSONPayload(raw), nil
	}

	compact, err := v.checkJSONSize("data", raw)
	if err != nil {
		return domain.Payload{}, err
	}
	return domain.JSONPayload(compact), nil
}

// ResolveStoryContent converts a JSON update payload into the payload a story
// stored with ext expects.
func (v *Validator) ResolveStoryContent(ext string, p domain.Payload) (domain.Payload, error) {
	if p.Kind != domain.PayloadJSON {
		return p, nil
	}
	return v.storyPayload(ext, p.JSON)
}

func (v *Validator) storyPayload(ext string, raw json.RawMessage) (domain.Payload, error) {
	if ext == storage.ExtMVSX {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err == nil {
			decoded, err := v.decodeBase64("data", encoded)
			if err != nil {
				return domain.Payload{}, err
			}
			p := domain.Base64Payload(decoded)
			if _, err := codec.ValidateMVSX(p); err != nil {
				return domain.Payload{}, domain.NewValidationError("data", "Data is not valid MVSX format: %v", err)
			}
			return p, nil
		}
	}

	compact, err := v.checkJSONSize("data", raw)
	if err != nil {
		return domain.Payload{}, err
	}
	p := domain.JSONPayload(compact)
	if ext == storage.ExtMVSX {
		if _, err := codec.ValidateMVSX(p); err != nil {
			return domain.Payload{}, domain.NewValidationError("data", "Data is not valid MVSX format: %v", err)
		}
	}
	return p, nil
}

func (v *Validator) checkUpdate(u *Update) error {
	if u.IsEmpty() {
		return errNoUpdateFields
	}
	title, description := "", ""
	if u.Title != nil {
		title = *u.Title
	}
	if u.Description != nil {
		description = *u.Description
	}
	return domain.ValidateFields(title, description, u.Tags)
}
