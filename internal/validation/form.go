package validation

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"strings"

	"github.com/prn-tf/mvstories/internal/domain"
)

const formFileField = "file"

var (
	sessionCreateFormFields = []string{"filename", "title", "description", "tags"}
	sessionUpdateFormFields = []string{"title", "description", "tags"}
)

// SessionCreateForm validates a multipart session create: filename, title,
// description, tags (a JSON array string) and the session file.
func (v *Validator) SessionCreateForm(form *multipart.Form) (*SessionCreate, error) {
	if err := checkFormFields(form, sessionCreateFormFields); err != nil {
		return nil, err
	}

	tags, err := parseFormTags(formValue(form, "tags"))
	if err != nil {
		return nil, err
	}
	in, err := v.sessionHeader(formValue(form, "filename"), formValue(form, "title"), formValue(form, "description"), tags)
	if err != nil {
		return nil, err
	}

	fh := formFile(form)
	if fh == nil {
		return nil, domain.NewValidationError(formFileField, "File is required")
	}
	blob, err := v.readFormFile(fh)
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return nil, domain.NewValidationError(formFileField, "File cannot be empty")
	}
	if in.Content, err = v.checkSessionBlob(formFileField, blob); err != nil {
		return nil, err
	}
	return in, nil
}

// SessionUpdateForm validates a multipart session update. Every field is
// optional; an empty title or an empty file is ignored.
func (v *Validator) SessionUpdateForm(form *multipart.Form) (*Update, error) {
	if err := checkFormFields(form, sessionUpdateFormFields); err != nil {
		return nil, err
	}

	u := &Update{}
	if values, ok := form.Value["title"]; ok && len(values) > 0 {
		if title := strings.TrimSpace(values[0]); title != "" {
			u.Title = &title
		}
	}
	if values, ok := form.Value["description"]; ok && len(values) > 0 {
		description := strings.TrimSpace(values[0])
		u.Description = &description
	}
	if values, ok := form.Value["tags"]; ok && len(values) > 0 {
		tags, err := parseFormTags(values[0])
		if err != nil {
			return nil, err
		}
		u.Tags = tags
	}

	if fh := formFile(form); fh != nil {
		blob, err := v.readFormFile(fh)
		if err != nil {
			return nil, err
		}
		if len(blob) > 0 {
			if _, err := v.checkSessionBlob(formFileField, blob); err != nil {
				return nil, err
			}
			u.Content = domain.RawPayload(blob)
		}
	}

	return u, v.checkUpdate(u)
}

func checkFormFields(form *multipart.Form, allowed []string) error {
	if form == nil {
		return domain.NewValidationError("", "No data provided")
	}
	for name := range form.Value {
		if !contains(allowed, name) {
			return domain.NewValidationError(name, "extra fields not permitted")
		}
	}
	for name := range form.File {
		if name != formFileField {
			return domain.NewValidationError(name, "extra fields not permitted")
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func formValue(form *multipart.Form, name string) string {
	if values := form.Value[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func formFile(form *multipart.Form) *multipart.FileHeader {
	files := form.File[formFileField]
	if len(files) == 0 || files[0].Filename == "" {
		return nil
	}
	return files[0]
}

// parseFormTags decodes the tags form value, a JSON array of strings.
func parseFormTags(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, domain.NewValidationError("tags", "Invalid tags format: Tags must be an array of strings")
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

func (v *Validator) readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > v.limits.MaxUploadBytes {
		return nil, &domain.PayloadTooLargeError{Limit: v.limits.MaxUploadBytes, Received: fh.Size}
	}

	f, err := fh.Open()
	if err != nil {
		return nil, domain.NewValidationError(formFileField, "Error reading file: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, v.limits.MaxUploadBytes+1))
	if err != nil {
		return nil, domain.NewValidationError(formFileField, "Error reading file: %v", err)
	}
	if int64(len(data)) > v.limits.MaxUploadBytes {
		return nil, &domain.PayloadTooLargeError{Limit: v.limits.MaxUploadBytes, Received: int64(len(data))}
	}
	return data, nil
}
