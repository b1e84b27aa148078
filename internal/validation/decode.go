package validation

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/prn-tf/mvstories/internal/domain"
)

// DecodeJSON decodes a single JSON object from r into dst. Unknown fields,
// trailing data and type mismatches are validation errors. An exhausted
// http.MaxBytesReader surfaces as a PayloadTooLargeError.
func DecodeJSON(r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if dec.More() {
		return domain.NewValidationError("", "unexpected data after JSON body")
	}
	return nil
}

func decodeError(err error) error {
	var maxBytesErr *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError

	switch {
	case errors.As(err, &maxBytesErr):
		return &domain.PayloadTooLargeError{Limit: maxBytesErr.Limit}
	case errors.Is(err, io.EOF):
		return domain.NewValidationError("", "No data provided")
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			return domain.NewValidationError("", "request body must be a JSON object")
		}
		return domain.NewValidationError(field, "expected %s", typeErr.Type)
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return domain.NewValidationError("", "malformed JSON body")
	}

	// encoding/json reports unknown fields as `json: unknown field "name"`.
	if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return domain.NewValidationError(strings.Trim(field, `"`), "extra fields not permitted")
	}
	return domain.NewValidationError("", "invalid JSON body: %v", err)
}

// decodeBase64 applies the character ceiling before decoding and the byte
// ceiling after.
func (v *Validator) decodeBase64(field, s string) ([]byte, error) {
	if strings.TrimSpace(s) == "" {
		return nil, domain.NewValidationError(field, "cannot be empty")
	}
	if int64(len(s)) > v.limits.MaxBase64Chars() {
		return nil, domain.NewValidationError(field, "too large: %d characters (max: %d characters for %dMB)",
			len(s), v.limits.MaxBase64Chars(), v.limits.MaxUploadMB())
	}

	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, domain.NewValidationError(field, "invalid base64 encoding: %v", err)
	}
	if int64(len(decoded)) > v.limits.MaxUploadBytes {
		return nil, domain.NewValidationError(field, "too large: %d bytes (max: %d bytes)",
			len(decoded), v.limits.MaxUploadBytes)
	}
	return decoded, nil
}

// checkJSONSize compacts raw and applies the serialized-size ceiling.
func (v *Validator) checkJSONSize(field string, raw json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, domain.NewValidationError(field, "is not valid JSON: %v", err)
	}
	if int64(buf.Len()) > v.limits.MaxUploadBytes {
		return nil, domain.NewValidationError(field, "too large: %d bytes (max: %d bytes)",
			buf.Len(), v.limits.MaxUploadBytes)
	}
	return json.RawMessage(buf.Bytes()), nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func fieldRequired(field string) error {
	return domain.NewValidationError(field, "%s is required", fieldLabel(field))
}

func fieldLabel(field string) string {
	if field == "" {
		return "value"
	}
	return strings.ToUpper(field[:1]) + field[1:]
}

func mustHaveExtension(filename string, t domain.ObjectType, allowed []string) error {
	for _, ext := range allowed {
		if strings.HasSuffix(filename, ext) {
			return nil
		}
	}
	switch t {
	case domain.TypeSession:
		return domain.NewValidationError("filename", "Session files must have .mvstory extension")
	default:
		return domain.NewValidationError("filename", "Story files must have %s extension", strings.Join(allowed, " or "))
	}
}

var errNoUpdateFields = domain.NewValidationError("", "No valid update data provided")
