// Package codec encodes and decodes stored content: session blobs across their
// three historical encodings, story documents (.mvsj JSON, .mvsx ZIP) and the
// base64 conversion applied to binary values embedded in JSON responses.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/zlib"
	"github.com/vmihailenco/msgpack/v5"
)

// SessionFormat identifies the encoding generation of a stored session blob.
type SessionFormat int

const (
	// FormatCurrent is raw client bytes (msgpack, optionally zlib-deflated), stored as-is.
	FormatCurrent SessionFormat = iota

	// FormatLegacyWrapper is a msgpack map whose "data" key holds the payload.
	FormatLegacyWrapper

	// FormatOldRaw is a msgpack value without the wrapper map.
	FormatOldRaw
)

// String returns the format name used in logs.
func (f SessionFormat) String() string {
	switch f {
	case FormatLegacyWrapper:
		return "legacy_wrapper"
	case FormatOldRaw:
		return "old_raw"
	default:
		return "current"
	}
}

// wrapperDataKey is the payload key of the legacy wrapper format.
const wrapperDataKey = "data"

// SessionContent is a decoded session blob.
type SessionContent struct {
	// Format is the detected encoding.
	Format SessionFormat

	// Value is the payload: the "data" value for the legacy wrapper, the decoded
	// value for old raw blobs, and the untouched bytes for the current format.
	Value any
}

// DecodeSession detects the encoding of a stored session blob. It never fails:
// a blob that is not a complete msgpack value is current-format binary.
// The legacy wrapper is checked before the old raw format.
func DecodeSession(blob []byte) SessionContent {
	parsed, err := UnpackMsgpack(blob)
	if err != nil {
		return SessionContent{Format: FormatCurrent, Value: blob}
	}

	if m, ok := parsed.(map[string]any); ok {
		if payload, ok := m[wrapperDataKey]; ok {
			return SessionContent{Format: FormatLegacyWrapper, Value: payload}
		}
	}
	return SessionContent{Format: FormatOldRaw, Value: parsed}
}

// SessionJSON returns the JSON-safe representation served by the session data
// endpoint: the detected payload with every binary value base64 encoded.
func SessionJSON(blob []byte) (any, SessionFormat) {
	content := DecodeSession(blob)
	return Base64Walk(content.Value), content.Format
}

// LegacyWrapperFields are the descriptive fields the legacy wrapper carried next to the payload.
type LegacyWrapperFields struct {
	Filename    string
	Title       string
	Description string
	Tags        []string
}

// EncodeLegacyWrapper writes payload in the legacy wrapper format.
func EncodeLegacyWrapper(fields LegacyWrapperFields, payload []byte) ([]byte, error) {
	tags := fields.Tags
	if tags == nil {
		tags = []string{}
	}
	return packSorted(map[string]any{
		"filename":     fields.Filename,
		"title":        fields.Title,
		"description":  fields.Description,
		"tags":         tags,
		wrapperDataKey: payload,
	})
}

// EncodeOldRaw writes value in the old raw format (a bare msgpack value).
func EncodeOldRaw(value any) ([]byte, error) {
	return packSorted(value)
}

func packSorted(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	return buf.Bytes(), nil
}

// ErrTrailingData is returned when a buffer holds more than one msgpack value.
var ErrTrailingData = errors.New("msgpack: trailing data after value")

// ErrInvalidUTF8 is returned when a msgpack string value is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("msgpack: invalid utf-8 in string")

// UnpackMsgpack decodes exactly one msgpack value occupying the whole buffer.
// Maps decode to map[string]any; non-string keys are stringified. Strings
// must be valid UTF-8; binary values are not checked.
func UnpackMsgpack(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, io.ErrUnexpectedEOF
	}

	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	dec.SetMapDecoder(decodeStringKeyedMap)

	v, err := dec.DecodeInterface()
	if err != nil {
		return nil, err
	}
	if r.Len() > 0 {
		return nil, ErrTrailingData
	}
	if !validStrings(v) {
		return nil, ErrInvalidUTF8
	}
	return v, nil
}

func validStrings(v any) bool {
	switch val := v.(type) {
	case string:
		return utf8.ValidString(val)
	case []any:
		for _, item := range val {
			if !validStrings(item) {
				return false
			}
		}
	case map[string]any:
		for _, item := range val {
			if !validStrings(item) {
				return false
			}
		}
	}
	return true
}

func decodeStringKeyedMap(d *msgpack.Decoder) (any, error) {
	n, err := d.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}

	m := make(map[string]any, n)
	for i := 0; i < n; i++ {
		k, err := d.DecodeInterface()
		if err != nil {
			return nil, err
		}
		if key, ok := k.(string); ok && !utf8.ValidString(key) {
			return nil, ErrInvalidUTF8
		}
		v, err := d.DecodeInterface()
		if err != nil {
			return nil, err
		}
		m[mapKey(k)] = v
	}
	return m, nil
}

func mapKey(k any) string {
	switch key := k.(type) {
	case string:
		return key
	case []byte:
		return string(key)
	default:
		return fmt.Sprint(key)
	}
}

// Inflate decompresses a zlib stream, reading at most limit bytes of output.
// limit <= 0 disables the bound.
func Inflate(data []byte, limit int64) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var r io.Reader = zr
	if limit > 0 {
		r = io.LimitReader(zr, limit+1)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(out)) > limit {
		return nil, ErrInflateLimit
	}
	return out, nil
}

// ErrInflateLimit is returned when a decompressed payload exceeds its bound.
var ErrInflateLimit = errors.New("decompressed data exceeds limit")

// Deflate compresses data with zlib, producing the compressed current-format
// blobs clients upload.
func Deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ValidateSessionUpload checks uploaded session bytes: they are inflated when
// they form a zlib stream (raw bytes otherwise) and the result must be a
// single valid msgpack value.
func ValidateSessionUpload(data []byte, inflateLimit int64) error {
	if len(data) == 0 {
		return errors.New("session data cannot be empty")
	}

	payload, err := Inflate(data, inflateLimit)
	if errors.Is(err, ErrInflateLimit) {
		return err
	}
	if err != nil {
		payload = data
	}

	if _, err := UnpackMsgpack(payload); err != nil {
		return fmt.Errorf("invalid msgpack data: %w", err)
	}
	return nil
}
