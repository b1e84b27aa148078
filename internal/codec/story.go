package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zip"

	"github.com/prn-tf/mvstories/internal/domain"
)

// MVSXIndexFile is the entry a well-formed .mvsx archive carries.
const MVSXIndexFile = "index.mvsj"

// Story extensions, duplicated from the storage naming scheme to keep codec free of it.
const (
	extMVSJ = ".mvsj"
	extMVSX = ".mvsx"
)

// DecodeStoryJSON parses stored .mvsj content. A {"data": X} wrapper written
// by older clients is unwrapped to X.
func DecodeStoryJSON(blob []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(blob)
	if !json.Valid(trimmed) {
		return nil, errors.New("story content is not valid JSON")
	}

	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &wrapper); err == nil {
			if inner, ok := wrapper["data"]; ok {
				return inner, nil
			}
		}
	}
	return json.RawMessage(trimmed), nil
}

// EncodeStoryJSON serializes a JSON value for storage with two-space indentation.
func EncodeStoryJSON(raw json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("encode story json: %w", err)
	}
	return buf.Bytes(), nil
}

// ZipInfo summarizes a validated .mvsx archive.
type ZipInfo struct {
	Entries  int
	HasIndex bool
}

// InspectZip opens data as a ZIP archive and requires at least one entry.
func InspectZip(data []byte) (ZipInfo, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ZipInfo{}, fmt.Errorf("invalid zip archive: %w", err)
	}
	if len(zr.File) == 0 {
		return ZipInfo{}, errors.New("MVSX zip must contain at least index.mvsj or one file")
	}

	info := ZipInfo{Entries: len(zr.File)}
	for _, f := range zr.File {
		if f.Name == MVSXIndexFile {
			info.HasIndex = true
			break
		}
	}
	return info, nil
}

// ValidateMVSX accepts a legacy JSON object or a binary ZIP archive with at least one entry.
func ValidateMVSX(p domain.Payload) (ZipInfo, error) {
	switch p.Kind {
	case domain.PayloadJSON:
		if !isJSONObject(p.JSON) {
			return ZipInfo{}, errors.New("MVSX data must be a dictionary (legacy) or a base64-encoded string (zip)")
		}
		return ZipInfo{}, nil
	case domain.PayloadBase64, domain.PayloadRaw:
		if len(p.Bytes) == 0 {
			return ZipInfo{}, errors.New("MVSX data cannot be empty")
		}
		return InspectZip(p.Bytes)
	default:
		return ZipInfo{}, errors.New("MVSX data is required")
	}
}

// EncodeStory produces the bytes stored for a story content payload.
// .mvsx archives are stored decoded (binary); a legacy dict is stored as compact JSON.
// .mvsj content is stored as indented JSON.
func EncodeStory(ext string, p domain.Payload) ([]byte, error) {
	switch ext {
	case extMVSX:
		switch p.Kind {
		case domain.PayloadBase64, domain.PayloadRaw:
			return p.Bytes, nil
		case domain.PayloadJSON:
			var buf bytes.Buffer
			if err := json.Compact(&buf, p.JSON); err != nil {
				return nil, fmt.Errorf("encode mvsx dict: %w", err)
			}
			return buf.Bytes(), nil
		}
	case extMVSJ:
		if p.Kind == domain.PayloadJSON {
			return EncodeStoryJSON(p.JSON)
		}
	}
	return nil, fmt.Errorf("cannot encode %s payload as %s", p.Kind, ext)
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
