package domain

import "encoding/json"

// PayloadKind tags the shape of a content payload.
type PayloadKind int

const (
	// PayloadNone means no content was supplied.
	PayloadNone PayloadKind = iota

	// PayloadJSON is an arbitrary JSON value (story documents, legacy mvsx dicts).
	PayloadJSON

	// PayloadBase64 is binary content that arrived as a base64 string.
	PayloadBase64

	// PayloadRaw is binary content that arrived as raw bytes (multipart upload).
	PayloadRaw
)

// String returns the kind name used in logs.
func (k PayloadKind) String() string {
	switch k {
	case PayloadJSON:
		return "json"
	case PayloadBase64:
		return "base64"
	case PayloadRaw:
		return "raw"
	default:
		return "none"
	}
}

// Payload is the content of a create or update request. It is resolved once at
// the validation boundary; downstream code switches on Kind.
type Payload struct {
	Kind PayloadKind

	// JSON holds the value for PayloadJSON.
	JSON json.RawMessage

	// Bytes holds the decoded content for PayloadBase64 and PayloadRaw.
	Bytes []byte
}

// JSONPayload wraps a JSON value.
func JSONPayload(raw json.RawMessage) Payload {
	return Payload{Kind: PayloadJSON, JSON: raw}
}

// Base64Payload wraps bytes decoded from a base64 string.
func Base64Payload(decoded []byte) Payload {
	return Payload{Kind: PayloadBase64, Bytes: decoded}
}

// RawPayload wraps raw uploaded bytes.
func RawPayload(b []byte) Payload {
	return Payload{Kind: PayloadRaw, Bytes: b}
}

// IsEmpty reports whether no content was supplied.
func (p Payload) IsEmpty() bool {
	return p.Kind == PayloadNone
}

// IsBinary reports whether the payload carries bytes.
func (p Payload) IsBinary() bool {
	return p.Kind == PayloadBase64 || p.Kind == PayloadRaw
}
