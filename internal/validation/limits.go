// Package validation turns untrusted request bodies into typed inputs.
//
// Every decoder rejects fields outside its allow-list, enforces the metadata
// bounds and applies the size ceilings derived from the configured upload
// limit. Content is resolved into a domain.Payload here and nowhere else.
package validation

const bytesPerMB = 1024 * 1024

// Limits holds the size ceilings. All of them derive from MaxUploadBytes.
type Limits struct {
	// MaxUploadBytes bounds decoded binary content and serialized JSON content.
	MaxUploadBytes int64

	// InflateRatio bounds the decompressed size of a session upload as a
	// multiple of MaxUploadBytes.
	InflateRatio int64
}

// NewLimits builds Limits from a megabyte ceiling.
func NewLimits(maxUploadMB, inflateRatio int) Limits {
	if inflateRatio < 1 {
		inflateRatio = 1
	}
	return Limits{
		MaxUploadBytes: int64(maxUploadMB) * bytesPerMB,
		InflateRatio:   int64(inflateRatio),
	}
}

// MaxBase64Chars is the longest accepted base64 string.
func (l Limits) MaxBase64Chars() int64 {
	return l.MaxUploadBytes * 4 / 3
}

// MaxUploadMB returns the ceiling in whole megabytes.
func (l Limits) MaxUploadMB() int64 {
	return l.MaxUploadBytes / bytesPerMB
}

// InflateLimit bounds the output of zlib decompression during session validation.
func (l Limits) InflateLimit() int64 {
	return l.MaxUploadBytes * l.InflateRatio
}
