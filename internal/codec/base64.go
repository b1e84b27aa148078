package codec

import "encoding/base64"

// Base64Walk returns a copy of v in which every []byte, at any depth of maps
// and slices, is replaced by its standard base64 string. Container shapes are
// preserved; other values are returned unchanged.
func Base64Walk(v any) any {
	switch val := v.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Base64Walk(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[mapKey(k)] = Base64Walk(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Base64Walk(item)
		}
		return out
	default:
		return v
	}
}
