package validation

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/prn-tf/mvstories/internal/codec"
	"github.com/prn-tf/mvstories/internal/domain"
)

func testValidator() *Validator {
	return New(NewLimits(1, 20))
}

func sessionBlob(t *testing.T) []byte {
	t.Helper()
	packed, err := msgpack.Marshal(map[string]any{"version": 1, "state": "x"})
	require.NoError(t, err)
	deflated, err := codec.Deflate(packed)
	require.NoError(t, err)
	return deflated
}

func zipArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("index.mvsj")
	require.NoError(t, err)
	_, err = w.Write([]byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func body(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func requireValidationField(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrValidation)
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, field, vErr.Field)
}

func TestLimits(t *testing.T) {
	l := NewLimits(3, 0)
	assert.Equal(t, int64(3*1024*1024), l.MaxUploadBytes)
	assert.Equal(t, int64(4*1024*1024), l.MaxBase64Chars())
	assert.Equal(t, int64(3), l.MaxUploadMB())
	assert.Equal(t, l.MaxUploadBytes, l.InflateLimit())
}

func TestDecodeJSON(t *testing.T) {
	type target struct {
		Title string `json:"title"`
	}

	tests := []struct {
		name  string
		input string
		field string
	}{
		{"unknown field", `{"title":"a","id":"x"}`, "id"},
		{"wrong type", `{"title":5}`, "title"},
		{"empty", ``, ""},
		{"malformed", `{"title":`, ""},
		{"trailing data", `{"title":"a"} {}`, ""},
		{"not an object", `[1]`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst target
			err := DecodeJSON(strings.NewReader(tt.input), &dst)
			requireValidationField(t, err, tt.field)
		})
	}

	t.Run("body limit", func(t *testing.T) {
		r := http.MaxBytesReader(nil, io.NopCloser(strings.NewReader(`{"title":"`+strings.Repeat("a", 100)+`"}`)), 16)
		var dst target
		err := DecodeJSON(r, &dst)
		assert.ErrorIs(t, err, domain.ErrPayloadTooLarge)
	})
}

func TestSessionCreateJSON(t *testing.T) {
	v := testValidator()
	blob := sessionBlob(t)
	encoded := base64.StdEncoding.EncodeToString(blob)

	valid := func() map[string]any {
		return map[string]any{
			"filename":    "state.mvstory",
			"title":       "  My session ",
			"description": "d",
			"tags":        []string{"a"},
			"data":        encoded,
		}
	}

	in, err := v.SessionCreateJSON(body(t, valid()))
	require.NoError(t, err)
	assert.Equal(t, "My session", in.Title)
	assert.Equal(t, "state.mvstory", in.Filename)
	assert.Equal(t, []string{"a"}, in.Tags)
	assert.Equal(t, blob, in.Content)

	tests := []struct {
		name   string
		mutate func(m map[string]any)
		field  string
	}{
		{"smuggled id", func(m map[string]any) { m["id"] = "deadbeef" }, "id"},
		{"smuggled creator", func(m map[string]any) { m["creator"] = map[string]string{"id": "x"} }, "creator"},
		{"missing title", func(m map[string]any) { delete(m, "title") }, "title"},
		{"missing filename", func(m map[string]any) { delete(m, "filename") }, "filename"},
		{"wrong extension", func(m map[string]any) { m["filename"] = "state.json" }, "filename"},
		{"long title", func(m map[string]any) { m["title"] = strings.Repeat("t", 201) }, "title"},
		{"too many tags", func(m map[string]any) { m["tags"] = make([]string, 21) }, "tags"},
		{"long tag", func(m map[string]any) { m["tags"] = []string{"ok", strings.Repeat("x", 51)} }, "tags[1]"},
		{"missing data", func(m map[string]any) { delete(m, "data") }, "data"},
		{"data not a string", func(m map[string]any) { m["data"] = map[string]any{"a": 1} }, "data"},
		{"data not base64", func(m map[string]any) { m["data"] = "***" }, "data"},
		{"data not msgpack", func(m map[string]any) { m["data"] = base64.StdEncoding.EncodeToString([]byte{0xc1}) }, "data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid()
			tt.mutate(m)
			_, err := v.SessionCreateJSON(body(t, m))
			requireValidationField(t, err, tt.field)
		})
	}
}

func TestSessionCreateJSONSizeCeilings(t *testing.T) {
	v := New(Limits{MaxUploadBytes: 30, InflateRatio: 20})

	tooManyChars := base64.StdEncoding.EncodeToString(make([]byte, 40))
	_, err := v.SessionCreateJSON(body(t, map[string]any{
		"filename": "a.mvstory", "title": "t", "data": tooManyChars,
	}))
	requireValidationField(t, err, "data")
	assert.Contains(t, err.Error(), "characters")
}

func TestStoryCreateJSON(t *testing.T) {
	v := testValidator()
	archive := zipArchive(t)

	t.Run("mvsj document", func(t *testing.T) {
		in, err := v.StoryCreateJSON(body(t, map[string]any{
			"filename": "story.mvsj", "title": "Story", "data": map[string]any{"scenes": []int{1}},
		}))
		require.NoError(t, err)
		assert.Equal(t, domain.PayloadJSON, in.Content.Kind)
		assert.JSONEq(t, `{"scenes":[1]}`, string(in.Content.JSON))
		assert.Equal(t, []string{}, in.Tags)
	})

	t.Run("mvsx archive", func(t *testing.T) {
		in, err := v.StoryCreateJSON(body(t, map[string]any{
			"filename": "story.mvsx", "title": "Story", "data": base64.StdEncoding.EncodeToString(archive),
		}))
		require.NoError(t, err)
		assert.Equal(t, domain.PayloadBase64, in.Content.Kind)
		assert.Equal(t, archive, in.Content.Bytes)
	})

	t.Run("mvsx legacy dict", func(t *testing.T) {
		in, err := v.StoryCreateJSON(body(t, map[string]any{
			"filename": "story.mvsx", "title": "Story", "data": map[string]any{"index": map[string]any{}},
		}))
		require.NoError(t, err)
		assert.Equal(t, domain.PayloadJSON, in.Content.Kind)
	})

	tests := []struct {
		name  string
		input map[string]any
		field string
	}{
		{"no filename", map[string]any{"title": "t", "data": map[string]any{}}, "filename"},
		{"bad extension", map[string]any{"filename": "s.txt", "title": "t", "data": map[string]any{}}, "filename"},
		{"no title", map[string]any{"filename": "s.mvsj", "data": map[string]any{}}, "title"},
		{"no data", map[string]any{"filename": "s.mvsj", "title": "t"}, "data"},
		{"mvsx list", map[string]any{"filename": "s.mvsx", "title": "t", "data": []int{1}}, "data"},
		{"mvsx not a zip", map[string]any{"filename": "s.mvsx", "title": "t", "data": base64.StdEncoding.EncodeToString([]byte("nope"))}, "data"},
		{"smuggled version", map[string]any{"filename": "s.mvsj", "title": "t", "data": 1, "version": "9"}, "version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.StoryCreateJSON(body(t, tt.input))
			requireValidationField(t, err, tt.field)
		})
	}
}

func TestStoryCreateJSONTooLarge(t *testing.T) {
	v := New(Limits{MaxUploadBytes: 16, InflateRatio: 1})
	_, err := v.StoryCreateJSON(body(t, map[string]any{
		"filename": "s.mvsj", "title": "t", "data": map[string]string{"key": strings.Repeat("v", 32)},
	}))
	requireValidationField(t, err, "data")
}

func TestStoryUpdateJSON(t *testing.T) {
	v := testValidator()

	t.Run("title only", func(t *testing.T) {
		u, err := v.StoryUpdateJSON(strings.NewReader(`{"title":"new"}`))
		require.NoError(t, err)
		require.NotNil(t, u.Title)
		assert.Equal(t, "new", *u.Title)
		assert.Equal(t, []string{"title"}, u.Fields())
	})

	t.Run("empty tags are a change", func(t *testing.T) {
		u, err := v.StoryUpdateJSON(strings.NewReader(`{"tags":[]}`))
		require.NoError(t, err)
		assert.Equal(t, []string{}, u.Tags)
	})

	t.Run("no fields", func(t *testing.T) {
		_, err := v.StoryUpdateJSON(strings.NewReader(`{}`))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("session snapshot", func(t *testing.T) {
		blob := sessionBlob(t)
		u, err := v.StoryUpdateJSON(body(t, map[string]any{"session_data": base64.StdEncoding.EncodeToString(blob)}))
		require.NoError(t, err)
		assert.Equal(t, blob, u.SessionSnapshot)
	})

	t.Run("invalid snapshot", func(t *testing.T) {
		_, err := v.StoryUpdateJSON(body(t, map[string]any{"session_data": base64.StdEncoding.EncodeToString([]byte{0xc1})}))
		requireValidationField(t, err, "session_data")
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := v.StoryUpdateJSON(strings.NewReader(`{"title":"x","creator":{}}`))
		requireValidationField(t, err, "creator")
	})
}

func TestResolveStoryContent(t *testing.T) {
	v := testValidator()
	archive := zipArchive(t)
	encoded, err := json.Marshal(base64.StdEncoding.EncodeToString(archive))
	require.NoError(t, err)

	p, err := v.ResolveStoryContent(".mvsx", domain.JSONPayload(encoded))
	require.NoError(t, err)
	assert.Equal(t, domain.PayloadBase64, p.Kind)
	assert.Equal(t, archive, p.Bytes)

	p, err = v.ResolveStoryContent(".mvsj", domain.JSONPayload(encoded))
	require.NoError(t, err)
	assert.Equal(t, domain.PayloadJSON, p.Kind)

	_, err = v.ResolveStoryContent(".mvsx", domain.JSONPayload(json.RawMessage(`[1]`)))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSessionUpdateJSON(t *testing.T) {
	v := testValidator()
	blob := sessionBlob(t)

	u, err := v.SessionUpdateJSON(body(t, map[string]any{"data": base64.StdEncoding.EncodeToString(blob), "description": ""}))
	require.NoError(t, err)
	assert.Equal(t, blob, u.Content.Bytes)
	require.NotNil(t, u.Description)
	assert.Equal(t, "", *u.Description)

	_, err = v.SessionUpdateJSON(strings.NewReader(`{"data":""}`))
	requireValidationField(t, err, "data")

	_, err = v.SessionUpdateJSON(strings.NewReader(`{"filename":"x.mvstory"}`))
	requireValidationField(t, err, "filename")
}

type formPart struct {
	name, value string
	file        []byte
}

func buildForm(t *testing.T, parts ...formPart) *multipart.Form {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.file != nil {
			w, err := mw.CreateFormFile(p.name, "upload.mvstory")
			require.NoError(t, err)
			_, err = w.Write(p.file)
			require.NoError(t, err)
			continue
		}
		require.NoError(t, mw.WriteField(p.name, p.value))
	}
	require.NoError(t, mw.Close())

	form, err := multipart.NewReader(&buf, mw.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	return form
}

func TestSessionCreateForm(t *testing.T) {
	v := testValidator()
	blob := sessionBlob(t)

	in, err := v.SessionCreateForm(buildForm(t,
		formPart{name: "filename", value: "a.mvstory"},
		formPart{name: "title", value: "A"},
		formPart{name: "tags", value: `["x","y"]`},
		formPart{name: "file", file: blob},
	))
	require.NoError(t, err)
	assert.Equal(t, blob, in.Content)
	assert.Equal(t, []string{"x", "y"}, in.Tags)

	tests := []struct {
		name  string
		parts []formPart
		field string
	}{
		{"missing file", []formPart{{name: "filename", value: "a.mvstory"}, {name: "title", value: "A"}}, "file"},
		{"bad tags", []formPart{{name: "filename", value: "a.mvstory"}, {name: "title", value: "A"}, {name: "tags", value: `"x"`}, {name: "file", file: blob}}, "tags"},
		{"extra field", []formPart{{name: "filename", value: "a.mvstory"}, {name: "title", value: "A"}, {name: "creator", value: "me"}, {name: "file", file: blob}}, "creator"},
		{"invalid file", []formPart{{name: "filename", value: "a.mvstory"}, {name: "title", value: "A"}, {name: "file", file: []byte{0xc1}}}, "file"},
		{"blank title", []formPart{{name: "filename", value: "a.mvstory"}, {name: "title", value: "  "}, {name: "file", file: blob}}, "title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.SessionCreateForm(buildForm(t, tt.parts...))
			requireValidationField(t, err, tt.field)
		})
	}
}

func TestSessionCreateFormTooLarge(t *testing.T) {
	v := New(Limits{MaxUploadBytes: 8, InflateRatio: 1})
	_, err := v.SessionCreateForm(buildForm(t,
		formPart{name: "filename", value: "a.mvstory"},
		formPart{name: "title", value: "A"},
		formPart{name: "file", file: make([]byte, 64)},
	))
	assert.ErrorIs(t, err, domain.ErrPayloadTooLarge)
}

func TestSessionUpdateForm(t *testing.T) {
	v := testValidator()

	_, err := v.SessionUpdateForm(buildForm(t, formPart{name: "title", value: ""}))
	assert.ErrorIs(t, err, domain.ErrValidation)

	u, err := v.SessionUpdateForm(buildForm(t, formPart{name: "description", value: ""}))
	require.NoError(t, err)
	require.NotNil(t, u.Description)
	assert.Nil(t, u.Title)

	blob := sessionBlob(t)
	u, err = v.SessionUpdateForm(buildForm(t, formPart{name: "file", file: blob}))
	require.NoError(t, err)
	assert.Equal(t, domain.PayloadRaw, u.Content.Kind)
	assert.Equal(t, blob, u.Content.Bytes)
}
