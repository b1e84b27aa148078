package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/mvstories/internal/auth"
	"github.com/prn-tf/mvstories/internal/domain"
	"github.com/prn-tf/mvstories/internal/repository"
	"github.com/prn-tf/mvstories/internal/service"
	"github.com/prn-tf/mvstories/internal/storage"
	"github.com/prn-tf/mvstories/internal/validation"
)

const (
	aliceToken = "alice-token"
	bobToken   = "bob-token"
	baseURL    = "https://stories.example.org"
)

// msgpack {"a": <bin 0x01 0x02>}
var sessionBlob = []byte{0x81, 0xa1, 0x61, 0xc4, 0x02, 0x01, 0x02}

// stubValidator resolves a fixed set of tokens.
type stubValidator map[string]domain.Identity

func (s stubValidator) Validate(ctx context.Context, token string) (*domain.Identity, error) {
	identity, ok := s[token]
	if !ok {
		return nil, &auth.AuthError{Message: "Failed to validate token", Cause: errors.New("userinfo endpoint returned 401")}
	}
	return &identity, nil
}

// spyStore records every call made to the object store.
type spyStore struct {
	*storage.MemoryStore

	mu    sync.Mutex
	calls []string
}

func (s *spyStore) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op)
}

func (s *spyStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *spyStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.record("put " + key)
	return s.MemoryStore.Put(ctx, key, data, contentType)
}

func (s *spyStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.record("get " + key)
	return s.MemoryStore.Get(ctx, key)
}

func (s *spyStore) Stat(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	s.record("stat " + key)
	return s.MemoryStore.Stat(ctx, key)
}

func (s *spyStore) List(ctx context.Context, prefix string, recursive bool) ([]storage.ObjectInfo, error) {
	s.record("list " + prefix)
	return s.MemoryStore.List(ctx, prefix, recursive)
}

func (s *spyStore) Remove(ctx context.Context, key string) error {
	s.record("remove " + key)
	return s.MemoryStore.Remove(ctx, key)
}

func (s *spyStore) BucketExists(ctx context.Context) (bool, error) {
	s.record("bucket-exists")
	return s.MemoryStore.BucketExists(ctx)
}

func (s *spyStore) CreateBucket(ctx context.Context) error {
	s.record("create-bucket")
	return s.MemoryStore.CreateBucket(ctx)
}

type testConfig struct {
	maxSessions int
	maxStories  int
	maxUploadMB int
}

func newTestHandler(t *testing.T, cfg testConfig) (http.Handler, *spyStore) {
	t.Helper()
	if cfg.maxSessions == 0 {
		cfg.maxSessions = 10
	}
	if cfg.maxStories == 0 {
		cfg.maxStories = 10
	}
	if cfg.maxUploadMB == 0 {
		cfg.maxUploadMB = 1
	}

	logger := zerolog.Nop()
	store := &spyStore{MemoryStore: storage.NewMemoryStore()}
	objects := repository.NewObjectRepository(store, logger)
	validator := validation.New(validation.NewLimits(cfg.maxUploadMB, 20))
	quota := service.NewQuotaService(objects, cfg.maxSessions, cfg.maxStories, logger)

	router := NewRouter(RouterConfig{
		SessionHandler: NewSessionHandler(service.NewSessionService(objects, quota, logger), validator, logger),
		StoryHandler:   NewStoryHandler(service.NewStoryService(objects, quota, validator, logger), validator, baseURL, logger),
		UserHandler:    NewUserHandler(service.NewUserService(objects, quota, logger), logger),
		Validator: stubValidator{
			aliceToken: {Subject: "alice", Name: "Alice", Email: "alice@example.org"},
			bobToken:   {Subject: "bob", Name: "Bob", Email: "bob@example.org"},
		},
		AllowedOrigins: []string{"http://localhost:3000"},
		MaxUploadBytes: validator.Limits().MaxUploadBytes,
		MetricsPath:    "/metrics",
		Logger:         logger,
	})
	return router.Handler(), store
}

func do(t *testing.T, h http.Handler, method, target, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, h http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	return do(t, h, method, target, token, reader, "application/json")
}

func decodeObject(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func sessionForm(t *testing.T, fields map[string]string, file []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		require.NoError(t, mw.WriteField(name, value))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "state.mvstory")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func createSession(t *testing.T, h http.Handler, token, title string) map[string]any {
	t.Helper()
	body, contentType := sessionForm(t, map[string]string{
		"filename":    "state.mvstory",
		"title":       title,
		"description": "editor state",
		"tags":        `["demo"]`,
	}, sessionBlob)
	rec := do(t, h, http.MethodPost, "/api/session", token, body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeObject(t, rec)
}

func createStory(t *testing.T, h http.Handler, token, filename string, data any) map[string]any {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/story", token, map[string]any{
		"filename":    filename,
		"title":       "Hemoglobin",
		"description": "oxygen transport",
		"tags":        []string{"protein"},
		"data":        data,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeObject(t, rec)
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// =============================================================================
// Health & Identity
// =============================================================================

func TestReady(t *testing.T) {
	h, _ := newTestHandler(t, testConfig{})

	rec := do(t, h, http.MethodGet, "/ready", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","message":"Service is ready"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, testConfig{})

	rec := do(t, h, http.MethodGet, "/metrics", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	h, _ := newTestHandler(t, testConfig{})

	rec := do(t, h, http.MethodGet, "/api/unknown", "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, true, decodeObject(t, rec)["error"])
}

func TestUserInfoAndVerify(t *testing.T) {
	h, _ := newTestHandler(t, testConfig{})

	rec := do(t, h, http.MethodGet, "/api/userinfo", aliceToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sub":"alice","name":"Alice","email":"alice@example.org"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/verify", aliceToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeObject(t, rec)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "alice", body["user"].(map[string]any)["sub"])
}

func TestAuthFailures(t *testing.T) {
	h, _ := newTestHandler(t, testConfig{})

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "Authorization required"},
		{"not bearer", "Basic abc", "Invalid token format"},
		{"rejected token", "Bearer nope", "Failed to validate token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			body := decodeObject(t, rec)
			assert.Equal(t, true, body["error"])
			assert.Equal(t, tt.message, body["message"])
			assert.EqualValues(t, http.StatusUnauthorized, body["status_code"])
		})
	}
}

// =============================================================================
// Sessions
// =============================================================================

func TestSessionLifecycle(t *testing.T) {
	h, store := newTestHandler(t, testConfig{})

	created := createSession(t, h, aliceToken, "My session")
	id := created["id"].(string)
	assert.Len(t, id, domain.ObjectIDLength)
	assert.Equal(t, "session", created["type"])
	assert.Equal(t, "My session", created["title"])
	assert.Equal(t, []any{"demo"}, created["tags"])
	assert.Equal(t, "alice", created["creator"].(map[string]any)["id"])

	blob, err := store.Get(context.Background(), "alice/sessions/"+id+"/data.mvstory")
	require.NoError(t, err)
	assert.Equal(t, sessionBlob, blob)

	rec := do(t, h, http.MethodGet, "/api/session", aliceToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeList(t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/session", bobToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/session/"+id, aliceToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decodeObject(t, rec)["id"])

	rec = do(t, h, http.MethodGet, "/api/session/"+id+"/data", aliceToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"a":"AQI="}`, rec.Body.String())

	rec = doJSON(t, h, http.MethodPut, "/api/session/"+id, aliceToken, map[string]any{"title": "Renamed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Renamed", decodeObject(t, rec)["title"])

	rec = do(t, h, http.MethodDelete, "/api/session/"+id, aliceToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeObject(t, rec)
	assert.Equal(t, id, body["session_id"])
	assert.Equal(t, "alice", body["user_id"])
	assert.Equal(t, "Successfully deleted session "+id, body["message"])
	assert.Len(t, body["deleted_files"], 2)

	rec = do(t, h, http.MethodGet, "/api/session/"+id, aliceToken, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Session not found", decodeObject(t, rec)["message"])
	assert.Zero(t, store.Len())
}

func TestSessionCreateJSON(t *testing.T) {
	h, _ := newTestHandler(t, testConfig{})

	rec := doJSON(t, h, http.MethodPost, "/api/session", aliceToken, map[string]any{
		"filename": "state.mvstory",
		"title":    "From JSON",
		"data":     base64.StdEncoding.EncodeToString(sessionBlob),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "From JSON", decodeObject(t, rec)["title"])
}

func TestSessionUpdateMultipart(t *testing.T) {
	h, store := newTestHandler(t, testConfig{})
	id := createSession(t, h, aliceToken, "Original")["id"].(string)

	// msgpack {"b": 1}
	replacement := []byte{0x81, 0xa1, 0x62, 0x01}
	body, contentType := sessionForm(t, map[string]string{"description": "updated"}, replacement)
	rec := do(t, h, http.MethodPut, "/api/session/"+id, aliceToken, body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "updated", decodeObject(t, rec)["description"])

	blob, err := store.Get(context.Background(), "alice/sessions/"+id+"/data.mvstory")
	require.NoError(t, err)
	assert.Equal(t, replacement, blob)
}

func TestSessionOwnership(t *testing.T) {
	h, _ := newTestHandler(t, testConfig{})
	id := createSession(t, h, aliceToken, "Private")["id"].(string)

	rec := do(t, h, http.MethodGet, "/api/session/"+id, bobToken, nil, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeObject(t, rec)
	assert.Equal(t, "Access denied. Only the creator can view this session", body["message"])
	assert.Equal(t, map[string]any{"session_id": id}, body["details"])

	rec = do(t, h, http.MethodDelete, "/api/session/"+id, bobToken, nil, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	details := decodeObject(t, rec)["details"].(map[string]any)
	assert.Equal(t, "alice", details["creator_id"])
	assert.Equal(t, "bob", details["requesting_user_id"])
}

func TestSessionValidation(t *testing.T) {
	h, store := newTestHandler(t, testConfig{})

	tests := []struct {
		name   string
		fields map[string]string
		file   []byte
	}{
		{"missing title", map[string]string{"filename": "a.mvstory"}, sessionBlob},
		{"wrong extension", map[string]string{"filename": "a.json", "title": "x"}, sessionBlob},
		{"missing file", map[string]string{"filename": "a.mvstory", "title": "x"}, nil},
		{"not msgpack", map[string]string{"filename": "a.mvstory", "title": "x"}, []byte{0xc1}},
		{"bad tags", map[string]string{"filename": "a.mvstory", "title": "x", "tags": "demo"}, sessionBlob},
		{"extra field", map[string]string{"filename": "a.mvstory", "title": "x", "owner": "bob"}, sessionBlob},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := sessionForm(t, tt.fields, tt.file)
			rec := do(t, h, http.MethodPost, "/api/session", aliceToken, body, contentType)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, true, decodeObject(t, rec)["error"])
		})
	}
	assert.Empty(t, store.Calls())
}

func TestSessionQuota(t *testing.T) {
	h, _ := newTestHandler(t, testConfig{maxSessions: 1})
	createSession(t, h, aliceToken, "first")

	body, contentType := sessionForm(t, map[string]string{"filename": "b.mvstory", "title": "second"}, sessionBlob)
	rec := do(t, h, http.MethodPost, "/api/session", aliceToken, body, contentType)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	resp := decodeObject(t, rec)
	assert.Equal(t, "Session limit reached. You have 1 sessions (limit: 1). Please delete some sessions before creating new ones.", resp["message"])
	assert.Equal(t, map[string]any{"current_count": float64(1), "limit": float64(1), "object_type": "session"}, resp["details"])

	// Another user is unaffected.
	createSession(t, h, bobToken, "bob's first")
}

// =============================================================================
// Stories
// =============================================================================

func TestStoryLifecycle(t *testing.T) {
	h, _ := newTestHandler(t, testConfig{})

	created := createStory(t, h, aliceToken, "hemoglobin.mvsj", map[string]any{"kind": "multiple", "snapshots": []any{}})
	id := created["id"].(string)
	assert.Equal(t, "story", created["type"])
	assert.Equal(t, baseURL+"/api/story/"+id, created["public_uri"])

	// Public reads need no token.
	rec := do(t, h, http.MethodGet, "/api/story/"+id, "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, baseURL+"/api/story/"+id, decodeObject(t, rec)["public_uri"])

	rec = do(t, h, http.MethodGet, "/api/story/"+id+"/data", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"kind":"multiple","snapshots":[]}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/story/"+id+"/format", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"format":"mvsj"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/story/"+id+"/data?format=mvsx", "", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Story data not found in mvsx format", decodeObject(t, rec)["message"])

	rec = doJSON(t, h, http.MethodPut, "/api/story/"+id, aliceToken, map[string]any{
		"title":        "Hemoglobin, revised",
		"data":         map[string]any{"kind": "single"},
		"session_data": base64.StdEncoding.EncodeToString(sessionBlob),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Hemoglobin, revised", decodeObject(t, rec)["title"])

	rec = do(t, h, http.MethodGet, "/api/story/"+id+"/data", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"kind":"single"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/story/"+id+"/session-data", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get("Content-Type"))
	assert.Equal(t, sessionBlob, rec.Body.Bytes())

	rec = do(t, h, http.MethodHead, "/api/story/"+id+"/session-data", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fmt.Sprint(len(sessionBlob)), rec.Header().Get("Content-Length"))
	assert.Zero(t, rec.Body.Len())

	rec = do(t, h, http.MethodDelete, "/api/story/"+id, bobToken, nil, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Access denied. Only the creator can modify this story", decodeObject(t, rec)["message"])

	rec = do(t, h, http.MethodDelete, "/api/story/"+id, aliceToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeObject(t, rec)
	assert.Equal(t, id, body["story_id"])
	assert.Len(t, body["deleted_files"], 3)

	rec = do(t, h, http.MethodGet, "/api/story/"+id, "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Story not found", decodeObject(t, rec)["message"])
}

func TestStoryWithoutCompanionSession(t *testing.T) {
	h, _ := newTestHandler(t, testConfig{})
	id := createStory(t, h, aliceToken, "s.mvsj", map[string]any{"kind": "single"})["id"].(string)

	rec := do(t, h, http.MethodGet, "/api/story/"+id+"/session-data", "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoryMVSX(t *testing.T) {
	h, _ := newTestHandler(t, testConfig{})
	archive := buildZip(t, map[string]string{"index.mvsj": `{"kind":"single"}`})

	id := createStory(t, h, aliceToken, "bundle.mvsx", base64.StdEncoding.EncodeToString(archive))["id"].(string)

	rec := do(t, h, http.MethodGet, "/api/story/"+id+"/data", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="story_`+id+`.mvsx"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, archive, rec.Body.Bytes())

	rec = do(t, h, http.MethodGet, "/api/story/"+id+"/format", "", nil, "")
	assert.JSONEq(t, `{"format":"mvsx"}`, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/api/story", aliceToken, map[string]any{
		"filename": "broken.mvsx",
		"title":    "Broken",
		"data":     base64.StdEncoding.EncodeToString([]byte("not a zip")),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoryCreateReturnData(t *testing.T) {
	h, _ := newTestHandler(t, testConfig{})
	payload := map[string]any{
		"filename":    "s.mvsj",
		"title":       "Echo",
		"description": "",
		"tags":        []string{"a"},
		"data":        map[string]any{"kind": "single"},
	}

	for _, target := range []string{"/api/story?return_data=true", "/api/story/mvsj"} {
		t.Run(target, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, target, aliceToken, payload)
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			assert.JSONEq(t,
				`{"filename":"s.mvsj","title":"Echo","description":"","tags":["a"],"data":{"kind":"single"}}`,
				rec.Body.String())
		})
	}

	rec := do(t, h, http.MethodGet, "/api/story", aliceToken, nil, "")
	assert.Len(t, decodeList(t, rec), 2)
}

func TestStoryList(t *testing.T) {
	h, _ := newTestHandler(t, testConfig{})
	createStory(t, h, aliceToken, "a.mvsj", map[string]any{"kind": "single"})
	createStory(t, h, bobToken, "b.mvsj", map[string]any{"kind": "single"})

	rec := do(t, h, http.MethodGet, "/api/story", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeList(t, rec)
	assert.Len(t, all, 2)
	for _, story := range all {
		assert.True(t, strings.HasPrefix(story["public_uri"].(string), baseURL+"/api/story/"))
	}

	rec = do(t, h, http.MethodGet, "/api/story", bobToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	own := decodeList(t, rec)
	require.Len(t, own, 1)
	assert.Equal(t, "bob", own[0]["creator"].(map[string]any)["id"])

	rec = do(t, h, http.MethodGet, "/api/story", "expired", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired token", decodeObject(t, rec)["message"])
}

func TestStoryValidation(t *testing.T) {
	h, store := newTestHandler(t, testConfig{})

	rec := doJSON(t, h, http.MethodPost, "/api/story", aliceToken, map[string]any{
		"filename": "s.mvsj",
		"title":    "x",
		"data":     map[string]any{},
		"public":   true,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeObject(t, rec)
	assert.Equal(t, "Invalid input data", body["message"])
	errs := body["details"].(map[string]any)["validation_errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, []any{"public"}, errs[0].(map[string]any)["loc"])

	rec = do(t, h, http.MethodPost, "/api/story", aliceToken, strings.NewReader(""), "application/json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No data provided", decodeObject(t, rec)["message"])

	rec = doJSON(t, h, http.MethodPut, "/api/story/abcd1234", aliceToken, map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No valid update data provided", decodeObject(t, rec)["message"])

	assert.Empty(t, store.Calls())
}

func TestStoryQuota(t *testing.T) {
	h, _ := newTestHandler(t, testConfig{maxStories: 1})
	createStory(t, h, aliceToken, "a.mvsj", map[string]any{"kind": "single"})

	rec := doJSON(t, h, http.MethodPost, "/api/story", aliceToken, map[string]any{
		"filename": "b.mvsj", "title": "b", "data": map[string]any{},
	})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "story", decodeObject(t, rec)["details"].(map[string]any)["object_type"])
}

func TestPayloadTooLarge(t *testing.T) {
	h, store := newTestHandler(t, testConfig{maxUploadMB: 1})

	body := bytes.Repeat([]byte("a"), 3*bytesPerMB)
	rec := do(t, h, http.MethodPost, "/api/story", aliceToken, bytes.NewReader(body), "application/json")
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	resp := decodeObject(t, rec)
	assert.Equal(t, "Request payload too large", resp["message"])
	details := resp["details"].(map[string]any)
	assert.Equal(t, "PayloadTooLarge", details["type"])
	assert.EqualValues(t, 1, details["max_size_mb"])
	assert.EqualValues(t, 3, details["received_size_mb"])
	assert.Empty(t, store.Calls())
}

// =============================================================================
// User
// =============================================================================

func TestUserQuota(t *testing.T) {
	h, _ := newTestHandler(t, testConfig{maxSessions: 10, maxStories: 2})
	createSession(t, h, aliceToken, "s")
	createStory(t, h, aliceToken, "a.mvsj", map[string]any{"kind": "single"})

	rec := do(t, h, http.MethodGet, "/api/user/quota", aliceToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary service.QuotaSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "alice", summary.UserID)
	assert.Equal(t, "Alice", summary.UserName)
	assert.Equal(t, 1, summary.Sessions.Current)
	assert.Equal(t, 9, summary.Sessions.Remaining)
	assert.Equal(t, 50.0, summary.Stories.UsagePercent)
	assert.Equal(t, 2, summary.Overall.TotalObjects)
	assert.Equal(t, 12, summary.Overall.TotalLimit)
}

func TestUserDeleteAll(t *testing.T) {
	h, store := newTestHandler(t, testConfig{})
	createSession(t, h, aliceToken, "s1")
	createSession(t, h, aliceToken, "s2")
	createStory(t, h, aliceToken, "a.mvsj", map[string]any{"kind": "single"})
	createStory(t, h, bobToken, "b.mvsj", map[string]any{"kind": "single"})

	rec := do(t, h, http.MethodDelete, "/api/user/delete-all", aliceToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary repository.DeletionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "alice", summary.UserID)
	assert.Equal(t, 2, summary.SessionsDeleted)
	assert.Equal(t, 1, summary.StoriesDeleted)
	assert.Equal(t, 6, summary.TotalObjectsDeleted)

	// Bob's story survives.
	assert.Equal(t, 2, store.Len())
}

// =============================================================================
// Error mapping
// =============================================================================

func TestErrorResponseFor(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"storage failure", &domain.StorageError{Op: "get", Key: "k", Err: errors.New("connection reset")}, http.StatusInternalServerError, "Storage operation failed"},
		{"not found", domain.NewDomainError(domain.ErrNotFound, "story not found", "x"), http.StatusNotFound, "Story not found"},
		{"bare forbidden", domain.ErrForbidden, http.StatusForbidden, "Access denied"},
		{"bare unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized, "Authentication required"},
		{"whole body validation", domain.NewValidationError("", "malformed JSON body"), http.StatusBadRequest, "Malformed JSON body"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := errorResponseFor(tt.err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.message, resp.Message)
		})
	}

	resp := errorResponseFor(&domain.StorageError{Op: "put", Err: errors.New("secret endpoint detail")})
	assert.Equal(t, map[string]any{"type": "StorageFailure"}, resp.Details)
}

func TestRecoverer(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "An unexpected error occurred", decodeObject(t, rec)["message"])
}
