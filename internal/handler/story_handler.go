package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/mvstories/internal/auth"
	"github.com/prn-tf/mvstories/internal/domain"
	"github.com/prn-tf/mvstories/internal/service"
	"github.com/prn-tf/mvstories/internal/storage"
	"github.com/prn-tf/mvstories/internal/validation"
)

// StoryHandler serves the public story endpoints.
type StoryHandler struct {
	stories   *service.StoryService
	validator *validation.Validator
	baseURL   string
	logger    zerolog.Logger
}

// NewStoryHandler creates a new StoryHandler. baseURL is the public origin
// used to build public_uri values.
func NewStoryHandler(stories *service.StoryService, validator *validation.Validator, baseURL string, logger zerolog.Logger) *StoryHandler {
	return &StoryHandler{
		stories:   stories,
		validator: validator,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger.With().Str("handler", "story").Logger(),
	}
}

// storyResponse is story metadata plus its public URI.
type storyResponse struct {
	*domain.Metadata
	PublicURI string `json:"public_uri"`
}

func (h *StoryHandler) publicURI(id string) string {
	return h.baseURL + "/api/story/" + id
}

func (h *StoryHandler) withURI(meta *domain.Metadata) storyResponse {
	return storyResponse{Metadata: meta, PublicURI: h.publicURI(meta.ID)}
}

// Create handles POST /api/story. With ?return_data=true the created story
// is echoed as an mvsj document instead of its metadata.
func (h *StoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	returnData := strings.EqualFold(r.URL.Query().Get("return_data"), "true")
	h.create(w, r, returnData)
}

// CreateMVSJ handles POST /api/story/mvsj, which always echoes the document.
func (h *StoryHandler) CreateMVSJ(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, true)
}

func (h *StoryHandler) create(w http.ResponseWriter, r *http.Request, returnData bool) {
	identity, _ := auth.IdentityFromContext(r.Context())

	req, err := h.validator.StoryCreateJSON(r.Body)
	if err != nil {
		writeError(w, r, tooLarge(err, h.validator.Limits().MaxUploadBytes))
		return
	}

	meta, err := h.stories.Create(r.Context(), identity, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if !returnData {
		writeJSON(w, http.StatusCreated, h.withURI(meta))
		return
	}

	doc, err := h.stories.Document(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// List handles GET /api/story. An authenticated caller sees their own
// stories; anonymous callers see every story.
func (h *StoryHandler) List(w http.ResponseWriter, r *http.Request) {
	var userID string
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		userID = identity.Subject
	}

	stories, err := h.stories.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]storyResponse, 0, len(stories))
	for _, meta := range stories {
		resp = append(resp, h.withURI(meta))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/story/{id}.
func (h *StoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	meta, err := h.stories.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withURI(meta))
}

// Data handles GET /api/story/{id}/data. mvsj stories are served as JSON,
// mvsx stories as a ZIP attachment.
func (h *StoryHandler) Data(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	data, err := h.stories.Data(r.Context(), id, r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if data.Format == storage.StoryFormat(storage.ExtMVSX) {
		w.Header().Set("Content-Type", storage.ContentType(domain.TypeStory, storage.ExtMVSX))
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="story_%s%s"`, id, storage.ExtMVSX))
		w.Header().Set("Content-Length", strconv.Itoa(len(data.Archive)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data.Archive)
		return
	}
	writeJSON(w, http.StatusOK, data.JSON)
}

// SessionData handles GET and HEAD /api/story/{id}/session-data, the editor
// state published with a story.
func (h *StoryHandler) SessionData(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	blob, err := h.stories.SessionData(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", storage.ContentType(domain.TypeSession, storage.ExtSession))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="story_%s%s"`, id, storage.ExtSession))
	w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(blob)
}

// Format handles GET /api/story/{id}/format.
func (h *StoryHandler) Format(w http.ResponseWriter, r *http.Request) {
	format, err := h.stories.Format(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"format": format})
}

// Update handles PUT /api/story/{id}.
func (h *StoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	update, err := h.validator.StoryUpdateJSON(r.Body)
	if err != nil {
		writeError(w, r, tooLarge(err, h.validator.Limits().MaxUploadBytes))
		return
	}

	meta, err := h.stories.Update(r.Context(), identity, id, update)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.logger.Debug().Str("story_id", id).Strs("fields", update.Fields()).Msg("story update applied")
	writeJSON(w, http.StatusOK, h.withURI(meta))
}

// Delete handles DELETE /api/story/{id}.
func (h *StoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	result, err := h.stories.Delete(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse(result))
}
