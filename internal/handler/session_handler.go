package handler

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/mvstories/internal/auth"
	"github.com/prn-tf/mvstories/internal/domain"
	"github.com/prn-tf/mvstories/internal/repository"
	"github.com/prn-tf/mvstories/internal/service"
	"github.com/prn-tf/mvstories/internal/validation"
)

// multipartMemory is how much of a multipart body is held in memory before
// file parts spill to disk.
const multipartMemory = 32 << 20

// SessionHandler serves the private session endpoints.
type SessionHandler struct {
	sessions  *service.SessionService
	validator *validation.Validator
	logger    zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService, validator *validation.Validator, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		validator: validator,
		logger:    logger.With().Str("handler", "session").Logger(),
	}
}

// Create handles POST /api/session. Multipart forms carry the session file;
// JSON bodies carry it base64 encoded.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var (
		req *validation.SessionCreate
		err error
	)
	if isMultipart(r) {
		form, ferr := parseMultipart(r)
		if ferr != nil {
			writeError(w, r, h.nominal(ferr))
			return
		}
		defer form.RemoveAll()
		req, err = h.validator.SessionCreateForm(form)
	} else {
		req, err = h.validator.SessionCreateJSON(r.Body)
	}
	if err != nil {
		writeError(w, r, h.nominal(err))
		return
	}

	meta, err := h.sessions.Create(r.Context(), identity, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

// List handles GET /api/session.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	sessions, err := h.sessions.List(r.Context(), identity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// Get handles GET /api/session/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	meta, err := h.sessions.Get(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// Data handles GET /api/session/{id}/data.
func (h *SessionHandler) Data(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	data, err := h.sessions.Data(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// Update handles PUT /api/session/{id}.
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var (
		update *validation.Update
		err    error
	)
	if isMultipart(r) {
		form, ferr := parseMultipart(r)
		if ferr != nil {
			writeError(w, r, h.nominal(ferr))
			return
		}
		defer form.RemoveAll()
		update, err = h.validator.SessionUpdateForm(form)
	} else {
		update, err = h.validator.SessionUpdateJSON(r.Body)
	}
	if err != nil {
		writeError(w, r, h.nominal(err))
		return
	}

	meta, err := h.sessions.Update(r.Context(), identity, id, update)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// Delete handles DELETE /api/session/{id}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	result, err := h.sessions.Delete(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse(result))
}

func (h *SessionHandler) nominal(err error) error {
	return tooLarge(err, h.validator.Limits().MaxUploadBytes)
}

// =============================================================================
// Helpers
// =============================================================================

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// parseMultipart parses a multipart body. The caller removes the temporary
// files of the returned form.
func parseMultipart(r *http.Request) (*multipart.Form, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, &domain.PayloadTooLargeError{Limit: maxBytesErr.Limit}
		}
		return nil, domain.NewValidationError("", "Invalid request format: %v", err)
	}
	return r.MultipartForm, nil
}

// deleteResponse renders a DeleteResult as {"<type>_id", "user_id", "message", "deleted_files"}.
func deleteResponse(result *repository.DeleteResult) map[string]any {
	return map[string]any{
		string(result.Type) + "_id": result.ID,
		"user_id":                   result.UserID,
		"message":                   "Successfully deleted " + string(result.Type) + " " + result.ID,
		"deleted_files":             result.DeletedFiles,
	}
}
