package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mvstories/internal/auth"
	"github.com/prn-tf/mvstories/internal/service"
)

// UserHandler serves identity, quota and whole-account endpoints.
type UserHandler struct {
	users  *service.UserService
	logger zerolog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *service.UserService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger.With().Str("handler", "user").Logger(),
	}
}

// UserInfo handles GET /api/userinfo.
func (h *UserHandler) UserInfo(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, identity)
}

// Verify handles GET /verify.
func (h *UserHandler) Verify(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	h.logger.Info().Str("user_id", identity.Subject).Str("name", identity.Name).Msg("token verified")
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          identity,
	})
}

// Quota handles GET /api/user/quota.
func (h *UserHandler) Quota(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	summary, err := h.users.Quota(r.Context(), identity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// DeleteAll handles DELETE /api/user/delete-all.
func (h *UserHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	summary, err := h.users.DeleteAll(r.Context(), identity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
