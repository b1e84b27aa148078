package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mvstories/internal/auth"
	"github.com/prn-tf/mvstories/internal/domain"
)

const bytesPerMB = 1024 * 1024

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error      bool           `json:"error"`
	Message    string         `json:"message"`
	StatusCode int            `json:"status_code"`
	Details    map[string]any `json:"details,omitempty"`
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto the error envelope and writes it. Storage
// failures and unexpected errors are logged with their cause and rendered
// generically.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponseFor(err)
	resp.Error = true

	logger := zerolog.Ctx(r.Context())
	if resp.StatusCode >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	} else {
		logger.Debug().Err(err).Int("status", resp.StatusCode).Str("path", r.URL.Path).Msg("request rejected")
	}

	writeJSON(w, resp.StatusCode, resp)
}

// writeAuthError renders failures of the auth middleware.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, err)
}

func errorResponseFor(err error) ErrorResponse {
	var (
		authErr     *auth.AuthError
		accessErr   *domain.AccessError
		quotaErr    *domain.QuotaError
		tooLargeErr *domain.PayloadTooLargeError
		validErr    *domain.ValidationError
		domainErr   *domain.DomainError
	)

	switch {
	case errors.As(err, &tooLargeErr):
		return ErrorResponse{
			Message:    "Request payload too large",
			StatusCode: http.StatusRequestEntityTooLarge,
			Details:    payloadTooLargeDetails(tooLargeErr),
		}

	case errors.As(err, &authErr):
		return ErrorResponse{Message: authErr.Message, StatusCode: http.StatusUnauthorized, Details: authErr.Details()}
	case errors.Is(err, domain.ErrUnauthorized):
		return ErrorResponse{Message: "Authentication required", StatusCode: http.StatusUnauthorized}

	case errors.As(err, &accessErr):
		return ErrorResponse{Message: accessErr.Error(), StatusCode: http.StatusForbidden, Details: accessErr.Details()}
	case errors.Is(err, domain.ErrForbidden):
		return ErrorResponse{Message: "Access denied", StatusCode: http.StatusForbidden}

	case errors.As(err, &quotaErr):
		return ErrorResponse{Message: quotaErr.UserMessage(), StatusCode: http.StatusTooManyRequests, Details: quotaErr.Details()}

	case errors.As(err, &validErr):
		if validErr.Field == "" {
			return ErrorResponse{Message: capitalize(validErr.Reason), StatusCode: http.StatusBadRequest}
		}
		return ErrorResponse{
			Message:    "Invalid input data",
			StatusCode: http.StatusBadRequest,
			Details: map[string]any{
				"validation_errors": []map[string]any{
					{"loc": []string{validErr.Field}, "msg": validErr.Reason},
				},
			},
		}

	case errors.Is(err, domain.ErrStorageFailure):
		return ErrorResponse{
			Message:    "Storage operation failed",
			StatusCode: http.StatusInternalServerError,
			Details:    map[string]any{"type": "StorageFailure"},
		}

	case errors.As(err, &domainErr) && errors.Is(err, domain.ErrNotFound):
		return ErrorResponse{Message: capitalize(domainErr.Message), StatusCode: http.StatusNotFound}
	case errors.Is(err, domain.ErrNotFound):
		return ErrorResponse{Message: "Not found", StatusCode: http.StatusNotFound}

	case errors.As(err, &domainErr) && errors.Is(err, domain.ErrValidation):
		return ErrorResponse{Message: capitalize(domainErr.Message), StatusCode: http.StatusBadRequest}
	case errors.Is(err, domain.ErrValidation):
		return ErrorResponse{Message: "Invalid input data", StatusCode: http.StatusBadRequest}
	}

	return ErrorResponse{
		Message:    "An unexpected error occurred",
		StatusCode: http.StatusInternalServerError,
		Details:    map[string]any{"type": "InternalError"},
	}
}

func payloadTooLargeDetails(e *domain.PayloadTooLargeError) map[string]any {
	maxMB := e.Limit / bytesPerMB
	details := map[string]any{
		"type":        "PayloadTooLarge",
		"description": fmt.Sprintf("The request payload exceeds the maximum allowed size of %dMB", maxMB),
		"max_size_mb": maxMB,
		"suggestion":  "Please reduce the payload size and try again",
	}
	if e.Received > 0 {
		details["received_size_mb"] = math.Round(float64(e.Received)/bytesPerMB*100) / 100
	}
	return details
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
