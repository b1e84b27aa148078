package handler

import (
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/mvstories/internal/domain"
)

// bodySlack is allowed on top of the base64 content ceiling for the JSON
// envelope or multipart framing around the content.
const bodySlack = 1 * bytesPerMB

// requestLogger attaches a request scoped logger to the context and logs
// every completed request.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With().
				Str("request_id", middleware.GetReqID(r.Context())).
				Logger()
			r = r.WithContext(reqLogger.WithContext(r.Context()))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			event := reqLogger.Info()
			if status >= http.StatusInternalServerError {
				event = reqLogger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("request completed")
		})
	}
}

// recoverer converts a panic into the 500 error envelope.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			zerolog.Ctx(r.Context()).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("path", r.URL.Path).
				Msg("panic while serving request")

			writeJSON(w, http.StatusInternalServerError, ErrorResponse{
				Error:      true,
				Message:    "An unexpected error occurred",
				StatusCode: http.StatusInternalServerError,
				Details:    map[string]any{"type": "InternalError"},
			})
		}()

		next.ServeHTTP(w, r)
	})
}

// limitBody rejects requests whose declared length exceeds maxBytes and caps
// the body of the rest. nominal is the configured upload size reported to
// the client.
func limitBody(maxBytes, nominal int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				zerolog.Ctx(r.Context()).Warn().
					Int64("content_length", r.ContentLength).
					Int64("max_bytes", maxBytes).
					Msg("request payload too large")
				writeError(w, r, &domain.PayloadTooLargeError{Limit: nominal, Received: r.ContentLength})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// tooLarge rewrites a body limit failure to report the configured upload
// size instead of the internal body ceiling.
func tooLarge(err error, nominal int64) error {
	var e *domain.PayloadTooLargeError
	if errors.As(err, &e) && e.Limit != nominal {
		return &domain.PayloadTooLargeError{Limit: nominal, Received: e.Received}
	}
	return err
}
