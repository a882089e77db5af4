package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/TaxiETL/internal/core"
	"github.com/JonMunkholm/TaxiETL/internal/logging"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// errBadUpload marks a request without a usable "file" part.
type errBadUpload struct{ err error }

func (e errBadUpload) Error() string { return "no CSV file in form field \"file\": " + e.err.Error() }
func (e errBadUpload) Unwrap() error { return e.err }

// statusFor maps run-scoped failures to HTTP status codes.
func statusFor(err error) int {
	var bad errBadUpload
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrRunBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrInputNotFound), errors.Is(err, core.ErrSourceRead):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrLoad), errors.Is(err, core.ErrCount):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// codeFor returns a stable machine-readable code for err.
func codeFor(err error) string {
	var bad errBadUpload
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return "UPLOAD_TOO_LARGE"
	case errors.As(err, &bad):
		return "UPLOAD_INVALID"
	case errors.Is(err, core.ErrRunBusy):
		return "RUN_BUSY"
	case errors.Is(err, core.ErrInputNotFound):
		return "INPUT_NOT_FOUND"
	case errors.Is(err, core.ErrSourceRead):
		return "SOURCE_READ"
	case errors.Is(err, core.ErrDuplicatesNotWritable):
		return "DUPLICATES_NOT_WRITABLE"
	case errors.Is(err, core.ErrLoad):
		return "LOAD_FAILED"
	case errors.Is(err, core.ErrCount):
		return "COUNT_FAILED"
	case errors.Is(err, context.DeadlineExceeded):
		return "RUN_TIMEOUT"
	default:
		return "INTERNAL"
	}
}

// respondError logs err with the request id and writes it as JSON.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	code := codeFor(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", code,
		"error", err.Error(),
	)

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		RequestID: middleware.GetReqID(r.Context()),
	})
}
