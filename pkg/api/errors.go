package api

import (
	"net/http"

	"github.com/gravitational/trace"
)

// ErrorResponse is the error body returned by every endpoint.
type ErrorResponse struct {
	Detail    string `json:"detail" example:"An internal server error occurred."`
	Error     string `json:"error,omitempty" example:"listing buckets: connection refused"`
	Traceback string `json:"traceback,omitempty"`
}

const internalErrorDetail = "An internal server error occurred."

// errorStatus maps a classified error to its HTTP status.
func errorStatus(err error) int {
	switch {
	case trace.IsBadParameter(err):
		return http.StatusBadRequest
	case trace.IsNotFound(err):
		return http.StatusNotFound
	case trace.IsAccessDenied(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeTraceError logs err and writes the matching error response. Internal
// errors carry the raw message and, unless disabled, the stack trace.
func (s *server) writeTraceError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)

	log := s.log.WithError(err).WithField("path", r.URL.Path)

	if status != http.StatusInternalServerError {
		log.Warn("Request rejected")
		s.writeJSON(w, status, ErrorResponse{Detail: trace.UserMessage(err)})

		return
	}

	log.WithField("stack_trace", trace.DebugReport(err)).Error("Request failed")

	resp := ErrorResponse{
		Detail: internalErrorDetail,
		Error:  err.Error(),
	}

	if s.cfg.StackTracesExposed() {
		resp.Traceback = trace.DebugReport(err)
	}

	s.writeJSON(w, status, resp)
}
