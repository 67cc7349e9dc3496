package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Error type tags returned in the "type" field of error responses.
const (
	ErrTypeValidation = "VALIDATION_ERROR"
	ErrTypeNotFound   = "NOT_FOUND"
	ErrTypeInternal   = "INTERNAL_ERROR"
)

// APIError is the structured error body every failing endpoint
// returns.
type APIError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp"`
}

func (e APIError) Error() string { return e.Message }

// newAPIError builds an error body stamped with the request id.
func newAPIError(r *http.Request, errType, message string, ctx map[string]any) APIError {
	return APIError{
		Type:      errType,
		Message:   message,
		Context:   ctx,
		RequestID: middleware.GetReqID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func requestID(r *http.Request) string { return middleware.GetReqID(r.Context()) }

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, errType, message string, ctx map[string]any) {
	e := newAPIError(r, errType, message, ctx)
	s.logger.Printf("request_error method=%s path=%s status=%d type=%s request_id=%s message=%q",
		r.Method, r.URL.Path, status, errType, e.RequestID, message)
	s.writeJSON(w, status, map[string]any{"error": e})
}
