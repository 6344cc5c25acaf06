package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/twinforge/twinforge/pkg/auth"
	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/log"
)

type errorBody struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"requestId"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Stack     string                 `json:"stack,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// writeError renders the structured error envelope and logs the failure
// with its request context. Stack traces are suppressed in production.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errdefs.KindOf(err)
	requestID := RequestIDFrom(r.Context())

	body := errorBody{
		Code:      string(kind),
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
	var kerr *errdefs.Error
	if errors.As(err, &kerr) {
		body.Context = kerr.Context
	}
	if !s.cfg.Production {
		body.Stack = string(debug.Stack())
	}

	userID := ""
	if user := auth.UserFrom(r.Context()); user != nil {
		userID = user.ExternalID
	}
	logger := log.WithRequestID(requestID)
	logger.Error().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("user", userID).
		Msg("request failed")

	writeJSON(w, kind.HTTPStatus(), errorEnvelope{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Logger.Error().Err(err).Msg("failed to encode response")
	}
}
