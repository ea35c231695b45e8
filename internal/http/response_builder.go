package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/log"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// statusForKind maps an error taxonomy label to its HTTP status.
func statusForKind(kind string) int {
	switch kind {
	case core.KindUnauthenticated:
		return http.StatusUnauthorized
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse builds the status and body for err. Internal errors carry
// a generic message so storage details never reach the client.
func errorResponse(err error) (int, errorBody) {
	kind := core.ErrorKind(err)
	detail := errorDetail{Kind: kind}

	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		detail.Field = verr.Field
		detail.Message = verr.Message
	case kind == core.KindUnauthenticated:
		detail.Message = "authentication required"
	case kind == core.KindForbidden:
		detail.Message = "you do not have access to this record"
	case kind == core.KindNotFound:
		detail.Message = "record not found"
	case kind == core.KindValidation:
		detail.Message = err.Error()
	default:
		detail.Message = "internal server error"
	}
	return statusForKind(kind), errorBody{Error: detail}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path,
			log.FieldError, err.Error())
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			log.FieldPath, r.URL.Path,
			log.FieldKind, body.Error.Kind,
			log.FieldError, err.Error())
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
