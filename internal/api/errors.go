package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/soaringjerry/comparaholic/internal/services"
	"github.com/soaringjerry/comparaholic/internal/utils"
)

type errorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict:
		return http.StatusConflict
	case services.ErrorTooManyRequests:
		return http.StatusTooManyRequests
	case services.ErrorBadGateway:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError maps service errors to their status; anything else is a 500
// whose cause is logged, not returned.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	se, ok := services.AsServiceError(err)
	if !ok {
		rt.logger.Error("unhandled error", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
		return
	}
	msg := se.Message
	if se.Code == services.ErrorBadGateway {
		rt.logger.Warn("backend failure", zap.String("path", r.URL.Path), zap.Error(err))
		msg = utils.T(localeOf(r), "error.backend")
	}
	if se.Code == services.ErrorInvalid && len(se.Fields) > 0 && se.Message == "required fields missing" {
		msg = utils.T(localeOf(r), "form.required_missing")
	}
	writeJSON(w, statusFor(se.Code), errorBody{Error: string(se.Code), Message: msg, Fields: se.Fields})
}
