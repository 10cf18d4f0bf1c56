package web

// errors.go turns engine errors into JSON responses.
//
// The technical error is logged with the request id; the client gets the
// user message from core.MapError and a status derived from its code.

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/sheetsync/internal/core"
	"github.com/JonMunkholm/sheetsync/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := core.MapError(err)
	status := statusForCode(msg.Code)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	respondErrorJSON(w, msg, status)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusForCode maps an error code to an HTTP status.
func statusForCode(code string) int {
	switch code {
	case "CFG001", "CFG003", "FETCH002":
		return http.StatusNotFound
	case "CFG002", "CFG004", "REQ001":
		return http.StatusBadRequest
	case "FETCH003":
		return http.StatusForbidden
	case "REQ002":
		return 499
	case "REQ003", "DB004":
		return http.StatusGatewayTimeout
	case "RATE001":
		return http.StatusTooManyRequests
	}

	switch {
	case strings.HasPrefix(code, "AUTH"):
		return http.StatusUnauthorized
	case strings.HasPrefix(code, "FETCH"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
