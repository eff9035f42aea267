package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopcove/identity-service/internal/apperror"
)

// envelope is the wire shape every response uses, success or failure.
type envelope struct {
	Succeeded bool     `json:"succeeded"`
	Data      any      `json:"data,omitempty"`
	Messages  []string `json:"messages,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Succeeded: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), envelope{
		Succeeded: false,
		Messages:  []string{apperror.MessageOf(err)},
	})
}

// statusFor maps the error taxonomy onto HTTP statuses. TokenExpired is
// 401 like any other auth failure but keeps its own message so clients
// know to try a refresh.
func statusFor(err error) int {
	switch apperror.CodeOf(err) {
	case apperror.CodeNotFound:
		return http.StatusNotFound
	case apperror.CodeConflict:
		return http.StatusConflict
	case apperror.CodeForbidden:
		return http.StatusForbidden
	case apperror.CodeUnauthorized, apperror.CodeTokenExpired:
		return http.StatusUnauthorized
	case apperror.CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
