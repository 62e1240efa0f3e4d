package handle

import (
	"encoding/json"
	"errors"
	"net/http"

	"menuqr/internal/order/app/core"
)

// jsonResponse writes the given data as a JSON-encoded HTTP response.
func jsonResponse(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// jsonError writes an error response as JSON with the specified HTTP status code.
func jsonError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err.Error(),
		"code":  code,
	})
}

// statusFor maps the service error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrOrderNotFound), errors.Is(err, core.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrRoleForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrOrderTerminal),
		errors.Is(err, core.ErrItemTerminal),
		errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrConfirmationRequired),
		errors.Is(err, core.ErrNotAwaitingConfirmation):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
