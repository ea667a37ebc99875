package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/edgefront/bffgw/internal/circuitbreaker"
	"github.com/edgefront/bffgw/internal/downstream"
)

// ErrorEnvelope is the structured body returned for gateway-level
// failures. Code is stable for clients; Path echoes the original request.
type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// WriteError writes an error envelope with the given status.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorEnvelope{
		Code:    code,
		Message: message,
		Path:    r.URL.Path,
	})
}

// WriteDownstreamError maps a classified downstream error onto the wire.
// Remote rejections pass through with the original status and body; open
// circuits and exhausted transports get their stable envelope codes.
func WriteDownstreamError(w http.ResponseWriter, r *http.Request, err error) {
	if rej, ok := downstream.IsRemoteRejection(err); ok {
		w.Header().Set(HeaderContentType, ContentTypeJSON)
		w.WriteHeader(rej.Status)
		_, _ = w.Write(rej.Body)
		return
	}

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		WriteError(w, r, http.StatusServiceUnavailable, CodeCircuitOpen,
			"downstream temporarily unavailable")
		return
	}

	if downstream.IsTransient(err) {
		WriteError(w, r, http.StatusBadGateway, CodeDownstreamUnavailable,
			"downstream call failed")
		return
	}

	WriteError(w, r, http.StatusInternalServerError, CodeInternalError,
		"internal error")
}
