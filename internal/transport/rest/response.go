package rest

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorKind string `json:"errorKind"`
}

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// WriteError maps err's kind to a status code and writes ErrorResponse.
func WriteError(w http.ResponseWriter, err error) {
	me := mounts.AsError(err)
	WriteJSON(w, StatusFor(me.Kind), ErrorResponse{
		Error:     me.Error(),
		ErrorKind: string(me.Kind),
	})
}

// StatusFor returns the HTTP status for an error kind.
func StatusFor(kind mounts.Kind) int {
	switch kind {
	case mounts.KindInvalidRequest:
		return http.StatusBadRequest
	case mounts.KindAlreadyMountedConflict:
		return http.StatusConflict
	case mounts.KindAuthenticationFailed:
		return http.StatusUnauthorized
	case mounts.KindPermissionDenied:
		return http.StatusForbidden
	case mounts.KindNotMounted:
		return http.StatusNotFound
	case mounts.KindMountpointBusy:
		return http.StatusLocked
	case mounts.KindHostUnreachable:
		return http.StatusBadGateway
	case mounts.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
