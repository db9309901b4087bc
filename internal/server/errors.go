package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/store"
)

var (
	errBadRequestBody = errors.New("request body must be valid JSON")
	errBadRoomID      = errors.New("room id must be an integer")
	errRoomNameEmpty  = errors.New("room name must not be empty")
)

// statusFor maps an error to its HTTP status and client-facing message.
// Server-side failures never leak their text.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrAuthFailure):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, chat.ErrValidation),
		errors.Is(err, errBadRequestBody),
		errors.Is(err, errBadRoomID),
		errors.Is(err, errRoomNameEmpty):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrRoomNotFound):
		return http.StatusNotFound, store.ErrRoomNotFound.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, store.ErrNotFound.Error()
	case errors.Is(err, store.ErrUserExists):
		return http.StatusConflict, store.ErrUserExists.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
