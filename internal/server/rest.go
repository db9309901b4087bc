package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Tyrowin/roomchat/internal/auth"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, dest any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return errBadRequestBody
	}
	return nil
}

// RegisterHandler serves POST /auth/register.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}

	resp, err := s.accounts.Register(r.Context(), req)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	s.log.Info().Int64("user_id", resp.User.ID).Msg("user registered")
	writeJSON(w, http.StatusCreated, resp)
}

// LoginHandler serves POST /auth/login.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}

	resp, err := s.accounts.Login(r.Context(), req)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListRoomsHandler serves GET /rooms through the cache-aside lister.
func (s *Server) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.rooms.ListRooms(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// CreateRoomHandler serves POST /rooms.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, s.log, errRoomNameEmpty)
		return
	}

	room, err := s.rooms.CreateRoom(r.Context(), name)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	s.log.Info().Int64("room_id", room.ID).Str("name", room.Name).Msg("room created")
	writeJSON(w, http.StatusCreated, room)
}

// PostMessageHandler serves POST /rooms/{room_id}/messages. The message goes
// through the same pipeline as WebSocket frames, so subscribers see it.
func (s *Server) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	roomID, err := parseRoomID(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	var req postMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}

	identity, _ := identityFrom(r.Context())
	msg, err := s.messages.Submit(r.Context(), identity, roomID, req.Content)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
