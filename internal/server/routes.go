package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.RootHandler)
	mux.HandleFunc("GET /health", s.HealthHandler)
	mux.HandleFunc("GET /test", s.TestPageHandler)
	mux.HandleFunc("GET /ws/{room_id}", s.WebSocketHandler)

	mux.HandleFunc("POST /auth/register", s.RegisterHandler)
	mux.HandleFunc("POST /auth/login", s.LoginHandler)

	mux.HandleFunc("GET /rooms", s.requireAuth(s.ListRoomsHandler))
	mux.HandleFunc("POST /rooms", s.requireAuth(s.CreateRoomHandler))
	mux.HandleFunc("POST /rooms/{room_id}/messages", s.requireAuth(s.PostMessageHandler))
	return mux
}

// Handler returns the routes wrapped in the CORS and request-logging middleware.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.cors(s.SetupRoutes()))
}
