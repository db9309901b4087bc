package server

import "strings"

// errorResponse is the JSON body of every failed REST call.
type errorResponse struct {
	Error string `json:"error"`
}

type createRoomRequest struct {
	Name string `json:"name"`
}

type postMessageRequest struct {
	Content string `json:"content"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Subscribers int    `json:"subscribers"`
	Sessions    int    `json:"sessions"`
	Database    string `json:"database"`
	Cache       string `json:"cache"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
