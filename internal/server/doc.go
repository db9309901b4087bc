// Package server is the transport layer of roomchat: the WebSocket session
// that binds a connection to a room, the REST handlers, routing, and the
// HTTP server lifecycle.
//
// Handlers are methods on Server, which is wired with its collaborators
// through Deps; the package holds no global state.
package server
