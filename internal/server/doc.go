// Package server implements the HTTP and WebSocket surface of the chat relay.
//
// The implementation is organized into specialized files for configuration,
// client supervision, clients, routing, and HTTP handlers. Room state is not
// kept here: every connection event is handed to a RoomHandler.
package server
