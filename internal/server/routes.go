// Package server wires HTTP handlers into a ServeMux for the chat relay
// via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// metrics may be nil when no exposition endpoint is wanted.
func SetupRoutes(h *Handlers, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/test", TestPageHandler)
	mux.HandleFunc("/ChatRoom/{userName}/{roomName}", h.WebSocket)
	mux.HandleFunc("/RoomInformation/getOnlineCount", h.OnlineCount)
	mux.HandleFunc("/RoomInformation/getChatHistory", h.ChatHistory)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}
