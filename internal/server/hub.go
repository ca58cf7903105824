// Package server supervises live WebSocket clients: it starts their pumps,
// accounts for their goroutines and closes them all on shutdown.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrHubClosed is returned when a client is registered after shutdown began.
var ErrHubClosed = errors.New("hub is shut down")

// Hub tracks every running client and hands its lifecycle events to the
// room handler. Room state lives in the handler, not here.
type Hub struct {
	handler RoomHandler
	logger  *zap.Logger

	clients map[*Client]struct{}
	mutex   sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
}

// NewHub creates a Hub that reports connection events to handler.
func NewHub(handler RoomHandler, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		handler: handler,
		logger:  logger,
		clients: make(map[*Client]struct{}),
	}
}

// Register opens client and launches its read and write pumps. The read pump
// joins the client to its room before reading the first frame.
func (h *Hub) Register(client *Client) error {
	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		_ = client.Close()
		return ErrHubClosed
	}
	if !client.open() {
		h.mutex.Unlock()
		return ErrConnClosed
	}
	h.clients[client] = struct{}{}
	clientCount := len(h.clients)
	h.wg.Add(2)
	h.mutex.Unlock()

	h.logger.Info("client registered",
		zap.String("conn", client.ID()),
		zap.String("addr", client.addr),
		zap.String("user", client.User()),
		zap.String("room", client.Room()),
		zap.Int("clients", clientCount))

	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump(h.handler, func() { h.unregister(client) })
	}()
	return nil
}

func (h *Hub) unregister(client *Client) {
	h.mutex.Lock()
	delete(h.clients, client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.logger.Info("client unregistered",
		zap.String("conn", client.ID()),
		zap.String("addr", client.addr),
		zap.Int("clients", clientCount))
}

// ClientCount returns the number of running clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// getClientSnapshot returns a thread-safe snapshot of all current clients
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// shutdownClients closes every client; their pumps then run the normal
// leave path, so remaining room members still see the quit notifications.
func (h *Hub) shutdownClients() {
	clients := h.getClientSnapshot()
	h.logger.Info("closing clients for shutdown", zap.Int("clients", len(clients)))

	for _, client := range clients {
		_ = client.Close()
	}
}

// Shutdown refuses new clients, closes the running ones and waits for their
// goroutines. It returns context.DeadlineExceeded if they outlive timeout.
// Later calls only wait.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mutex.Lock()
	first := !h.closed
	h.closed = true
	h.mutex.Unlock()

	if first {
		h.logger.Info("initiating hub shutdown")
		h.shutdownClients()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
