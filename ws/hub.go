package ws

import (
	"context"

	"go.uber.org/zap"

	"github.com/calmerge/calmerge-server/logging"
)

// Hub holds all active clients and manages centralized sending.
type Hub struct {
	// clients holds all online clients.
	clients map[*Client]struct{}
	// register receives when a Client wants to register itself.
	register chan *Client
	// unregister receives when a Client wants to unregister itself.
	unregister chan *Client
	// broadcast receives messages to fan out to all clients.
	broadcast chan []byte
}

// NewHub creates a new Hub. Start it with Hub.Run.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
	}
}

// Broadcast queues the given message for fan-out to all connected clients.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		logging.WSLogger.Warn("dropping broadcast message due to full queue")
	}
}

// Run starts the Hub. It blocks so you need to start a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			// Register client.
			h.clients[c] = struct{}{}
			logging.WSLogger.Info("client connected", zap.String("client_id", c.ID.String()))
		case c := <-h.unregister:
			// Unregister client.
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				logging.WSLogger.Info("client disconnected", zap.String("client_id", c.ID.String()))
				// Close the send-channel which leads to stopping the write-pump.
				close(c.Send)
			}
		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.Send <- message:
				default:
					// Slow client. Drop the message instead of blocking the hub.
					logging.WSLogger.Warn("dropping message for slow client",
						zap.String("client_id", c.ID.String()))
				}
			}
		}
	}
}
