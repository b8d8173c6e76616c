package api

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/mrcode/glucose-calculator/internal/advice"
	"github.com/mrcode/glucose-calculator/internal/models"
)

// Stream message types
const (
	MessageReading        = "reading"
	MessageRecommendation = "recommendation"
)

// Message is one event pushed to stream clients
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans messages out to websocket clients. New clients receive the last
// message of each type on connect.
type Hub struct {
	logger *slog.Logger

	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan Message
	done       chan struct{}

	// owned by Run
	last map[string]Message

	connected atomic.Int64
}

// NewHub creates a hub; call Run to start it
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger,
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Message, 256),
		done:       make(chan struct{}),
		last:       make(map[string]Message),
	}
}

// Run is the hub loop. It disconnects all clients when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.connected.Add(1)
			for _, msg := range h.last {
				select {
				case c.send <- msg:
				default:
				}
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case msg := <-h.broadcast:
			h.last[msg.Type] = msg
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow consumer
					h.logger.Warn("dropping slow stream client", "remote", c.remote)
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.connected.Add(-1)
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

// Broadcast queues msg for all clients. It never blocks; a full queue drops the message.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("stream queue full, dropping message", "type", msg.Type)
	}
}

// PublishReading broadcasts a stored reading; it fits feed.Latest.OnUpdate
func (h *Hub) PublishReading(r models.SensorReading) {
	h.Broadcast(Message{Type: MessageReading, Data: r})
}

// Record implements advice.Sink
func (h *Hub) Record(_ context.Context, res *advice.Result) error {
	h.Broadcast(Message{Type: MessageRecommendation, Data: res})
	return nil
}
