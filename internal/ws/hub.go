// Package ws pushes live leaderboard updates to subscribed clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lumarush/lumarush-backend/internal/domain"
)

// Message types
const (
	MessageTypeRecordUpdate = "record_update"
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
)

// Message is the envelope every frame uses, in both directions.
type Message struct {
	Type          string      `json:"type"`
	LeaderboardID string      `json:"leaderboard_id,omitempty"`
	Data          interface{} `json:"data,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Hub tracks connected clients and their leaderboard subscriptions and fans
// broadcasts out to them.
type Hub struct {
	subscribers map[string]map[*Client]bool
	clients     map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscription
	unsubscribe chan *subscription

	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

type subscription struct {
	client        *Client
	leaderboardID string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		subscribers: make(map[string]map[*Client]bool),
		clients:     make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscription, 64),
		unsubscribe: make(chan *subscription, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run processes hub events until Stop is called.
func (h *Hub) Run() {
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			for client := range h.clients {
				close(client.send)
			}
			h.logger.Info("websocket hub stopped")
			return

		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for _, clients := range h.subscribers {
					delete(clients, client)
				}
				close(client.send)
			}

		case sub := <-h.subscribe:
			if h.subscribers[sub.leaderboardID] == nil {
				h.subscribers[sub.leaderboardID] = make(map[*Client]bool)
			}
			h.subscribers[sub.leaderboardID][sub.client] = true

		case sub := <-h.unsubscribe:
			if clients, ok := h.subscribers[sub.leaderboardID]; ok {
				delete(clients, sub.client)
			}

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Stop shuts the hub down and disconnects all clients.
func (h *Hub) Stop() {
	h.cancel()
}

// drop detaches a client. Safe to call after Stop, when nothing receives on
// the unregister channel anymore.
func (h *Hub) drop(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

func (h *Hub) deliver(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast", "error", err)
		return
	}

	for client := range h.subscribers[msg.LeaderboardID] {
		select {
		case client.send <- data:
		default:
			// Slow consumer; drop the frame rather than block the hub.
		}
	}
}

// BroadcastRecord pushes a resulting leaderboard record to subscribers of
// its leaderboard. Non-blocking; delivery is best effort.
func (h *Hub) BroadcastRecord(leaderboardID string, record *domain.LeaderboardRecord) {
	msg := &Message{
		Type:          MessageTypeRecordUpdate,
		LeaderboardID: leaderboardID,
		Data:          record,
		Timestamp:     time.Now(),
	}
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	default:
		h.logger.Warn("broadcast queue full, dropping record update", "leaderboard_id", leaderboardID)
	}
}
