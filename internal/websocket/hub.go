package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/adforge/api/internal/model"
	"github.com/adforge/api/internal/store"
)

// Client represents a WebSocket client
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub tracks active WebSocket connections and relays each job's event
// stream from the store to its subscribers. Events originate from the
// pipeline through the store, never from the hub itself.
type Hub struct {
	store store.JobStore

	// Clients grouped by job ID
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	mu sync.RWMutex
}

// controlMessage is the client-to-server keep-alive envelope
type controlMessage struct {
	Type string `json:"type"`
}

// NewHub creates a new Hub
func NewHub(st store.JobStore) *Hub {
	return &Hub{
		store:      st,
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			h.mu.Unlock()
			log.Printf("Client registered for job %s", client.JobID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.JobID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.JobID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Client unregistered from job %s", client.JobID)
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// HandleConnection handles a WebSocket connection for one job's stream
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	client := &Client{
		JobID: jobID,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	go h.relay(ctx, client)

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg controlMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == "ping" {
			data, _ := json.Marshal(controlMessage{Type: "pong"})
			h.send(client, data)
		}
	}
}

// relay forwards the job's event stream to one client, starting with a
// snapshot of last-known state so a late subscriber is never blind.
func (h *Hub) relay(ctx context.Context, client *Client) {
	if job, err := h.store.GetJob(ctx, client.JobID); err == nil {
		snapshot := &model.ProgressEvent{
			Type:        model.EventTypeProgress,
			JobID:       job.ID,
			Status:      job.Status,
			CurrentStep: job.CurrentStep,
			Progress:    job.Progress,
			Message:     job.Message,
		}
		if data, err := json.Marshal(snapshot); err == nil {
			h.send(client, data)
		}
	}

	events, stop, err := h.store.Subscribe(ctx, client.JobID)
	if err != nil {
		log.Printf("Failed to subscribe to job %s: %v", client.JobID, err)
		return
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(&ev)
			if err != nil {
				continue
			}
			h.send(client, data)
		}
	}
}

// send delivers without blocking; a slow client just drops the message
func (h *Hub) send(client *Client, data []byte) {
	defer func() {
		// Send channel may close while we hold a reference
		_ = recover()
	}()
	select {
	case client.Send <- data:
	default:
	}
}
