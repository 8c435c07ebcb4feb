package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	models "daywise-insights/database/models_pkg"
)

// Broker handles Server-Sent Events (SSE) clients and broadcasting of
// surfaced-correlation events to connected presentation clients
type Broker struct {
	clients    map[chan []byte]bool
	register   chan chan []byte
	unregister chan chan []byte
	broadcast  chan []byte
	mu         sync.RWMutex
}

// SurfacedEvent is the JSON envelope pushed when a correlation surfaces
type SurfacedEvent struct {
	Type        string                     `json:"type"`
	UserID      string                     `json:"user_id"`
	Correlation models.PromotedCorrelation `json:"correlation"`
}

// NewBroker creates a new SSE broker
func NewBroker() *Broker {
	return &Broker{
		clients:    make(map[chan []byte]bool),
		register:   make(chan chan []byte),
		unregister: make(chan chan []byte),
		broadcast:  make(chan []byte, 256),
	}
}

// Run starts the broker loop
func (b *Broker) Run() {
	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()
			log.Printf("SSE client connected. Total: %d", len(b.clients))

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client)
				log.Printf("SSE client disconnected. Total: %d", len(b.clients))
			}
			b.mu.Unlock()

		case msg := <-b.broadcast:
			b.mu.RLock()
			for client := range b.clients {
				select {
				case client <- msg:
				default:
					// Skip if client buffer is full to prevent blocking
				}
			}
			b.mu.RUnlock()
		}
	}
}

// BroadcastSurfaced pushes a newly surfaced correlation to all clients
func (b *Broker) BroadcastSurfaced(row models.PromotedCorrelation) {
	payload, err := json.Marshal(SurfacedEvent{
		Type:        "correlation_surfaced",
		UserID:      row.UserID,
		Correlation: row,
	})
	if err != nil {
		log.Printf("⚠️  Failed to marshal surfaced event: %v", err)
		return
	}

	select {
	case b.broadcast <- payload:
	default:
		log.Println("⚠️  SSE broadcast buffer full, dropping surfaced event")
	}
}

// ServeHTTP implements the SSE endpoint
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := make(chan []byte, 16)
	b.register <- client
	defer func() {
		b.unregister <- client
	}()

	fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-client:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
