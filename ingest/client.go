package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// CheckinEvent is one frame from the logging gateway's event stream
type CheckinEvent struct {
	Type    string `json:"type"` // checkin_updated, meal_logged, ping
	UserID  string `json:"user_id"`
	DateKey string `json:"date_key,omitempty"`
}

// subscribeRequest is the JSON handshake sent after connecting
type subscribeRequest struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is a WebSocket client for the gateway event stream
type Client struct {
	url        string
	conn       *websocket.Conn
	header     http.Header
	writeMu    sync.Mutex
	pingCancel context.CancelFunc
}

// NewClient creates a new WebSocket client
func NewClient(url string, authToken string) *Client {
	header := make(http.Header)
	if authToken != "" {
		header.Set("Authorization", "Bearer "+authToken)
	}
	header.Set("User-Agent", "Daywise-Insights/1.0")

	return &Client{
		url:    url,
		header: header,
	}
}

// Connect establishes WebSocket connection
func (c *Client) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, c.header)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.conn = conn
	log.Printf("✅ Connected to %s", c.url)
	return nil
}

// Subscribe requests the event topics this service consumes
func (c *Client) Subscribe() error {
	req := subscribeRequest{
		Action: "subscribe",
		Topics: []string{"checkin_updated", "meal_logged"},
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("failed to send subscription: %w", err)
	}

	log.Println("📡 Subscribed to check-in events")
	return nil
}

// ReadEvent blocks until the next event frame arrives
func (c *Client) ReadEvent() (*CheckinEvent, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var event CheckinEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("malformed event frame: %w", err)
	}
	return &event, nil
}

// StartPing starts the keep-alive pinger
func (c *Client) StartPing(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.pingCancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.writeMu.Lock()
				err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				c.writeMu.Unlock()
				if err != nil {
					log.Printf("⚠️  Ping failed: %v", err)
					return
				}
			}
		}
	}()
}

// Close closes the connection
func (c *Client) Close() error {
	if c.pingCancel != nil {
		c.pingCancel()
		c.pingCancel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
