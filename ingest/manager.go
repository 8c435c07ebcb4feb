package ingest

import (
	"context"
	"log"
	"time"
)

// EventHandler receives each decoded check-in event
type EventHandler func(event *CheckinEvent)

// ConnectionManager handles the event-stream connection lifecycle: initial
// connect, keep-alive, health monitoring and reconnection with backoff.
type ConnectionManager struct {
	wsURL       string
	authToken   string
	client      *Client
	lastMsgTime time.Time
}

// NewConnectionManager creates a new ConnectionManager
func NewConnectionManager(wsURL, authToken string) *ConnectionManager {
	return &ConnectionManager{
		wsURL:       wsURL,
		authToken:   authToken,
		lastMsgTime: time.Now(),
	}
}

// Connect establishes the initial connection and subscription
func (cm *ConnectionManager) Connect() error {
	log.Println("🔌 Connecting to check-in event stream...")
	cm.client = NewClient(cm.wsURL, cm.authToken)

	if err := cm.client.Connect(); err != nil {
		return err
	}
	if err := cm.client.Subscribe(); err != nil {
		return err
	}

	cm.client.StartPing(25 * time.Second)
	return nil
}

// Reconnect tears the connection down and re-establishes it
func (cm *ConnectionManager) Reconnect() error {
	_ = cm.Close()

	cm.client = NewClient(cm.wsURL, cm.authToken)
	if err := cm.client.Connect(); err != nil {
		return err
	}
	if err := cm.client.Subscribe(); err != nil {
		return err
	}

	cm.client.StartPing(25 * time.Second)
	log.Println("✅ Event stream reconnected")
	return nil
}

// Close closes the connection
func (cm *ConnectionManager) Close() error {
	if cm.client != nil {
		return cm.client.Close()
	}
	return nil
}

// Run reads events until the context is cancelled, reconnecting with
// escalating backoff on read failures. Handler errors cannot propagate; a
// handler that needs to fail must log for itself.
func (cm *ConnectionManager) Run(ctx context.Context, handler EventHandler) {
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		event, err := cm.client.ReadEvent()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("⚠️  Event stream read failed: %v, reconnecting in %v", err, backoff)

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			if rerr := cm.Reconnect(); rerr != nil {
				log.Printf("❌ Event stream reconnection failed: %v", rerr)
				if backoff < 2*time.Minute {
					backoff *= 2
				}
				continue
			}
			backoff = time.Second
			continue
		}

		cm.lastMsgTime = time.Now()
		if event.Type == "ping" || event.UserID == "" {
			continue
		}
		handler(event)
	}
}

// RunHealthMonitor starts a background loop to check connection health
func (cm *ConnectionManager) RunHealthMonitor(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	log.Println("💓 Event stream health monitoring started")

	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 Event stream health monitoring stopped")
			return
		case <-ticker.C:
			timeSinceLastMessage := time.Since(cm.lastMsgTime)

			// If no frame in 5 minutes (pings included), reconnect
			if timeSinceLastMessage > 5*time.Minute {
				log.Printf("⚠️  No event received for %v, reconnecting...", timeSinceLastMessage.Round(time.Second))

				if err := cm.Reconnect(); err != nil {
					log.Printf("❌ Event stream reconnection failed: %v", err)
				} else {
					cm.lastMsgTime = time.Now()
				}
			}
		}
	}
}
