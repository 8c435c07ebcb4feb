package engine

import (
	"context"
	"log"
	"sync"
)

// RunQueue serializes analysis runs triggered by check-in events. A single
// worker drains the queue, so two runs for the same user never execute
// concurrently and the promotion read-modify-write needs no extra locking.
// Enqueueing is best-effort: a full queue drops the trigger (the next
// check-in re-triggers), and run failures are logged, never propagated.
type RunQueue struct {
	engine *InsightEngine
	jobs   chan string
	mu     sync.Mutex
	queued map[string]bool
}

// NewRunQueue creates a run queue with a bounded backlog
func NewRunQueue(engine *InsightEngine) *RunQueue {
	return &RunQueue{
		engine: engine,
		jobs:   make(chan string, 256),
		queued: make(map[string]bool),
	}
}

// Enqueue schedules a best-effort run for a user. Duplicate triggers while a
// run is already queued collapse into one.
func (q *RunQueue) Enqueue(userID string) {
	if userID == "" {
		return
	}

	q.mu.Lock()
	if q.queued[userID] {
		q.mu.Unlock()
		return
	}
	q.queued[userID] = true
	q.mu.Unlock()

	select {
	case q.jobs <- userID:
	default:
		q.mu.Lock()
		delete(q.queued, userID)
		q.mu.Unlock()
		log.Printf("⚠️  Analysis queue full, dropping trigger for user %s", userID)
	}
}

// Run drains the queue until the context is cancelled
func (q *RunQueue) Run(ctx context.Context) {
	log.Println("📊 Analysis run queue started")
	for {
		select {
		case <-ctx.Done():
			log.Println("📊 Analysis run queue stopped")
			return
		case userID := <-q.jobs:
			q.mu.Lock()
			delete(q.queued, userID)
			q.mu.Unlock()

			result, err := q.engine.RunAnalysis(userID, RunOptions{})
			if err != nil {
				log.Printf("❌ Background analysis run failed for %s: %v", userID, err)
				continue
			}
			log.Printf("✅ Analysis run for %s: %d candidates stored, %d surfaced, %d roundup flags",
				userID, result.StoredCount, result.PromotedCount, result.Roundup.StoredCount)
		}
	}
}
