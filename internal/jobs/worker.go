package jobs

import (
	"context"
	"log"
	"time"
)

// SnapshotRefresher fetches, installs, and swaps in a new snapshot
// generation without interrupting serving.
type SnapshotRefresher interface {
	Refresh(ctx context.Context) error
}

// Worker drives periodic zero-downtime snapshot refresh. A failed refresh
// keeps the current generation serving and is retried on the next tick.
type Worker struct {
	refresher SnapshotRefresher
	interval  time.Duration
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewWorker creates a refresh worker that ticks at the given interval.
func NewWorker(refresher SnapshotRefresher, interval time.Duration) *Worker {
	return &Worker{
		refresher: refresher,
		interval:  interval,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start runs the refresh loop until Stop is called or ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("refresh worker started (interval %v)", w.interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("refresh worker stopped: context cancelled")
			return
		case <-w.stopChan:
			log.Println("refresh worker stopped")
			return
		case <-ticker.C:
			if err := w.refresher.Refresh(ctx); err != nil {
				log.Printf("snapshot refresh failed (keeping current generation): %v", err)
			} else {
				log.Println("snapshot refresh completed")
			}
		}
	}
}

// Stop signals the loop to exit and waits for it to drain.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
}
