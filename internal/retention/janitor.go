// Package retention purges stale chat history. Conversations carry
// de-identified but still sensitive medical context, so they are not kept
// around forever: sessions idle past the retention window are deleted,
// messages included.
//
// The janitor runs as a background goroutine and respects context
// cancellation for graceful shutdown.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/medicortex/medicortex/internal/history"
)

// DefaultInterval is how often a retention cycle runs.
const DefaultInterval = time.Hour

// Janitor periodically purges chat sessions older than the retention
// window.
type Janitor struct {
	store    history.Store
	window   time.Duration
	interval time.Duration
}

// NewJanitor creates a janitor over the given history store. window is how
// long idle sessions are kept.
func NewJanitor(store history.Store, window time.Duration) *Janitor {
	return &Janitor{
		store:    store,
		window:   window,
		interval: DefaultInterval,
	}
}

// Run blocks, executing one cycle immediately and then one per interval,
// until ctx is cancelled. Callers start it in its own goroutine.
func (j *Janitor) Run(ctx context.Context) {
	log.Info().Dur("window", j.window).Msg("🧹 retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("retention janitor stopped")
			return
		case <-ticker.C:
			j.cycle(ctx)
		}
	}
}

// Cycle runs a single purge pass. Exposed for tests and manual runs.
func (j *Janitor) Cycle(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-j.window)
	return j.store.DeleteSessionsBefore(ctx, cutoff)
}

func (j *Janitor) cycle(ctx context.Context) {
	purged, err := j.Cycle(ctx)
	if err != nil {
		log.Error().Err(err).Msg("retention cycle failed")
		return
	}
	if purged > 0 {
		log.Info().Int("sessions", purged).Msg("purged expired chat sessions")
	}
}
