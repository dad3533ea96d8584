package playback

import (
	"context"
	"log"
	"time"
)

// Sweeper evicts devices that stop heartbeating. It governs device-list
// hygiene only; command delivery has no timeout of its own.
type Sweeper struct {
	coordinator *Coordinator
	interval    time.Duration
	staleAfter  time.Duration
	now         func() time.Time
}

func NewSweeper(coordinator *Coordinator, interval, staleAfter time.Duration) *Sweeper {
	return &Sweeper{
		coordinator: coordinator,
		interval:    interval,
		staleAfter:  staleAfter,
		now:         time.Now,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("🧹 Liveness sweeper started (interval=%s, staleAfter=%s)", s.interval, s.staleAfter)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one eviction pass and returns how many devices were removed.
func (s *Sweeper) Sweep() int {
	return s.coordinator.EvictStale(s.now().Add(-s.staleAfter))
}
