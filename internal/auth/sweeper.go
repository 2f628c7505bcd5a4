package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantgate/internal/store"
	"github.com/wolfeidau/tenantgate/internal/telemetry"
)

const (
	// DefaultSweepInterval is how often deactivated keys are polled.
	DefaultSweepInterval = 5 * time.Second

	// sweepSkew overlaps consecutive sweep windows to tolerate clock drift
	// between this process and the datastore.
	sweepSkew = time.Second
)

// RevocationSweeper evicts cached tenants whose platform key has been
// deactivated. It polls the key store for keys deactivated since the previous
// sweep and deletes their fingerprints from the cache.
type RevocationSweeper struct {
	keys     store.PlatformKeyStore
	cache    TenantCache
	interval time.Duration
	metrics  *telemetry.Metrics

	mu    sync.Mutex
	since time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRevocationSweeper creates a sweeper. Call Start to begin polling.
func NewRevocationSweeper(keys store.PlatformKeyStore, cache TenantCache, interval time.Duration) *RevocationSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &RevocationSweeper{
		keys:     keys,
		cache:    cache,
		interval: interval,
		metrics:  telemetry.GetMetrics(),
		// Anything deactivated before this has already aged out of the cache.
		since: time.Now().Add(-MaxCacheTTL),
	}
}

// Start runs an initial sweep and then polls in a background goroutine until
// Stop is called or ctx is cancelled.
func (s *RevocationSweeper) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if _, err := s.Sweep(ctx); err != nil {
		log.Error().Err(err).Msg("Initial revocation sweep failed")
	}

	s.wg.Add(1)
	go s.loop(sweepCtx)
}

// Stop cancels the background goroutine and waits for it to exit.
func (s *RevocationSweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
}

func (s *RevocationSweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Revocation sweeper stopped")
			return

		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("Revocation sweep failed")
			}
		}
	}
}

// Sweep evicts cache entries for keys deactivated since the last successful
// sweep and returns how many were evicted. On error the window is retained so
// the next sweep covers it again.
func (s *RevocationSweeper) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()

	deactivated, err := s.keys.ListDeactivatedSince(ctx, s.since)
	if err != nil {
		return 0, err
	}

	for _, key := range deactivated {
		s.cache.Delete(ctx, Fingerprint(key.Key))
	}

	s.since = started.Add(-sweepSkew)

	if n := len(deactivated); n > 0 {
		s.metrics.RevocationsEvictedTotal.Add(ctx, int64(n))
		log.Info().Int("count", n).Msg("Evicted deactivated platform keys from tenant cache")
	} else {
		log.Debug().Msg("Revocation sweep found no deactivated keys")
	}

	return len(deactivated), nil
}
