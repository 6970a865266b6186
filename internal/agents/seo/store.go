package seo

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"query-orchestrator/internal/common/logger"
	"query-orchestrator/internal/common/metrics"
)

// Store serves the current Dataset snapshot. Readers never block on a refresh:
// a reload builds a new snapshot and swaps it in whole.
type Store struct {
	source  Source
	current atomic.Pointer[Dataset]
	loadMu  sync.Mutex
	logger  logger.Logger
}

func NewStore(source Source, log logger.Logger) *Store {
	return &Store{
		source: source,
		logger: log.With(map[string]interface{}{"component": "seo-store", "source": source.Name()}),
	}
}

// Get returns the snapshot, loading it on first use.
func (s *Store) Get(ctx context.Context) (*Dataset, error) {
	if ds := s.current.Load(); ds != nil {
		return ds, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if ds := s.current.Load(); ds != nil {
		return ds, nil
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s.current.Load(), nil
}

// Reload replaces the snapshot. On failure the previous snapshot stays in place.
func (s *Store) Reload(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) error {
	start := time.Now()
	ds, err := s.source.Load(ctx)
	if err != nil {
		s.logger.Error("failed to load crawl snapshot", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.current.Store(ds)
	metrics.SEODatasetRows.Set(float64(ds.Len()))
	s.logger.Info("crawl snapshot loaded", map[string]interface{}{
		"rows":     ds.Len(),
		"columns":  len(ds.Columns),
		"duration": time.Since(start).String(),
	})
	return nil
}

// Ready reports whether a snapshot has been loaded.
func (s *Store) Ready() bool {
	return s.current.Load() != nil
}

// StartRefresh reloads every interval until ctx is done.
func (s *Store) StartRefresh(ctx context.Context, interval, timeout time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rctx, cancel := context.WithTimeout(ctx, timeout)
				if err := s.Reload(rctx); err != nil {
					s.logger.Warn("crawl snapshot refresh failed, keeping previous snapshot", map[string]interface{}{
						"error": err.Error(),
					})
				}
				cancel()
			}
		}
	}()
}
