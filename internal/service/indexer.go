package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultIndexerInterval = 30 * time.Second

// IndexerService keeps every agent's semantic indexes current: historical
// summaries written during compaction get embedded and upserted, and notes
// saved while the embedding backend was down get their vectors filled in.
type IndexerService struct {
	registry *Registry
	logger   *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewIndexerService(registry *Registry, logger *zap.Logger) *IndexerService {
	return &IndexerService{
		registry: registry,
		logger:   logger,
		interval: defaultIndexerInterval,
		stopCh:   make(chan struct{}),
	}
}

func (s *IndexerService) SetInterval(d time.Duration) {
	s.interval = d
}

// Start runs the indexer on a periodic schedule in a background goroutine.
func (s *IndexerService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("summary indexer started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.RunOnce(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("summary indexer stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the indexer.
func (s *IndexerService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunOnce sweeps all agents once. Also called at startup so restored agents
// have their indexes hydrated before the first recall.
func (s *IndexerService) RunOnce(ctx context.Context) {
	for _, a := range s.registry.All() {
		if err := a.Memory.IndexPendingSummaries(ctx); err != nil {
			s.logger.Warn("summary indexing failed",
				zap.String("agent_id", a.ID),
				zap.Error(err))
		}
		if err := a.Notes.ReembedPending(ctx); err != nil {
			s.logger.Warn("note re-embedding failed",
				zap.String("agent_id", a.ID),
				zap.Error(err))
		}
	}
}
