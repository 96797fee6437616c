package core

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MarketFetcher reloads the canonical market list
type MarketFetcher interface {
	FetchMarkets(ctx context.Context) error
}

// MarketRefresher periodically reloads the market list in the background
type MarketRefresher struct {
	fetcher      MarketFetcher
	interval     time.Duration
	fetchTimeout time.Duration
	stopped      bool
	mu           sync.RWMutex
	done         chan struct{}
	logger       *slog.Logger
}

// NewMarketRefresher creates a refresher firing every interval. Each fetch is
// bounded by fetchTimeout.
func NewMarketRefresher(fetcher MarketFetcher, interval, fetchTimeout time.Duration, logger *slog.Logger) *MarketRefresher {
	if logger == nil {
		logger = slog.Default()
	}

	return &MarketRefresher{
		fetcher:      fetcher,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		done:         make(chan struct{}),
		logger:       logger,
	}
}

// Start begins refreshing using the provided context. It returns at once;
// the loop ends when ctx is cancelled.
func (r *MarketRefresher) Start(ctx context.Context) {
	r.logger.Info("starting market refresher", "interval", r.interval)

	go func() {
		defer close(r.done)
		defer r.logger.Info("market refresher stopped")

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if r.isStopped() {
					continue
				}
				r.refresh(ctx)

			case <-ctx.Done():
				r.logger.Info("received shutdown signal, stopping")
				return
			}
		}
	}()
}

func (r *MarketRefresher) refresh(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	// The store logs the failure and keeps the previous list
	if err := r.fetcher.FetchMarkets(fetchCtx); err != nil {
		r.logger.Debug("scheduled market refresh failed", "error", err)
	}
}

// Stop pauses refreshing; the loop keeps running until its context ends
func (r *MarketRefresher) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

func (r *MarketRefresher) isStopped() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stopped
}

// Done is closed once the refresh loop has exited
func (r *MarketRefresher) Done() <-chan struct{} {
	return r.done
}
