// Package lightclient implements the Light-Client Height Tracker
// (component D, spec.md §4.D): it periodically view-calls the
// source-chain light-client contract and exposes the highest
// destination-chain block it has accepted to the unlock worker through
// a lightweight in-memory cell.
package lightclient

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/nearbridge/fastbridge-relayer/internal/apperrors"
	"github.com/nearbridge/fastbridge-relayer/internal/chain"
	"github.com/nearbridge/fastbridge-relayer/internal/metrics"
)

// Tracker holds eth_last_block_number_on_near, an in-memory cell never
// written to S (§4.D), guarded by a short-held RWMutex per §5's
// "never hold a lock across a suspension point" rule.
type Tracker struct {
	mu     sync.RWMutex
	height uint64

	viewer                chain.SourceChainViewer
	lightClientContractID string
	pollInterval          time.Duration
}

func New(viewer chain.SourceChainViewer, lightClientContractID string, pollInterval time.Duration) *Tracker {
	return &Tracker{
		viewer:                viewer,
		lightClientContractID: lightClientContractID,
		pollInterval:          pollInterval,
	}
}

// Height returns the last observed destination-chain block height the
// light client has accepted.
func (t *Tracker) Height() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.height
}

func (t *Tracker) set(h uint64) {
	t.mu.Lock()
	t.height = h
	t.mu.Unlock()
}

// Run polls at t.pollInterval until ctx is cancelled. RPC failures are
// logged and never fatal: E's safety depends on D being non-stale-by-
// too-much, not on every poll succeeding (§4.D).
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		t.pollOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (t *Tracker) pollOnce(ctx context.Context) {
	h, err := t.viewer.LastBlockNumber(ctx, t.lightClientContractID)
	if err != nil {
		log.Printf("lightclient: %v", apperrors.FailedExecuteLastBlockNumber(err))
		return
	}
	t.set(h)
	metrics.EthLastBlockOnNear.Set(float64(h))
}
