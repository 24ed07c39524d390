// Package tracker implements the Event Tracker (component A, spec.md
// §4.A): it tail-reads finalized source-chain blocks, decodes the
// bridge contract's NEP-297 log events, durably enqueues new transfer
// intents, and advances the start-block checkpoint.
package tracker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/nearbridge/fastbridge-relayer/internal/chain"
	"github.com/nearbridge/fastbridge-relayer/internal/events"
	"github.com/nearbridge/fastbridge-relayer/internal/metrics"
	"github.com/nearbridge/fastbridge-relayer/internal/store"
)

// Tracker is component A.
type Tracker struct {
	contractID   string
	initBlock    uint64
	store        store.Store
	blockSource  chain.BlockSource
	retryBackoff time.Duration
	reconnectGap time.Duration
}

func New(contractID string, initBlock uint64, s store.Store, blockSource chain.BlockSource, retryBackoff time.Duration) *Tracker {
	return &Tracker{
		contractID:   contractID,
		initBlock:    initBlock,
		store:        s,
		blockSource:  blockSource,
		retryBackoff: retryBackoff,
		reconnectGap: 2 * time.Second,
	}
}

// Run drives the tracker until ctx is cancelled. A block-stream
// disconnect is fatal to the current stream only: Run re-reads the
// persisted checkpoint and reconnects, never rewinding past it (§4.A).
func (t *Tracker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		startBlock, err := t.checkpoint(ctx)
		if err != nil {
			log.Printf("tracker: failed to read checkpoint, retrying: %v", err)
			time.Sleep(t.reconnectGap)
			continue
		}

		log.Printf("tracker: starting from block %d", startBlock)
		if err := t.consume(ctx, startBlock); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("tracker: block stream disconnected: %v; restarting from checkpoint", err)
			time.Sleep(t.reconnectGap)
			continue
		}
		return nil
	}
}

func (t *Tracker) checkpoint(ctx context.Context) (uint64, error) {
	v, ok, err := t.store.Get(ctx, store.KeyOptionsStartBlock)
	if err != nil {
		return 0, err
	}
	if !ok {
		return t.initBlock, nil
	}
	return parseUint64(v)
}

// consume reads blocks until the stream errs out or ctx is cancelled.
func (t *Tracker) consume(ctx context.Context, startBlock uint64) error {
	blocks, errs := t.blockSource.Blocks(ctx, t.contractID, startBlock)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if ok && err != nil {
				return err
			}
		case block, ok := <-blocks:
			if !ok {
				// An error sent just before the block channel closed
				// still counts as a disconnect.
				select {
				case err := <-errs:
					if err != nil {
						return err
					}
				default:
				}
				return nil
			}
			if err := t.processBlock(ctx, block); err != nil {
				return err
			}
		}
	}
}

// processBlock decodes and persists every event in a block, then
// advances the checkpoint only after every event has been acknowledged
// by the store (§4.A's fetched→decoded→persisted→checkpoint-advanced
// state machine).
func (t *Tracker) processBlock(ctx context.Context, block chain.Block) error {
	for _, line := range block.Logs {
		eventName, data, err := events.Decode(line)
		if err != nil {
			// Foreign/non-event log lines are expected and silently
			// skipped; genuine decode errors are logged but never fatal.
			var parseErr *events.ParseError
			if errors.As(err, &parseErr) && !parseErr.NotEvent {
				log.Printf("tracker: log decode error: %v", err)
			}
			continue
		}

		switch eventName {
		case events.EventInitTransfer:
			intent, err := events.DecodeInitTransfer(data)
			if err != nil {
				log.Printf("tracker: invalid init transfer event: %v", err)
				continue
			}
			if err := t.persistWithRetry(ctx, intent); err != nil {
				return err
			}
			metrics.InitTransfersCount.Inc()
			log.Printf("tracker: new transfer intent nonce=%s sender=%s", intent.Nonce, intent.SenderID)
		case events.EventLPUnlock:
			// Redemption observability only; the unlock worker drives
			// removal from `transactions` directly, not by re-observing
			// its own log.
		default:
			// Unknown variant: ignored by design (§6).
		}
	}

	nextBlock := block.Height + 1
	if err := t.store.Set(ctx, store.KeyOptionsStartBlock, formatUint64(nextBlock)); err != nil {
		return err
	}
	metrics.LastProcessedBlock.Set(float64(block.Height))
	return nil
}

// persistWithRetry stores a new intent with bounded-in-spirit but
// unbounded-in-practice retry: losing an intent is unacceptable (§5), so
// this is the one place allowed to retry forever with a fixed backoff.
func (t *Tracker) persistWithRetry(ctx context.Context, intent *events.TransferIntent) error {
	payload, err := marshalIntent(intent)
	if err != nil {
		return err
	}
	for {
		_, err := t.store.HSetNX(ctx, store.KeyNewEvents, intent.Nonce, payload)
		if err == nil {
			return nil
		}
		log.Printf("tracker: failed to store new event, retrying in %s: %v", t.retryBackoff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.retryBackoff):
		}
	}
}
