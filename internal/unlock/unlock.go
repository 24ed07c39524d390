// Package unlock implements the Unlock Worker (component E, spec.md
// §4.E): once the source-chain light client has finalized the
// destination-chain block a fulfillment transaction landed in, it
// submits the redemption call that releases the relayer's collected
// fee.
package unlock

import (
	"context"
	"log"
	"time"

	"github.com/nearbridge/fastbridge-relayer/internal/apperrors"
	"github.com/nearbridge/fastbridge-relayer/internal/chain"
	"github.com/nearbridge/fastbridge-relayer/internal/config"
	"github.com/nearbridge/fastbridge-relayer/internal/events"
	"github.com/nearbridge/fastbridge-relayer/internal/metrics"
	"github.com/nearbridge/fastbridge-relayer/internal/store"
)

// HeightSource is the light-client height tracker's read side (§4.D);
// the unlock worker only ever reads it.
type HeightSource interface {
	Height() uint64
}

// Worker is component E.
type Worker struct {
	cfg     *config.Config
	store   store.Store
	signer  chain.SourceChainSigner
	heights HeightSource
}

func New(cfg *config.Config, s store.Store, signer chain.SourceChainSigner, heights HeightSource) *Worker {
	return &Worker{cfg: cfg, store: s, signer: signer, heights: heights}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.UnlockCycleInterval)
	defer ticker.Stop()
	for {
		if err := w.RunOnce(ctx); err != nil {
			log.Printf("unlock: cycle error: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce scans every entry of `transactions` and advances each one
// step of the redemption protocol (§4.E).
func (w *Worker) RunOnce(ctx context.Context) error {
	keys, err := w.store.HKeys(ctx, store.KeyTransactions)
	if err != nil {
		return apperrors.FailedGetTxHashesQueue(err)
	}

	h := w.heights.Height()
	for _, txHash := range keys {
		w.processOne(ctx, txHash, h)
	}
	return nil
}

func (w *Worker) processOne(ctx context.Context, txHash string, lightClientHeight uint64) {
	raw, ok, err := w.store.HGet(ctx, store.KeyTransactions, txHash)
	if err != nil || !ok {
		if err != nil {
			log.Printf("unlock: %v", apperrors.FailedGetTxData(err))
		}
		return
	}

	var completed events.CompletedTransaction
	if err := unmarshalCompleted(raw, &completed); err != nil {
		log.Printf("unlock: dropping malformed completed transaction %s: %v", txHash, err)
		w.drop(ctx, txHash)
		return
	}

	if completed.Block+w.cfg.BlocksForTxFinalization > lightClientHeight {
		return
	}

	args := map[string]any{
		"nonce": completed.Nonce,
		"proof": completed.Proof,
	}
	outcome, err := w.signer.FunctionCall(ctx, w.cfg.BridgeContractID, "lp_unlock", args, w.cfg.UnlockGas, "0")
	if err != nil {
		log.Printf("unlock: %v", apperrors.FailedExecuteUnlockTokens(err))
		return
	}

	switch outcome.EffectiveStatus() {
	case chain.StatusNotStarted, chain.StatusStarted:
		log.Printf("unlock: tx %s not yet finalized on source chain, retrying next cycle", txHash)
	case chain.StatusFailure:
		log.Printf("unlock: %v", apperrors.FailedTxStatus(txHash))
		w.drop(ctx, txHash)
	case chain.StatusSuccessValue:
		w.drop(ctx, txHash)
		metrics.UnlockedTransactions.Inc()
	}
}

func (w *Worker) drop(ctx context.Context, txHash string) {
	if err := w.store.HDel(ctx, store.KeyTransactions, txHash); err != nil {
		log.Printf("unlock: %v", apperrors.FailedUnstoreTransaction(err))
	}
}
