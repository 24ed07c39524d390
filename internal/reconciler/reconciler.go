// Package reconciler implements the Pending-Tx Reconciler (component
// C, spec.md §4.C): it follows each submitted destination-chain
// transaction to finality, fetches its inclusion proof on success, and
// stages it for source-chain redemption.
package reconciler

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nearbridge/fastbridge-relayer/internal/apperrors"
	"github.com/nearbridge/fastbridge-relayer/internal/chain"
	"github.com/nearbridge/fastbridge-relayer/internal/config"
	"github.com/nearbridge/fastbridge-relayer/internal/events"
	"github.com/nearbridge/fastbridge-relayer/internal/metrics"
	"github.com/nearbridge/fastbridge-relayer/internal/store"
)

// Reconciler is component C. A single instance is canonical (§4.C);
// running more than one would duplicate work, not corrupt state.
type Reconciler struct {
	cfg   *config.Config
	store store.Store
	dst   chain.DestinationChainClient
	proof chain.ProofBuilder

	// inFlight is the in-memory map seeded from pending_transactions at
	// Run start and merged every cycle, mirroring
	// pending_transactions_worker.rs's reconstruction-on-restart.
	inFlight map[common.Hash]events.PendingTransaction
}

func New(cfg *config.Config, s store.Store, dst chain.DestinationChainClient, proof chain.ProofBuilder) *Reconciler {
	return &Reconciler{
		cfg:      cfg,
		store:    s,
		dst:      dst,
		proof:    proof,
		inFlight: make(map[common.Hash]events.PendingTransaction),
	}
}

func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.ReconcilerCycleInterval)
	defer ticker.Stop()
	for {
		if err := r.RunOnce(ctx); err != nil {
			log.Printf("reconciler: cycle error: %v", err)
		}
		metrics.PendingTransactionsGauge.Set(float64(len(r.inFlight)))
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce merges newly observed pending transactions, then advances
// every in-flight entry one step (§4.C steps 1-3).
func (r *Reconciler) RunOnce(ctx context.Context) error {
	if err := r.merge(ctx); err != nil {
		return err
	}

	var toRemove []common.Hash
	for txHash, pending := range r.inFlight {
		remove, err := r.advance(ctx, txHash, pending)
		if err != nil {
			log.Printf("reconciler: %v", err)
		}
		if remove {
			toRemove = append(toRemove, txHash)
		}
	}

	for _, txHash := range toRemove {
		delete(r.inFlight, txHash)
	}
	return nil
}

func (r *Reconciler) merge(ctx context.Context) error {
	all, err := r.store.HGetAll(ctx, store.KeyPendingTransactions)
	if err != nil {
		return apperrors.FailedGetTxHashesQueue(err)
	}
	for hexHash, raw := range all {
		txHash := common.HexToHash(hexHash)
		if _, seen := r.inFlight[txHash]; seen {
			continue
		}
		var pending events.PendingTransaction
		if err := json.Unmarshal([]byte(raw), &pending); err != nil {
			log.Printf("reconciler: malformed pending entry %s: %v", hexHash, err)
			continue
		}
		r.inFlight[txHash] = pending
		log.Printf("reconciler: new pending transaction %s", hexHash)
	}
	return nil
}

// advance queries destination-chain status for one entry and either
// leaves it pending, drops it on failure, or moves it to `transactions`
// on success. The returned bool reports whether the in-memory entry
// should be forgotten.
func (r *Reconciler) advance(ctx context.Context, txHash common.Hash, pending events.PendingTransaction) (bool, error) {
	hexHash := txHash.Hex()

	// If a prior crash already completed the move into `transactions`,
	// only forget the in-memory/persistent pending entry (§4.C step 3).
	if _, ok, err := r.store.HGet(ctx, store.KeyTransactions, hexHash); err == nil && ok {
		r.unstorePending(ctx, hexHash)
		return true, nil
	}

	_, isPending, err := r.dst.TransactionByHash(ctx, txHash)
	if err != nil {
		return false, apperrors.FailedFetchTxStatus(err)
	}
	if isPending {
		pending.SubmittedAt = time.Now().Unix()
		r.inFlight[txHash] = pending
		return false, nil
	}

	receipt, err := r.dst.TransactionReceipt(ctx, txHash)
	if err != nil {
		return false, apperrors.FailedFetchTxStatus(err)
	}
	if receipt == nil {
		// Not yet mined: treat identically to Pending.
		pending.SubmittedAt = time.Now().Unix()
		r.inFlight[txHash] = pending
		return false, nil
	}

	if receipt.Status == 0 {
		log.Printf("reconciler: %v", apperrors.FailedTxStatus(hexHash))
		r.unstorePending(ctx, hexHash)
		return true, nil
	}

	blockNumber, proof, err := r.proof.BuildProof(ctx, txHash)
	if err != nil {
		log.Printf("reconciler: %v", apperrors.FailedFetchProof(err))
		return false, nil
	}

	completed := events.CompletedTransaction{Block: blockNumber, Proof: proof, Nonce: pending.Nonce}
	payload, err := json.Marshal(completed)
	if err != nil {
		return false, err
	}
	if err := r.store.HSet(ctx, store.KeyTransactions, hexHash, string(payload)); err != nil {
		return false, apperrors.FailedStorePendingTx(err)
	}
	metrics.SuccessTransactions.Inc()
	r.unstorePending(ctx, hexHash)
	return true, nil
}

func (r *Reconciler) unstorePending(ctx context.Context, hexHash string) {
	if err := r.store.HDel(ctx, store.KeyPendingTransactions, hexHash); err != nil {
		log.Printf("reconciler: %v", apperrors.FailedUnstorePendingTx(err))
	}
}
