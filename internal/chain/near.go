// Package chain defines the narrow interfaces the pipeline uses to talk
// to the two chains and the two off-chain collaborators (price oracle,
// proof builder). Concrete RPC transports, ABI codecs, and signing
// primitives are out of scope (spec.md §1, §6); these interfaces are the
// pipeline's side of that contract.
package chain

import "context"

// Block is one source-chain (NEAR) block as the event tracker needs it:
// its height and the set of log lines emitted by receipts whose
// receiver is the configured bridge contract.
type Block struct {
	Height uint64
	Logs   []string
}

// BlockSource streams finalized source-chain blocks from a starting
// height. It is the event tracker's only dependency on the NEAR
// indexer/lake stream, which is an out-of-scope external collaborator.
//
// A disconnect of the returned error channel is fatal to the caller:
// per §4.A the tracker must restart from its persisted checkpoint, never
// resume mid-stream.
type BlockSource interface {
	Blocks(ctx context.Context, contractID string, fromHeight uint64) (<-chan Block, <-chan error)
}

// SourceChainViewer is the light-client height tracker's dependency: a
// view-only call against the NEAR light-client contract (§4.D, §6).
type SourceChainViewer interface {
	LastBlockNumber(ctx context.Context, lightClientContractID string) (uint64, error)
}

// ReceiptOutcome is one receipt's status within a NEAR
// FinalExecutionOutcome. The unlock worker must scan every receipt
// outcome, not just the top-level status, for a Failure (§4.E).
type ReceiptOutcome struct {
	Failure bool
	Detail  string
}

// OutcomeStatus mirrors near_primitives::views::FinalExecutionStatus.
type OutcomeStatus int

const (
	StatusNotStarted OutcomeStatus = iota
	StatusStarted
	StatusFailure
	StatusSuccessValue
)

// Outcome is the result of a NEAR function call.
type Outcome struct {
	Status          OutcomeStatus
	ReceiptOutcomes []ReceiptOutcome
}

// EffectiveStatus folds the per-receipt scan into the top-level status:
// any failing receipt outcome makes the whole call a Failure regardless
// of what the top-level status reports (§4.E).
func (o Outcome) EffectiveStatus() OutcomeStatus {
	for _, r := range o.ReceiptOutcomes {
		if r.Failure {
			return StatusFailure
		}
	}
	return o.Status
}

// SourceChainSigner is the unlock worker's dependency: a signed
// function call against the NEAR bridge contract's lp_unlock method
// (§4.E, §6). The out-of-scope NEAR signer/RPC client implements it.
type SourceChainSigner interface {
	FunctionCall(ctx context.Context, contractID, method string, args any, gas uint64, depositYocto string) (Outcome, error)
}
