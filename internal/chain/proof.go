package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// ProofBuilder is the out-of-scope external subprocess/library that
// produces a Merkle-Patricia inclusion proof for a destination-chain
// transaction (§4.C, §6). Failure is a plain error; success carries the
// block the transaction was included in plus the opaque proof bytes.
type ProofBuilder interface {
	BuildProof(ctx context.Context, txHash common.Hash) (blockNumber uint64, proof []byte, err error)
}
