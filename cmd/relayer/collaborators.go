package main

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nearbridge/fastbridge-relayer/internal/chain"
	"github.com/nearbridge/fastbridge-relayer/internal/config"
)

// externalCollaborators bundles the five out-of-scope dependencies
// spec.md §1 and §6 hand to this repository as interfaces rather than
// implementations: the NEAR block stream, the NEAR light-client view
// call, the NEAR signed function call, the price oracle, and the
// Merkle-Patricia proof builder. No Go client for any of these exists
// to build concretely against, so this binary wires unconfigured
// stand-ins that fail loudly instead of silently no-op'ing; a
// deployment replaces wireExternalCollaborators with its own NEAR RPC
// client, price-oracle HTTP client, and proof-generation helper.
type externalCollaborators struct {
	blocks chain.BlockSource
	viewer chain.SourceChainViewer
	signer chain.SourceChainSigner
	prices chain.PriceOracle
	proofs chain.ProofBuilder
}

func wireExternalCollaborators(cfg *config.Config) (*externalCollaborators, error) {
	_ = cfg
	return &externalCollaborators{
		blocks: unconfiguredBlockSource{},
		viewer: unconfiguredViewer{},
		signer: unconfiguredSigner{},
		prices: unconfiguredPrices{},
		proofs: unconfiguredProofs{},
	}, nil
}

var errCollaboratorNotConfigured = errors.New("external collaborator not configured: wire a concrete NEAR/price-oracle/proof client")

type unconfiguredBlockSource struct{}

func (unconfiguredBlockSource) Blocks(ctx context.Context, contractID string, fromHeight uint64) (<-chan chain.Block, <-chan error) {
	blocks := make(chan chain.Block)
	errs := make(chan error, 1)
	errs <- errCollaboratorNotConfigured
	close(blocks)
	close(errs)
	return blocks, errs
}

type unconfiguredViewer struct{}

func (unconfiguredViewer) LastBlockNumber(ctx context.Context, lightClientContractID string) (uint64, error) {
	return 0, errCollaboratorNotConfigured
}

type unconfiguredSigner struct{}

func (unconfiguredSigner) FunctionCall(ctx context.Context, contractID, method string, args any, gas uint64, depositYocto string) (chain.Outcome, error) {
	return chain.Outcome{}, errCollaboratorNotConfigured
}

type unconfiguredPrices struct{}

func (unconfiguredPrices) NativePriceUSD(ctx context.Context) (float64, error) {
	return 0, errCollaboratorNotConfigured
}

func (unconfiguredPrices) TokenPriceUSD(ctx context.Context, coinID string) (float64, error) {
	return 0, errCollaboratorNotConfigured
}

type unconfiguredProofs struct{}

func (unconfiguredProofs) BuildProof(ctx context.Context, txHash common.Hash) (uint64, []byte, error) {
	return 0, nil, errCollaboratorNotConfigured
}
