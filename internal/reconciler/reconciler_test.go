package reconciler

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	ethgo "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/nearbridge/fastbridge-relayer/internal/config"
	"github.com/nearbridge/fastbridge-relayer/internal/events"
	"github.com/nearbridge/fastbridge-relayer/internal/store/storetest"
)

type fakeDst struct {
	pending  map[common.Hash]bool
	receipts map[common.Hash]*types.Receipt
	err      map[common.Hash]error
}

func newFakeDst() *fakeDst {
	return &fakeDst{
		pending:  make(map[common.Hash]bool),
		receipts: make(map[common.Hash]*types.Receipt),
		err:      make(map[common.Hash]error),
	}
}

func (f *fakeDst) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}
func (f *fakeDst) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return nil, nil
}
func (f *fakeDst) SuggestGasTipCap(ctx context.Context) (*big.Int, error) { return nil, nil }
func (f *fakeDst) EstimateGas(ctx context.Context, msg ethgo.CallMsg) (uint64, error) {
	return 0, nil
}
func (f *fakeDst) SendTransaction(ctx context.Context, tx *types.Transaction) error { return nil }
func (f *fakeDst) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return f.receipts[txHash], nil
}
func (f *fakeDst) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	if err, ok := f.err[txHash]; ok {
		return nil, false, err
	}
	return nil, f.pending[txHash], nil
}
func (f *fakeDst) NetworkID(ctx context.Context) (*big.Int, error) { return big.NewInt(1), nil }

type fakeProof struct {
	block uint64
	proof []byte
	err   error
}

func (f *fakeProof) BuildProof(ctx context.Context, txHash common.Hash) (uint64, []byte, error) {
	return f.block, f.proof, f.err
}

func seedPending(t *testing.T, s *storetest.Mem, hexHash, nonce string) {
	t.Helper()
	p := events.PendingTransaction{Nonce: nonce, SubmittedAt: time.Now().Unix()}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	require.NoError(t, s.HSet(context.Background(), "pending_transactions", hexHash, string(b)))
}

func TestReconcilerMovesSuccessfulTxToTransactions(t *testing.T) {
	cfg := &config.Config{ReconcilerCycleInterval: time.Millisecond}
	s := storetest.New()
	txHash := common.HexToHash("0x01")
	dst := newFakeDst()
	dst.receipts[txHash] = &types.Receipt{Status: 1}
	proof := &fakeProof{block: 100, proof: []byte("proof-bytes")}

	seedPending(t, s, txHash.Hex(), "42")
	r := New(cfg, s, dst, proof)

	require.NoError(t, r.RunOnce(context.Background()))

	pending, err := s.HGetAll(context.Background(), "pending_transactions")
	require.NoError(t, err)
	require.Empty(t, pending)

	completed, err := s.HGetAll(context.Background(), "transactions")
	require.NoError(t, err)
	require.Len(t, completed, 1)
	require.Empty(t, r.inFlight)
}

func TestReconcilerDropsFailedTx(t *testing.T) {
	cfg := &config.Config{ReconcilerCycleInterval: time.Millisecond}
	s := storetest.New()
	txHash := common.HexToHash("0x02")
	dst := newFakeDst()
	dst.receipts[txHash] = &types.Receipt{Status: 0}
	proof := &fakeProof{}

	seedPending(t, s, txHash.Hex(), "7")
	r := New(cfg, s, dst, proof)

	require.NoError(t, r.RunOnce(context.Background()))

	pending, err := s.HGetAll(context.Background(), "pending_transactions")
	require.NoError(t, err)
	require.Empty(t, pending)

	completed, err := s.HGetAll(context.Background(), "transactions")
	require.NoError(t, err)
	require.Empty(t, completed)
}

func TestReconcilerLeavesEntryPendingOnProofFailure(t *testing.T) {
	cfg := &config.Config{ReconcilerCycleInterval: time.Millisecond}
	s := storetest.New()
	txHash := common.HexToHash("0x03")
	dst := newFakeDst()
	dst.receipts[txHash] = &types.Receipt{Status: 1}
	proof := &fakeProof{err: context.DeadlineExceeded}

	seedPending(t, s, txHash.Hex(), "9")
	r := New(cfg, s, dst, proof)

	require.NoError(t, r.RunOnce(context.Background()))

	pending, err := s.HGetAll(context.Background(), "pending_transactions")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Len(t, r.inFlight, 1)
}
