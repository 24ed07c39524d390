package executor

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/nearbridge/fastbridge-relayer/internal/config"
	"github.com/nearbridge/fastbridge-relayer/internal/events"
	"github.com/nearbridge/fastbridge-relayer/internal/store/storetest"
)

type fakeDstClient struct {
	pendingNonce   uint64
	baseFee        *big.Int
	tip            *big.Int
	gas            uint64
	estimateGasErr error
	sendErr        error
	networkID      *big.Int
	sent           []*types.Transaction
}

func (f *fakeDstClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.pendingNonce, nil
}

func (f *fakeDstClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: f.baseFee}, nil
}

func (f *fakeDstClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return f.tip, nil
}

func (f *fakeDstClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if f.estimateGasErr != nil {
		return 0, f.estimateGasErr
	}
	return f.gas, nil
}

func (f *fakeDstClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeDstClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return nil, nil
}

func (f *fakeDstClient) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	return nil, false, nil
}

func (f *fakeDstClient) NetworkID(ctx context.Context) (*big.Int, error) {
	return f.networkID, nil
}

type fakePriceOracle struct {
	native float64
	token  float64
}

func (f *fakePriceOracle) NativePriceUSD(ctx context.Context) (float64, error) { return f.native, nil }
func (f *fakePriceOracle) TokenPriceUSD(ctx context.Context, coinID string) (float64, error) {
	return f.token, nil
}

type fakeSigner struct {
	key *ecdsa.PrivateKey
}

func newFakeSigner(t *testing.T) *fakeSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &fakeSigner{key: key}
}

func (f *fakeSigner) Address() common.Address {
	return crypto.PubkeyToAddress(f.key.PublicKey)
}

func (f *fakeSigner) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signer := types.NewLondonSigner(big.NewInt(1))
	return types.SignTx(tx, signer, f.key)
}

func newTestExecutor(t *testing.T, dst *fakeDstClient, oracle *fakePriceOracle) (*Executor, *storetest.Mem) {
	t.Helper()
	cfg := &config.Config{
		ExecutorCycleInterval: time.Millisecond,
		ProfitThreshold:       config.NewThreshold(0),
		Whitelist:             config.NewWhitelist(),
		MinPriorityFeeWei:     1_500_000_000,
		MaxEventBatch:         1000,
	}
	cfg.Whitelist.Set("usdt.near", config.TokenInfo{
		CoinID:   "tether",
		Decimals: 6,
	})
	s := storetest.New()
	signer := newFakeSigner(t)
	ex := New(cfg, s, dst, oracle, signer, common.HexToAddress("0x2000000000000000000000000000000000000b"))
	return ex, s
}

func seedIntent(t *testing.T, s *storetest.Mem, nonce string) {
	t.Helper()
	intent := events.TransferIntent{
		Nonce:    nonce,
		SenderID: "alice.near",
		TransferMessage: events.TransferMessage{
			ValidTill: 1,
			Transfer:  events.EthTransfer{TokenEth: "0x1000000000000000000000000000000000000a", Amount: "5000000"},
			Fee:       events.FeeTransfer{Token: "usdt.near", Amount: "2000000"},
			Recipient: "0x3000000000000000000000000000000000000c",
		},
	}
	payload, err := marshalIntentForTest(&intent)
	require.NoError(t, err)
	_, err = s.HSetNX(context.Background(), "new_events", nonce, payload)
	require.NoError(t, err)
}

func marshalIntentForTest(intent *events.TransferIntent) (string, error) {
	b, err := json.Marshal(intent)
	return string(b), err
}

func TestExecutorSubmitsProfitableTransfer(t *testing.T) {
	dst := &fakeDstClient{
		pendingNonce: 7,
		baseFee:      big.NewInt(10_000_000_000),
		tip:          big.NewInt(1_000_000_000),
		gas:          21000,
		networkID:    big.NewInt(1),
	}
	oracle := &fakePriceOracle{native: 2000, token: 1.0}
	ex, s := newTestExecutor(t, dst, oracle)
	seedIntent(t, s, "1")

	require.NoError(t, ex.RunOnce(context.Background()))

	require.Len(t, dst.sent, 1)
	require.Equal(t, uint64(7), dst.sent[0].Nonce())

	all, err := s.HGetAll(context.Background(), "new_events")
	require.NoError(t, err)
	require.Empty(t, all)

	pending, err := s.HGetAll(context.Background(), "pending_transactions")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	v, ok, err := s.Get(context.Background(), "eth_transaction_count")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "8", v)
}

func TestExecutorSkipsUnprofitableTransfer(t *testing.T) {
	dst := &fakeDstClient{
		pendingNonce: 1,
		baseFee:      big.NewInt(500_000_000_000),
		tip:          big.NewInt(1_000_000_000),
		gas:          5_000_000,
		networkID:    big.NewInt(1),
	}
	oracle := &fakePriceOracle{native: 2000, token: 1.0}
	ex, s := newTestExecutor(t, dst, oracle)
	seedIntent(t, s, "1")

	require.NoError(t, ex.RunOnce(context.Background()))

	require.Empty(t, dst.sent)
	all, err := s.HGetAll(context.Background(), "new_events")
	require.NoError(t, err)
	require.Empty(t, all)

	v, ok, err := s.Get(context.Background(), "eth_transaction_count")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)
}

func TestExecutorRetainsEventOnTransientProfitabilityError(t *testing.T) {
	dst := &fakeDstClient{
		pendingNonce:   1,
		baseFee:        big.NewInt(10_000_000_000),
		tip:            big.NewInt(1_000_000_000),
		gas:            21000,
		estimateGasErr: errors.New("connection refused"),
		networkID:      big.NewInt(1),
	}
	oracle := &fakePriceOracle{native: 2000, token: 1.0}
	ex, s := newTestExecutor(t, dst, oracle)
	seedIntent(t, s, "1")

	require.NoError(t, ex.RunOnce(context.Background()))

	require.Empty(t, dst.sent)

	all, err := s.HGetAll(context.Background(), "new_events")
	require.NoError(t, err)
	require.Len(t, all, 1)

	pending, err := s.HGetAll(context.Background(), "pending_transactions")
	require.NoError(t, err)
	require.Empty(t, pending)

	v, ok, err := s.Get(context.Background(), "eth_transaction_count")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)
}

func TestExecutorIdempotentOnAlreadyPendingNonce(t *testing.T) {
	dst := &fakeDstClient{
		pendingNonce: 1,
		baseFee:      big.NewInt(10_000_000_000),
		tip:          big.NewInt(1_000_000_000),
		gas:          21000,
		networkID:    big.NewInt(1),
	}
	oracle := &fakePriceOracle{native: 2000, token: 1.0}
	ex, s := newTestExecutor(t, dst, oracle)
	seedIntent(t, s, "1")
	ex.seenNonces["1"] = "0xdeadbeef"

	require.NoError(t, ex.RunOnce(context.Background()))

	require.Empty(t, dst.sent)
	all, err := s.HGetAll(context.Background(), "new_events")
	require.NoError(t, err)
	require.Empty(t, all)
}
