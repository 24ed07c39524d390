// Package executor implements the Transfer Executor (component B,
// spec.md §4.B): it scans new_events, gates each intent on
// profitability, submits the destination-chain fulfillment, and
// advances the cached destination-chain nonce.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/nearbridge/fastbridge-relayer/internal/apperrors"
	"github.com/nearbridge/fastbridge-relayer/internal/chain"
	"github.com/nearbridge/fastbridge-relayer/internal/config"
	"github.com/nearbridge/fastbridge-relayer/internal/events"
	"github.com/nearbridge/fastbridge-relayer/internal/metrics"
	"github.com/nearbridge/fastbridge-relayer/internal/store"
)

// Executor is component B.
type Executor struct {
	cfg    *config.Config
	store  store.Store
	dst    chain.DestinationChainClient
	prices chain.PriceOracle
	signer chain.TxSigner
	proxy  common.Address

	// seenNonces is the crash-recovery nonce→tx_hash dedup map: it is
	// rebuilt lazily from pending_transactions, not persisted itself.
	seenNonces map[string]string
}

func New(cfg *config.Config, s store.Store, dst chain.DestinationChainClient, prices chain.PriceOracle, signer chain.TxSigner, proxy common.Address) *Executor {
	return &Executor{
		cfg:        cfg,
		store:      s,
		dst:        dst,
		prices:     prices,
		signer:     signer,
		proxy:      proxy,
		seenNonces: make(map[string]string),
	}
}

// Run drives the executor at cfg.ExecutorCycleInterval until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.ExecutorCycleInterval)
	defer ticker.Stop()
	for {
		if err := e.RunOnce(ctx); err != nil {
			log.Printf("executor: cycle error: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce processes up to cfg.MaxEventBatch entries of new_events.
func (e *Executor) RunOnce(ctx context.Context) error {
	fields, err := e.store.HKeys(ctx, store.KeyNewEvents)
	if err != nil {
		return fmt.Errorf("list new_events: %w", err)
	}
	if len(fields) > e.cfg.MaxEventBatch {
		fields = fields[:e.cfg.MaxEventBatch]
	}

	pendingAll, err := e.store.HGetAll(ctx, store.KeyPendingTransactions)
	if err != nil {
		return fmt.Errorf("list pending_transactions: %w", err)
	}
	for txHash, raw := range pendingAll {
		var p events.PendingTransaction
		if json.Unmarshal([]byte(raw), &p) != nil {
			continue
		}
		if _, ok := e.seenNonces[p.Nonce]; !ok {
			e.seenNonces[p.Nonce] = txHash
		}
	}

	for _, nonce := range fields {
		raw, ok, err := e.store.HGet(ctx, store.KeyNewEvents, nonce)
		if err != nil {
			log.Printf("executor: failed to read new_events[%s]: %v", nonce, err)
			continue
		}
		if !ok {
			continue
		}
		var intent events.TransferIntent
		if err := unmarshalIntent(raw, &intent); err != nil {
			log.Printf("executor: dropping malformed event nonce=%s: %v", nonce, err)
			e.skip(ctx, nonce)
			continue
		}
		e.processOne(ctx, &intent)
	}
	return nil
}

func (e *Executor) processOne(ctx context.Context, intent *events.TransferIntent) {
	// Idempotency check: a crash between submission and dequeue leaves
	// the nonce both in new_events and pending_transactions; recognize
	// that and just dequeue (§4.B step 2).
	if txHash, ok := e.seenNonces[intent.Nonce]; ok {
		log.Printf("executor: nonce=%s already pending as %s, dequeuing", intent.Nonce, txHash)
		e.dequeue(ctx, intent.Nonce)
		return
	}

	ethNonce, err := e.acquireNonce(ctx)
	if err != nil {
		log.Printf("executor: nonce acquisition failed: %v", apperrors.FailedGetTxCount(err))
		metrics.ObserveDisposition(apperrors.Transient)
		return
	}

	tokenAmount, feeAmount, err := parseIntentAmounts(intent)
	if err != nil {
		e.terminate(ctx, intent.Nonce, apperrors.ReceivedInvalidEvent())
		return
	}

	gateErr := e.gateProfitability(ctx, intent, tokenAmount, feeAmount)
	if gateErr != nil {
		metrics.ObserveDisposition(apperrors.DispositionOf(gateErr))
		switch apperrors.DispositionOf(gateErr) {
		case apperrors.Permanent:
			log.Printf("executor: skipping nonce=%s: %v", intent.Nonce, gateErr)
			e.dequeue(ctx, intent.Nonce)
		default:
			log.Printf("executor: transient profitability gate failure nonce=%s, retrying next cycle: %v", intent.Nonce, gateErr)
		}
		return
	}

	txHash, submitErr := e.submit(ctx, intent, ethNonce, tokenAmount)
	if submitErr != nil {
		classified := apperrors.ClassifySubmitError(submitErr)
		metrics.ObserveDisposition(classified.Disposition)
		switch classified.Disposition {
		case apperrors.Permanent:
			log.Printf("executor: permanent submit failure nonce=%s: %v", intent.Nonce, classified)
			e.dequeue(ctx, intent.Nonce)
		default:
			log.Printf("executor: transient submit failure nonce=%s, retrying next cycle: %v", intent.Nonce, classified)
		}
		return
	}

	if err := e.recordPending(ctx, txHash, intent.Nonce); err != nil {
		log.Printf("executor: %v", apperrors.FailedStorePendingTx(err))
		return
	}
	e.seenNonces[intent.Nonce] = txHash

	if err := e.advanceNonce(ctx, ethNonce+1); err != nil {
		log.Printf("executor: %v", apperrors.FailedSetTxCount(err))
	}

	e.dequeue(ctx, intent.Nonce)
}

// acquireNonce implements §4.B.1: the cached nonce is trusted unless it
// is unset, unparseable, or stale relative to the chain's own view. A
// cached value behind the chain's pending nonce means something else
// (a long outage, a manual transaction) advanced the account's nonce
// past what we last recorded; per §9 Open Question 3, the chain's
// pending nonce wins on that mismatch.
func (e *Executor) acquireNonce(ctx context.Context) (uint64, error) {
	v, ok, err := e.store.Get(ctx, store.KeyEthTransactionCount)
	if err != nil {
		return 0, err
	}

	var cached uint64
	haveCached := false
	if ok {
		n, perr := strconv.ParseUint(v, 10, 64)
		if perr == nil {
			cached = n
			haveCached = true
		}
	}

	chainNonce, err := e.dst.PendingNonceAt(ctx, e.signer.Address())
	if err != nil {
		if haveCached {
			return cached, nil
		}
		return 0, err
	}

	if haveCached && cached >= chainNonce {
		return cached, nil
	}

	if err := e.store.Set(ctx, store.KeyEthTransactionCount, strconv.FormatUint(chainNonce, 10)); err != nil {
		return 0, err
	}
	return chainNonce, nil
}

func (e *Executor) advanceNonce(ctx context.Context, next uint64) error {
	return e.store.Set(ctx, store.KeyEthTransactionCount, strconv.FormatUint(next, 10))
}

// gateProfitability implements §4.B.3: estimate cost, look up fee value,
// require profit above the configured threshold.
func (e *Executor) gateProfitability(ctx context.Context, intent *events.TransferIntent, tokenAmount, feeAmount *uint256.Int) *apperrors.Error {
	info, ok := e.cfg.Whitelist.Get(intent.TransferMessage.Fee.Token)
	if !ok {
		return apperrors.InvalidFeeToken()
	}

	recipient := common.HexToAddress(intent.TransferMessage.Recipient)
	tokenAddr := common.HexToAddress(intent.TransferMessage.Transfer.TokenEth)
	nonceBig := nonceToBigInt(intent.Nonce)

	data, err := chain.PackTransferTokens(tokenAddr, recipient, nonceBig, tokenAmount.ToBig())
	if err != nil {
		return apperrors.New(apperrors.KindInvalidEthTokenAddress, apperrors.Permanent, err)
	}

	callMsg := chain.TransferTokensCallMsg(e.signer.Address(), e.proxy, data)
	gas, err := e.dst.EstimateGas(ctx, callMsg)
	if err != nil {
		return apperrors.FailedEstimateGas(err)
	}

	header, err := e.dst.HeaderByNumber(ctx, nil)
	if err != nil {
		return apperrors.FailedFetchGasPrice(err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	tip, err := e.dst.SuggestGasTipCap(ctx)
	if err != nil {
		return apperrors.FailedFetchGasPrice(err)
	}
	if tip.Cmp(big.NewInt(e.cfg.MinPriorityFeeWei)) < 0 {
		tip = big.NewInt(e.cfg.MinPriorityFeeWei)
	}
	gasPrice := new(big.Int).Add(baseFee, tip)

	nativeUSD, err := e.prices.NativePriceUSD(ctx)
	if err != nil {
		return apperrors.FailedFetchEthereumPrice(err)
	}

	txCostWei := new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice)
	txCostUSD := weiToEther(txCostWei) * nativeUSD

	feeTokenUSD, err := e.prices.TokenPriceUSD(ctx, info.CoinID)
	if err != nil {
		return apperrors.FailedGetTokenPrice(err)
	}
	feeDisplay := displayAmount(feeAmount, info.Decimals)
	feeUSD := feeDisplay * feeTokenUSD

	profitUSD := feeUSD - txCostUSD
	threshold := e.cfg.ProfitThreshold.Get()
	if profitUSD <= threshold {
		return apperrors.TxNotProfitable(profitUSD, threshold)
	}
	return nil
}

// submit builds, signs, and sends the EIP-1559 fulfillment transaction
// (§4.B.4).
func (e *Executor) submit(ctx context.Context, intent *events.TransferIntent, nonce uint64, tokenAmount *uint256.Int) (string, error) {
	if _, ok := e.cfg.Whitelist.Get(intent.TransferMessage.Fee.Token); !ok {
		return "", errors.New("fee token no longer whitelisted")
	}
	recipient := common.HexToAddress(intent.TransferMessage.Recipient)
	tokenAddr := common.HexToAddress(intent.TransferMessage.Transfer.TokenEth)
	nonceBig := nonceToBigInt(intent.Nonce)

	data, err := chain.PackTransferTokens(tokenAddr, recipient, nonceBig, tokenAmount.ToBig())
	if err != nil {
		return "", err
	}

	header, err := e.dst.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", err
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	tip := big.NewInt(e.cfg.MinPriorityFeeWei)
	maxFee := new(big.Int).Add(new(big.Int).Mul(big.NewInt(2), baseFee), tip)

	callMsg := chain.TransferTokensCallMsg(e.signer.Address(), e.proxy, data)
	gas, err := e.dst.EstimateGas(ctx, callMsg)
	if err != nil {
		return "", err
	}

	networkID, err := e.dst.NetworkID(ctx)
	if err != nil {
		return "", err
	}

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   networkID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: maxFee,
		Gas:       gas,
		To:        &e.proxy,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signed, err := e.signer.SignTx(unsigned)
	if err != nil {
		return "", err
	}

	if err := e.dst.SendTransaction(ctx, signed); err != nil {
		return "", err
	}

	return signed.Hash().Hex(), nil
}

func (e *Executor) recordPending(ctx context.Context, txHash, nonce string) error {
	pending := events.PendingTransaction{Nonce: nonce, SubmittedAt: nowUnix()}
	payload, err := marshalPending(&pending)
	if err != nil {
		return err
	}
	return e.store.HSet(ctx, store.KeyPendingTransactions, txHash, payload)
}

func (e *Executor) dequeue(ctx context.Context, nonce string) {
	if err := e.store.HDel(ctx, store.KeyNewEvents, nonce); err != nil {
		log.Printf("executor: failed to dequeue nonce=%s: %v", nonce, err)
	}
}

func (e *Executor) skip(ctx context.Context, nonce string) {
	metrics.ObserveDisposition(apperrors.Permanent)
	e.dequeue(ctx, nonce)
}

// terminate handles a permanent gate failure: dequeue without
// advancing the nonce, log with full context, count a skip (§4.B
// error classification, Permanent bucket).
func (e *Executor) terminate(ctx context.Context, nonce string, cause *apperrors.Error) {
	log.Printf("executor: skipping nonce=%s: %v", nonce, cause)
	metrics.ObserveDisposition(apperrors.Permanent)
	e.dequeue(ctx, nonce)
}
