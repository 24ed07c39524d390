// Package apperrors implements the relayer's flat error taxonomy: every
// error a pipeline component can produce carries a Kind and classifies
// to a Disposition that tells the caller whether to retry, skip, or
// treat the item as resolved.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags the origin of an error, matching the rust CustomError enum
// this pipeline was distilled from.
type Kind string

const (
	KindReceivedInvalidEvent           Kind = "ReceivedInvalidEvent"
	KindFailedEstimateGas              Kind = "FailedEstimateGas"
	KindFailedFetchGasPrice            Kind = "FailedFetchGasPrice"
	KindFailedFetchEthereumPrice       Kind = "FailedFetchEthereumPrice"
	KindFailedGetTokenPrice            Kind = "FailedGetTokenPrice"
	KindFailedGetNearTokenInfo         Kind = "FailedGetNearTokenInfoByMatching"
	KindInvalidFeeToken                Kind = "InvalidFeeToken"
	KindInvalidEthTokenAddress         Kind = "InvalidEthTokenAddress"
	KindFailedExecuteTransferTokens    Kind = "FailedExecuteTransferTokens"
	KindFailedGetTxCount               Kind = "FailedGetTxCount"
	KindFailedSetTxCount               Kind = "FailedSetTxCount"
	KindTxNotProfitable                Kind = "TxNotProfitable"
	KindNotEnoughFeeToken              Kind = "NotEnoughFeeToken"
	KindNotEnoughTimeBeforeUnlock       Kind = "NotEnoughTimeBeforeUnlock"
	KindFailedFeeCalculation           Kind = "FailedFeeCalculation"
	KindFailedProfitEstimation         Kind = "FailedProfitEstimation"
	KindFailedFetchTxStatus            Kind = "FailedFetchTxStatus"
	KindFailedFetchProof               Kind = "FailedFetchProof"
	KindFailedTxStatus                 Kind = "FailedTxStatus"
	KindFailedExecuteUnlockTokens       Kind = "FailedExecuteUnlockTokens"
	KindFailedExecuteLastBlockNumber    Kind = "FailedExecuteLastBlockNumber"
	KindFailedStorePendingTx           Kind = "FailedStorePendingTx"
	KindFailedUnstoreTransaction        Kind = "FailedUnstoreTransaction"
	KindFailedGetTxData                Kind = "FailedGetTxData"
	KindFailedGetTxHashesQueue          Kind = "FailedGetTxHashesQueue"
	KindFailedUnstorePendingTx          Kind = "FailedUnstorePendingTx"
)

// Disposition tells a component what to do with an error once classified.
type Disposition int

const (
	// Transient errors roll the item to the next cycle unchanged.
	Transient Disposition = iota
	// BalanceTransient is Transient, but counted under a separate metric
	// (insufficient funds/allowance) per spec §4.B.
	BalanceTransient
	// Permanent errors terminate the item: drop it, log at warn, count
	// a skip.
	Permanent
	// ExclusiveSuccess marks the terminal-success path of a pipeline
	// slot that isn't a "success" in the usual sense (e.g. a receipt
	// with status=0 ends the pending-tx slot, but it is not retried).
	ExclusiveSuccess
)

// Error is the relayer's error type: a Kind, a Disposition, and a
// wrapped cause.
type Error struct {
	Kind        Kind
	Disposition Disposition
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a tagged error with an explicit disposition.
func New(kind Kind, disposition Disposition, cause error) *Error {
	return &Error{Kind: kind, Disposition: disposition, Cause: cause}
}

// Transient-by-default constructors for the common sources.
func FailedEstimateGas(cause error) *Error {
	return New(KindFailedEstimateGas, Transient, cause)
}

func FailedFetchGasPrice(cause error) *Error {
	return New(KindFailedFetchGasPrice, Transient, cause)
}

func FailedFetchEthereumPrice(cause error) *Error {
	return New(KindFailedFetchEthereumPrice, Transient, cause)
}

func FailedGetTokenPrice(cause error) *Error {
	return New(KindFailedGetTokenPrice, Transient, cause)
}

func FailedGetNearTokenInfo(tokenID string) *Error {
	return New(KindFailedGetNearTokenInfo, Permanent, fmt.Errorf("%s", tokenID))
}

func InvalidFeeToken() *Error {
	return New(KindInvalidFeeToken, Permanent, nil)
}

func InvalidEthTokenAddress() *Error {
	return New(KindInvalidEthTokenAddress, Permanent, nil)
}

func FailedGetTxCount(cause error) *Error {
	return New(KindFailedGetTxCount, Transient, cause)
}

func FailedSetTxCount(cause error) *Error {
	return New(KindFailedSetTxCount, Transient, cause)
}

func TxNotProfitable(profitUSD, thresholdUSD float64) *Error {
	return New(KindTxNotProfitable, Permanent, fmt.Errorf("profit %.4f below threshold %.4f", profitUSD, thresholdUSD))
}

func NotEnoughFeeToken(feeAmount, minAllowed string) *Error {
	return New(KindNotEnoughFeeToken, Permanent, fmt.Errorf("fee amount %s below min allowed %s", feeAmount, minAllowed))
}

func NotEnoughTimeBeforeUnlock() *Error {
	return New(KindNotEnoughTimeBeforeUnlock, Permanent, nil)
}

func FailedFeeCalculation(cause error) *Error {
	return New(KindFailedFeeCalculation, Permanent, cause)
}

func FailedProfitEstimation(cause error) *Error {
	return New(KindFailedProfitEstimation, Permanent, cause)
}

func FailedFetchTxStatus(cause error) *Error {
	return New(KindFailedFetchTxStatus, Transient, cause)
}

func FailedFetchProof(cause error) *Error {
	return New(KindFailedFetchProof, Transient, cause)
}

func FailedTxStatus(txHash string) *Error {
	return New(KindFailedTxStatus, ExclusiveSuccess, fmt.Errorf("transferTokens transaction status [Failure]: %s", txHash))
}

func FailedExecuteUnlockTokens(cause error) *Error {
	return New(KindFailedExecuteUnlockTokens, Transient, cause)
}

func FailedExecuteLastBlockNumber(cause error) *Error {
	return New(KindFailedExecuteLastBlockNumber, Transient, cause)
}

func FailedStorePendingTx(cause error) *Error {
	return New(KindFailedStorePendingTx, Transient, cause)
}

func FailedUnstoreTransaction(cause error) *Error {
	return New(KindFailedUnstoreTransaction, Transient, cause)
}

func FailedGetTxData(cause error) *Error {
	return New(KindFailedGetTxData, Transient, cause)
}

func FailedGetTxHashesQueue(cause error) *Error {
	return New(KindFailedGetTxHashesQueue, Transient, cause)
}

func FailedUnstorePendingTx(cause error) *Error {
	return New(KindFailedUnstorePendingTx, Transient, cause)
}

func ReceivedInvalidEvent() *Error {
	return New(KindReceivedInvalidEvent, Permanent, nil)
}

// DispositionOf classifies an arbitrary error: *Error values report
// their own disposition directly; everything else is treated as
// Transient (connection/transport errors that were never wrapped).
func DispositionOf(err error) Disposition {
	var e *Error
	if errors.As(err, &e) {
		return e.Disposition
	}
	return Transient
}

// ClassifySubmitError implements the message-based classification of
// §4.B/§7 for FailedExecuteTransferTokens: revert reasons and RPC
// messages are pattern-matched because go-ethereum surfaces them as
// plain strings, not structured codes.
func ClassifySubmitError(cause error) *Error {
	if cause == nil {
		return nil
	}
	msg := strings.ToLower(cause.Error())

	switch {
	case strings.Contains(msg, "replacement transaction underpriced"):
		return New(KindFailedExecuteTransferTokens, Transient, cause)
	case strings.Contains(msg, "insufficient allowance"),
		strings.Contains(msg, "transfer amount exceeds balance"),
		strings.Contains(msg, "insufficient funds for gas"):
		return New(KindFailedExecuteTransferTokens, BalanceTransient, cause)
	default:
		return New(KindFailedExecuteTransferTokens, Permanent, cause)
	}
}
