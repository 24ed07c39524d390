// Package metrics exposes the relayer's prometheus counters and gauges.
// The Transient, BalanceTransient and Permanent dispositions of
// internal/apperrors each increment exactly one counter here;
// ExclusiveSuccess increments none. Component-specific progress is
// tracked via gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nearbridge/fastbridge-relayer/internal/apperrors"
)

var (
	ConnectionErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relayer_connection_errors_total",
		Help: "Transient RPC/store/transport errors across all components.",
	})
	BalanceErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relayer_balance_errors_total",
		Help: "Insufficient balance/allowance errors on destination-chain submission.",
	})
	SkipTransactions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relayer_skip_transactions_total",
		Help: "Transfer intents permanently skipped (unprofitable, invalid, or unrecoverable).",
	})
	UnlockedTransactions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relayer_unlocked_transactions_total",
		Help: "Successful source-chain lp_unlock redemptions.",
	})
	InitTransfersCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relayer_init_transfers_total",
		Help: "Decoded fast_bridge_init_transfer_event occurrences persisted to new_events.",
	})
	SuccessTransactions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relayer_success_transactions_total",
		Help: "Destination-chain fulfillment transactions that reached receipt status 1.",
	})
	LastProcessedBlock = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_near_last_processed_block",
		Help: "Last source-chain block height the event tracker has checkpointed.",
	})
	EthLastBlockOnNear = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_eth_last_block_on_near",
		Help: "Highest destination-chain block the source-chain light client has accepted.",
	})
	PendingTransactionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_pending_transactions",
		Help: "Current size of the in-memory pending-transaction map.",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionErrors,
		BalanceErrors,
		SkipTransactions,
		UnlockedTransactions,
		InitTransfersCount,
		SuccessTransactions,
		LastProcessedBlock,
		EthLastBlockOnNear,
		PendingTransactionsGauge,
	)
}

// ObserveDisposition increments the metric matching an error's
// disposition. Components call this once per terminal classification
// instead of duplicating the disposition→counter switch locally.
func ObserveDisposition(d apperrors.Disposition) {
	switch d {
	case apperrors.Transient:
		ConnectionErrors.Inc()
	case apperrors.BalanceTransient:
		BalanceErrors.Inc()
	case apperrors.Permanent:
		SkipTransactions.Inc()
	}
}
