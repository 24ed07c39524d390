// Package events defines the pipeline's wire/persisted entities
// (TransferIntent, PendingTransaction, CompletedTransaction) and the
// NEP-297 log envelope decoder the event tracker uses to recognize
// source-chain events (spec.md §3, §6).
package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	eventLogPrefix = "EVENT_JSON:"
	nep297Standard = "nep297"
	nep297Version  = "1.0.0"

	EventInitTransfer = "fast_bridge_init_transfer_event"
	EventLPUnlock      = "fast_bridge_lp_unlock_event"
)

// EthTransfer is the destination-chain leg of an intent: the source
// NEAR token being bridged (token_near, informational only — never
// looked up), the ethereum token address to deliver already embedded
// in the event (token_eth), and the amount in that token's smallest
// unit.
type EthTransfer struct {
	TokenNear string `json:"token_near"`
	TokenEth  string `json:"token_eth"`
	Amount    string `json:"amount"`
}

// FeeTransfer is the source-chain fee the relayer collects on
// redemption: a NEAR fee-token account id that must be resolved through
// the whitelist for USD pricing (§4.B.3.b), plus the amount owed.
type FeeTransfer struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// TransferMessage is the body of a fast_bridge_init_transfer_event,
// matching the rust TransferMessage shape (§3, §6).
type TransferMessage struct {
	ValidTill            uint64      `json:"valid_till"`
	Transfer             EthTransfer `json:"transfer"`
	Fee                  FeeTransfer `json:"fee"`
	Recipient            string      `json:"recipient"`
	ValidTillBlockHeight *uint64     `json:"valid_till_block_height,omitempty"`
	AuroraSender         *string     `json:"aurora_sender,omitempty"`
}

// TransferIntent is the decoded, persisted form of a
// fast_bridge_init_transfer_event: the pipeline's primary unit of work,
// keyed by Nonce in new_events/pending_transactions/transactions.
type TransferIntent struct {
	Nonce           string          `json:"nonce"`
	SenderID        string          `json:"sender_id"`
	TransferMessage TransferMessage `json:"transfer_message"`
}

// PendingTransaction is §3's PendingTransaction entity.
type PendingTransaction struct {
	Nonce       string `json:"nonce"`
	SubmittedAt int64  `json:"submitted_at"`
}

// CompletedTransaction is §3's CompletedTransaction entity.
type CompletedTransaction struct {
	Block uint64 `json:"block"`
	Proof []byte `json:"proof"`
	Nonce string `json:"nonce"`
}

// envelope is the outer NEP-297 log frame: { standard, version, event, data }.
type envelope struct {
	Standard string          `json:"standard"`
	Version  string          `json:"version"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
}

// ParseError distinguishes "this log line is not an event at all" (the
// common case — most logs are foreign) from a genuine decode failure
// the tracker should still not crash on.
type ParseError struct {
	NotEvent bool
	Reason   string
}

func (e *ParseError) Error() string {
	if e.NotEvent {
		return "not an event log line"
	}
	return e.Reason
}

// RemovePrefix strips the EVENT_JSON: prefix from a raw log line,
// returning false if the line does not carry it.
func RemovePrefix(log string) (string, bool) {
	if !strings.HasPrefix(log, eventLogPrefix) {
		return "", false
	}
	return strings.TrimPrefix(log, eventLogPrefix), true
}

// fixData replaces a single-element "data" array with its sole element,
// a compatibility shim some NEP-297 emitters rely on (§6).
func fixData(raw json.RawMessage) json.RawMessage {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) == 1 {
		return arr[0]
	}
	return raw
}

// Decode parses one log line into its event name and raw data payload.
// It returns a *ParseError with NotEvent=true for a line without the
// EVENT_JSON: prefix or whose envelope has another standard/version —
// callers must treat that as "skip, don't crash, don't log at error" per
// §4.A. A prefixed line whose envelope is not valid JSON yields a
// *ParseError with NotEvent=false.
func Decode(log string) (eventName string, data json.RawMessage, err error) {
	body, ok := RemovePrefix(log)
	if !ok {
		return "", nil, &ParseError{NotEvent: true}
	}

	var env envelope
	if jsonErr := json.Unmarshal([]byte(body), &env); jsonErr != nil {
		return "", nil, &ParseError{Reason: fmt.Sprintf("malformed event envelope: %v", jsonErr)}
	}

	if env.Standard != nep297Standard || env.Version != nep297Version {
		return "", nil, &ParseError{NotEvent: true}
	}

	return env.Event, fixData(env.Data), nil
}

// DecodeInitTransfer decodes the data payload of a
// fast_bridge_init_transfer_event envelope into a TransferIntent.
func DecodeInitTransfer(data json.RawMessage) (*TransferIntent, error) {
	var intent TransferIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("decode init transfer event: %w", err)
	}
	return &intent, nil
}
