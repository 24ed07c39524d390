package executor

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"github.com/nearbridge/fastbridge-relayer/internal/events"
)

func unmarshalIntent(raw string, out *events.TransferIntent) error {
	return json.Unmarshal([]byte(raw), out)
}

func marshalPending(p *events.PendingTransaction) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// parseIntentAmounts parses the u128 transfer/fee amounts carried as
// decimal strings in a TransferIntent.
func parseIntentAmounts(intent *events.TransferIntent) (tokenAmount, feeAmount *uint256.Int, err error) {
	tokenAmount, err = parseAmount(intent.TransferMessage.Transfer.Amount)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid transfer amount %q: %w", intent.TransferMessage.Transfer.Amount, err)
	}
	feeAmount, err = parseAmount(intent.TransferMessage.Fee.Amount)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid fee amount %q: %w", intent.TransferMessage.Fee.Amount, err)
	}
	return tokenAmount, feeAmount, nil
}

func parseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// nonceToBigInt converts the source-chain decimal nonce string into the
// big.Int the bridge proxy ABI expects.
func nonceToBigInt(nonce string) *big.Int {
	n, ok := new(big.Int).SetString(nonce, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}

// displayAmount converts a raw integer amount into display units given
// a token's decimals (§4.B.3.b: fee.amount / 10^decimals).
func displayAmount(amount *uint256.Int, decimals uint32) float64 {
	f := new(big.Float).SetInt(amount.ToBig())
	divisor := new(big.Float).SetFloat64(math.Pow10(int(decimals)))
	f.Quo(f, divisor)
	out, _ := f.Float64()
	return out
}

func weiToEther(wei *big.Int) float64 {
	f := new(big.Float).SetInt(wei)
	f.Quo(f, big.NewFloat(1e18))
	out, _ := f.Float64()
	return out
}

func nowUnix() int64 {
	return time.Now().Unix()
}
