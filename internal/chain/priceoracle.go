package chain

import "context"

// PriceOracle is the out-of-scope price-oracle HTTP client (§1, §6):
// the executor's profitability gate needs a native-token USD price and
// a fee-token USD price by coin id.
type PriceOracle interface {
	NativePriceUSD(ctx context.Context) (float64, error)
	TokenPriceUSD(ctx context.Context, coinID string) (float64, error)
}
