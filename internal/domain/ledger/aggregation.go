package ledger

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ClientGrowthIndex is the AUM-weighted index across a client's vaults:
// floor(Σ(AUM·index) / ΣAUM), or 1e18 when the client holds nothing.
func ClientGrowthIndex(vaults []*VaultLedger) *big.Int {
	weighted := new(big.Int)
	total := new(big.Int)
	for _, v := range vaults {
		aum := v.AUM()
		if aum.Sign() <= 0 {
			continue
		}
		weighted.Add(weighted, new(big.Int).Mul(aum, v.CurrentIndex))
		total.Add(total, aum)
	}
	if total.Sign() == 0 {
		return Scale()
	}
	return weighted.Quo(weighted, total)
}

// WeightedAPY is one vault's APY with its AUM weight
type WeightedAPY struct {
	APY decimal.Decimal
	AUM *big.Int
}

// AUMWeightedAPY averages APYs by AUM. Zero when nothing carries weight.
func AUMWeightedAPY(items []WeightedAPY) decimal.Decimal {
	sum := decimal.Zero
	weight := decimal.Zero
	for _, it := range items {
		if it.AUM == nil || it.AUM.Sign() <= 0 {
			continue
		}
		w := decimal.NewFromBigInt(it.AUM, 0)
		sum = sum.Add(it.APY.Mul(w))
		weight = weight.Add(w)
	}
	if weight.IsZero() {
		return decimal.Zero
	}
	return sum.DivRound(weight, 6)
}
