// Package ledger holds the share-based accounting model for yield vaults:
// fixed-point growth index math, per end-user share accounts, vault ledgers
// with the index-advance gate, and the platform/client/end-user revenue split.
//
// Every monetary amount and growth index is an arbitrary-precision integer.
// Growth indexes are fixed-point values with 18 decimals. Percentages and
// APYs are decimal.Decimal. Integer division always truncates toward zero so
// that rounding can never credit more than was earned.
package ledger

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yieldvault/backend/internal/domain/shared"
)

// ScaleDecimals is the number of decimals carried by a growth index
const ScaleDecimals = 18

var (
	scale      = new(big.Int).Exp(big.NewInt(10), big.NewInt(ScaleDecimals), nil)
	bigTwo     = big.NewInt(2)
	daysInYear = decimal.NewFromInt(365)
	hundred    = decimal.NewFromInt(100)
)

// apyPrecision is the number of decimal places kept for rate and APY math
const apyPrecision = 24

// Scale returns 1e18, the fixed-point unit and the initial growth index.
func Scale() *big.Int {
	return new(big.Int).Set(scale)
}

// Shares converts an amount into vault shares at index: floor(amount·SCALE / index).
func Shares(amount, index *big.Int) (*big.Int, error) {
	if index == nil || index.Sign() <= 0 {
		return nil, shared.NewDomainError(shared.CodeValidation, "growth index must be positive")
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, shared.NewDomainError(shared.CodeValidation, "amount must not be negative")
	}
	n := new(big.Int).Mul(amount, scale)
	return n.Quo(n, index), nil
}

// ValueFromShares converts shares back into an amount: floor(shares·index / SCALE).
func ValueFromShares(shares, index *big.Int) *big.Int {
	n := new(big.Int).Mul(shares, index)
	return n.Quo(n, scale)
}

// WeightedEntryIndex blends an existing cost basis with a new deposit:
// floor((oldDeposited·oldIndex + newDeposit·curIndex) / (oldDeposited + newDeposit)).
// When both amounts are zero the current index is returned.
func WeightedEntryIndex(oldDeposited, oldIndex, newDeposit, curIndex *big.Int) *big.Int {
	total := new(big.Int).Add(oldDeposited, newDeposit)
	if total.Sign() == 0 {
		return new(big.Int).Set(curIndex)
	}
	weighted := new(big.Int).Mul(oldDeposited, oldIndex)
	weighted.Add(weighted, new(big.Int).Mul(newDeposit, curIndex))
	return weighted.Quo(weighted, total)
}

// YieldEarned returns max(0, floor(deposited·curIndex/entryIndex) − deposited).
func YieldEarned(deposited, curIndex, entryIndex *big.Int) *big.Int {
	if entryIndex == nil || entryIndex.Sign() <= 0 {
		return new(big.Int)
	}
	value := new(big.Int).Mul(deposited, curIndex)
	value.Quo(value, entryIndex)
	value.Sub(value, deposited)
	if value.Sign() < 0 {
		return new(big.Int)
	}
	return value
}

// EffectiveAPY annualizes the growth from entryIndex to curIndex over days,
// as a percentage: ((cur/entry) − 1)·(365/days)·100.
func EffectiveAPY(curIndex, entryIndex *big.Int, days int) decimal.Decimal {
	if days <= 0 || entryIndex == nil || entryIndex.Sign() <= 0 {
		return decimal.Zero
	}
	ratio := decimal.NewFromBigInt(curIndex, 0).DivRound(decimal.NewFromBigInt(entryIndex, 0), apyPrecision)
	return ratio.Sub(decimal.NewFromInt(1)).
		Mul(daysInYear).
		DivRound(decimal.NewFromInt(int64(days)), apyPrecision).
		Mul(hundred)
}

// AdvanceByDailyYieldPercent grows index by pct percent: floor(index·(1 + pct/100)).
// Used for simulated sandbox growth.
func AdvanceByDailyYieldPercent(index *big.Int, pct decimal.Decimal) *big.Int {
	grown := decimal.NewFromBigInt(index, 0).Mul(hundred.Add(pct)).Shift(-2)
	return grown.Truncate(0).BigInt()
}

// AdvanceByBalanceRatio scales index by the observed balance growth:
// floor(index·newBal/prevBal). The index is returned unchanged when prevBal is zero.
func AdvanceByBalanceRatio(index, prevBal, newBal *big.Int) *big.Int {
	if prevBal == nil || prevBal.Sign() == 0 {
		return new(big.Int).Set(index)
	}
	n := new(big.Int).Mul(index, newBal)
	return n.Quo(n, prevBal)
}

// AnnualizeDailyRate compounds a daily rate over a year: (1 + daily)^365 − 1.
func AnnualizeDailyRate(daily decimal.Decimal) decimal.Decimal {
	return powRounded(decimal.NewFromInt(1).Add(daily), 365).Sub(decimal.NewFromInt(1))
}

// SimulatedGrowthPercent is the percentage growth of a position earning apy
// (a percentage) over elapsed, accrued linearly: apy·elapsed/365d.
func SimulatedGrowthPercent(apy decimal.Decimal, elapsed time.Duration) decimal.Decimal {
	if elapsed <= 0 || apy.Sign() <= 0 {
		return decimal.Zero
	}
	year := decimal.NewFromInt(int64(365 * 24 * time.Hour / time.Second))
	return apy.Mul(decimal.NewFromInt(int64(elapsed / time.Second))).DivRound(year, apyPrecision)
}

// ParseAmount parses a non-negative base-10 integer amount.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, shared.NewDomainErrorf(shared.CodeValidation, "invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, shared.NewDomainErrorf(shared.CodeValidation, "amount %q must not be negative", s)
	}
	return v, nil
}

func requirePositive(name string, v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return shared.NewDomainErrorf(shared.CodeValidation, "%s must be positive", name)
	}
	return nil
}

// powRounded raises base to n by squaring, rounding each step to apyPrecision places.
func powRounded(base decimal.Decimal, n int) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(base).Round(apyPrecision)
		}
		base = base.Mul(base).Round(apyPrecision)
		n >>= 1
	}
	return result
}

func clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
