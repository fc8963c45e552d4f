package ledger

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yieldvault/backend/internal/domain/shared"
)

// Client revenue share bounds, in percent
var (
	MinClientRevenueSharePercent = decimal.NewFromInt(10)
	MaxClientRevenueSharePercent = decimal.NewFromInt(20)
)

// ClientFeeConfig is the fee arrangement of one client
type ClientFeeConfig struct {
	ClientID                  uuid.UUID
	ClientRevenueSharePercent decimal.Decimal
	PlatformFeePercent        decimal.Decimal
	Active                    bool
	UpdatedAt                 time.Time
}

// EnduserPercent is whatever remains after the client and platform shares
func (c ClientFeeConfig) EnduserPercent() decimal.Decimal {
	return hundred.Sub(c.ClientRevenueSharePercent).Sub(c.PlatformFeePercent)
}

// Validate checks the share bounds
func (c ClientFeeConfig) Validate() error {
	if c.ClientID == uuid.Nil {
		return shared.NewDomainError(shared.CodeValidation, "client ID is required")
	}
	if c.ClientRevenueSharePercent.LessThan(MinClientRevenueSharePercent) ||
		c.ClientRevenueSharePercent.GreaterThan(MaxClientRevenueSharePercent) {
		return shared.NewDomainErrorf(shared.CodeValidation,
			"client revenue share %s%% must be within [%s, %s]",
			c.ClientRevenueSharePercent, MinClientRevenueSharePercent, MaxClientRevenueSharePercent)
	}
	if c.PlatformFeePercent.IsNegative() {
		return shared.NewDomainError(shared.CodeValidation, "platform fee must not be negative")
	}
	if c.EnduserPercent().IsNegative() {
		return shared.NewDomainErrorf(shared.CodeValidation,
			"client %s%% and platform %s%% exceed 100%%", c.ClientRevenueSharePercent, c.PlatformFeePercent)
	}
	return nil
}

// YieldSplit is the three-way division of a raw yield amount
type YieldSplit struct {
	RawYield        *big.Int
	PlatformRevenue *big.Int
	ClientRevenue   *big.Int
	EnduserRevenue  *big.Int
}

// Sum adds the three parts
func (s YieldSplit) Sum() *big.Int {
	total := new(big.Int).Add(s.PlatformRevenue, s.ClientRevenue)
	return total.Add(total, s.EnduserRevenue)
}

// SplitYield divides raw into platform = floor(raw·platform%/100),
// client = floor(raw·client%/100) and end user = the remainder.
func SplitYield(raw *big.Int, cfg ClientFeeConfig) (*YieldSplit, error) {
	if err := requirePositive("raw yield", raw); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	platform := percentOf(raw, cfg.PlatformFeePercent)
	client := percentOf(raw, cfg.ClientRevenueSharePercent)
	enduser := new(big.Int).Sub(raw, platform)
	enduser.Sub(enduser, client)

	split := &YieldSplit{
		RawYield:        clone(raw),
		PlatformRevenue: platform,
		ClientRevenue:   client,
		EnduserRevenue:  enduser,
	}
	if enduser.Sign() < 0 || split.Sum().Cmp(raw) != 0 {
		return nil, shared.NewDomainErrorf(shared.CodeSplitInvariantViolation,
			"split %s/%s/%s does not sum to %s", platform, client, enduser, raw)
	}
	return split, nil
}

// RevenueDistribution is an immutable record of one split
type RevenueDistribution struct {
	ID              uuid.UUID
	VaultID         uuid.UUID
	ClientID        uuid.UUID
	RawYield        *big.Int
	ClientRevenue   *big.Int
	PlatformRevenue *big.Int
	EnduserRevenue  *big.Int
	ClientPercent   decimal.Decimal
	PlatformPercent decimal.Decimal
	EnduserPercent  decimal.Decimal
	DistributedAt   time.Time
}

// NewRevenueDistribution records split for vault under cfg
func NewRevenueDistribution(vault *VaultLedger, split *YieldSplit, cfg ClientFeeConfig, now time.Time) *RevenueDistribution {
	return &RevenueDistribution{
		ID:              uuid.New(),
		VaultID:         vault.ID,
		ClientID:        vault.ClientID,
		RawYield:        clone(split.RawYield),
		ClientRevenue:   clone(split.ClientRevenue),
		PlatformRevenue: clone(split.PlatformRevenue),
		EnduserRevenue:  clone(split.EnduserRevenue),
		ClientPercent:   cfg.ClientRevenueSharePercent,
		PlatformPercent: cfg.PlatformFeePercent,
		EnduserPercent:  cfg.EnduserPercent(),
		DistributedAt:   now,
	}
}

// CalculateMRR projects the client's monthly revenue:
// floor(earningBalance·(apy/100)·(clientPct/100)/12).
func CalculateMRR(earningBalance *big.Int, apyPct, clientPct decimal.Decimal) *big.Int {
	if earningBalance == nil || earningBalance.Sign() <= 0 || apyPct.Sign() <= 0 || clientPct.Sign() <= 0 {
		return new(big.Int)
	}
	v := decimal.NewFromBigInt(earningBalance, 0).Mul(apyPct).Mul(clientPct).Shift(-4)
	return v.DivRound(decimal.NewFromInt(12), apyPrecision).Truncate(0).BigInt()
}

// CalculateARR is MRR·12
func CalculateARR(mrr *big.Int) *big.Int {
	return new(big.Int).Mul(mrr, big.NewInt(12))
}

func percentOf(amount *big.Int, pct decimal.Decimal) *big.Int {
	return decimal.NewFromBigInt(amount, 0).Mul(pct).Shift(-2).Truncate(0).BigInt()
}
