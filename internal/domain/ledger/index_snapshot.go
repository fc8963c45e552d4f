package ledger

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Rolling APY windows
const (
	APYWindow7d  = 7 * 24 * time.Hour
	APYWindow30d = 30 * 24 * time.Hour
)

// IndexSnapshot is the append-only record of one accepted index advance
type IndexSnapshot struct {
	ID         uuid.UUID
	VaultID    uuid.UUID
	IndexValue *big.Int
	DailyYield *big.Int
	DailyAPY   decimal.Decimal
	Timestamp  time.Time
}

// NewIndexSnapshot records adv for vaultID
func NewIndexSnapshot(vaultID uuid.UUID, adv *IndexAdvance) *IndexSnapshot {
	return &IndexSnapshot{
		ID:         uuid.New(),
		VaultID:    vaultID,
		IndexValue: clone(adv.NewIndex),
		DailyYield: clone(adv.DailyYield),
		DailyAPY:   adv.DailyAPY,
		Timestamp:  adv.At,
	}
}

// DailyRate converts the stored APY percentage back to a daily rate
func (s *IndexSnapshot) DailyRate() decimal.Decimal {
	return s.DailyAPY.DivRound(hundred.Mul(daysInYear), apyPrecision)
}

// RollingAPY compounds the mean daily rate of the snapshots taken within
// window before now into an APY percentage. Zero when no snapshot qualifies.
func RollingAPY(snapshots []*IndexSnapshot, window time.Duration, now time.Time) decimal.Decimal {
	since := now.Add(-window)
	sum := decimal.Zero
	n := int64(0)
	for _, s := range snapshots {
		if s.Timestamp.Before(since) || s.Timestamp.After(now) {
			continue
		}
		sum = sum.Add(s.DailyRate())
		n++
	}
	if n == 0 {
		return decimal.Zero
	}
	mean := sum.DivRound(decimal.NewFromInt(n), apyPrecision)
	return AnnualizeDailyRate(mean).Mul(hundred).Round(6)
}
