package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"github.com/yieldvault/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultIndexCacheTTL bounds how stale a cached client index may be when an
// invalidation is lost
const DefaultIndexCacheTTL = 5 * time.Minute

// GrowthIndexAggregator combines a client's vaults into the single index its
// share accounts are marked against
type GrowthIndexAggregator struct {
	vaults    ledger.VaultLedgerRepository
	snapshots ledger.IndexSnapshotRepository
	cache     GrowthIndexCache
	cacheTTL  time.Duration
	clock     shared.Clock
	logger    *zap.Logger
}

// NewGrowthIndexAggregator creates a GrowthIndexAggregator. cache may be nil.
func NewGrowthIndexAggregator(
	vaults ledger.VaultLedgerRepository,
	snapshots ledger.IndexSnapshotRepository,
	cache GrowthIndexCache,
	clock shared.Clock,
	logger *zap.Logger,
) *GrowthIndexAggregator {
	return &GrowthIndexAggregator{
		vaults:    vaults,
		snapshots: snapshots,
		cache:     cache,
		cacheTTL:  DefaultIndexCacheTTL,
		clock:     clock,
		logger:    logger,
	}
}

// ComputeClientGrowthIndex returns floor(Σ(AUM·index)/ΣAUM) over the client's
// active vaults, or 1e18 when the client holds nothing
func (a *GrowthIndexAggregator) ComputeClientGrowthIndex(ctx context.Context, clientID uuid.UUID) (*big.Int, error) {
	if a.cache != nil {
		idx, ok, err := a.cache.Get(ctx, clientID)
		if err != nil {
			a.logger.Warn("growth index cache read failed", zap.String("client_id", clientID.String()), zap.Error(err))
		} else if ok {
			return idx, nil
		}
	}

	vaults, err := a.vaults.ListByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list vaults: %w", err)
	}
	idx := ledger.ClientGrowthIndex(vaults)

	if a.cache != nil {
		if err := a.cache.Set(ctx, clientID, idx, a.cacheTTL); err != nil {
			a.logger.Warn("growth index cache write failed", zap.String("client_id", clientID.String()), zap.Error(err))
		}
	}
	return idx, nil
}

// ComputeHistoricalAPY weights each vault's rolling APY over lookbackDays by
// its AUM. Vaults without snapshots in the window are skipped.
func (a *GrowthIndexAggregator) ComputeHistoricalAPY(ctx context.Context, clientID uuid.UUID, lookbackDays int) (decimal.Decimal, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "historical_apy")
	defer span.End()
	telemetry.SetAttributes(span, "client_id", clientID.String(), "lookback_days", lookbackDays)

	if lookbackDays <= 0 {
		return decimal.Zero, shared.NewDomainError(shared.CodeValidation, "lookback days must be positive")
	}

	vaults, err := a.vaults.ListByClient(ctx, clientID)
	if err != nil {
		telemetry.RecordError(span, err)
		return decimal.Zero, fmt.Errorf("list vaults: %w", err)
	}

	now := a.clock.Now()
	window := time.Duration(lookbackDays) * 24 * time.Hour
	items := make([]ledger.WeightedAPY, 0, len(vaults))
	for _, v := range vaults {
		snaps, err := a.snapshots.ListSince(ctx, v.ID, now.Add(-window))
		if err != nil {
			telemetry.RecordError(span, err)
			return decimal.Zero, fmt.Errorf("list snapshots of vault %s: %w", v.ID, err)
		}
		if len(snaps) == 0 {
			continue
		}
		items = append(items, ledger.WeightedAPY{
			APY: ledger.RollingAPY(snaps, window, now),
			AUM: v.AUM(),
		})
	}
	return ledger.AUMWeightedAPY(items), nil
}

// Invalidate drops the cached index of a client
func (a *GrowthIndexAggregator) Invalidate(ctx context.Context, clientID uuid.UUID) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Invalidate(ctx, clientID); err != nil {
		a.logger.Warn("growth index cache invalidation failed", zap.String("client_id", clientID.String()), zap.Error(err))
	}
}
