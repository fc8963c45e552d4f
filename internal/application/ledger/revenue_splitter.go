package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"github.com/yieldvault/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// MRRLookbackDays is the APY window used for revenue projections
const MRRLookbackDays = 30

// RevenueSplitter divides harvested yield between the platform, the client and
// its end users, and projects recurring client revenue
type RevenueSplitter struct {
	scope         TransactionScope
	vaults        ledger.VaultLedgerRepository
	distributions ledger.RevenueDistributionRepository
	fees          FeeConfigProvider
	aggregator    *GrowthIndexAggregator
	publisher     shared.EventPublisher
	metrics       MetricsRecorder
	clock         shared.Clock
	logger        *zap.Logger
}

// NewRevenueSplitter creates a new RevenueSplitter
func NewRevenueSplitter(
	scope TransactionScope,
	vaults ledger.VaultLedgerRepository,
	distributions ledger.RevenueDistributionRepository,
	fees FeeConfigProvider,
	aggregator *GrowthIndexAggregator,
	publisher shared.EventPublisher,
	metrics MetricsRecorder,
	clock shared.Clock,
	logger *zap.Logger,
) *RevenueSplitter {
	if publisher == nil {
		publisher = shared.NoOpEventPublisher{}
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &RevenueSplitter{
		scope:         scope,
		vaults:        vaults,
		distributions: distributions,
		fees:          fees,
		aggregator:    aggregator,
		publisher:     publisher,
		metrics:       metrics,
		clock:         clock,
		logger:        logger,
	}
}

// Distribute splits rawYield for a vault under its client's fee config,
// persists the distribution and books the yield on the vault atomically
func (s *RevenueSplitter) Distribute(ctx context.Context, vaultID uuid.UUID, req AmountRequest) (*DistributionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "revenue", "distribute")
	defer span.End()
	telemetry.SetAttributes(span, "vault_id", vaultID.String(), "raw_yield", req.Amount)

	raw, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	var (
		vault        *ledger.VaultLedger
		distribution *ledger.RevenueDistribution
	)
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		vault, err = repos.VaultRepo().FindByIDForUpdate(ctx, vaultID)
		if err != nil {
			return err
		}
		cfg, err := repos.FeeConfigRepo().Get(ctx, vault.ClientID)
		if err != nil {
			return fmt.Errorf("load fee config: %w", err)
		}
		split, err := ledger.SplitYield(raw, *cfg)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		distribution = ledger.NewRevenueDistribution(vault, split, *cfg, now)
		vault.AccrueDistributedYield(raw, now)
		vault.AddDomainEvent(ledger.NewYieldDistributedEvent(vault, distribution))

		if err := repos.DistributionRepo().Append(ctx, distribution); err != nil {
			return fmt.Errorf("append distribution: %w", err)
		}
		if err := repos.VaultRepo().Save(ctx, vault); err != nil {
			return fmt.Errorf("save vault: %w", err)
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("distribution failed", zap.String("vault_id", vaultID.String()), zap.Error(err))
		return nil, err
	}

	if err := s.publisher.Publish(ctx, vault.GetDomainEvents()...); err != nil {
		s.logger.Error("publish distribution events", zap.String("vault_id", vaultID.String()), zap.Error(err))
	}
	vault.ClearDomainEvents()
	s.metrics.RecordDistribution(ctx, vault.ClientID, raw)
	s.logger.Info("yield distributed",
		zap.String("vault_id", vaultID.String()),
		zap.String("client_id", vault.ClientID.String()),
		zap.String("raw_yield", raw.String()),
		zap.String("platform", distribution.PlatformRevenue.String()),
		zap.String("client", distribution.ClientRevenue.String()),
		zap.String("enduser", distribution.EnduserRevenue.String()),
	)
	return ToDistributionResponse(distribution), nil
}

// ListDistributions lists the distributions of a vault
func (s *RevenueSplitter) ListDistributions(ctx context.Context, vaultID uuid.UUID, filter shared.Filter) (shared.Paginated[*DistributionResponse], error) {
	items, total, err := s.distributions.ListByVault(ctx, vaultID, filter)
	if err != nil {
		return shared.Paginated[*DistributionResponse]{}, err
	}
	return shared.NewPaginated(lo.Map(items, func(d *ledger.RevenueDistribution, _ int) *DistributionResponse {
		return ToDistributionResponse(d)
	}), total, filter.Page, filter.PageSize), nil
}

// ProjectClientRevenue projects MRR and ARR of one client from its staked
// balance and the AUM-weighted 30 day APY
func (s *RevenueSplitter) ProjectClientRevenue(ctx context.Context, clientID uuid.UUID) (*RevenueProjection, error) {
	cfg, err := s.fees.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	vaults, err := s.vaults.ListByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list vaults: %w", err)
	}
	earning := lo.Reduce(vaults, func(acc decimal.Decimal, v *ledger.VaultLedger, _ int) decimal.Decimal {
		return acc.Add(decimal.NewFromBigInt(v.TotalStakedBalance, 0))
	}, decimal.Zero).BigInt()

	apy, err := s.aggregator.ComputeHistoricalAPY(ctx, clientID, MRRLookbackDays)
	if err != nil {
		return nil, err
	}
	mrr := ledger.CalculateMRR(earning, apy, cfg.ClientRevenueSharePercent)
	return &RevenueProjection{
		ClientID:       clientID,
		EarningBalance: earning.String(),
		APY:            apy,
		ClientPercent:  cfg.ClientRevenueSharePercent,
		MRR:            mrr.String(),
		ARR:            ledger.CalculateARR(mrr).String(),
	}, nil
}

// BatchCalculateMRR projects revenue for every client with an active vault.
// A failing client is recorded and the batch continues.
func (s *RevenueSplitter) BatchCalculateMRR(ctx context.Context) (*BatchMRRResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "revenue", "batch_mrr")
	defer span.End()

	clients, err := s.vaults.ListClientIDs(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("list clients: %w", err)
	}

	result := &BatchMRRResult{Results: []RevenueProjection{}, Errors: []ClientError{}}
	for _, clientID := range clients {
		p, err := s.ProjectClientRevenue(ctx, clientID)
		if err != nil {
			s.logger.Warn("mrr calculation failed", zap.String("client_id", clientID.String()), zap.Error(err))
			result.Errors = append(result.Errors, ClientError{ClientID: clientID, Error: err.Error()})
			continue
		}
		result.Results = append(result.Results, *p)
	}
	telemetry.SetAttributes(span, "clients", len(clients), "errors", len(result.Errors))
	return result, nil
}
