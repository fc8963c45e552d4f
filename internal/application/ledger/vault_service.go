package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"github.com/yieldvault/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// VaultService handles vault onboarding and stake confirmation
type VaultService struct {
	scope      TransactionScope
	vaults     ledger.VaultLedgerRepository
	aggregator *GrowthIndexAggregator
	publisher  shared.EventPublisher
	clock      shared.Clock
	logger     *zap.Logger
}

// NewVaultService creates a new VaultService
func NewVaultService(
	scope TransactionScope,
	vaults ledger.VaultLedgerRepository,
	aggregator *GrowthIndexAggregator,
	publisher shared.EventPublisher,
	clock shared.Clock,
	logger *zap.Logger,
) *VaultService {
	if publisher == nil {
		publisher = shared.NoOpEventPublisher{}
	}
	return &VaultService{
		scope:      scope,
		vaults:     vaults,
		aggregator: aggregator,
		publisher:  publisher,
		clock:      clock,
		logger:     logger,
	}
}

// CreateVault onboards a vault. A client has at most one vault per
// (chain, token, environment).
func (s *VaultService) CreateVault(ctx context.Context, req CreateVaultRequest) (*VaultResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "vault", "create")
	defer span.End()
	telemetry.SetAttributes(span, "client_id", req.ClientID.String(), "chain", req.Chain)

	strategy, err := ledger.UnmarshalStrategy(req.Strategy)
	if err != nil {
		return nil, err
	}
	vault, err := ledger.NewVaultLedger(ledger.NewVaultLedgerInput{
		ClientID:        req.ClientID,
		Chain:           req.Chain,
		TokenAddress:    req.TokenAddress,
		Environment:     ledger.Environment(req.Environment),
		CustodialWallet: req.CustodialWallet,
		Strategy:        strategy,
	}, s.clock.Now())
	if err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		_, err := repos.VaultRepo().FindByKey(ctx, vault.ClientID, vault.Chain, vault.TokenAddress, vault.Environment)
		switch {
		case err == nil:
			return shared.NewDomainErrorf(shared.CodeAlreadyExists,
				"client already has a %s vault for %s on %s", vault.Environment, vault.TokenAddress, vault.Chain)
		case !errors.Is(err, shared.ErrNotFound):
			return err
		}
		if err := repos.VaultRepo().Save(ctx, vault); err != nil {
			return fmt.Errorf("save vault: %w", err)
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, vault)
	s.logger.Info("vault created",
		zap.String("vault_id", vault.ID.String()),
		zap.String("client_id", vault.ClientID.String()),
		zap.String("chain", vault.Chain),
		zap.String("environment", string(vault.Environment)),
		zap.String("strategy", string(strategy.Kind())),
	)
	return ToVaultResponse(vault)
}

// GetVault returns one vault
func (s *VaultService) GetVault(ctx context.Context, id uuid.UUID) (*VaultResponse, error) {
	vault, err := s.vaults.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToVaultResponse(vault)
}

// ListVaults lists vaults with filtering and pagination
func (s *VaultService) ListVaults(ctx context.Context, filter ledger.VaultFilter) (shared.Paginated[*VaultResponse], error) {
	vaults, total, err := s.vaults.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[*VaultResponse]{}, err
	}
	items := make([]*VaultResponse, 0, len(vaults))
	for _, v := range vaults {
		resp, err := ToVaultResponse(v)
		if err != nil {
			return shared.Paginated[*VaultResponse]{}, err
		}
		items = append(items, resp)
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// ConfirmStake moves amount from pending to staked once it has been deployed
func (s *VaultService) ConfirmStake(ctx context.Context, vaultID uuid.UUID, req AmountRequest) (*VaultResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "vault", "confirm_stake")
	defer span.End()
	telemetry.SetAttributes(span, "vault_id", vaultID.String(), "amount", req.Amount)

	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	var vault *ledger.VaultLedger
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		vault, err = repos.VaultRepo().FindByIDForUpdate(ctx, vaultID)
		if err != nil {
			return err
		}
		if err := vault.ConfirmStaked(amount, s.clock.Now()); err != nil {
			return err
		}
		return repos.VaultRepo().Save(ctx, vault)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, vault)
	s.logger.Info("stake confirmed",
		zap.String("vault_id", vault.ID.String()),
		zap.String("amount", amount.String()),
		zap.String("total_staked", vault.TotalStakedBalance.String()),
	)
	return ToVaultResponse(vault)
}

// DeactivateVault stops new deposits into a vault
func (s *VaultService) DeactivateVault(ctx context.Context, vaultID uuid.UUID) error {
	var vault *ledger.VaultLedger
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		vault, err = repos.VaultRepo().FindByIDForUpdate(ctx, vaultID)
		if err != nil {
			return err
		}
		vault.Deactivate(s.clock.Now())
		return repos.VaultRepo().Save(ctx, vault)
	})
	if err != nil {
		return err
	}
	s.aggregator.Invalidate(ctx, vault.ClientID)
	return nil
}

func (s *VaultService) publish(ctx context.Context, vault *ledger.VaultLedger) {
	s.aggregator.Invalidate(ctx, vault.ClientID)
	events := vault.GetDomainEvents()
	vault.ClearDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("publish vault events", zap.String("vault_id", vault.ID.String()), zap.Error(err))
	}
}
