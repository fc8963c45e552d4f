package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"github.com/yieldvault/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// AccountService books end-user deposits and withdrawals against the client
// growth index and the pool balance of one vault
type AccountService struct {
	scope       TransactionScope
	accounts    ledger.ShareAccountRepository
	aggregator  *GrowthIndexAggregator
	idempotency shared.IdempotencyStore
	publisher   shared.EventPublisher
	metrics     MetricsRecorder
	clock       shared.Clock
	logger      *zap.Logger
}

// NewAccountService creates a new AccountService
func NewAccountService(
	scope TransactionScope,
	accounts ledger.ShareAccountRepository,
	aggregator *GrowthIndexAggregator,
	idempotency shared.IdempotencyStore,
	publisher shared.EventPublisher,
	metrics MetricsRecorder,
	clock shared.Clock,
	logger *zap.Logger,
) *AccountService {
	if publisher == nil {
		publisher = shared.NoOpEventPublisher{}
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &AccountService{
		scope:       scope,
		accounts:    accounts,
		aggregator:  aggregator,
		idempotency: idempotency,
		publisher:   publisher,
		metrics:     metrics,
		clock:       clock,
		logger:      logger,
	}
}

// Deposit credits the end user at the client's current growth index and adds
// the amount to the vault's pending balance, in one transaction. The account
// is created on the first deposit.
func (s *AccountService) Deposit(ctx context.Context, req DepositRequest) (*PositionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "deposit")
	defer span.End()
	telemetry.SetAttributes(span,
		"client_id", req.ClientID.String(),
		"vault_id", req.VaultID.String(),
		"amount", req.Amount,
	)

	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	key := ""
	if req.IdempotencyKey != "" && s.idempotency != nil {
		key = fmt.Sprintf("deposit:%s:%s", req.ClientID, req.IdempotencyKey)
		fresh, err := s.idempotency.MarkProcessed(ctx, key, shared.DefaultIdempotencyTTL)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("idempotency check: %w", err)
		}
		if !fresh {
			return nil, shared.NewDomainErrorf(shared.CodeAlreadyExists, "deposit %q was already processed", req.IdempotencyKey)
		}
	}

	now := s.clock.Now()
	var (
		account *ledger.ShareAccount
		vault   *ledger.VaultLedger
		index   *big.Int
	)
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		vault, err = lockClientVault(ctx, repos, req.ClientID, req.VaultID)
		if err != nil {
			return err
		}
		vaults, err := repos.VaultRepo().ListByClient(ctx, req.ClientID)
		if err != nil {
			return fmt.Errorf("list vaults: %w", err)
		}
		index = ledger.ClientGrowthIndex(vaults)

		account, err = repos.AccountRepo().FindByEndUserForUpdate(ctx, req.ClientID, req.EndUserID)
		if errors.Is(err, shared.ErrNotFound) {
			account, err = ledger.NewShareAccount(req.ClientID, req.EndUserID, now)
		}
		if err != nil {
			return err
		}

		if err := account.Deposit(amount, index, now); err != nil {
			return err
		}
		if err := vault.RecordPendingDeposit(amount, now); err != nil {
			return err
		}
		if err := repos.AccountRepo().Save(ctx, account); err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		if err := repos.VaultRepo().Save(ctx, vault); err != nil {
			return fmt.Errorf("save vault: %w", err)
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if key != "" {
			if rerr := s.idempotency.Release(ctx, key); rerr != nil {
				s.logger.Warn("release idempotency key", zap.String("key", key), zap.Error(rerr))
			}
		}
		return nil, err
	}

	s.afterCommit(ctx, req.ClientID, account, vault)
	s.metrics.RecordDeposit(ctx, req.ClientID, amount)
	s.logger.Info("deposit booked",
		zap.String("client_id", req.ClientID.String()),
		zap.String("vault_id", req.VaultID.String()),
		zap.String("end_user_id", req.EndUserID),
		zap.String("amount", amount.String()),
		zap.String("growth_index", index.String()),
	)
	return toPosition(account, index, ageInDays(account.CreatedAt, now)), nil
}

// Withdraw debits the end user at the client's current growth index and
// releases the amount from the vault, in one transaction
func (s *AccountService) Withdraw(ctx context.Context, req WithdrawRequest) (*PositionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "withdraw")
	defer span.End()
	telemetry.SetAttributes(span,
		"client_id", req.ClientID.String(),
		"vault_id", req.VaultID.String(),
		"amount", req.Amount,
	)

	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var (
		account *ledger.ShareAccount
		vault   *ledger.VaultLedger
		index   *big.Int
	)
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		vault, err = lockClientVault(ctx, repos, req.ClientID, req.VaultID)
		if err != nil {
			return err
		}
		vaults, err := repos.VaultRepo().ListByClient(ctx, req.ClientID)
		if err != nil {
			return fmt.Errorf("list vaults: %w", err)
		}
		index = ledger.ClientGrowthIndex(vaults)

		account, err = repos.AccountRepo().FindByEndUserForUpdate(ctx, req.ClientID, req.EndUserID)
		if err != nil {
			return err
		}
		if err := account.Withdraw(amount, index, now); err != nil {
			return err
		}
		if err := vault.RecordWithdrawal(amount, now); err != nil {
			return err
		}
		if err := repos.AccountRepo().Save(ctx, account); err != nil {
			return fmt.Errorf("save account: %w", err)
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

	s.afterCommit(ctx, req.ClientID, account, vault)
	s.metrics.RecordWithdrawal(ctx, req.ClientID, amount)
	s.logger.Info("withdrawal booked",
		zap.String("client_id", req.ClientID.String()),
		zap.String("vault_id", req.VaultID.String()),
		zap.String("end_user_id", req.EndUserID),
		zap.String("amount", amount.String()),
	)
	return toPosition(account, index, ageInDays(account.CreatedAt, now)), nil
}

// GetPosition marks an end user's account at the client's current index
func (s *AccountService) GetPosition(ctx context.Context, clientID uuid.UUID, endUserID string) (*PositionResponse, error) {
	account, err := s.accounts.FindByEndUser(ctx, clientID, endUserID)
	if err != nil {
		return nil, err
	}
	index, err := s.aggregator.ComputeClientGrowthIndex(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return toPosition(account, index, ageInDays(account.CreatedAt, s.clock.Now())), nil
}

func (s *AccountService) afterCommit(ctx context.Context, clientID uuid.UUID, account *ledger.ShareAccount, vault *ledger.VaultLedger) {
	s.aggregator.Invalidate(ctx, clientID)
	events := make([]shared.DomainEvent, 0, len(account.GetDomainEvents())+len(vault.GetDomainEvents()))
	events = append(events, account.GetDomainEvents()...)
	events = append(events, vault.GetDomainEvents()...)
	account.ClearDomainEvents()
	vault.ClearDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("publish ledger events", zap.Int("count", len(events)), zap.Error(err))
	}
}

// lockClientVault loads a vault for update and hides vaults of other clients
func lockClientVault(ctx context.Context, repos TransactionalRepositories, clientID, vaultID uuid.UUID) (*ledger.VaultLedger, error) {
	vault, err := repos.VaultRepo().FindByIDForUpdate(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	if vault.ClientID != clientID {
		return nil, shared.NewDomainErrorf(shared.CodeNotFound, "vault %s not found", vaultID)
	}
	return vault, nil
}

func ageInDays(since, now time.Time) int {
	return int(now.Sub(since) / (24 * time.Hour))
}

func toPosition(a *ledger.ShareAccount, index *big.Int, days int) *PositionResponse {
	return &PositionResponse{
		ClientID:         a.ClientID,
		EndUserID:        a.EndUserID,
		TotalDeposited:   a.TotalDeposited.String(),
		TotalWithdrawn:   a.TotalWithdrawn.String(),
		EntryIndex:       a.WeightedEntryIndex.String(),
		CurrentIndex:     index.String(),
		EffectiveBalance: a.CurrentEffectiveBalance(index).String(),
		AvailableBalance: a.AvailableBalance(index).String(),
		YieldEarned:      a.YieldEarned(index).String(),
		EffectiveAPY:     ledger.EffectiveAPY(index, a.WeightedEntryIndex, days).Round(4),
		Active:           a.Active,
	}
}
