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
	"golang.org/x/sync/errgroup"
)

// ReconcilerConfig holds reconciliation settings
type ReconcilerConfig struct {
	Concurrency     int
	SandboxDebounce time.Duration
	ReadTimeout     time.Duration
}

// DefaultReconcilerConfig returns the default reconciliation settings
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Concurrency:     4,
		SandboxDebounce: 15 * time.Minute,
		ReadTimeout:     20 * time.Second,
	}
}

// IndexReconciler moves every vault's growth index from its observed balance
// (production) or from simulated growth (sandbox). Vaults are isolated: one
// failing vault never stops the others.
type IndexReconciler struct {
	scope      TransactionScope
	vaults     ledger.VaultLedgerRepository
	oracles    OracleRegistry
	aggregator *GrowthIndexAggregator
	publisher  shared.EventPublisher
	metrics    MetricsRecorder
	clock      shared.Clock
	logger     *zap.Logger
	cfg        ReconcilerConfig
}

// NewIndexReconciler creates a new IndexReconciler
func NewIndexReconciler(
	scope TransactionScope,
	vaults ledger.VaultLedgerRepository,
	oracles OracleRegistry,
	aggregator *GrowthIndexAggregator,
	publisher shared.EventPublisher,
	metrics MetricsRecorder,
	clock shared.Clock,
	logger *zap.Logger,
	cfg ReconcilerConfig,
) *IndexReconciler {
	def := DefaultReconcilerConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.SandboxDebounce <= 0 {
		cfg.SandboxDebounce = def.SandboxDebounce
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if publisher == nil {
		publisher = shared.NoOpEventPublisher{}
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &IndexReconciler{
		scope:      scope,
		vaults:     vaults,
		oracles:    oracles,
		aggregator: aggregator,
		publisher:  publisher,
		metrics:    metrics,
		clock:      clock,
		logger:     logger,
		cfg:        cfg,
	}
}

// ReconcileAll runs one reconciliation cycle over every active vault.
// Only a failure to list the vaults is returned as an error; per-vault
// failures are part of the report.
func (r *IndexReconciler) ReconcileAll(ctx context.Context) (*ReconcileReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciler", "reconcile_all")
	defer span.End()

	report := &ReconcileReport{StartedAt: r.clock.Now()}
	vaults, err := r.vaults.ListActive(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("list active vaults: %w", err)
	}

	outcomes := make([]VaultOutcome, len(vaults))
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, v := range vaults {
		g.Go(func() error {
			outcomes[i] = r.reconcile(ctx, v)
			return nil
		})
	}
	_ = g.Wait()

	report.Vaults = outcomes
	report.FinishedAt = r.clock.Now()
	r.metrics.RecordReconcileRun(ctx, report.FinishedAt.Sub(report.StartedAt), len(vaults))
	telemetry.SetAttributes(span,
		"vaults", len(vaults),
		"advanced", report.Count(OutcomeAdvanced),
		"rejected", report.Count(OutcomeRejectedIntegrity),
	)
	r.logger.Info("reconciliation cycle finished",
		zap.Int("vaults", len(vaults)),
		zap.Int("advanced", report.Count(OutcomeAdvanced)),
		zap.Int("failed_read", report.Count(OutcomeFailedRead)),
		zap.Int("rejected", report.Count(OutcomeRejectedIntegrity)),
		zap.Int("failed", report.Count(OutcomeFailed)),
	)
	return report, nil
}

// ReconcileVault runs reconciliation for a single vault
func (r *IndexReconciler) ReconcileVault(ctx context.Context, vaultID uuid.UUID) (*VaultOutcome, error) {
	vault, err := r.vaults.FindByID(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	if !vault.Active {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidState, "vault %s is not active", vaultID)
	}
	outcome := r.reconcile(ctx, vault)
	return &outcome, nil
}

func (r *IndexReconciler) reconcile(ctx context.Context, v *ledger.VaultLedger) VaultOutcome {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciler", "reconcile_vault")
	defer span.End()
	telemetry.SetAttributes(span, "vault_id", v.ID.String(), "environment", string(v.Environment))

	log := r.logger.With(
		zap.String("vault_id", v.ID.String()),
		zap.String("client_id", v.ClientID.String()),
		zap.String("chain", v.Chain),
	)
	out := VaultOutcome{VaultID: v.ID, ClientID: v.ClientID}

	// The external read happens before any row lock is taken. The baseline it
	// pairs with is captured now and checked again under the lock.
	var observed, baseline *big.Int
	if !v.IsSandbox() {
		baseline = new(big.Int).Set(v.LastObservedBalance)
		bal, err := r.readBalance(ctx, v)
		if err != nil {
			telemetry.RecordError(span, err)
			log.Warn("balance read failed, keeping last index", zap.Error(err))
			out.Outcome = OutcomeFailedRead
			out.Error = err.Error()
			r.metrics.RecordReconcile(ctx, string(out.Outcome), v.Environment)
			return out
		}
		observed = bal
	}

	var locked *ledger.VaultLedger
	err := r.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		locked, err = repos.VaultRepo().FindByIDForUpdate(ctx, v.ID)
		if err != nil {
			return err
		}
		if baseline != nil && locked.LastObservedBalance.Cmp(baseline) != 0 {
			// a stake or withdrawal committed after the read; the next cycle picks it up
			out.Outcome = OutcomeSkippedNoChange
			return nil
		}
		out.Outcome, err = r.apply(ctx, repos, locked, observed)
		return err
	})

	switch {
	case err == nil:
	case errors.Is(err, shared.ErrIndexIntegrityViolation):
		out.Outcome = OutcomeRejectedIntegrity
		out.Error = err.Error()
		log.Error("growth index candidate rejected",
			zap.String("current_index", v.CurrentIndex.String()),
			zap.Error(err))
	default:
		telemetry.RecordError(span, err)
		out.Outcome = OutcomeFailed
		out.Error = err.Error()
		log.Error("reconciliation failed", zap.Error(err))
	}
	r.metrics.RecordReconcile(ctx, string(out.Outcome), v.Environment)

	if out.Outcome == OutcomeAdvanced {
		out.NewIndex = locked.CurrentIndex.String()
		r.aggregator.Invalidate(ctx, locked.ClientID)
		if events := locked.GetDomainEvents(); len(events) > 0 {
			if err := r.publisher.Publish(ctx, events...); err != nil {
				log.Error("publish index events", zap.Error(err))
			}
			locked.ClearDomainEvents()
		}
		log.Info("growth index advanced", zap.String("new_index", out.NewIndex))
	}
	return out
}

// apply computes the candidate for a locked vault and pushes it through the
// index gate. The caller's transaction rolls back on error.
func (r *IndexReconciler) apply(ctx context.Context, repos TransactionalRepositories, v *ledger.VaultLedger, observed *big.Int) (ReconcileOutcome, error) {
	now := r.clock.Now()

	var candidate *big.Int
	if v.IsSandbox() {
		elapsed := now.Sub(v.LastIndexUpdate)
		if elapsed < r.cfg.SandboxDebounce {
			return OutcomeSkippedDebounce, nil
		}
		sandbox, ok := v.Strategy.(ledger.SandboxStrategy)
		if !ok {
			return OutcomeFailed, shared.NewDomainErrorf(shared.CodeInvalidState,
				"sandbox vault has %s strategy", v.Strategy.Kind())
		}
		candidate = ledger.AdvanceByDailyYieldPercent(v.CurrentIndex, ledger.SimulatedGrowthPercent(sandbox.APY, elapsed))
	} else {
		if v.LastObservedBalance.Sign() == 0 {
			if observed.Sign() == 0 {
				return OutcomeSkippedNoChange, nil
			}
			v.ObserveBalance(observed)
			return OutcomeSeeded, repos.VaultRepo().Save(ctx, v)
		}
		candidate = ledger.AdvanceByBalanceRatio(v.CurrentIndex, v.LastObservedBalance, observed)
	}

	if candidate.Cmp(v.CurrentIndex) == 0 {
		if observed != nil && observed.Cmp(v.LastObservedBalance) != 0 {
			v.ObserveBalance(observed)
			return OutcomeSkippedNoChange, repos.VaultRepo().Save(ctx, v)
		}
		return OutcomeSkippedNoChange, nil
	}

	adv, err := v.AdvanceIndex(candidate, now)
	if err != nil {
		return OutcomeRejectedIntegrity, err
	}
	if observed != nil {
		v.ObserveBalance(observed)
	}

	if err := repos.SnapshotRepo().Append(ctx, ledger.NewIndexSnapshot(v.ID, adv)); err != nil {
		return OutcomeFailed, fmt.Errorf("append snapshot: %w", err)
	}
	history, err := repos.SnapshotRepo().ListSince(ctx, v.ID, now.Add(-ledger.APYWindow30d))
	if err != nil {
		return OutcomeFailed, fmt.Errorf("list snapshots: %w", err)
	}
	v.UpdateRollingAPY(
		ledger.RollingAPY(history, ledger.APYWindow7d, now),
		ledger.RollingAPY(history, ledger.APYWindow30d, now),
	)
	if err := repos.VaultRepo().Save(ctx, v); err != nil {
		return OutcomeFailed, fmt.Errorf("save vault: %w", err)
	}
	return OutcomeAdvanced, nil
}

func (r *IndexReconciler) readBalance(ctx context.Context, v *ledger.VaultLedger) (*big.Int, error) {
	oracle, err := r.oracles.Resolve(v.Strategy)
	if err != nil {
		return nil, err
	}
	readCtx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	bal, err := oracle.ReadBalance(readCtx, v.CustodialWallet, v.TokenAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrExternalReadFailure, err)
	}
	if bal == nil || bal.Sign() < 0 {
		return nil, fmt.Errorf("%w: oracle returned invalid balance", shared.ErrExternalReadFailure)
	}
	return bal, nil
}
