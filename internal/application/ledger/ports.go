package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/yieldvault/backend/internal/domain/ledger"
)

// BalanceOracle reads the balance a custodial wallet holds in one external position.
// Errors mean "no fresh data this cycle".
type BalanceOracle interface {
	ReadBalance(ctx context.Context, custodialWallet, tokenAddress string) (*big.Int, error)
}

// OracleRegistry resolves the oracle serving a strategy
type OracleRegistry interface {
	Resolve(strategy ledger.StrategyConfig) (BalanceOracle, error)
}

// FeeConfigProvider returns the fee arrangement of a client
type FeeConfigProvider interface {
	Get(ctx context.Context, clientID uuid.UUID) (*ledger.ClientFeeConfig, error)
}

// GrowthIndexCache caches the aggregated growth index of a client
type GrowthIndexCache interface {
	// Get returns the cached index; ok is false on a miss
	Get(ctx context.Context, clientID uuid.UUID) (idx *big.Int, ok bool, err error)
	Set(ctx context.Context, clientID uuid.UUID, idx *big.Int, ttl time.Duration) error
	Invalidate(ctx context.Context, clientID uuid.UUID) error
}

// ReconcileOutcome classifies what happened to one vault in a reconciliation run
type ReconcileOutcome string

const (
	OutcomeAdvanced          ReconcileOutcome = "advanced"
	OutcomeSkippedDebounce   ReconcileOutcome = "skipped_debounce"
	OutcomeSkippedNoChange   ReconcileOutcome = "skipped_no_change"
	OutcomeSeeded            ReconcileOutcome = "seeded"
	OutcomeRejectedIntegrity ReconcileOutcome = "rejected_integrity"
	OutcomeFailedRead        ReconcileOutcome = "failed_read"
	OutcomeFailed            ReconcileOutcome = "failed"
)

// MetricsRecorder receives ledger business measurements
type MetricsRecorder interface {
	RecordDeposit(ctx context.Context, clientID uuid.UUID, amount *big.Int)
	RecordWithdrawal(ctx context.Context, clientID uuid.UUID, amount *big.Int)
	RecordReconcile(ctx context.Context, outcome string, env ledger.Environment)
	RecordReconcileRun(ctx context.Context, d time.Duration, vaults int)
	RecordDistribution(ctx context.Context, clientID uuid.UUID, raw *big.Int)
}

// NoopMetrics discards all measurements
type NoopMetrics struct{}

func (NoopMetrics) RecordDeposit(context.Context, uuid.UUID, *big.Int) {}
func (NoopMetrics) RecordWithdrawal(context.Context, uuid.UUID, *big.Int) {}
func (NoopMetrics) RecordReconcile(context.Context, string, ledger.Environment) {}
func (NoopMetrics) RecordReconcileRun(context.Context, time.Duration, int) {}
func (NoopMetrics) RecordDistribution(context.Context, uuid.UUID, *big.Int) {}
