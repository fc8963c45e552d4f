package telemetry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when no meter is supplied
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// Metric attribute keys
var (
	AttrClientID    = attribute.Key("client_id")
	AttrOutcome     = attribute.Key("outcome")
	AttrEnvironment = attribute.Key("environment")
)

// ReconcileDurationBuckets are histogram boundaries for a reconciliation cycle (seconds)
var ReconcileDurationBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// LedgerMetrics records ledger business measurements. Amounts are exported
// in base units as float64 and are approximate by nature of the metric type.
type LedgerMetrics struct {
	deposits          metric.Int64Counter
	depositAmount     metric.Float64Counter
	withdrawals       metric.Int64Counter
	withdrawalAmount  metric.Float64Counter
	reconcileOutcomes metric.Int64Counter
	reconcileDuration metric.Float64Histogram
	reconcileVaults   metric.Int64Gauge
	distributions     metric.Int64Counter
	distributedYield  metric.Float64Counter
}

// NewLedgerMetrics creates the ledger instruments on meter
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	m := &LedgerMetrics{}
	var err error
	if m.deposits, err = meter.Int64Counter("ledger_deposits_total",
		metric.WithDescription("Deposits booked"), metric.WithUnit("{deposit}")); err != nil {
		return nil, wrapInstrument("ledger_deposits_total", err)
	}
	if m.depositAmount, err = meter.Float64Counter("ledger_deposit_amount_total",
		metric.WithDescription("Deposited amount in token base units")); err != nil {
		return nil, wrapInstrument("ledger_deposit_amount_total", err)
	}
	if m.withdrawals, err = meter.Int64Counter("ledger_withdrawals_total",
		metric.WithDescription("Withdrawals booked"), metric.WithUnit("{withdrawal}")); err != nil {
		return nil, wrapInstrument("ledger_withdrawals_total", err)
	}
	if m.withdrawalAmount, err = meter.Float64Counter("ledger_withdrawal_amount_total",
		metric.WithDescription("Withdrawn amount in token base units")); err != nil {
		return nil, wrapInstrument("ledger_withdrawal_amount_total", err)
	}
	if m.reconcileOutcomes, err = meter.Int64Counter("ledger_reconcile_outcomes_total",
		metric.WithDescription("Per-vault reconciliation outcomes")); err != nil {
		return nil, wrapInstrument("ledger_reconcile_outcomes_total", err)
	}
	if m.reconcileDuration, err = meter.Float64Histogram("ledger_reconcile_cycle_duration_seconds",
		metric.WithDescription("Duration of a full reconciliation cycle"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(ReconcileDurationBuckets...)); err != nil {
		return nil, wrapInstrument("ledger_reconcile_cycle_duration_seconds", err)
	}
	if m.reconcileVaults, err = meter.Int64Gauge("ledger_reconcile_cycle_vaults",
		metric.WithDescription("Active vaults visited by the last reconciliation cycle")); err != nil {
		return nil, wrapInstrument("ledger_reconcile_cycle_vaults", err)
	}
	if m.distributions, err = meter.Int64Counter("ledger_distributions_total",
		metric.WithDescription("Yield distributions recorded")); err != nil {
		return nil, wrapInstrument("ledger_distributions_total", err)
	}
	if m.distributedYield, err = meter.Float64Counter("ledger_distributed_yield_total",
		metric.WithDescription("Raw yield distributed in token base units")); err != nil {
		return nil, wrapInstrument("ledger_distributed_yield_total", err)
	}
	return m, nil
}

func wrapInstrument(name string, err error) error {
	return fmt.Errorf("failed to create instrument %s: %w", name, err)
}

// RecordDeposit counts one deposit
func (m *LedgerMetrics) RecordDeposit(ctx context.Context, clientID uuid.UUID, amount *big.Int) {
	attrs := metric.WithAttributes(AttrClientID.String(clientID.String()))
	m.deposits.Add(ctx, 1, attrs)
	m.depositAmount.Add(ctx, toFloat(amount), attrs)
}

// RecordWithdrawal counts one withdrawal
func (m *LedgerMetrics) RecordWithdrawal(ctx context.Context, clientID uuid.UUID, amount *big.Int) {
	attrs := metric.WithAttributes(AttrClientID.String(clientID.String()))
	m.withdrawals.Add(ctx, 1, attrs)
	m.withdrawalAmount.Add(ctx, toFloat(amount), attrs)
}

// RecordReconcile counts one per-vault reconciliation outcome
func (m *LedgerMetrics) RecordReconcile(ctx context.Context, outcome string, env ledger.Environment) {
	m.reconcileOutcomes.Add(ctx, 1, metric.WithAttributes(
		AttrOutcome.String(outcome),
		AttrEnvironment.String(string(env)),
	))
}

// RecordReconcileRun records the duration and size of a cycle
func (m *LedgerMetrics) RecordReconcileRun(ctx context.Context, d time.Duration, vaults int) {
	m.reconcileDuration.Record(ctx, d.Seconds())
	m.reconcileVaults.Record(ctx, int64(vaults))
}

// RecordDistribution counts one distribution of raw yield
func (m *LedgerMetrics) RecordDistribution(ctx context.Context, clientID uuid.UUID, raw *big.Int) {
	attrs := metric.WithAttributes(AttrClientID.String(clientID.String()))
	m.distributions.Add(ctx, 1, attrs)
	m.distributedYield.Add(ctx, toFloat(raw), attrs)
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
