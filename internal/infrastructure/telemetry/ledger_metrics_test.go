package telemetry_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func newRecordingMetrics(t *testing.T) (*telemetry.LedgerMetrics, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := telemetry.NewLedgerMetrics(mp.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func TestNewLedgerMetrics_NilMeter(t *testing.T) {
	_, err := telemetry.NewLedgerMetrics(nil)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}

func TestLedgerMetrics_NoopMeter(t *testing.T) {
	m, err := telemetry.NewLedgerMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordDeposit(context.Background(), uuid.New(), big.NewInt(1))
		m.RecordReconcileRun(context.Background(), time.Second, 2)
	})
}

func TestLedgerMetrics_Deposits(t *testing.T) {
	m, reader := newRecordingMetrics(t)
	client := uuid.New()

	m.RecordDeposit(context.Background(), client, big.NewInt(1_000))
	m.RecordDeposit(context.Background(), client, big.NewInt(500))
	m.RecordWithdrawal(context.Background(), client, big.NewInt(200))

	data := collect(t, reader)
	deposits := data["ledger_deposits_total"].(metricdata.Sum[int64])
	require.Len(t, deposits.DataPoints, 1)
	assert.Equal(t, int64(2), deposits.DataPoints[0].Value)
	clientAttr, ok := deposits.DataPoints[0].Attributes.Value(telemetry.AttrClientID)
	require.True(t, ok)
	assert.Equal(t, client.String(), clientAttr.AsString())

	amount := data["ledger_deposit_amount_total"].(metricdata.Sum[float64])
	assert.InDelta(t, 1500.0, amount.DataPoints[0].Value, 0.001)
	assert.Equal(t, int64(1), data["ledger_withdrawals_total"].(metricdata.Sum[int64]).DataPoints[0].Value)
}

func TestLedgerMetrics_ReconcileOutcomes(t *testing.T) {
	m, reader := newRecordingMetrics(t)

	m.RecordReconcile(context.Background(), "advanced", ledger.EnvironmentProduction)
	m.RecordReconcile(context.Background(), "advanced", ledger.EnvironmentProduction)
	m.RecordReconcile(context.Background(), "rejected_integrity", ledger.EnvironmentProduction)
	m.RecordReconcileRun(context.Background(), 1500*time.Millisecond, 3)

	data := collect(t, reader)
	outcomes := data["ledger_reconcile_outcomes_total"].(metricdata.Sum[int64])
	counts := map[string]int64{}
	for _, dp := range outcomes.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("outcome"))
		counts[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"advanced": 2, "rejected_integrity": 1}, counts)

	hist := data["ledger_reconcile_cycle_duration_seconds"].(metricdata.Histogram[float64])
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.0001)
}

func TestLedgerMetrics_Distribution(t *testing.T) {
	m, reader := newRecordingMetrics(t)

	m.RecordDistribution(context.Background(), uuid.New(), big.NewInt(1_000))

	data := collect(t, reader)
	assert.Equal(t, int64(1), data["ledger_distributions_total"].(metricdata.Sum[int64]).DataPoints[0].Value)
}
