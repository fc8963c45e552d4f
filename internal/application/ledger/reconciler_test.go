package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) ReadBalance(ctx context.Context, wallet, token string) (*big.Int, error) {
	args := m.Called(ctx, wallet, token)
	if v := args.Get(0); v != nil {
		return v.(*big.Int), args.Error(1)
	}
	return nil, args.Error(1)
}

// staticRegistry resolves every strategy to the same oracle
type staticRegistry struct {
	oracle BalanceOracle
	err    error
}

func (r staticRegistry) Resolve(ledger.StrategyConfig) (BalanceOracle, error) {
	return r.oracle, r.err
}

func (f *ledgerFixture) reconciler(reg OracleRegistry, logger *zap.Logger) *IndexReconciler {
	return NewIndexReconciler(f.scope, f.vaults, reg, f.aggregator(nil), f.publisher, nil, f.clock, logger,
		ReconcilerConfig{Concurrency: 2})
}

func (f *ledgerFixture) stake(t *testing.T, vaultID uuid.UUID, amount int64) {
	t.Helper()
	v, err := f.vaults.FindByID(context.Background(), vaultID)
	require.NoError(t, err)
	require.NoError(t, v.RecordPendingDeposit(big.NewInt(amount), f.clock.Now()))
	require.NoError(t, v.ConfirmStaked(big.NewInt(amount), f.clock.Now()))
	require.NoError(t, f.vaults.Save(context.Background(), v))
}

func outcomeOf(report *ReconcileReport, vaultID uuid.UUID) VaultOutcome {
	for _, o := range report.Vaults {
		if o.VaultID == vaultID {
			return o
		}
	}
	return VaultOutcome{}
}

func TestIndexReconciler_ProductionScenario(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture()
	vault := f.addProductionVault(t, uuid.New())
	f.stake(t, vault.ID, 1_000_000)

	oracle := &mockOracle{}
	core, logs := observer.New(zapcore.InfoLevel)
	r := f.reconciler(staticRegistry{oracle: oracle}, zap.New(core))

	// balance grows 1,000,000 -> 1,050,000
	oracle.On("ReadBalance", mock.Anything, testWallet, testToken).Return(big.NewInt(1_050_000), nil).Once()
	f.clock.Advance(24 * time.Hour)
	report, err := r.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvanced, outcomeOf(report, vault.ID).Outcome)

	stored, err := f.vaults.FindByID(ctx, vault.ID)
	require.NoError(t, err)
	assert.Equal(t, "1050000000000000000", stored.CurrentIndex.String())
	assert.Equal(t, "1050000", stored.LastObservedBalance.String())
	assert.Equal(t, "50000", stored.CumulativeYield.String())
	assert.Equal(t, "1050000", stored.TotalStakedBalance.String())
	assert.Equal(t, 1, f.snapshots.count())
	assert.True(t, stored.APY7d.IsPositive())
	assert.Contains(t, f.publisher.types(), ledger.EventTypeIndexAdvanced)

	// balance then drops to 1,040,000: rejected, nothing changes
	oracle.On("ReadBalance", mock.Anything, testWallet, testToken).Return(big.NewInt(1_040_000), nil).Once()
	f.clock.Advance(24 * time.Hour)
	report, err = r.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejectedIntegrity, outcomeOf(report, vault.ID).Outcome)

	stored, err = f.vaults.FindByID(ctx, vault.ID)
	require.NoError(t, err)
	assert.Equal(t, "1050000000000000000", stored.CurrentIndex.String())
	assert.Equal(t, "1050000", stored.LastObservedBalance.String())
	assert.Equal(t, 1, f.snapshots.count())
	assert.Equal(t, 1, logs.FilterMessage("growth index candidate rejected").Len())
	oracle.AssertExpectations(t)
}

func TestIndexReconciler_StakeDuringReadSkips(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture()
	vault := f.addProductionVault(t, uuid.New())
	f.stake(t, vault.ID, 1_000_000)

	// the balance is read before a concurrent stake confirmation commits
	oracle := &mockOracle{}
	oracle.On("ReadBalance", mock.Anything, testWallet, testToken).
		Run(func(mock.Arguments) { f.stake(t, vault.ID, 500_000) }).
		Return(big.NewInt(1_000_000), nil).Once()
	core, logs := observer.New(zapcore.InfoLevel)
	r := f.reconciler(staticRegistry{oracle: oracle}, zap.New(core))

	f.clock.Advance(24 * time.Hour)
	out, err := r.ReconcileVault(ctx, vault.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedNoChange, out.Outcome)

	stored, err := f.vaults.FindByID(ctx, vault.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Scale().String(), stored.CurrentIndex.String())
	assert.Equal(t, "1500000", stored.LastObservedBalance.String())
	assert.Equal(t, 0, f.snapshots.count())
	assert.Equal(t, 0, logs.FilterMessage("growth index candidate rejected").Len())
	oracle.AssertExpectations(t)
}

func TestIndexReconciler_FailedReadIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture()
	broken := f.addProductionVault(t, uuid.New())
	f.stake(t, broken.ID, 1_000)
	sandbox := f.addSandboxVault(t, uuid.New(), "36.5")

	oracle := &mockOracle{}
	oracle.On("ReadBalance", mock.Anything, testWallet, testToken).Return(nil, errors.New("rpc timeout"))
	r := f.reconciler(staticRegistry{oracle: oracle}, zap.NewNop())

	f.clock.Advance(24 * time.Hour)
	report, err := r.ReconcileAll(ctx)
	require.NoError(t, err)

	failed := outcomeOf(report, broken.ID)
	assert.Equal(t, OutcomeFailedRead, failed.Outcome)
	assert.Contains(t, failed.Error, "rpc timeout")
	assert.Equal(t, OutcomeAdvanced, outcomeOf(report, sandbox.ID).Outcome)

	stored, err := f.vaults.FindByID(ctx, broken.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Scale().String(), stored.CurrentIndex.String())
}

func TestIndexReconciler_Sandbox(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture()
	vault := f.addSandboxVault(t, uuid.New(), "36.5")
	r := f.reconciler(staticRegistry{err: errors.New("sandbox vaults never read")}, zap.NewNop())

	t.Run("debounced within 15 minutes", func(t *testing.T) {
		f.clock.Advance(10 * time.Minute)
		out, err := r.ReconcileVault(ctx, vault.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkippedDebounce, out.Outcome)
	})

	t.Run("advances by simulated growth", func(t *testing.T) {
		// 24h10m since creation; 36.5% APY accrues 0.1% per day
		f.clock.Advance(24 * time.Hour)
		out, err := r.ReconcileVault(ctx, vault.ID)
		require.NoError(t, err)
		require.Equal(t, OutcomeAdvanced, out.Outcome)

		stored, err := f.vaults.FindByID(ctx, vault.ID)
		require.NoError(t, err)
		expected := ledger.AdvanceByDailyYieldPercent(ledger.Scale(),
			ledger.SimulatedGrowthPercent(decimal.RequireFromString("36.5"), 24*time.Hour+10*time.Minute))
		assert.Equal(t, expected.String(), stored.CurrentIndex.String())
		assert.Equal(t, f.clock.Now(), stored.LastIndexUpdate)
	})
}

func TestIndexReconciler_FirstObservationSeeds(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture()
	vault := f.addProductionVault(t, uuid.New())

	oracle := &mockOracle{}
	oracle.On("ReadBalance", mock.Anything, testWallet, testToken).Return(big.NewInt(2_000), nil)
	r := f.reconciler(staticRegistry{oracle: oracle}, zap.NewNop())

	out, err := r.ReconcileVault(ctx, vault.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSeeded, out.Outcome)

	stored, err := f.vaults.FindByID(ctx, vault.ID)
	require.NoError(t, err)
	assert.Equal(t, "2000", stored.LastObservedBalance.String())
	assert.Equal(t, ledger.Scale().String(), stored.CurrentIndex.String())

	out, err = r.ReconcileVault(ctx, vault.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedNoChange, out.Outcome)
}

func TestIndexReconciler_ListFailure(t *testing.T) {
	f := newLedgerFixture()
	f.vaults.listErr = errors.New("db down")
	r := f.reconciler(staticRegistry{}, zap.NewNop())

	_, err := r.ReconcileAll(context.Background())
	assert.Error(t, err)
}

func TestIndexReconciler_InactiveVault(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture()
	vault := f.addSandboxVault(t, uuid.New(), "5")
	v, err := f.vaults.FindByID(ctx, vault.ID)
	require.NoError(t, err)
	v.Deactivate(f.clock.Now())
	require.NoError(t, f.vaults.Save(ctx, v))

	_, err = f.reconciler(staticRegistry{}, zap.NewNop()).ReconcileVault(ctx, vault.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}
