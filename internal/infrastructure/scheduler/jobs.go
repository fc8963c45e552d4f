package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	appledger "github.com/yieldvault/backend/internal/application/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"github.com/yieldvault/backend/internal/infrastructure/config"
)

// Job names
const (
	JobReconcile = "reconcile"
	JobRetention = "retention"
	JobMRR       = "mrr"
)

// MinSnapshotRetention keeps enough history for the 30 day rolling APY
const MinSnapshotRetention = 31 * 24 * time.Hour

// Job is a unit of scheduled work
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Reconciler runs one reconciliation cycle
type Reconciler interface {
	ReconcileAll(ctx context.Context) (*appledger.ReconcileReport, error)
}

// Pruner deletes history rows older than a cutoff
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MRRCalculator projects revenue for every client
type MRRCalculator interface {
	BatchCalculateMRR(ctx context.Context) (*appledger.BatchMRRResult, error)
}

// ReconcileJob advances vault indices
type ReconcileJob struct {
	Reconciler Reconciler
}

func (ReconcileJob) Name() string { return JobReconcile }

func (j ReconcileJob) Run(ctx context.Context) error {
	_, err := j.Reconciler.ReconcileAll(ctx)
	return err
}

// RetentionJob prunes index snapshots and revenue distributions older than Retention
type RetentionJob struct {
	Snapshots     Pruner
	Distributions Pruner
	Retention     time.Duration
	Clock         shared.Clock
	Logger        *zap.Logger
}

func (RetentionJob) Name() string { return JobRetention }

func (j RetentionJob) Run(ctx context.Context) error {
	cutoff := j.Clock.Now().Add(-j.Retention)

	snapshots, err := j.Snapshots.PruneBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	distributions, err := j.Distributions.PruneBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune distributions: %w", err)
	}
	j.Logger.Info("History pruned",
		zap.Time("cutoff", cutoff),
		zap.Int64("snapshots", snapshots),
		zap.Int64("distributions", distributions),
	)
	return nil
}

// MRRJob logs the monthly revenue projection of every client
type MRRJob struct {
	Calculator MRRCalculator
	Logger     *zap.Logger
}

func (MRRJob) Name() string { return JobMRR }

func (j MRRJob) Run(ctx context.Context) error {
	res, err := j.Calculator.BatchCalculateMRR(ctx)
	if err != nil {
		return err
	}
	for _, p := range res.Results {
		j.Logger.Info("Client revenue projection",
			zap.String("client_id", p.ClientID.String()),
			zap.String("mrr", p.MRR),
			zap.String("arr", p.ARR),
		)
	}
	if len(res.Errors) > 0 {
		j.Logger.Warn("MRR batch had failures", zap.Int("failed_clients", len(res.Errors)))
	}
	return nil
}

// LedgerJobs are the dependencies of the ledger's scheduled jobs
type LedgerJobs struct {
	Reconciler    Reconciler
	Snapshots     Pruner
	Distributions Pruner
	MRR           MRRCalculator
	Clock         shared.Clock
}

// RegisterLedgerJobs registers reconciliation, history retention and MRR
// projection on the schedules from cfg
func RegisterLedgerJobs(s *Scheduler, cfg config.SchedulerConfig, deps LedgerJobs, logger *zap.Logger) error {
	if cfg.SnapshotRetention < MinSnapshotRetention {
		return fmt.Errorf("%w: snapshot retention %s is shorter than %s",
			ErrInvalidConfig, cfg.SnapshotRetention, MinSnapshotRetention)
	}
	if deps.Clock == nil {
		deps.Clock = shared.SystemClock{}
	}

	if err := s.Register(cfg.ReconcileSchedule, ReconcileJob{Reconciler: deps.Reconciler}); err != nil {
		return err
	}
	if err := s.Register(cfg.RetentionSchedule, RetentionJob{
		Snapshots:     deps.Snapshots,
		Distributions: deps.Distributions,
		Retention:     cfg.SnapshotRetention,
		Clock:         deps.Clock,
		Logger:        logger,
	}); err != nil {
		return err
	}
	return s.Register(cfg.MRRSchedule, MRRJob{Calculator: deps.MRR, Logger: logger})
}
