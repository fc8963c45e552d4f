// Package scheduler runs the ledger's periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobStatus represents the outcome of a job's last run
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobRecord is the last known state of one registered job
type JobRecord struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
}

// Config holds scheduler settings
type Config struct {
	// JobTimeout bounds a single run of any job
	JobTimeout time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{JobTimeout: 10 * time.Minute}
}

// cronParser accepts standard five field specs, an optional leading seconds
// field, and descriptors such as @every 15m
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule validates a cron spec
func ParseSchedule(spec string) (cron.Schedule, error) {
	s, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, spec, err)
	}
	return s, nil
}

type registeredJob struct {
	job      Job
	entryID  cron.EntryID
	running  sync.Mutex
	recordMu sync.Mutex
	record   JobRecord
}

// Scheduler triggers registered jobs on their cron schedules. A job never
// overlaps itself; a tick that arrives while it still runs is skipped.
type Scheduler struct {
	config Config
	cron   *cron.Cron
	logger *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu        sync.RWMutex
	jobs      map[string]*registeredJob
	isRunning bool
}

// New creates a scheduler. Jobs are added with Register before Start.
func New(config Config, logger *zap.Logger) *Scheduler {
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultConfig().JobTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		config: config,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger{logger})),
		),
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
		jobs:    make(map[string]*registeredJob),
	}
}

// Register schedules job under spec
func (s *Scheduler) Register(spec string, job Job) error {
	if _, err := ParseSchedule(spec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name()]; dup {
		return fmt.Errorf("%w: job %s registered twice", ErrInvalidConfig, job.Name())
	}

	rj := &registeredJob{
		job:    job,
		record: JobRecord{Name: job.Name(), Schedule: spec, Status: JobStatusPending},
	}
	id, err := s.cron.AddFunc(spec, func() {
		if err := s.run(s.baseCtx, rj); err != nil && !errors.Is(err, ErrJobAlreadyRunning) {
			s.logger.Error("Scheduled job failed", zap.String("job", rj.job.Name()), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	rj.entryID = id
	s.jobs[job.Name()] = rj
	return nil
}

// Start begins firing jobs. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop prevents new runs and waits for running jobs to finish. Running jobs
// keep a live context until ctx expires, at which point they are cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// RunNow runs a registered job immediately, outside its schedule
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	rj, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.run(ctx, rj)
}

// Status returns the last known state of every job
func (s *Scheduler) Status() []JobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobRecord, 0, len(s.jobs))
	for _, rj := range s.jobs {
		rec := rj.snapshot()
		if entry := s.cron.Entry(rj.entryID); !entry.Next.IsZero() {
			next := entry.Next
			rec.NextRunAt = &next
		}
		out = append(out, rec)
	}
	return out
}

func (s *Scheduler) run(ctx context.Context, rj *registeredJob) error {
	if !rj.running.TryLock() {
		s.logger.Warn("Skipping job run, previous run still in progress", zap.String("job", rj.job.Name()))
		return ErrJobAlreadyRunning
	}
	defer rj.running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	started := time.Now()
	rj.update(func(r *JobRecord) {
		r.Status = JobStatusRunning
		r.Error = ""
		r.StartedAt = &started
		r.CompletedAt = nil
	})
	s.logger.Info("Job started", zap.String("job", rj.job.Name()))

	err := rj.job.Run(ctx)

	completed := time.Now()
	rj.update(func(r *JobRecord) {
		r.CompletedAt = &completed
		if err != nil {
			r.Status = JobStatusFailed
			r.Error = err.Error()
			return
		}
		r.Status = JobStatusSuccess
	})
	if err != nil {
		return fmt.Errorf("job %s: %w", rj.job.Name(), err)
	}
	s.logger.Info("Job completed",
		zap.String("job", rj.job.Name()),
		zap.Duration("duration", completed.Sub(started)),
	)
	return nil
}

func (rj *registeredJob) update(fn func(*JobRecord)) {
	rj.recordMu.Lock()
	defer rj.recordMu.Unlock()
	fn(&rj.record)
}

func (rj *registeredJob) snapshot() JobRecord {
	rj.recordMu.Lock()
	defer rj.recordMu.Unlock()
	return rj.record
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, zap.Any("details", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, zap.Error(err), zap.Any("details", keysAndValues))
}
