package dns

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go_subdns/internal/dnstypes"
	"go_subdns/internal/lock"
	"go_subdns/internal/model"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultInterval   = time.Second
	defaultJobTimeout = 30 * time.Second
	defaultStaleAfter = 10 * time.Minute
	defaultLockExpiry = time.Minute

	// LockKey is the cross-replica dispatcher lock
	LockKey = "lock:dns-sync:dispatcher"
)

// DispatcherConfig holds dependencies and settings for the Dispatcher
type DispatcherConfig struct {
	Queue    *Queue
	Records  *RecordStore
	Provider Provider
	Lock     lock.Lock    // optional; when set only the holder runs a tick
	Logger   *logrus.Entry
	Meter    metric.Meter // optional; global meter when nil

	Interval   time.Duration
	JobTimeout time.Duration
	StaleAfter time.Duration
	LockExpiry time.Duration
}

// Dispatcher claims one sync job per tick and converges the provider toward
// the record's desired state. Any failure is handed to the retry policy.
type Dispatcher struct {
	queue    *Queue
	records  *RecordStore
	provider Provider
	lock     lock.Lock
	logger   *logrus.Entry
	metrics  *syncMetrics

	interval   time.Duration
	jobTimeout time.Duration
	staleAfter time.Duration
	lockExpiry time.Duration

	wakeCh  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(cfg *DispatcherConfig) (*Dispatcher, error) {
	if cfg.Queue == nil || cfg.Records == nil || cfg.Provider == nil {
		return nil, errors.New("dispatcher requires queue, records and provider")
	}
	m, err := newSyncMetrics(cfg.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher metrics: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		queue:      cfg.Queue,
		records:    cfg.Records,
		provider:   cfg.Provider,
		lock:       cfg.Lock,
		logger:     logger.WithField("component", "dns-dispatcher"),
		metrics:    m,
		interval:   orDefault(cfg.Interval, defaultInterval),
		jobTimeout: orDefault(cfg.JobTimeout, defaultJobTimeout),
		staleAfter: orDefault(cfg.StaleAfter, defaultStaleAfter),
		lockExpiry: orDefault(cfg.LockExpiry, defaultLockExpiry),
		wakeCh:     make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
		stopped:    make(chan struct{}),
	}, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Start starts the dispatcher loop
func (d *Dispatcher) Start() {
	d.once.Do(func() {
		d.logger.WithFields(logrus.Fields{
			"interval":    d.interval,
			"job_timeout": d.jobTimeout,
			"locking":     d.lock != nil,
		}).Info("Starting DNS sync dispatcher...")
		go d.run()
	})
}

// Stop stops the loop and waits for the in-flight job to finish
func (d *Dispatcher) Stop() {
	d.cancel()
	started := true
	d.once.Do(func() { started = false })
	if started {
		<-d.stopped
	}
}

// Wake triggers a tick now instead of after the interval. It never blocks
// and coalesces with a pending wake.
func (d *Dispatcher) Wake() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run() {
	defer close(d.stopped)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			d.logger.Info("Stopping DNS sync dispatcher...")
			return
		case <-timer.C:
		case <-d.wakeCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if _, err := d.Tick(d.ctx); err != nil && d.ctx.Err() == nil {
			d.logger.WithError(err).Error("Dispatcher tick failed")
		}
		timer.Reset(d.interval)
	}
}

// Tick requeues stale jobs, then claims and handles at most one job.
// Returns whether a job was handled.
func (d *Dispatcher) Tick(ctx context.Context) (bool, error) {
	if d.lock != nil {
		unlock, err := d.lock.TryLock(ctx, LockKey, lock.WithExpiry(d.lockExpiry))
		if errors.Is(err, lock.ErrLockNotAcquired) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to acquire dispatcher lock: %w", err)
		}
		defer func() {
			if err := unlock(context.Background()); err != nil {
				d.logger.WithError(err).Warn("Failed to release dispatcher lock")
			}
		}()
	}

	requeued, err := d.queue.RequeueStale(ctx, d.staleAfter)
	if err != nil {
		d.logger.WithError(err).Warn("Failed to requeue stale jobs")
	} else if requeued > 0 {
		d.logger.WithField("count", requeued).Warn("Requeued stale running jobs")
	}

	job, err := d.queue.ClaimNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	d.process(ctx, job)
	return true, nil
}

func (d *Dispatcher) process(ctx context.Context, job *model.SyncJob) {
	log := d.logger.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"record_id": job.RecordID,
		"job_type":  job.JobType,
		"attempts":  job.Attempts,
	})
	log.Debug("Job claimed")

	jobCtx, cancel := context.WithTimeout(ctx, d.jobTimeout)
	out := d.execute(jobCtx, job)
	cancel()

	// The provider call already happened; record its result even if we are stopping
	decision, err := d.queue.Complete(context.WithoutCancel(ctx), job, out)
	if err != nil {
		d.metrics.recordJob(ctx, string(job.JobType), outcomeError)
		log.WithError(err).Error("Failed to complete job")
		return
	}

	switch {
	case decision == nil:
		d.metrics.recordJob(ctx, string(job.JobType), outcomeSuccess)
		entry := log
		if out.ProviderRecordID != "" {
			entry = entry.WithField("provider_record_id", out.ProviderRecordID)
		}
		if out.Replayed {
			entry.Info("Job already applied, skipped provider call")
		} else {
			entry.Info("Job succeeded")
		}
	case decision.Terminal:
		d.metrics.recordJob(ctx, string(job.JobType), outcomeFailed)
		log.WithError(out.Err).WithField("attempts", decision.Attempts).Error("Job failed permanently")
	default:
		d.metrics.recordJob(ctx, string(job.JobType), outcomeRetrying)
		log.WithError(out.Err).WithFields(logrus.Fields{
			"attempts":    decision.Attempts,
			"next_run_at": decision.NextRunAt,
		}).Warn("Job failed, retry scheduled")
	}
}

// execute runs the job and converts a panic into a failed outcome
func (d *Dispatcher) execute(ctx context.Context, job *model.SyncJob) (out Outcome) {
	var record *model.DNSRecord
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: fmt.Errorf("panic while handling job %d: %v", job.ID, r), Record: record}
		}
	}()

	record, err := d.records.Get(ctx, nil, job.RecordID)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return Outcome{Err: err}
	}

	switch job.JobType {
	case model.SyncJobTypeUpsert:
		return d.handleUpsert(ctx, job, record)
	case model.SyncJobTypeDelete:
		return d.handleDelete(ctx, job, record)
	default:
		return Outcome{Err: fmt.Errorf("%w: unknown job type %q", ErrStateDiverged, job.JobType), Record: record}
	}
}

func (d *Dispatcher) handleUpsert(ctx context.Context, job *model.SyncJob, record *model.DNSRecord) Outcome {
	if record == nil {
		return Outcome{Err: fmt.Errorf("%w: record %d no longer exists", ErrStateDiverged, job.RecordID)}
	}
	if record.Status == model.DNSRecordStatusDeleting {
		return Outcome{Err: fmt.Errorf("%w: record %d is being deleted", ErrStateDiverged, record.ID), Record: record}
	}
	if record.Status == model.DNSRecordStatusActive && record.AppliedJobKey == job.IdempotencyKey {
		return Outcome{Record: record, Replayed: true}
	}

	domain, err := d.records.GetDomain(ctx, nil, record.DomainID)
	if err != nil {
		if errors.Is(err, ErrDomainNotFound) {
			err = fmt.Errorf("%w: domain %d of record %d is gone", ErrStateDiverged, record.DomainID, record.ID)
		}
		return Outcome{Err: err, Record: record}
	}

	start := time.Now()
	providerID, err := d.provider.Upsert(ctx, domain.ProviderZoneID, dnstypes.DNSRecord{
		Type:             string(record.Type),
		Name:             record.FQDN,
		Content:          record.Content,
		TTL:              model.IntVal(record.TTL),
		Priority:         record.Priority,
		ProviderRecordID: record.ProviderRecordID,
	})
	d.metrics.recordProviderCall(ctx, string(job.JobType), start, err)

	return Outcome{Err: err, Record: record, ProviderRecordID: providerID}
}

func (d *Dispatcher) handleDelete(ctx context.Context, job *model.SyncJob, record *model.DNSRecord) Outcome {
	// Gone already: a previous attempt finished the work
	if record == nil {
		return Outcome{}
	}
	if record.Status != model.DNSRecordStatusDeleting {
		return Outcome{Err: fmt.Errorf("%w: record %d is %s, not deleting", ErrStateDiverged, record.ID, record.Status), Record: record}
	}

	if record.ProviderRecordID != "" {
		domain, err := d.records.GetDomain(ctx, nil, record.DomainID)
		if err != nil {
			return Outcome{Err: err, Record: record}
		}

		start := time.Now()
		err = d.provider.Delete(ctx, domain.ProviderZoneID, record.ProviderRecordID)
		d.metrics.recordProviderCall(ctx, string(job.JobType), start, err)
		if err != nil {
			return Outcome{Err: err, Record: record}
		}
	}

	return Outcome{Record: record}
}
