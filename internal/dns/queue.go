package dns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go_subdns/internal/dnstypes"
	"go_subdns/internal/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const claimBatch = 8

// ErrLeaseLost is returned by Complete when the job is no longer running,
// e.g. it was requeued as stale while still executing
var ErrLeaseLost = errors.New("sync job is no longer running")

// Outcome is the result of executing one claimed job
type Outcome struct {
	// Err is nil on success
	Err error
	// Record is the record state the job executed against; nil when it was already gone
	Record *model.DNSRecord
	// ProviderRecordID returned by a successful upsert
	ProviderRecordID string
	// Replayed means the effect was already applied by this job before; nothing to write
	Replayed bool
}

// Queue is the durable sync job queue backed by the sync_jobs table
type Queue struct {
	db      *gorm.DB
	records *RecordStore
	policy  RetryPolicy
	now     func() time.Time
}

// NewQueue creates a new job queue
func NewQueue(db *gorm.DB, records *RecordStore, policy RetryPolicy) *Queue {
	return &Queue{
		db:      db,
		records: records,
		policy:  policy,
		now:     time.Now,
	}
}

func (q *Queue) clock() time.Time {
	return q.now().UTC()
}

func (q *Queue) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return q.db.WithContext(ctx)
}

// EnqueueUpsert queues an UPSERT_RECORD job unless one is already queued or
// retrying for the record. Returns the job and whether it was newly created.
func (q *Queue) EnqueueUpsert(ctx context.Context, tx *gorm.DB, domainID, recordID int) (*model.SyncJob, bool, error) {
	db := q.conn(ctx, tx)

	var existing model.SyncJob
	err := db.Where("record_id = ? AND job_type = ? AND status IN ?", recordID, model.SyncJobTypeUpsert,
		[]model.SyncJobStatus{model.SyncJobStatusQueued, model.SyncJobStatusRetrying}).
		Order("id ASC").
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to check pending upsert jobs: %w", err)
	}

	job, err := q.insert(db, model.SyncJobTypeUpsert, domainID, recordID)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// EnqueueDelete always queues a new DELETE_RECORD job
func (q *Queue) EnqueueDelete(ctx context.Context, tx *gorm.DB, domainID, recordID int) (*model.SyncJob, error) {
	return q.insert(q.conn(ctx, tx), model.SyncJobTypeDelete, domainID, recordID)
}

func (q *Queue) insert(db *gorm.DB, jobType model.SyncJobType, domainID, recordID int) (*model.SyncJob, error) {
	key, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate idempotency key: %w", err)
	}

	job := &model.SyncJob{
		DomainID:       domainID,
		RecordID:       recordID,
		JobType:        jobType,
		Status:         model.SyncJobStatusQueued,
		IdempotencyKey: key.String(),
	}
	if err := db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to enqueue %s job for record %d: %w", jobType, recordID, err)
	}
	return job, nil
}

// ClaimNext atomically moves the oldest eligible job to running and returns it.
// Eligible: queued, or retrying with next_run_at <= now. Returns nil when idle.
func (q *Queue) ClaimNext(ctx context.Context) (*model.SyncJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		now := q.clock()

		var candidates []model.SyncJob
		err := q.db.WithContext(ctx).
			Where("status = ? OR (status = ? AND next_run_at <= ?)",
				model.SyncJobStatusQueued, model.SyncJobStatusRetrying, now).
			Order("id ASC").
			Limit(claimBatch).
			Find(&candidates).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load claimable jobs: %w", err)
		}
		if len(candidates) == 0 {
			return nil, nil
		}

		for i := range candidates {
			job := &candidates[i]
			claimed, err := q.markAsRunning(ctx, job, now)
			if err != nil {
				return nil, err
			}
			if claimed {
				return job, nil
			}
		}
		// Every candidate was taken by a concurrent claimer; look again
	}
}

// markAsRunning claims job with an optimistic conditional update on the
// observed status and attempts. A concurrent claimer makes RowsAffected 0.
func (q *Queue) markAsRunning(ctx context.Context, job *model.SyncJob, now time.Time) (bool, error) {
	result := q.db.WithContext(ctx).Model(&model.SyncJob{}).
		Where("id = ? AND status = ? AND attempts = ?", job.ID, job.Status, job.Attempts).
		Updates(map[string]interface{}{
			"status":     model.SyncJobStatusRunning,
			"started_at": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim job %d: %w", job.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	job.Status = model.SyncJobStatusRunning
	job.StartedAt = &now
	return true, nil
}

// Complete transitions a running job per the outcome and applies the
// matching record change in the same transaction
func (q *Queue) Complete(ctx context.Context, job *model.SyncJob, out Outcome) (*Decision, error) {
	now := q.clock()

	var decision *Decision
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if out.Err == nil {
			if err := q.finishJob(tx, job, map[string]interface{}{
				"status":          model.SyncJobStatusSuccess,
				"error":           "",
				"provider_errors": nil,
				"next_run_at":     nil,
				"finished_at":     now,
			}); err != nil {
				return err
			}
			return q.applySuccess(ctx, tx, job, out)
		}

		d := q.policy.Decide(job.Attempts, out.Err, now)
		decision = &d

		updates := map[string]interface{}{
			"attempts":        d.Attempts,
			"error":           model.Truncate(d.Message, lastErrorMaxLen),
			"provider_errors": providerErrorsJSON(out.Err),
		}
		if d.Terminal {
			updates["status"] = model.SyncJobStatusFailed
			updates["next_run_at"] = nil
			updates["finished_at"] = now
		} else {
			updates["status"] = model.SyncJobStatusRetrying
			updates["next_run_at"] = *d.NextRunAt
		}
		if err := q.finishJob(tx, job, updates); err != nil {
			return err
		}

		if !d.Terminal || out.Record == nil {
			return nil
		}
		from := model.DNSRecordStatusPending
		if job.JobType == model.SyncJobTypeDelete {
			from = model.DNSRecordStatusDeleting
		}
		_, err := q.records.MarkAsError(ctx, tx, out.Record.ID, out.Record.Revision, from, d.Message)
		return err
	})
	if err != nil {
		return nil, err
	}

	job.FinishedAt = nil
	switch {
	case decision == nil:
		job.Status = model.SyncJobStatusSuccess
		job.Error = ""
		job.FinishedAt = &now
	case decision.Terminal:
		job.Status = model.SyncJobStatusFailed
		job.Attempts = decision.Attempts
		job.Error = decision.Message
		job.FinishedAt = &now
	default:
		job.Status = model.SyncJobStatusRetrying
		job.Attempts = decision.Attempts
		job.Error = decision.Message
		job.NextRunAt = decision.NextRunAt
	}
	return decision, nil
}

func (q *Queue) finishJob(tx *gorm.DB, job *model.SyncJob, updates map[string]interface{}) error {
	result := tx.Model(&model.SyncJob{}).
		Where("id = ? AND status = ?", job.ID, model.SyncJobStatusRunning).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to complete job %d: %w", job.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job %d: %w", job.ID, ErrLeaseLost)
	}
	return nil
}

func (q *Queue) applySuccess(ctx context.Context, tx *gorm.DB, job *model.SyncJob, out Outcome) error {
	if out.Record == nil || out.Replayed {
		return nil
	}

	switch job.JobType {
	case model.SyncJobTypeUpsert:
		if err := q.records.SaveProviderID(ctx, tx, out.Record.ID, out.ProviderRecordID); err != nil {
			return fmt.Errorf("failed to save provider record id: %w", err)
		}
		if _, err := q.records.MarkAsActive(ctx, tx, out.Record.ID, out.Record.Revision, job.IdempotencyKey); err != nil {
			return fmt.Errorf("failed to mark record active: %w", err)
		}
	case model.SyncJobTypeDelete:
		if err := q.records.DeleteRecord(ctx, tx, out.Record.ID); err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}
	}
	return nil
}

func providerErrorsJSON(err error) interface{} {
	perr, ok := dnstypes.AsProviderError(err)
	if !ok {
		return nil
	}
	raw, mErr := json.Marshal(perr)
	if mErr != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

// RequeueStale puts jobs stuck in running for longer than lease back to
// queued. Attempts are not consumed.
func (q *Queue) RequeueStale(ctx context.Context, lease time.Duration) (int64, error) {
	cutoff := q.clock().Add(-lease)
	result := q.db.WithContext(ctx).Model(&model.SyncJob{}).
		Where("status = ? AND started_at < ?", model.SyncJobStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":     model.SyncJobStatusQueued,
			"started_at": nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Get retrieves a job by ID
func (q *Queue) Get(ctx context.Context, jobID int) (*model.SyncJob, error) {
	var job model.SyncJob
	if err := q.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListByRecord returns the most recent jobs of a record, newest first
func (q *Queue) ListByRecord(ctx context.Context, recordID, limit int) ([]model.SyncJob, error) {
	if limit <= 0 {
		limit = 20
	}
	var jobs []model.SyncJob
	err := q.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("id DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// LastJob returns the newest job of a record, or nil when it has none
func (q *Queue) LastJob(ctx context.Context, tx *gorm.DB, recordID int) (*model.SyncJob, error) {
	var job model.SyncJob
	err := q.conn(ctx, tx).Where("record_id = ?", recordID).Order("id DESC").First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}
