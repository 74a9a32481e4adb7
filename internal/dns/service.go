package dns

import (
	"context"
	"errors"
	"fmt"

	"go_subdns/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RateLimiter is the per-user mutation pre-check
type RateLimiter interface {
	CheckOperationsRateLimit(ctx context.Context, userID int) error
}

// Waker is told when new work was enqueued
type Waker interface {
	Wake()
}

// ServiceConfig holds dependencies for Service
type ServiceConfig struct {
	DB      *gorm.DB
	Records *RecordStore
	Queue   *Queue
	Limiter RateLimiter
	Logger  *logrus.Entry
}

// Service provides DNS record management operations. Every mutation writes
// the record and enqueues its sync job in one transaction.
type Service struct {
	db      *gorm.DB
	records *RecordStore
	queue   *Queue
	limiter RateLimiter
	waker   Waker
	logger  *logrus.Entry
}

// NewService creates a new DNS service
func NewService(cfg *ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		db:      cfg.DB,
		records: cfg.Records,
		queue:   cfg.Queue,
		limiter: cfg.Limiter,
		logger:  logger.WithField("component", "dns-service"),
	}
}

// SetWaker registers the dispatcher to wake after enqueueing
func (s *Service) SetWaker(w Waker) {
	s.waker = w
}

func (s *Service) wake() {
	if s.waker != nil {
		s.waker.Wake()
	}
}

func (s *Service) checkRateLimit(ctx context.Context, userID int) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.CheckOperationsRateLimit(ctx, userID)
}

// ListFilter narrows ListRecords
type ListFilter struct {
	DomainID int
	Status   model.DNSRecordStatus
	Page     int
	PageSize int
}

// CreateRecord validates in, stores a pending record and enqueues its upsert
func (s *Service) CreateRecord(ctx context.Context, userID, domainID int, in RecordInput) (*model.DNSRecord, error) {
	if err := s.checkRateLimit(ctx, userID); err != nil {
		return nil, err
	}

	domain, err := s.userDomain(ctx, userID, domainID)
	if err != nil {
		return nil, err
	}
	norm, err := validateRecord(in, domain.Apex)
	if err != nil {
		return nil, err
	}

	record := &model.DNSRecord{
		DomainID: domain.ID,
		UserID:   userID,
		Type:     norm.Type,
		Name:     norm.Name,
		FQDN:     norm.FQDN,
		Content:  norm.Content,
		Priority: norm.Priority,
		TTL:      norm.TTL,
		Status:   model.DNSRecordStatusPending,
		Revision: 1,
	}

	var job *model.SyncJob
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkConflicts(tx, norm, 0); err != nil {
			return err
		}
		if err := tx.Create(record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &ConflictError{Type: norm.Type, FQDN: norm.FQDN}
			}
			return fmt.Errorf("failed to create record: %w", err)
		}
		job, _, err = s.queue.EnqueueUpsert(ctx, tx, record.DomainID, record.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"record_id": record.ID,
		"job_id":    job.ID,
		"fqdn":      record.FQDN,
		"type":      record.Type,
	}).Info("DNS record created")
	s.wake()
	return record, nil
}

// UpdateRecord replaces the desired state of a record and enqueues an upsert
func (s *Service) UpdateRecord(ctx context.Context, userID, recordID int, in RecordInput) (*model.DNSRecord, error) {
	if err := s.checkRateLimit(ctx, userID); err != nil {
		return nil, err
	}

	record, err := s.GetRecord(ctx, userID, recordID)
	if err != nil {
		return nil, err
	}
	if record.Status == model.DNSRecordStatusDeleting {
		return nil, fmt.Errorf("%w: record %d is being deleted", ErrStateConflict, record.ID)
	}

	domain, err := s.records.GetDomain(ctx, nil, record.DomainID)
	if err != nil {
		return nil, err
	}
	norm, err := validateRecord(in, domain.Apex)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkConflicts(tx, norm, record.ID); err != nil {
			return err
		}

		result := tx.Model(&model.DNSRecord{}).
			Where("id = ? AND revision = ? AND status <> ?", record.ID, record.Revision, model.DNSRecordStatusDeleting).
			Updates(map[string]interface{}{
				"type":       norm.Type,
				"name":       norm.Name,
				"fqdn":       norm.FQDN,
				"content":    norm.Content,
				"priority":   norm.Priority,
				"ttl":        norm.TTL,
				"status":     model.DNSRecordStatusPending,
				"last_error": "",
				"revision":   gorm.Expr("revision + 1"),
			})
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return &ConflictError{Type: norm.Type, FQDN: norm.FQDN}
			}
			return fmt.Errorf("failed to update record: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: record %d was modified concurrently", ErrStateConflict, record.ID)
		}

		_, _, err := s.queue.EnqueueUpsert(ctx, tx, record.DomainID, record.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"record_id": record.ID,
		"fqdn":      norm.FQDN,
		"type":      norm.Type,
	}).Info("DNS record updated")
	s.wake()
	return s.records.Get(ctx, nil, record.ID)
}

// DeleteRecord marks a record deleting and enqueues its removal.
// Deleting a record that is already being deleted is a no-op.
func (s *Service) DeleteRecord(ctx context.Context, userID, recordID int) error {
	if err := s.checkRateLimit(ctx, userID); err != nil {
		return err
	}

	record, err := s.GetRecord(ctx, userID, recordID)
	if err != nil {
		return err
	}
	if record.Status == model.DNSRecordStatusDeleting {
		return nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, record, model.DNSRecordStatusDeleting); err != nil {
			return err
		}
		_, err := s.queue.EnqueueDelete(ctx, tx, record.DomainID, record.ID)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"record_id": record.ID,
		"fqdn":      record.FQDN,
	}).Info("DNS record deletion requested")
	s.wake()
	return nil
}

// RetryRecord re-enqueues the failed operation of a record in error.
// A record whose last job was a delete goes back to deleting, otherwise to pending.
func (s *Service) RetryRecord(ctx context.Context, userID, recordID int) (*model.SyncJob, error) {
	if err := s.checkRateLimit(ctx, userID); err != nil {
		return nil, err
	}

	record, err := s.GetRecord(ctx, userID, recordID)
	if err != nil {
		return nil, err
	}
	if record.Status != model.DNSRecordStatusError {
		return nil, fmt.Errorf("%w: only records in error can be retried, record %d is %s", ErrStateConflict, record.ID, record.Status)
	}

	var job *model.SyncJob
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		last, err := s.queue.LastJob(ctx, tx, record.ID)
		if err != nil {
			return err
		}

		// Keep last_error for audit until the retry succeeds
		if last != nil && last.JobType == model.SyncJobTypeDelete {
			if err := s.transition(tx, record, model.DNSRecordStatusDeleting); err != nil {
				return err
			}
			job, err = s.queue.EnqueueDelete(ctx, tx, record.DomainID, record.ID)
			return err
		}

		if err := s.transition(tx, record, model.DNSRecordStatusPending); err != nil {
			return err
		}
		job, _, err = s.queue.EnqueueUpsert(ctx, tx, record.DomainID, record.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"record_id": record.ID,
		"job_id":    job.ID,
		"job_type":  job.JobType,
	}).Info("DNS record retry requested")
	s.wake()
	return job, nil
}

// transition moves record to status and bumps its revision, failing when
// the record changed since it was read
func (s *Service) transition(tx *gorm.DB, record *model.DNSRecord, status model.DNSRecordStatus) error {
	result := tx.Model(&model.DNSRecord{}).
		Where("id = ? AND revision = ? AND status = ?", record.ID, record.Revision, record.Status).
		Updates(map[string]interface{}{
			"status":   status,
			"revision": gorm.Expr("revision + 1"),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to move record %d to %s: %w", record.ID, status, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: record %d was modified concurrently", ErrStateConflict, record.ID)
	}
	return nil
}

// GetRecord retrieves a record owned by userID
func (s *Service) GetRecord(ctx context.Context, userID, recordID int) (*model.DNSRecord, error) {
	record, err := s.records.Get(ctx, nil, recordID)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

// ListRecords lists the user's records, newest first
func (s *Service) ListRecords(ctx context.Context, userID int, filter ListFilter) ([]model.DNSRecord, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&model.DNSRecord{}).Where("user_id = ?", userID)
	if filter.DomainID > 0 {
		query = query.Where("domain_id = ?", filter.DomainID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	var records []model.DNSRecord
	err := query.Order("id DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	return records, total, nil
}

// ListJobs lists the sync jobs of a record owned by userID
func (s *Service) ListJobs(ctx context.Context, userID, recordID int) ([]model.SyncJob, error) {
	if _, err := s.GetRecord(ctx, userID, recordID); err != nil {
		return nil, err
	}
	return s.queue.ListByRecord(ctx, recordID, 50)
}

// GetJob returns a sync job whose domain belongs to userID. Jobs outlive
// their record once a delete succeeds, so ownership is checked on the domain.
func (s *Service) GetJob(ctx context.Context, userID, jobID int) (*model.SyncJob, error) {
	job, err := s.queue.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	domain, err := s.records.GetDomain(ctx, nil, job.DomainID)
	if errors.Is(err, ErrDomainNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	if domain.UserID != userID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (s *Service) userDomain(ctx context.Context, userID, domainID int) (*model.Domain, error) {
	domain, err := s.records.GetDomain(ctx, nil, domainID)
	if err != nil {
		return nil, err
	}
	if domain.UserID != userID {
		return nil, ErrDomainNotFound
	}
	if domain.Status != model.DomainStatusActive {
		return nil, fmt.Errorf("%w: domain %s is %s", ErrStateConflict, domain.Apex, domain.Status)
	}
	return domain, nil
}

// checkConflicts enforces one record per (fqdn, type) and CNAME exclusivity
func checkConflicts(tx *gorm.DB, norm *normalizedRecord, excludeID int) error {
	var others []model.DNSRecord
	if err := tx.Where("fqdn = ? AND id <> ?", norm.FQDN, excludeID).Find(&others).Error; err != nil {
		return fmt.Errorf("failed to check existing records: %w", err)
	}

	for _, other := range others {
		if other.Type == norm.Type {
			return &ConflictError{RecordID: other.ID, Type: norm.Type, FQDN: norm.FQDN}
		}
		if other.Type == model.DNSRecordTypeCNAME || norm.Type == model.DNSRecordTypeCNAME {
			return &ConflictError{RecordID: other.ID, Type: norm.Type, FQDN: norm.FQDN, CNAME: true}
		}
	}
	return nil
}
