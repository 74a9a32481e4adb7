package dns

import (
	"context"
	"errors"
	"fmt"

	"go_subdns/internal/model"

	"gorm.io/gorm"
)

const lastErrorMaxLen = 255

// RecordStore persists DNS records and the sync-driven status transitions.
// Status flips are conditional on the revision the job ran against, so a
// job that lost a race with a newer mutation never overwrites it.
type RecordStore struct {
	db *gorm.DB
}

// NewRecordStore creates a new record store
func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{db: db}
}

func (s *RecordStore) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// Get retrieves a record by ID
func (s *RecordStore) Get(ctx context.Context, tx *gorm.DB, recordID int) (*model.DNSRecord, error) {
	var record model.DNSRecord
	if err := s.conn(ctx, tx).First(&record, recordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to load record %d: %w", recordID, err)
	}
	return &record, nil
}

// GetDomain retrieves a domain by ID
func (s *RecordStore) GetDomain(ctx context.Context, tx *gorm.DB, domainID int) (*model.Domain, error) {
	var domain model.Domain
	if err := s.conn(ctx, tx).First(&domain, domainID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDomainNotFound
		}
		return nil, fmt.Errorf("failed to load domain %d: %w", domainID, err)
	}
	return &domain, nil
}

// SaveProviderID remembers the provider id regardless of the record status,
// so a delete that overtook an in-flight upsert can still remove the provider record
func (s *RecordStore) SaveProviderID(ctx context.Context, tx *gorm.DB, recordID int, providerRecordID string) error {
	if providerRecordID == "" {
		return nil
	}
	return s.conn(ctx, tx).Model(&model.DNSRecord{}).
		Where("id = ?", recordID).
		Update("provider_record_id", providerRecordID).Error
}

// MarkAsActive marks a pending record as active (successfully synced).
// Returns false when the record moved on since revision.
func (s *RecordStore) MarkAsActive(ctx context.Context, tx *gorm.DB, recordID, revision int, jobKey string) (bool, error) {
	updates := map[string]interface{}{
		"status":          model.DNSRecordStatusActive,
		"last_error":      "",
		"applied_job_key": jobKey,
	}

	result := s.conn(ctx, tx).Model(&model.DNSRecord{}).
		Where("id = ? AND status = ? AND revision = ?", recordID, model.DNSRecordStatusPending, revision).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkAsError marks a record as error (sync failed terminally).
// from is the status the failed job expected (pending for upserts, deleting for deletes).
func (s *RecordStore) MarkAsError(ctx context.Context, tx *gorm.DB, recordID, revision int, from model.DNSRecordStatus, errorMsg string) (bool, error) {
	updates := map[string]interface{}{
		"status":     model.DNSRecordStatusError,
		"last_error": model.Truncate(errorMsg, lastErrorMaxLen),
	}

	result := s.conn(ctx, tx).Model(&model.DNSRecord{}).
		Where("id = ? AND status = ? AND revision = ?", recordID, from, revision).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeleteRecord hard deletes a DNS record from the database
func (s *RecordStore) DeleteRecord(ctx context.Context, tx *gorm.DB, recordID int) error {
	return s.conn(ctx, tx).Delete(&model.DNSRecord{}, recordID).Error
}
