package dns

import (
	"context"
	"errors"
	"testing"

	"go_subdns/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTooMany = errors.New("too many operations")

type stubLimiter struct {
	calls []int
	err   error
}

func (l *stubLimiter) CheckOperationsRateLimit(_ context.Context, userID int) error {
	l.calls = append(l.calls, userID)
	return l.err
}

func countJobs(t *testing.T, h *harness) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&model.SyncJob{}).Count(&n).Error)
	return n
}

func TestService_CreateRecordOutOfScope(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []RecordInput{
		{Type: "A", Name: "www.other.com.", Content: "1.2.3.4"},
		{Type: "A", Name: "example.com.", Content: "1.2.3.4"},
		{Type: "A", Name: "evilacme.example.com.", Content: "1.2.3.4"},
	}
	for _, in := range tests {
		_, err := h.svc.CreateRecord(ctx, testUserID, h.domain.ID, in)
		assert.ErrorIs(t, err, ErrOutOfScope, in.Name)
		assert.True(t, IsValidationError(err))
	}

	assert.Zero(t, countJobs(t, h))
	assert.Zero(t, h.waker.n.Load())
}

func TestService_CreateRecordValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.CreateRecord(context.Background(), testUserID, h.domain.ID, RecordInput{Type: "A", Name: "api", Content: "not-an-ip"})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Zero(t, countJobs(t, h))
}

func TestService_CreateRecordAtApex(t *testing.T) {
	h := newHarness(t)

	rec, err := h.svc.CreateRecord(context.Background(), testUserID, h.domain.ID, RecordInput{Type: "TXT", Name: "@", Content: "v=spf1 -all"})
	require.NoError(t, err)
	assert.Equal(t, "acme.example.com", rec.FQDN)
}

func TestService_CreateRecordConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	api := h.createA("api", "1.2.3.4")

	_, err := h.svc.CreateRecord(ctx, testUserID, h.domain.ID, RecordInput{Type: "A", Name: "API", Content: "1.2.3.5"})
	assert.ErrorIs(t, err, ErrRecordConflict)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, api.ID, conflict.RecordID)
	assert.False(t, conflict.CNAME)

	_, err = h.svc.CreateRecord(ctx, testUserID, h.domain.ID, RecordInput{Type: "CNAME", Name: "api", Content: "target.example.net"})
	assert.ErrorIs(t, err, ErrRecordConflict)
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, api.ID, conflict.RecordID)
	assert.True(t, conflict.CNAME)

	_, err = h.svc.CreateRecord(ctx, testUserID, h.domain.ID, RecordInput{Type: "TXT", Name: "api", Content: "hello"})
	assert.NoError(t, err)

	_, err = h.svc.CreateRecord(ctx, testUserID, h.domain.ID, RecordInput{Type: "CNAME", Name: "www", Content: "target.example.net"})
	require.NoError(t, err)
	_, err = h.svc.CreateRecord(ctx, testUserID, h.domain.ID, RecordInput{Type: "TXT", Name: "www", Content: "hello"})
	assert.ErrorIs(t, err, ErrRecordConflict)
}

func TestService_Ownership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const stranger = 2

	_, err := h.svc.CreateRecord(ctx, stranger, h.domain.ID, RecordInput{Type: "A", Name: "api", Content: "1.2.3.4"})
	assert.ErrorIs(t, err, ErrDomainNotFound)

	rec := h.createA("api", "1.2.3.4")

	_, err = h.svc.GetRecord(ctx, stranger, rec.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	_, err = h.svc.UpdateRecord(ctx, stranger, rec.ID, RecordInput{Type: "A", Name: "api", Content: "5.6.7.8"})
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.ErrorIs(t, h.svc.DeleteRecord(ctx, stranger, rec.ID), ErrRecordNotFound)
	_, err = h.svc.ListJobs(ctx, stranger, rec.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = h.svc.GetRecord(ctx, testUserID, 999)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestService_InactiveDomain(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.db.Model(&model.Domain{}).Where("id = ?", h.domain.ID).
		Update("status", model.DomainStatusInactive).Error)

	_, err := h.svc.CreateRecord(context.Background(), testUserID, h.domain.ID, RecordInput{Type: "A", Name: "api", Content: "1.2.3.4"})
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestService_RateLimited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	limiter := &stubLimiter{}
	h.svc.limiter = limiter

	rec := h.createA("api", "1.2.3.4")
	assert.Equal(t, []int{testUserID}, limiter.calls)

	limiter.err = errTooMany
	_, err := h.svc.CreateRecord(ctx, testUserID, h.domain.ID, RecordInput{Type: "A", Name: "www", Content: "1.2.3.4"})
	assert.ErrorIs(t, err, errTooMany)
	_, err = h.svc.UpdateRecord(ctx, testUserID, rec.ID, RecordInput{Type: "A", Name: "api", Content: "5.6.7.8"})
	assert.ErrorIs(t, err, errTooMany)
	assert.ErrorIs(t, h.svc.DeleteRecord(ctx, testUserID, rec.ID), errTooMany)
	_, err = h.svc.RetryRecord(ctx, testUserID, rec.ID)
	assert.ErrorIs(t, err, errTooMany)

	assert.Equal(t, int64(1), countJobs(t, h))
	assert.Equal(t, "1.2.3.4", h.record(rec.ID).Content)
}

func TestService_UpdateDeletingRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec := h.createA("api", "1.2.3.4")
	require.NoError(t, h.svc.DeleteRecord(ctx, testUserID, rec.ID))

	_, err := h.svc.UpdateRecord(ctx, testUserID, rec.ID, RecordInput{Type: "A", Name: "api", Content: "5.6.7.8"})
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestService_UpdateRenameConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.createA("api", "1.2.3.4")
	www := h.createA("www", "1.2.3.4")

	_, err := h.svc.UpdateRecord(ctx, testUserID, www.ID, RecordInput{Type: "A", Name: "api", Content: "1.2.3.4"})
	assert.ErrorIs(t, err, ErrRecordConflict)

	// renaming onto itself is fine
	_, err = h.svc.UpdateRecord(ctx, testUserID, www.ID, RecordInput{Type: "A", Name: "www", Content: "1.2.3.9"})
	assert.NoError(t, err)
}

func TestService_RetryRequiresError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec := h.createA("api", "1.2.3.4")
	_, err := h.svc.RetryRecord(ctx, testUserID, rec.ID)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestService_RetryFailedUpsert(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec := h.createA("api", "1.2.3.4")
	require.NoError(t, h.db.Model(&model.DNSRecord{}).Where("id = ?", rec.ID).
		Updates(map[string]interface{}{"status": model.DNSRecordStatusError, "last_error": "boom"}).Error)
	require.NoError(t, h.db.Model(&model.SyncJob{}).Where("record_id = ?", rec.ID).
		Update("status", model.SyncJobStatusFailed).Error)

	job, err := h.svc.RetryRecord(ctx, testUserID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncJobTypeUpsert, job.JobType)
	assert.Equal(t, model.SyncJobStatusQueued, job.Status)

	got := h.record(rec.ID)
	assert.Equal(t, model.DNSRecordStatusPending, got.Status)
	assert.Equal(t, "boom", got.LastError)

	h.drain()
	got = h.record(rec.ID)
	assert.Equal(t, model.DNSRecordStatusActive, got.Status)
	assert.Empty(t, got.LastError)
}

func TestService_ListRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	other := h.createDomain(testUserID, "beta", "example.com")
	h.createA("a", "1.2.3.4")
	h.createA("b", "1.2.3.4")
	_, err := h.svc.CreateRecord(ctx, testUserID, other.ID, RecordInput{Type: "A", Name: "c", Content: "1.2.3.4"})
	require.NoError(t, err)

	records, total, err := h.svc.ListRecords(ctx, testUserID, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, records, 3)
	assert.Equal(t, "c.beta.example.com", records[0].FQDN)

	records, total, err = h.svc.ListRecords(ctx, testUserID, ListFilter{DomainID: h.domain.ID, PageSize: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, records, 1)
	assert.Equal(t, "a.acme.example.com", records[0].FQDN)

	h.drain()
	records, _, err = h.svc.ListRecords(ctx, testUserID, ListFilter{Status: model.DNSRecordStatusPending})
	require.NoError(t, err)
	assert.Empty(t, records)

	records, total, err = h.svc.ListRecords(ctx, 2, ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, records)
}

func TestService_GetJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec := h.createA("api", "1.2.3.4")
	jobs := h.jobs(rec.ID)
	require.Len(t, jobs, 1)

	job, err := h.svc.GetJob(ctx, testUserID, jobs[0].ID)
	require.NoError(t, err)
	assert.False(t, job.Status.Terminal())

	_, err = h.svc.GetJob(ctx, 2, jobs[0].ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = h.svc.GetJob(ctx, testUserID, 999)
	assert.ErrorIs(t, err, ErrJobNotFound)

	h.drain()

	// the job stays readable after a successful delete removed its record
	require.NoError(t, h.svc.DeleteRecord(ctx, testUserID, rec.ID))
	h.drain()
	var n int64
	require.NoError(t, h.db.Model(&model.DNSRecord{}).Where("id = ?", rec.ID).Count(&n).Error)
	require.Zero(t, n)

	job, err = h.svc.GetJob(ctx, testUserID, jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncJobStatusSuccess, job.Status)
	assert.True(t, job.Status.Terminal())
}
