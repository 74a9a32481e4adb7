package dns

import (
	"errors"
	"strconv"

	"go_subdns/api/v1/middleware"
	"go_subdns/internal/dns"
	"go_subdns/internal/httpx"
	"go_subdns/internal/model"
	"go_subdns/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

// Handler handles DNS record API requests
type Handler struct {
	service *dns.Service
}

// NewHandler creates a new DNS handler
func NewHandler(service *dns.Service) *Handler {
	return &Handler{service: service}
}

// RecordBody is the desired state of a record
type RecordBody struct {
	Type     model.DNSRecordType `json:"type" binding:"required"`
	Name     string              `json:"name" binding:"required"`
	Content  string              `json:"content" binding:"required"`
	Priority *int                `json:"priority"`
	TTL      *int                `json:"ttl"`
}

func (b RecordBody) input() dns.RecordInput {
	return dns.RecordInput{
		Type:     b.Type,
		Name:     b.Name,
		Content:  b.Content,
		Priority: b.Priority,
		TTL:      b.TTL,
	}
}

// CreateRecordRequest represents the request body for creating a DNS record
type CreateRecordRequest struct {
	DomainID int `json:"domainId" binding:"required,min=1"`
	RecordBody
}

// UpdateRecordRequest represents the request body for updating a DNS record
type UpdateRecordRequest struct {
	ID int `json:"id" binding:"required,min=1"`
	RecordBody
}

// IDRequest addresses one record
type IDRequest struct {
	ID int `json:"id" binding:"required,min=1"`
}

// CreateRecord creates a record and queues its sync
// POST /api/v1/dns/records/create
func (h *Handler) CreateRecord(c *gin.Context) {
	var req CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request: "+err.Error()))
		return
	}

	record, err := h.service.CreateRecord(c.Request.Context(), middleware.UserID(c), req.DomainID, req.input())
	if err != nil {
		httpx.FailErr(c, toAppError(err))
		return
	}
	httpx.OK(c, record)
}

// UpdateRecord replaces a record's desired state
// POST /api/v1/dns/records/update
func (h *Handler) UpdateRecord(c *gin.Context) {
	var req UpdateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request: "+err.Error()))
		return
	}

	record, err := h.service.UpdateRecord(c.Request.Context(), middleware.UserID(c), req.ID, req.input())
	if err != nil {
		httpx.FailErr(c, toAppError(err))
		return
	}
	httpx.OK(c, record)
}

// DeleteRecord requests deletion of a record
// POST /api/v1/dns/records/delete
func (h *Handler) DeleteRecord(c *gin.Context) {
	var req IDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request: "+err.Error()))
		return
	}

	if err := h.service.DeleteRecord(c.Request.Context(), middleware.UserID(c), req.ID); err != nil {
		httpx.FailErr(c, toAppError(err))
		return
	}
	httpx.OKMsg(c, "deletion queued", gin.H{"id": req.ID})
}

// RetryRecord re-queues the failed operation of a record in error
// POST /api/v1/dns/records/retry
func (h *Handler) RetryRecord(c *gin.Context) {
	var req IDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request: "+err.Error()))
		return
	}

	job, err := h.service.RetryRecord(c.Request.Context(), middleware.UserID(c), req.ID)
	if err != nil {
		httpx.FailErr(c, toAppError(err))
		return
	}
	httpx.OK(c, job)
}

// GetRecord returns one record
// GET /api/v1/dns/records/:id
func (h *Handler) GetRecord(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid record id"))
		return
	}

	record, err := h.service.GetRecord(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		httpx.FailErr(c, toAppError(err))
		return
	}
	httpx.OK(c, record)
}

// ListRecords lists the caller's records
// GET /api/v1/dns/records?domainId=&status=&page=&pageSize=
func (h *Handler) ListRecords(c *gin.Context) {
	filter := dns.ListFilter{
		DomainID: queryInt(c, "domainId"),
		Status:   model.DNSRecordStatus(c.Query("status")),
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "pageSize"),
	}

	records, total, err := h.service.ListRecords(c.Request.Context(), middleware.UserID(c), filter)
	if err != nil {
		httpx.FailErr(c, toAppError(err))
		return
	}

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	httpx.OKItems(c, records, total, page, pageSize)
}

// ListJobs lists the sync jobs of a record
// GET /api/v1/dns/jobs?recordId=
func (h *Handler) ListJobs(c *gin.Context) {
	recordID := queryInt(c, "recordId")
	if recordID < 1 {
		httpx.FailErr(c, httpx.ErrParamMissing("recordId is required"))
		return
	}

	jobs, err := h.service.ListJobs(c.Request.Context(), middleware.UserID(c), recordID)
	if err != nil {
		httpx.FailErr(c, toAppError(err))
		return
	}
	httpx.OK(c, gin.H{"items": jobs})
}

// jobView adds whether the job has settled to the stored row
type jobView struct {
	model.SyncJob
	Done bool `json:"done"`
}

// GetJob returns one sync job, e.g. to poll the job returned by a retry
// GET /api/v1/dns/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid job id"))
		return
	}

	job, err := h.service.GetJob(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		httpx.FailErr(c, toAppError(err))
		return
	}
	httpx.OK(c, jobView{SyncJob: *job, Done: job.Status.Terminal()})
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}

// toAppError maps service errors onto the API error codes
func toAppError(err error) *httpx.AppError {
	var exceeded *ratelimit.ExceededError
	switch {
	case errors.As(err, &exceeded):
		return httpx.ErrRateLimited("", exceeded.RetryAfter)
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		return httpx.ErrRateLimited("", 0)
	case dns.IsValidationError(err):
		return httpx.ErrParamIllegal(err.Error())
	case errors.Is(err, dns.ErrRecordNotFound):
		return httpx.ErrNotFound("dns record not found")
	case errors.Is(err, dns.ErrDomainNotFound):
		return httpx.ErrNotFound("domain not found")
	case errors.Is(err, dns.ErrJobNotFound):
		return httpx.ErrNotFound("sync job not found")
	case errors.Is(err, dns.ErrRecordConflict):
		appErr := httpx.ErrAlreadyExists(err.Error())
		var conflict *dns.ConflictError
		if errors.As(err, &conflict) && conflict.RecordID > 0 {
			appErr.WithData(gin.H{"conflictingRecordId": conflict.RecordID})
		}
		return appErr
	case errors.Is(err, dns.ErrStateConflict):
		return httpx.ErrStateConflict(err.Error())
	default:
		return httpx.ErrInternalError("", err)
	}
}
