package domains

import (
	"errors"
	"strconv"

	"go_subdns/api/v1/middleware"
	"go_subdns/internal/domain"
	"go_subdns/internal/httpx"

	"github.com/gin-gonic/gin"
)

// ClaimRequest represents the request body for claiming a subdomain
type ClaimRequest struct {
	Subdomain  string `json:"subdomain" binding:"required"`
	RootDomain string `json:"rootDomain" binding:"required"`
}

// Handler handles domain API requests
type Handler struct {
	service *domain.Service
}

// NewHandler creates a new domain handler
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// Claim handles POST /api/v1/domains/create
func (h *Handler) Claim(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request: "+err.Error()))
		return
	}

	d, err := h.service.Claim(c.Request.Context(), middleware.UserID(c), req.Subdomain, req.RootDomain)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSubdomain), errors.Is(err, domain.ErrRootDomainUnsupported):
			httpx.FailErr(c, httpx.ErrParamIllegal(err.Error()))
		case errors.Is(err, domain.ErrDomainTaken):
			httpx.FailErr(c, httpx.ErrAlreadyExists(err.Error()))
		default:
			httpx.FailErr(c, httpx.ErrInternalError("failed to claim domain", err))
		}
		return
	}
	httpx.OK(c, d)
}

// List handles GET /api/v1/domains?page=&pageSize=
func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	res, err := h.service.List(c.Request.Context(), middleware.UserID(c), page, pageSize)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to list domains", err))
		return
	}
	httpx.OKItems(c, res.Items, res.Total, res.Page, res.PageSize)
}

// RootDomains handles GET /api/v1/domains/roots
func (h *Handler) RootDomains(c *gin.Context) {
	httpx.OK(c, gin.H{"items": h.service.RootDomains()})
}
