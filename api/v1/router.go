package v1

import (
	"go_subdns/api/v1/dns"
	"go_subdns/api/v1/domains"
	"go_subdns/api/v1/middleware"
	"go_subdns/internal/auth"
	dnssvc "go_subdns/internal/dns"
	"go_subdns/internal/domain"
	"go_subdns/internal/httpx"

	"github.com/gin-gonic/gin"
)

// Deps are the services the API is served from
type Deps struct {
	JWT     *auth.JWT
	Domains *domain.Service
	DNS     *dnssvc.Service
}

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, deps Deps) {
	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired(deps.JWT))
		{
			protected.GET("/me", meHandler)

			domainsHandler := domains.NewHandler(deps.Domains)
			domainsGroup := protected.Group("/domains")
			{
				domainsGroup.GET("", domainsHandler.List)
				domainsGroup.GET("/roots", domainsHandler.RootDomains)
				domainsGroup.POST("/create", domainsHandler.Claim)
			}

			dnsHandler := dns.NewHandler(deps.DNS)
			dnsGroup := protected.Group("/dns")
			{
				dnsGroup.GET("/records", dnsHandler.ListRecords)
				dnsGroup.GET("/records/:id", dnsHandler.GetRecord)
				dnsGroup.POST("/records/create", dnsHandler.CreateRecord)
				dnsGroup.POST("/records/update", dnsHandler.UpdateRecord)
				dnsGroup.POST("/records/delete", dnsHandler.DeleteRecord)
				dnsGroup.POST("/records/retry", dnsHandler.RetryRecord)
				dnsGroup.GET("/jobs", dnsHandler.ListJobs)
				dnsGroup.GET("/jobs/:id", dnsHandler.GetJob)
			}
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current user information
func meHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"uid":  middleware.UserID(c),
		"role": c.GetString(middleware.ContextRole),
	})
}
