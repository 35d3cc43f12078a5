package api

import (
	"github.com/JustJay7/legal-costs-drafter/internal/billing"
	"github.com/JustJay7/legal-costs-drafter/internal/cache"
	"github.com/JustJay7/legal-costs-drafter/internal/config"
	"github.com/JustJay7/legal-costs-drafter/pkg/logger"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes configures all application routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, cache cache.Cache, service *billing.Service, logger *logger.Logger, cfg *config.Config) {
	h := NewHandlers(db, cache, service, logger, cfg)

	api := router.Group("/api")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/cache/stats", h.CacheStats)

		api.POST("/rates", h.AddRates)

		api.GET("/cases", h.ListCases)
		api.POST("/cases", h.CreateCase)

		cases := api.Group("/cases/:ref")
		{
			cases.GET("", h.GetCase)
			cases.POST("/fee-earners", h.AddFeeEarner)
			cases.POST("/documents", h.AddDocument)

			cases.POST("/work-items", h.AddWorkItem)
			cases.DELETE("/work-items/:id", h.DeleteWorkItem)
			cases.PATCH("/work-items/:id/dispute", h.DisputeWorkItem)
			cases.PATCH("/work-items/:id/reply", h.ReplyWorkItem)

			cases.POST("/disbursements", h.AddDisbursement)
			cases.PATCH("/disbursements/:id/dispute", h.DisputeDisbursement)
			cases.PATCH("/disbursements/:id/reply", h.ReplyDisbursement)

			// Bill generation
			cases.GET("/bill", h.GetBill)
			cases.GET("/bill/render", h.RenderBill)
			cases.GET("/bill/pdf", h.BillPDF)
			cases.POST("/bill/save", h.SaveBill)
		}
	}
}
