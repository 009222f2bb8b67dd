package main

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-backoffice-api/internal/handler"
	"github.com/noah-isme/agency-backoffice-api/internal/middleware"
	"github.com/noah-isme/agency-backoffice-api/internal/models"
	"github.com/noah-isme/agency-backoffice-api/internal/service"
)

type routeDeps struct {
	prefix string
	guard  *service.AccessGuard
	tokens middleware.TokenValidator
	audit  middleware.AuditWriter
	logger *zap.Logger

	auth         *handler.AuthHandler
	applications *handler.ApplicationHandler
	documents    *handler.DocumentHandler
	finance      *handler.FinanceHandler
	feeTemplates *handler.FeeTemplateHandler
	settings     *handler.SettingsHandler
	settlements  *handler.SettlementHandler
	dashboard    *handler.DashboardHandler
	reports      *handler.ReportHandler
	metrics      *handler.MetricsHandler
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	r.GET("/health", d.metrics.Health)
	r.GET("/ready", d.metrics.Ready)
	r.GET("/metrics", d.metrics.Prometheus)

	prefix := d.prefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)
	api.POST("/auth/login", d.auth.Login)
	if d.reports != nil {
		api.GET("/reports/download/:token",
			middleware.Audit(d.audit, d.logger, models.AuditActionReportDownload, "report", ""),
			d.reports.Download)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(d.tokens))
	secured.GET("/auth/me", d.auth.Me)

	can := func(caps ...service.Capability) gin.HandlerFunc {
		return middleware.RequireCapability(d.guard, caps...)
	}

	apps := secured.Group("/applications")
	apps.GET("", can(service.CapApplicationsRead), d.applications.List)
	apps.POST("", can(service.CapApplicationsWrite), d.applications.Create)
	apps.GET("/:id", can(service.CapApplicationsRead), d.applications.Get)
	apps.PATCH("/:id", can(service.CapApplicationsWrite), d.applications.Update)
	apps.GET("/:id/transitions", can(service.CapApplicationsRead), d.applications.Transitions)
	apps.POST("/:id/transitions", can(service.CapApplicationsTransition), d.applications.Transition)
	apps.GET("/:id/history", can(service.CapApplicationsRead), d.applications.History)

	apps.GET("/:id/checklist", can(service.CapDocumentsRead), d.documents.Checklist)
	apps.PATCH("/:id/checklist/:itemId", can(service.CapDocumentsWrite), d.documents.UpdateItem)
	apps.GET("/:id/stages/:stage/completion", can(service.CapDocumentsRead), d.documents.StageCompletion)

	apps.GET("/:id/payments", can(service.CapFinanceRead), d.finance.ListPayments)
	apps.POST("/:id/payments", can(service.CapFinanceWrite), d.finance.CreatePayment)
	apps.PUT("/:id/payments/:paymentId", can(service.CapFinanceWrite), d.finance.UpdatePayment)
	apps.DELETE("/:id/payments/:paymentId", can(service.CapFinanceWrite), d.finance.DeletePayment)
	apps.GET("/:id/costs", can(service.CapFinanceRead), d.finance.ListCosts)
	apps.POST("/:id/costs", can(service.CapFinanceWrite), d.finance.CreateCost)
	apps.PUT("/:id/costs/:costId", can(service.CapFinanceWrite), d.finance.UpdateCost)
	apps.DELETE("/:id/costs/:costId", can(service.CapFinanceWrite), d.finance.DeleteCost)

	apps.GET("/:id/settlement/preview", can(service.CapFinanceRead), d.settlements.Preview)
	apps.GET("/:id/settlement", can(service.CapFinanceRead), d.settlements.Get)
	apps.POST("/:id/settlement/override", can(service.CapSettlementOverride), d.settlements.Override)
	apps.POST("/:id/settlement/finalize", can(service.CapFinanceWrite), d.settlements.Finalize)
	apps.GET("/:id/settlement/statement",
		can(service.CapFinanceRead),
		middleware.Audit(d.audit, d.logger, models.AuditActionStatementDownload, "settlement", "id"),
		d.settlements.Statement)

	requirements := secured.Group("/document-requirements")
	requirements.GET("", can(service.CapDocumentsRead), d.documents.Requirements)
	requirements.POST("", can(service.CapSettingsWrite), d.documents.CreateRequirement)
	requirements.DELETE("/:id", can(service.CapSettingsWrite), d.documents.DeleteRequirement)

	templates := secured.Group("/fee-templates")
	templates.GET("", can(service.CapFinanceRead), d.feeTemplates.List)
	templates.GET("/:id", can(service.CapFinanceRead), d.feeTemplates.Get)
	templates.POST("", can(service.CapFinanceWrite), d.feeTemplates.Create)
	templates.PUT("/:id", can(service.CapFinanceWrite), d.feeTemplates.Update)

	settings := secured.Group("/settings")
	settings.GET("", can(service.CapSettingsRead), d.settings.Get)
	settings.PUT("/cancellation-policy", can(service.CapSettingsWrite), d.settings.UpdateCancellationPolicy)

	dashboard := secured.Group("/dashboard")
	dashboard.GET("/pipeline", can(service.CapApplicationsRead), d.dashboard.Pipeline)
	dashboard.GET("/finance", can(service.CapFinanceRead), d.dashboard.Finance)

	if d.reports != nil {
		reports := secured.Group("/reports")
		reports.POST("", can(service.CapReportsGenerate), d.reports.Generate)
		reports.GET("/:id", can(service.CapReportsGenerate), d.reports.Status)
	}
}
