package handler

import (
	"github.com/gin-gonic/gin"
	reportapp "github.com/shopfront/backend/internal/application/report"
)

// ReportHandler serves the admin revenue dashboard
type ReportHandler struct {
	BaseHandler
	dashboardService *reportapp.DashboardService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(dashboardService *reportapp.DashboardService) *ReportHandler {
	return &ReportHandler{
		dashboardService: dashboardService,
	}
}

// Dashboard handles GET /reports/dashboard?from=&to=&granularity=&refresh=
func (h *ReportHandler) Dashboard(c *gin.Context) {
	var req reportapp.DashboardRequest
	if !h.BindQuery(c, &req) {
		return
	}

	dashboard, err := h.dashboardService.Dashboard(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dashboard)
}
