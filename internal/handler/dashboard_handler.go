package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/glycopilot/glycopilot-api/internal/middleware"
	"github.com/glycopilot/glycopilot-api/internal/service"
)

// DashboardHandler serves the patient's own summary and forecasts
type DashboardHandler struct {
	summary     *service.SummaryService
	predictions *service.PredictionService
}

func NewDashboardHandler(summary *service.SummaryService, predictions *service.PredictionService) *DashboardHandler {
	return &DashboardHandler{summary: summary, predictions: predictions}
}

// Summary godoc
// @Summary Patient self-summary
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Param include[] query []string false "Sections: glucose, alerts, medication, nutrition, activity" collectionFormat(multi)
// @Success 200 {object} model.Summary
// @Failure 400 {object} model.ErrorResponse
// @Router /dashboard/summary [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	include, err := service.ParseSections(includeQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	summary, err := h.summary.Summary(c.Request.Context(), middleware.CurrentPrincipal(c).AccountID, include)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// LatestPrediction godoc
// @Summary Latest glucose forecast
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Success 200 {object} model.GlucosePrediction
// @Failure 404 {object} model.ErrorResponse
// @Router /glycemia/predictions/latest [get]
func (h *DashboardHandler) LatestPrediction(c *gin.Context) {
	p, err := h.predictions.Latest(c.Request.Context(), middleware.CurrentPrincipal(c).AccountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
