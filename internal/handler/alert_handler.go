package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/glycopilot/glycopilot-api/internal/middleware"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/service"
)

// AlertHandler serves the caller's alert events and rule subscriptions
type AlertHandler struct {
	alerts *service.AlertService
}

func NewAlertHandler(alerts *service.AlertService) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// History godoc
// @Summary List alert events, newest first
// @Tags Alerts
// @Security BearerAuth
// @Produce json
// @Param status query string false "Filter by status" Enums(TRIGGERED, SENT, FAILED, TREATING, ACKED)
// @Success 200 {array} model.AlertEvent
// @Failure 400 {object} model.ErrorResponse
// @Router /alerts/history/ [get]
func (h *AlertHandler) History(c *gin.Context) {
	events, err := h.alerts.History(c.Request.Context(), middleware.CurrentPrincipal(c), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// Ack godoc
// @Summary Acknowledge an alert event
// @Description Idempotent: acknowledging twice returns the same acked_at.
// @Tags Alerts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body model.AlertEventRequest true "Event"
// @Success 200 {object} model.AlertEvent
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /alerts/history/ack/ [post]
func (h *AlertHandler) Ack(c *gin.Context) {
	var req model.AlertEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	ev, err := h.alerts.Ack(c.Request.Context(), middleware.CurrentPrincipal(c), req.EventID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// Treat godoc
// @Summary Mark an alert event as being treated
// @Tags Alerts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body model.AlertEventRequest true "Event"
// @Success 200 {object} model.AlertEvent
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /alerts/history/treat/ [post]
func (h *AlertHandler) Treat(c *gin.Context) {
	var req model.AlertEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	ev, err := h.alerts.Treat(c.Request.Context(), middleware.CurrentPrincipal(c), req.EventID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// Rules godoc
// @Summary List alert rule subscriptions
// @Tags Alerts
// @Security BearerAuth
// @Produce json
// @Success 200 {array} model.UserAlertRuleResponse
// @Router /alerts/rules/ [get]
func (h *AlertHandler) Rules(c *gin.Context) {
	rules, err := h.alerts.Rules(c.Request.Context(), middleware.CurrentPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// UpdateRule godoc
// @Summary Update an alert rule subscription
// @Tags Alerts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param code path string true "Rule code"
// @Param body body model.UpdateUserAlertRuleRequest true "Changes"
// @Success 200 {object} model.UserAlertRuleResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /alerts/rules/{code}/ [patch]
func (h *AlertHandler) UpdateRule(c *gin.Context) {
	var req model.UpdateUserAlertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	rule, err := h.alerts.UpdateRule(c.Request.Context(), middleware.CurrentPrincipal(c), c.Param("code"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}
