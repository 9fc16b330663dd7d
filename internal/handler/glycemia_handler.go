package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/glycopilot/glycopilot-api/internal/middleware"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/service"
)

// GlycemiaHandler serves the caller's own readings
type GlycemiaHandler struct {
	readings *service.ReadingService
}

func NewGlycemiaHandler(readings *service.ReadingService) *GlycemiaHandler {
	return &GlycemiaHandler{readings: readings}
}

// CreateManualReading godoc
// @Summary Insert a manual glucose reading
// @Tags Glycemia
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body model.ManualReadingRequest true "Reading"
// @Success 201 {object} model.ReadingHistory
// @Failure 400 {object} model.ErrorResponse
// @Router /glycemia/manual-readings/ [post]
func (h *GlycemiaHandler) CreateManualReading(c *gin.Context) {
	var req model.ManualReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	m := model.Measurement{
		Value:    *req.Value,
		Unit:     req.Unit,
		Trend:    req.Trend,
		Rate:     req.Rate,
		Source:   model.SourceManual,
		DeviceID: req.DeviceID,
		Context:  req.Context,
		Notes:    req.Notes,
		PhotoURL: req.PhotoURL,
		Location: req.Location,
	}
	if req.MeasuredAt != nil {
		m.MeasuredAt = *req.MeasuredAt
	}

	reading, err := h.readings.Insert(c.Request.Context(), middleware.CurrentPrincipal(c), m)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reading)
}

// CreateCGMReading godoc
// @Summary Insert a reading pushed by a registered sensor
// @Tags Glycemia
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body model.CGMReadingRequest true "Reading"
// @Success 201 {object} model.ReadingHistory
// @Failure 400 {object} model.ErrorResponse
// @Router /glycemia/cgm-readings/ [post]
func (h *GlycemiaHandler) CreateCGMReading(c *gin.Context) {
	var req model.CGMReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	m := model.Measurement{
		Value:    *req.Value,
		Unit:     req.Unit,
		Trend:    req.Trend,
		Rate:     req.Rate,
		DeviceID: &req.DeviceID,
	}
	if req.MeasuredAt != nil {
		m.MeasuredAt = *req.MeasuredAt
	}

	reading, err := h.readings.InsertCGM(c.Request.Context(), middleware.CurrentPrincipal(c), m)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reading)
}

// RegisterDevice godoc
// @Summary Register a reading source
// @Tags Glycemia
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body model.RegisterDeviceRequest true "Device"
// @Success 201 {object} model.Device
// @Failure 400 {object} model.ErrorResponse
// @Router /glycemia/devices/ [post]
func (h *GlycemiaHandler) RegisterDevice(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	device, err := h.readings.RegisterDevice(c.Request.Context(), middleware.CurrentPrincipal(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, device)
}

// Devices godoc
// @Summary List the caller's reading sources
// @Tags Glycemia
// @Security BearerAuth
// @Produce json
// @Success 200 {array} model.Device
// @Router /glycemia/devices/ [get]
func (h *GlycemiaHandler) Devices(c *gin.Context) {
	devices, err := h.readings.Devices(c.Request.Context(), middleware.CurrentPrincipal(c).AccountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

// Current godoc
// @Summary Latest reading
// @Tags Glycemia
// @Security BearerAuth
// @Produce json
// @Success 200 {object} model.ReadingCache
// @Failure 404 {object} model.ErrorResponse
// @Router /glycemia/current/ [get]
func (h *GlycemiaHandler) Current(c *gin.Context) {
	reading, err := h.readings.Latest(c.Request.Context(), middleware.CurrentPrincipal(c).AccountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reading)
}

// Range godoc
// @Summary Readings of the last N days with statistics
// @Tags Glycemia
// @Security BearerAuth
// @Produce json
// @Param days query int false "Days, 1 to 30" default(7)
// @Success 200 {object} model.RangeResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /glycemia/range/ [get]
func (h *GlycemiaHandler) Range(c *gin.Context) {
	days, err := intQuery(c, "days", 7)
	if err != nil {
		respondError(c, err)
		return
	}
	resp, err := h.readings.Range(c.Request.Context(), middleware.CurrentPrincipal(c).AccountID, days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
