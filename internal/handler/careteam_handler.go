package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/middleware"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/service"
)

// CareTeamHandler handles care-team membership and doctor reads of patient data
type CareTeamHandler struct {
	team    *service.CareTeamService
	gateway *service.DoctorGateway
}

func NewCareTeamHandler(team *service.CareTeamService, gateway *service.DoctorGateway) *CareTeamHandler {
	return &CareTeamHandler{team: team, gateway: gateway}
}

// InviteDoctor godoc
// @Summary Patient invites a verified doctor
// @Tags CareTeam
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body model.InviteDoctorRequest true "Invitation"
// @Success 201 {object} model.TeamMember
// @Failure 400 {object} model.ErrorResponse
// @Router /doctors/care-team/invite-doctor/ [post]
func (h *CareTeamHandler) InviteDoctor(c *gin.Context) {
	var req model.InviteDoctorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	member, err := h.team.InviteDoctor(c.Request.Context(), middleware.CurrentPrincipal(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

// AddFamily godoc
// @Summary Patient adds a family member
// @Tags CareTeam
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body model.AddFamilyRequest true "Family member"
// @Success 201 {object} model.TeamMember
// @Failure 400 {object} model.ErrorResponse
// @Router /doctors/care-team/add-family/ [post]
func (h *CareTeamHandler) AddFamily(c *gin.Context) {
	var req model.AddFamilyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	member, err := h.team.AddFamily(c.Request.Context(), middleware.CurrentPrincipal(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

// AddPatient godoc
// @Summary Doctor adds a patient by email or phone
// @Description Returns status "sent" when no account matches the email and an invitation was mailed.
// @Tags CareTeam
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body model.AddPatientRequest true "Patient lookup"
// @Success 200 {object} model.AddPatientResponse
// @Success 201 {object} model.AddPatientResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /doctors/care-team/add-patient/ [post]
func (h *CareTeamHandler) AddPatient(c *gin.Context) {
	var req model.AddPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	resp, err := h.team.AddPatient(c.Request.Context(), middleware.CurrentPrincipal(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	if resp.Status == model.AddPatientStatusSent {
		c.JSON(http.StatusOK, resp)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// AcceptInvitation godoc
// @Summary Accept a pending care-team invitation
// @Tags CareTeam
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body model.AcceptInvitationRequest true "Invitation"
// @Success 200 {object} model.CareTeamEdge
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /doctors/care-team/accept-invitation/ [post]
func (h *CareTeamHandler) AcceptInvitation(c *gin.Context) {
	var req model.AcceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	edge, err := h.team.AcceptInvitation(c.Request.Context(), middleware.CurrentPrincipal(c), req.InvitationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, edge)
}

// MyTeam godoc
// @Summary Care-team graph of the caller
// @Tags CareTeam
// @Security BearerAuth
// @Produce json
// @Success 200 {object} model.MyTeam
// @Router /doctors/care-team/my-team/ [get]
func (h *CareTeamHandler) MyTeam(c *gin.Context) {
	team, err := h.team.MyTeam(c.Request.Context(), middleware.CurrentPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, team)
}

// PatientDashboard godoc
// @Summary Doctor reads a patient's summary
// @Tags CareTeam
// @Security BearerAuth
// @Produce json
// @Param patient_user_id query string true "Patient account id"
// @Param include[] query []string false "Sections" collectionFormat(multi)
// @Success 200 {object} model.Summary
// @Failure 400 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /doctors/care-team/patient-dashboard [get]
func (h *CareTeamHandler) PatientDashboard(c *gin.Context) {
	patientID, err := uuidQuery(c, "patient_user_id")
	if err != nil {
		respondError(c, err)
		return
	}
	include, err := service.ParseSections(includeQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	summary, err := h.gateway.PatientDashboard(c.Request.Context(), middleware.CurrentPrincipal(c), patientID, include)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// PatientGlycemiaHistory godoc
// @Summary Doctor reads a patient's reading history
// @Tags CareTeam
// @Security BearerAuth
// @Produce json
// @Param patient_user_id query string true "Patient account id"
// @Param days query int false "Days, 1 to 365" default(30)
// @Success 200 {array} model.ReadingHistory
// @Failure 400 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /doctors/care-team/patient-glycemia-history [get]
func (h *CareTeamHandler) PatientGlycemiaHistory(c *gin.Context) {
	patientID, days, ok := h.historyParams(c)
	if !ok {
		return
	}
	rows, err := h.gateway.PatientGlycemiaHistory(c.Request.Context(), middleware.CurrentPrincipal(c), patientID, days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// PatientMealsHistory godoc
// @Summary Doctor reads a patient's meals
// @Tags CareTeam
// @Security BearerAuth
// @Produce json
// @Param patient_user_id query string true "Patient account id"
// @Param days query int false "Days, 1 to 365" default(30)
// @Success 200 {array} model.MealLog
// @Failure 400 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /doctors/care-team/patient-meals-history [get]
func (h *CareTeamHandler) PatientMealsHistory(c *gin.Context) {
	patientID, days, ok := h.historyParams(c)
	if !ok {
		return
	}
	meals, err := h.gateway.PatientMealsHistory(c.Request.Context(), middleware.CurrentPrincipal(c), patientID, days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, meals)
}

// PatientMedicationsHistory godoc
// @Summary Doctor reads a patient's medication schedules and intakes
// @Tags CareTeam
// @Security BearerAuth
// @Produce json
// @Param patient_user_id query string true "Patient account id"
// @Param days query int false "Days, 1 to 365" default(30)
// @Success 200 {object} model.MedicationHistoryResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /doctors/care-team/patient-medications-history [get]
func (h *CareTeamHandler) PatientMedicationsHistory(c *gin.Context) {
	patientID, days, ok := h.historyParams(c)
	if !ok {
		return
	}
	resp, err := h.gateway.PatientMedicationsHistory(c.Request.Context(), middleware.CurrentPrincipal(c), patientID, days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CareTeamHandler) historyParams(c *gin.Context) (uuid.UUID, int, bool) {
	patientID, err := uuidQuery(c, "patient_user_id")
	if err != nil {
		respondError(c, err)
		return uuid.Nil, 0, false
	}
	days, err := intQuery(c, "days", 30)
	if err != nil {
		respondError(c, err)
		return uuid.Nil, 0, false
	}
	return patientID, days, true
}
