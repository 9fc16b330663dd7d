package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/glycopilot/glycopilot-api/internal/middleware"
	"github.com/glycopilot/glycopilot-api/internal/model"
)

// Handlers groups the HTTP handlers mounted under /api
type Handlers struct {
	Auth      *AuthHandler
	Glycemia  *GlycemiaHandler
	Photos    *PhotoHandler
	Alerts    *AlertHandler
	CareTeam  *CareTeamHandler
	Dashboard *DashboardHandler
	WS        *WSHandler
}

// RegisterRoutes mounts the API and the realtime endpoint on router
func RegisterRoutes(router *gin.Engine, h Handlers, resolver middleware.PrincipalResolver) {
	api := router.Group("/api")

	// Auth routes (public)
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
	}

	// Protected routes
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(resolver))
	{
		protected.POST("/auth/logout", h.Auth.Logout)
		protected.GET("/auth/me", h.Auth.Me)

		protected.POST("/devices/push-tokens", h.Auth.RegisterPushToken)
		protected.DELETE("/devices/push-tokens", h.Auth.RemovePushToken)

		// Patient self-service
		patient := protected.Group("")
		patient.Use(middleware.RequireRole(model.RolePatient))
		{
			patient.POST("/glycemia/manual-readings/", h.Glycemia.CreateManualReading)
			patient.POST("/glycemia/cgm-readings/", h.Glycemia.CreateCGMReading)
			patient.POST("/glycemia/devices/", h.Glycemia.RegisterDevice)
			patient.GET("/glycemia/devices/", h.Glycemia.Devices)
			patient.GET("/glycemia/current/", h.Glycemia.Current)
			patient.GET("/glycemia/range/", h.Glycemia.Range)
			patient.POST("/glycemia/photos/", h.Photos.UploadPhoto)
			patient.GET("/glycemia/predictions/latest", h.Dashboard.LatestPrediction)

			patient.GET("/dashboard/summary", h.Dashboard.Summary)

			patient.GET("/alerts/history/", h.Alerts.History)
			patient.POST("/alerts/history/ack/", h.Alerts.Ack)
			patient.POST("/alerts/history/treat/", h.Alerts.Treat)
			patient.GET("/alerts/rules/", h.Alerts.Rules)
			patient.PATCH("/alerts/rules/:code/", h.Alerts.UpdateRule)

			patient.POST("/doctors/care-team/invite-doctor/", h.CareTeam.InviteDoctor)
			patient.POST("/doctors/care-team/add-family/", h.CareTeam.AddFamily)
		}

		// Either side of an edge
		protected.POST("/doctors/care-team/accept-invitation/", h.CareTeam.AcceptInvitation)
		protected.GET("/doctors/care-team/my-team/", h.CareTeam.MyTeam)

		// Doctor reads, gated per patient by the care team
		doctor := protected.Group("/doctors/care-team")
		doctor.Use(middleware.RequireRole(model.RoleDoctor))
		{
			doctor.POST("/add-patient/", h.CareTeam.AddPatient)
			doctor.GET("/patient-dashboard", h.CareTeam.PatientDashboard)
			doctor.GET("/patient-glycemia-history", h.CareTeam.PatientGlycemiaHistory)
			doctor.GET("/patient-meals-history", h.CareTeam.PatientMealsHistory)
			doctor.GET("/patient-medications-history", h.CareTeam.PatientMedicationsHistory)
		}
	}

	// WebSocket endpoint (auth via query parameter)
	if h.WS != nil {
		router.GET("/ws/glycemia/", h.WS.HandleGlycemia)
	}
}
