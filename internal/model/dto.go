package model

import (
	"time"

	"github.com/google/uuid"
)

// ========== Auth DTOs ==========

type RegisterRequest struct {
	Email         string       `json:"email" binding:"required,email"`
	Password      string       `json:"password" binding:"required,min=8"`
	FirstName     string       `json:"first_name" binding:"required,max=100"`
	LastName      string       `json:"last_name" binding:"required,max=100"`
	Phone         string       `json:"phone" binding:"max=32"`
	Role          Role         `json:"role" binding:"required,oneof=PATIENT DOCTOR"`
	DiabetesType  DiabetesType `json:"diabetes_type" binding:"omitempty,oneof=TYPE1 TYPE2 GESTATIONAL"`
	LicenseNumber string       `json:"license_number" binding:"required_if=Role DOCTOR,max=64"`
	Specialty     string       `json:"specialty" binding:"max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token   string     `json:"token"`
	Account MeResponse `json:"account"`
}

type MeResponse struct {
	AccountID uuid.UUID `json:"account_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Roles     []Role    `json:"roles"`
}

type RegisterPushTokenRequest struct {
	Token string        `json:"token" binding:"required,max=512"`
	Kind  PushTokenKind `json:"kind" binding:"required,oneof=ios android"`
}

// ========== Glycemia DTOs ==========

type ManualReadingRequest struct {
	Value      *float64        `json:"value" binding:"required"`
	Unit       string          `json:"unit" binding:"omitempty,max=10"`
	MeasuredAt *time.Time      `json:"measured_at"`
	Trend      Trend           `json:"trend" binding:"omitempty,oneof=rising falling flat"`
	Rate       *float64        `json:"rate"`
	Context    *ReadingContext `json:"context"`
	Notes      string          `json:"notes" binding:"max=2000"`
	PhotoURL   string          `json:"photo_url" binding:"omitempty,max=1000"`
	Location   string          `json:"location" binding:"max=255"`
	DeviceID   *uuid.UUID      `json:"device_id"`
}

type RegisterDeviceRequest struct {
	Type             DeviceType `json:"type" binding:"required,oneof=cgm manual simulator"`
	Provider         string     `json:"provider" binding:"max=100"`
	SamplingInterval int        `json:"sampling_interval" binding:"min=0,max=86400"`
}

type CGMReadingRequest struct {
	DeviceID   uuid.UUID  `json:"device_id" binding:"required"`
	Value      *float64   `json:"value" binding:"required"`
	Unit       string     `json:"unit" binding:"omitempty,max=10"`
	MeasuredAt *time.Time `json:"measured_at"`
	Trend      Trend      `json:"trend" binding:"omitempty,oneof=rising falling flat"`
	Rate       *float64   `json:"rate"`
}

// Measurement is the ingestion input shared by the manual and CGM paths
type Measurement struct {
	Value      float64
	Unit       string
	MeasuredAt time.Time
	Trend      Trend
	Rate       *float64
	Source     ReadingSource
	DeviceID   *uuid.UUID
	Context    *ReadingContext
	Notes      string
	PhotoURL   string
	Location   string
}

type RangeStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Count  int     `json:"count"`
}

type RangeResponse struct {
	Days    int            `json:"days"`
	Entries []ReadingCache `json:"entries"`
	Stats   RangeStats     `json:"stats"`
}

type PhotoUploadResponse struct {
	URL      string `json:"url"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`
}

// ========== Alert DTOs ==========

type AlertEventRequest struct {
	EventID uuid.UUID `json:"event_id" binding:"required"`
}

type UpdateUserAlertRuleRequest struct {
	Enabled         *bool    `json:"enabled"`
	MinOverride     *float64 `json:"min_override"`
	MaxOverride     *float64 `json:"max_override"`
	ClearMin        bool     `json:"clear_min"`
	ClearMax        bool     `json:"clear_max"`
	CooldownSeconds *int     `json:"cooldown_seconds" binding:"omitempty,min=0"`
}

type UserAlertRuleResponse struct {
	Code            string   `json:"code"`
	Name            string   `json:"name"`
	Severity        Severity `json:"severity"`
	Enabled         bool     `json:"enabled"`
	MinGlycemia     *float64 `json:"min_glycemia"`
	MaxGlycemia     *float64 `json:"max_glycemia"`
	MinOverride     *float64 `json:"min_override"`
	MaxOverride     *float64 `json:"max_override"`
	CooldownSeconds int      `json:"cooldown_seconds"`
}

// ========== Care team DTOs ==========

type InviteDoctorRequest struct {
	Email string   `json:"email" binding:"required,email"`
	Role  TeamRole `json:"role" binding:"omitempty,oneof=REFERENT_DOCTOR SPECIALIST"`
}

type AddFamilyRequest struct {
	FirstName    string   `json:"first_name" binding:"required,max=100"`
	LastName     string   `json:"last_name" binding:"required,max=100"`
	Phone        string   `json:"phone" binding:"max=32"`
	Address      string   `json:"address" binding:"max=500"`
	Role         TeamRole `json:"role" binding:"omitempty,oneof=FAMILY CAREGIVER NURSE"`
	RelationType string   `json:"relation_type" binding:"max=50"`
}

type AddPatientRequest struct {
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone" binding:"max=32"`
}

type AddPatientResponse struct {
	Status       string     `json:"status"`
	InvitationID *uuid.UUID `json:"invitation_id,omitempty"`
	Email        string     `json:"email,omitempty"`
}

const (
	AddPatientStatusSent    = "sent"
	AddPatientStatusPending = "pending"
)

type AcceptInvitationRequest struct {
	InvitationID uuid.UUID `json:"invitation_id" binding:"required"`
}

// TeamMember is one edge of a care team seen from the caller's side
type TeamMember struct {
	EdgeID       uuid.UUID  `json:"id"`
	ProfileID    *uuid.UUID `json:"profile_id,omitempty"`
	AccountID    *uuid.UUID `json:"user_id,omitempty"`
	FirstName    string     `json:"first_name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Role         TeamRole   `json:"role"`
	Status       TeamStatus `json:"status"`
	RelationType string     `json:"relation_type,omitempty"`
	Since        time.Time  `json:"since"`
}

type PatientTeam struct {
	Doctors []TeamMember `json:"doctors"`
	Family  []TeamMember `json:"family"`
}

type DoctorTeam struct {
	ActivePatients []TeamMember `json:"active_patients"`
	PendingInvites []TeamMember `json:"pending_invites"`
}

// MyTeam holds the views that apply to the caller's profiles
type MyTeam struct {
	*PatientTeam
	*DoctorTeam
}

type MedicationHistoryResponse struct {
	Schedules []MedicationSchedule `json:"schedules"`
	Intakes   []MedicationIntake   `json:"intakes"`
}

// ========== Summary DTOs ==========

type SummarySection string

const (
	SectionGlucose    SummarySection = "glucose"
	SectionAlerts     SummarySection = "alerts"
	SectionMedication SummarySection = "medication"
	SectionNutrition  SummarySection = "nutrition"
	SectionActivity   SummarySection = "activity"
)

var AllSummarySections = []SummarySection{
	SectionGlucose, SectionAlerts, SectionMedication, SectionNutrition, SectionActivity,
}

type GlucoseSection struct {
	Value      *float64   `json:"value"`
	Unit       string     `json:"unit"`
	Trend      Trend      `json:"trend"`
	MeasuredAt *time.Time `json:"measuredAt"`
}

type AlertItem struct {
	ID            uuid.UUID   `json:"id"`
	Code          string      `json:"code"`
	Name          string      `json:"name"`
	Severity      Severity    `json:"severity"`
	Status        AlertStatus `json:"status"`
	GlycemiaValue float64     `json:"glycemiaValue"`
	TriggeredAt   time.Time   `json:"triggeredAt"`
}

type NextDose struct {
	MedicationID uuid.UUID `json:"medicationId"`
	Name         string    `json:"name"`
	Dosage       string    `json:"dosage,omitempty"`
	ScheduledAt  time.Time `json:"scheduledAt"`
	Status       string    `json:"status"`
}

const (
	DoseStatusPending = "pending"
	DoseStatusOverdue = "overdue"
)

type MedicationSection struct {
	NextDose *NextDose `json:"nextDose"`
}

type NutritionSection struct {
	Calories     float64 `json:"calories"`
	Carbs        float64 `json:"carbs"`
	CaloriesGoal float64 `json:"caloriesGoal"`
	CarbsGoal    float64 `json:"carbsGoal"`
	Meals        int     `json:"meals"`
}

type ActivitySection struct {
	ActiveMinutes int `json:"activeMinutes"`
	GoalMinutes   int `json:"goalMinutes"`
}

// Summary is the patient snapshot. Sections left out of the include set are nil.
type Summary struct {
	Glucose     *GlucoseSection    `json:"glucose,omitempty"`
	Alerts      *[]AlertItem       `json:"alerts,omitempty"`
	Medication  *MedicationSection `json:"medication,omitempty"`
	Nutrition   *NutritionSection  `json:"nutrition,omitempty"`
	Activity    *ActivitySection   `json:"activity,omitempty"`
	HealthScore int                `json:"healthScore"`
}

// ========== WebSocket DTOs ==========

// WSEnvelope is a realtime frame in either direction
type WSEnvelope struct {
	Type      string      `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	AlertType string      `json:"alert_type,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

const (
	WSConnectionEstablished = "connection_established"
	WSReadingUpdate         = "reading_update"
	WSReadingAlert          = "reading_alert"
	WSPing                  = "ping"
	WSPong                  = "pong"

	AlertTypeHypo  = "hypoglycemia"
	AlertTypeHyper = "hyperglycemia"
)

// ========== Common ==========

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
