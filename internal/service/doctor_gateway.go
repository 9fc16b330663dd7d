package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/repository"
	"github.com/rs/zerolog/log"
)

const (
	maxDoctorHistoryDays = 365
	doctorHistoryLimit   = 5000
)

// DoctorGateway serves doctor reads of patient data. Every read first checks
// for an ACTIVE doctor-class care-team edge; a failed check never tells
// whether the patient exists.
type DoctorGateway struct {
	team     *CareTeamService
	summary  *SummaryService
	readings *ReadingService
	carelogs *repository.CareLogRepository
	clock    func() time.Time
}

func NewDoctorGateway(team *CareTeamService, summary *SummaryService, readings *ReadingService, carelogs *repository.CareLogRepository) *DoctorGateway {
	return &DoctorGateway{team: team, summary: summary, readings: readings, carelogs: carelogs, clock: time.Now}
}

// Authorize returns ErrForbiddenPatient unless doctor actively cares for the patient
func (g *DoctorGateway) Authorize(ctx context.Context, doctor model.Principal, patientAccountID uuid.UUID) error {
	ok, err := g.team.IsActiveCareGiver(ctx, doctor, patientAccountID)
	if err != nil {
		return Internal("failed to check care team", err)
	}
	if !ok {
		log.Warn().
			Str("account_id", doctor.AccountID.String()).
			Str("patient_account_id", patientAccountID.String()).
			Msg("doctor read denied")
		return ErrForbiddenPatient
	}
	return nil
}

// PatientDashboard returns the patient's summary
func (g *DoctorGateway) PatientDashboard(ctx context.Context, doctor model.Principal, patientAccountID uuid.UUID, include []model.SummarySection) (*model.Summary, error) {
	if err := g.Authorize(ctx, doctor, patientAccountID); err != nil {
		return nil, err
	}
	return g.summary.Summary(ctx, patientAccountID, include)
}

// PatientGlycemiaHistory returns the patient's reading history of the last days days
func (g *DoctorGateway) PatientGlycemiaHistory(ctx context.Context, doctor model.Principal, patientAccountID uuid.UUID, days int) ([]model.ReadingHistory, error) {
	if err := validateHistoryDays(days); err != nil {
		return nil, err
	}
	if err := g.Authorize(ctx, doctor, patientAccountID); err != nil {
		return nil, err
	}
	return g.readings.History(ctx, patientAccountID, days, doctorHistoryLimit)
}

// PatientMealsHistory returns the patient's meals of the last days days
func (g *DoctorGateway) PatientMealsHistory(ctx context.Context, doctor model.Principal, patientAccountID uuid.UUID, days int) ([]model.MealLog, error) {
	if err := validateHistoryDays(days); err != nil {
		return nil, err
	}
	if err := g.Authorize(ctx, doctor, patientAccountID); err != nil {
		return nil, err
	}
	now := g.clock().UTC()
	meals, err := g.carelogs.MealsBetween(ctx, patientAccountID, now.AddDate(0, 0, -days), now)
	if err != nil {
		return nil, Internal("failed to load meals", err)
	}
	if meals == nil {
		meals = []model.MealLog{}
	}
	return meals, nil
}

// PatientMedicationsHistory returns the patient's schedules and the intakes of the last days days
func (g *DoctorGateway) PatientMedicationsHistory(ctx context.Context, doctor model.Principal, patientAccountID uuid.UUID, days int) (*model.MedicationHistoryResponse, error) {
	if err := validateHistoryDays(days); err != nil {
		return nil, err
	}
	if err := g.Authorize(ctx, doctor, patientAccountID); err != nil {
		return nil, err
	}
	schedules, err := g.carelogs.Schedules(ctx, patientAccountID)
	if err != nil {
		return nil, Internal("failed to load medications", err)
	}
	now := g.clock().UTC()
	intakes, err := g.carelogs.IntakesBetween(ctx, patientAccountID, now.AddDate(0, 0, -days), now.Add(24*time.Hour))
	if err != nil {
		return nil, Internal("failed to load intakes", err)
	}
	if schedules == nil {
		schedules = []model.MedicationSchedule{}
	}
	if intakes == nil {
		intakes = []model.MedicationIntake{}
	}
	return &model.MedicationHistoryResponse{Schedules: schedules, Intakes: intakes}, nil
}

func validateHistoryDays(days int) error {
	if days < 1 || days > maxDoctorHistoryDays {
		return Validation("days", "days must be between 1 and 365")
	}
	return nil
}
