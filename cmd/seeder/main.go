package main

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"time"

	"github.com/glycopilot/glycopilot-api/internal/config"
	"github.com/glycopilot/glycopilot-api/internal/event"
	"github.com/glycopilot/glycopilot-api/internal/logger"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/repository"
	"github.com/glycopilot/glycopilot-api/internal/service"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Common password for all demo accounts
const demoPassword = "password123"

type seeder struct {
	db          *gorm.DB
	accounts    *repository.AccountRepository
	alerts      *repository.AlertRepository
	team        *repository.CareTeamRepository
	carelogs    *repository.CareLogRepository
	registry    *service.RegistryService
	readings    *service.ReadingService
	predictions *service.PredictionService
	bus         *event.Bus
}

func main() {
	cfg := config.Load()
	logger.Setup(cfg.App.Env, cfg.App.LogLevel)

	// Force DB logging off to avoid noise
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	log.Info().Msg("connected to database")

	s := newSeeder(db, cfg)
	defer s.bus.Close()

	if err := s.run(context.Background()); err != nil {
		log.Error().Err(err).Msg("seeding failed")
		os.Exit(1)
	}
	log.Info().Msg("seeding completed")
}

func newSeeder(db *gorm.DB, cfg *config.Config) *seeder {
	s := &seeder{
		db:       db,
		accounts: repository.NewAccountRepository(db),
		alerts:   repository.NewAlertRepository(db),
		team:     repository.NewCareTeamRepository(db),
		carelogs: repository.NewCareLogRepository(db),
		bus:      event.NewBus(256),
	}
	readings := repository.NewReadingRepository(db)
	tokens := repository.NewPushTokenRepository(db)

	s.registry = service.NewRegistryService(db, s.accounts, s.alerts, s.team)
	s.readings = service.NewReadingService(db, readings, repository.NewDeviceRepository(db), s.bus, cfg.Glycemia.Retention())
	s.predictions = service.NewPredictionService(repository.NewPredictionRepository(db))

	// Alert events are materialized for demo readings; nothing is pushed
	s.bus.SubscribeTx(service.NewAlertService(db, s.alerts, tokens, nil, cfg.Push.Timeout))
	return s
}

func (s *seeder) run(ctx context.Context) error {
	if err := s.seedRules(ctx); err != nil {
		return err
	}

	patient, created, err := s.ensureAccount(ctx, service.NewAccount{
		Email:        "patient1@glycopilot.local",
		Password:     demoPassword,
		FirstName:    "Alex",
		LastName:     "Martin",
		Phone:        "+33600000001",
		Role:         model.RolePatient,
		DiabetesType: model.DiabetesType1,
	})
	if err != nil {
		return err
	}

	doctor, _, err := s.ensureAccount(ctx, service.NewAccount{
		Email:         "doctor1@glycopilot.local",
		Password:      demoPassword,
		FirstName:     "Camille",
		LastName:      "Bernard",
		Role:          model.RoleDoctor,
		LicenseNumber: "RPPS-10000000001",
		Specialty:     "Endocrinology",
	})
	if err != nil {
		return err
	}
	if err := s.registry.VerifyDoctor(ctx, doctor.Email, nil); err != nil {
		return err
	}

	if err := s.linkDoctor(ctx, patient, doctor); err != nil {
		return err
	}

	if !created {
		log.Info().Str("email", patient.Email).Msg("demo patient already seeded, skipping activity data")
		return nil
	}
	return s.seedActivity(ctx, patient)
}

func (s *seeder) seedRules(ctx context.Context) error {
	for _, rule := range model.DefaultAlertRules() {
		rule := rule
		if err := s.alerts.UpsertRule(ctx, &rule); err != nil {
			return err
		}
	}
	log.Info().Int("rules", len(model.DefaultAlertRules())).Msg("alert rules seeded")
	return nil
}

// ensureAccount returns the account for in.Email, creating it when missing
func (s *seeder) ensureAccount(ctx context.Context, in service.NewAccount) (*model.Account, bool, error) {
	existing, err := s.accounts.FindByEmail(ctx, in.Email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	account, err := s.registry.CreateAccount(ctx, in)
	if err != nil {
		return nil, false, err
	}
	log.Info().Str("email", in.Email).Str("role", string(in.Role)).Str("password", in.Password).Msg("created demo account")
	return account, true, nil
}

func (s *seeder) linkDoctor(ctx context.Context, patient, doctor *model.Account) error {
	patientProfile, err := s.accounts.FindProfileByAccount(ctx, patient.ID, model.RolePatient)
	if err != nil {
		return err
	}
	doctorProfile, err := s.accounts.FindProfileByAccount(ctx, doctor.ID, model.RoleDoctor)
	if err != nil {
		return err
	}

	exists, err := s.team.ExistsOpen(ctx, patientProfile.ID, doctorProfile.ID)
	if err != nil || exists {
		return err
	}
	edge := &model.CareTeamEdge{
		PatientProfileID: &patientProfile.ID,
		MemberProfileID:  &doctorProfile.ID,
		Role:             model.TeamReferentDoctor,
		Status:           model.TeamActive,
		InitiatedBy:      model.InitiatedByDoctor,
		ApproverID:       &doctorProfile.ID,
	}
	if err := s.team.Create(ctx, edge); err != nil {
		return err
	}
	log.Info().Str("patient", patient.Email).Str("doctor", doctor.Email).Msg("care team edge created")
	return nil
}

// seedActivity writes a day of CGM readings and care logs for the patient
func (s *seeder) seedActivity(ctx context.Context, patient *model.Account) error {
	p, err := s.registry.Principal(ctx, patient.ID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	sensor, err := s.readings.RegisterDevice(ctx, p, model.RegisterDeviceRequest{
		Type:             model.DeviceTypeSimulator,
		Provider:         "demo",
		SamplingInterval: 1800,
	})
	if err != nil {
		return err
	}

	// One reading every 30 minutes, a daily wave around 130 mg/dL
	for i := 48; i > 0; i-- {
		at := now.Add(-time.Duration(i) * 30 * time.Minute)
		value := math.Round(130 + 60*math.Sin(float64(i)/48*2*math.Pi))
		trend := model.TrendFlat
		if i%6 < 2 {
			trend = model.TrendRising
		} else if i%6 > 3 {
			trend = model.TrendFalling
		}
		if _, err := s.readings.InsertCGM(ctx, p, model.Measurement{
			Value:      value,
			MeasuredAt: at,
			Trend:      trend,
			DeviceID:   &sensor.ID,
		}); err != nil {
			return err
		}
	}
	log.Info().Int("readings", 48).Msg("demo readings seeded")

	next := now.Add(2 * time.Hour)
	schedule := &model.MedicationSchedule{
		AccountID:    patient.ID,
		Name:         "Insulin glargine",
		Dosage:       "12 U",
		DosesPerDay:  1,
		IsActive:     true,
		NextIntakeAt: &next,
		StartedAt:    now.AddDate(0, -1, 0),
	}
	if err := s.carelogs.CreateSchedule(ctx, schedule); err != nil {
		return err
	}
	for d := 1; d <= 7; d++ {
		scheduled := now.AddDate(0, 0, -d)
		intake := &model.MedicationIntake{
			AccountID:   patient.ID,
			ScheduleID:  schedule.ID,
			ScheduledAt: scheduled,
			Status:      model.IntakeTaken,
			TakenAt:     &scheduled,
		}
		if d == 3 {
			intake.Status = model.IntakeMissed
			intake.TakenAt = nil
		}
		if err := s.carelogs.CreateIntake(ctx, intake); err != nil {
			return err
		}
	}

	carbs := 60.0
	for _, meal := range []model.MealLog{
		{AccountID: patient.ID, Name: "Breakfast", EatenAt: now.Add(-10 * time.Hour), Calories: 450, Carbs: &carbs},
		{AccountID: patient.ID, Name: "Lunch", EatenAt: now.Add(-5 * time.Hour), Calories: 700},
	} {
		meal := meal
		if err := s.carelogs.CreateMeal(ctx, &meal); err != nil {
			return err
		}
	}

	if err := s.carelogs.CreateActivity(ctx, &model.ActivityLog{
		AccountID: patient.ID,
		Name:      "Walk",
		StartAt:   now.Add(-3 * time.Hour),
		EndAt:     now.Add(-3*time.Hour + 25*time.Minute),
	}); err != nil {
		return err
	}
	log.Info().Msg("demo care logs seeded")

	horizons, _ := json.Marshal(map[string]float64{"30": 142, "60": 151, "120": 160})
	return s.predictions.Store(ctx, &model.GlucosePrediction{
		AccountID:    patient.ID,
		ForTime:      now.Truncate(time.Minute),
		ModelVersion: "demo-0",
		Horizons:     datatypes.JSON(horizons),
		CreatedBy:    "seeder",
	})
}
