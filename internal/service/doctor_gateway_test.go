package service

import (
	"context"
	"testing"
	"time"

	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateway_DashboardRequiresActiveEdge(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")
	d := f.doctor(t, "doc@example.com", true)
	ctx := context.Background()
	insertReading(t, f, p, 140)

	_, err := f.gateway.PatientDashboard(ctx, d, p.AccountID, nil)
	assert.ErrorIs(t, err, ErrForbiddenPatient)

	f.link(t, p, d)
	s, err := f.gateway.PatientDashboard(ctx, d, p.AccountID, nil)
	require.NoError(t, err)
	require.NotNil(t, s.Glucose)
	require.NotNil(t, s.Glucose.Value)
	assert.Equal(t, 140.0, *s.Glucose.Value)
	assert.NotNil(t, s.Alerts)
	assert.NotNil(t, s.Medication)
	assert.NotNil(t, s.Nutrition)
	assert.NotNil(t, s.Activity)
}

func TestGateway_UnknownPatientLooksForbidden(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, "doc@example.com", true)
	other := f.patient(t, "p2@example.com")

	_, err := f.gateway.PatientGlycemiaHistory(context.Background(), d, other.AccountID, 7)
	assert.Equal(t, KindForbidden, kindOf(t, err))

	_, err = f.gateway.PatientGlycemiaHistory(context.Background(), d, d.AccountID, 7)
	assert.Equal(t, KindForbidden, kindOf(t, err))
}

func TestGateway_PendingEdgeIsNotEnough(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")
	f.doctor(t, "doc@example.com", true)
	d := f.doctor(t, "doc2@example.com", true)
	ctx := context.Background()

	_, err := f.careTeam.InviteDoctor(ctx, p, model.InviteDoctorRequest{Email: "doc2@example.com"})
	require.NoError(t, err)

	_, err = f.gateway.PatientMealsHistory(ctx, d, p.AccountID, 7)
	assert.ErrorIs(t, err, ErrForbiddenPatient)
}

func TestGateway_HistoryDaysBounds(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")
	d := f.doctor(t, "doc@example.com", true)
	f.link(t, p, d)
	ctx := context.Background()

	for _, days := range []int{0, 366} {
		_, err := f.gateway.PatientGlycemiaHistory(ctx, d, p.AccountID, days)
		assert.Equal(t, KindValidation, kindOf(t, err), days)
		_, err = f.gateway.PatientMealsHistory(ctx, d, p.AccountID, days)
		assert.Equal(t, KindValidation, kindOf(t, err), days)
		_, err = f.gateway.PatientMedicationsHistory(ctx, d, p.AccountID, days)
		assert.Equal(t, KindValidation, kindOf(t, err), days)
	}
}

func TestGateway_Histories(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")
	d := f.doctor(t, "doc@example.com", true)
	f.link(t, p, d)
	ctx := context.Background()

	insertReading(t, f, p, 110)
	_, err := f.readings.Insert(ctx, p, model.Measurement{Value: 130, MeasuredAt: f.now.AddDate(0, 0, -10)})
	require.NoError(t, err)

	require.NoError(t, f.carelogs.CreateMeal(ctx, &model.MealLog{AccountID: p.AccountID, Name: "dinner", EatenAt: f.now.Add(-3 * time.Hour), Calories: 600}))
	require.NoError(t, f.carelogs.CreateMeal(ctx, &model.MealLog{AccountID: p.AccountID, Name: "old", EatenAt: f.now.AddDate(0, 0, -20), Calories: 600}))

	schedule := &model.MedicationSchedule{AccountID: p.AccountID, Name: "Insulin", DosesPerDay: 1, IsActive: true, StartedAt: f.now.AddDate(0, 0, -30)}
	require.NoError(t, f.carelogs.CreateSchedule(ctx, schedule))
	taken := f.now.Add(-20 * time.Hour)
	require.NoError(t, f.carelogs.CreateIntake(ctx, &model.MedicationIntake{
		AccountID:   p.AccountID,
		ScheduleID:  schedule.ID,
		ScheduledAt: taken,
		TakenAt:     &taken,
		Status:      model.IntakeTaken,
	}))

	readings, err := f.gateway.PatientGlycemiaHistory(ctx, d, p.AccountID, 7)
	require.NoError(t, err)
	assert.Len(t, readings, 1)
	readings, err = f.gateway.PatientGlycemiaHistory(ctx, d, p.AccountID, 30)
	require.NoError(t, err)
	assert.Len(t, readings, 2)

	meals, err := f.gateway.PatientMealsHistory(ctx, d, p.AccountID, 7)
	require.NoError(t, err)
	require.Len(t, meals, 1)
	assert.Equal(t, "dinner", meals[0].Name)

	meds, err := f.gateway.PatientMedicationsHistory(ctx, d, p.AccountID, 7)
	require.NoError(t, err)
	require.Len(t, meds.Schedules, 1)
	require.Len(t, meds.Intakes, 1)
	assert.Equal(t, model.IntakeTaken, meds.Intakes[0].Status)
}
