package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glycopilot/glycopilot-api/internal/event"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/repository"
	"github.com/glycopilot/glycopilot-api/internal/testutil"
	"github.com/glycopilot/glycopilot-api/pkg/mailer"
	"github.com/glycopilot/glycopilot-api/pkg/notification"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeTransport records push calls and answers with a scripted error. Errors
// queued in errs are returned first, one per call.
type fakeTransport struct {
	mu    sync.Mutex
	calls [][]notification.Message
	err   error
	errs  []error
	unreg []string
}

func (f *fakeTransport) Send(ctx context.Context, msgs []notification.Message) (*notification.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msgs)
	err := f.err
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	if err != nil {
		return &notification.Result{Unregistered: f.unreg}, err
	}
	return &notification.Result{Sent: len(msgs), Unregistered: f.unreg}, nil
}

func (f *fakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeMailer records invitation emails
type fakeMailer struct {
	mu       sync.Mutex
	doctors  []string
	patients []string
}

func (m *fakeMailer) SendDoctorInvitation(to string, inv mailer.DoctorInvitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors = append(m.doctors, to)
	return nil
}

func (m *fakeMailer) SendPatientInvitation(to string, inv mailer.PatientInvitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients = append(m.patients, to)
	return nil
}

// fixture wires every service on one sqlite database
type fixture struct {
	db  *gorm.DB
	now time.Time

	accounts *repository.AccountRepository
	alertsDB *repository.AlertRepository
	readDB   *repository.ReadingRepository
	devices  *repository.DeviceRepository
	team     *repository.CareTeamRepository
	carelogs *repository.CareLogRepository
	tokens   *repository.PushTokenRepository

	bus      *event.Bus
	push     *fakeTransport
	mail     *fakeMailer
	registry *RegistryService
	alerts   *AlertService
	readings *ReadingService
	careTeam *CareTeamService
	summary  *SummaryService
	gateway  *DoctorGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)

	f := &fixture{
		db:       db,
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		accounts: repository.NewAccountRepository(db),
		alertsDB: repository.NewAlertRepository(db),
		readDB:   repository.NewReadingRepository(db),
		devices:  repository.NewDeviceRepository(db),
		team:     repository.NewCareTeamRepository(db),
		carelogs: repository.NewCareLogRepository(db),
		tokens:   repository.NewPushTokenRepository(db),
		bus:      event.NewBus(16),
		push:     &fakeTransport{},
		mail:     &fakeMailer{},
	}
	clock := func() time.Time { return f.now }

	ctx := context.Background()
	for _, rule := range model.DefaultAlertRules() {
		rule := rule
		require.NoError(t, f.alertsDB.UpsertRule(ctx, &rule))
	}

	f.registry = NewRegistryService(db, f.accounts, f.alertsDB, f.team)
	f.alerts = NewAlertService(db, f.alertsDB, f.tokens, f.push, time.Second)
	f.alerts.SetClock(clock)
	f.readings = NewReadingService(db, f.readDB, f.devices, f.bus, 30*24*time.Hour)
	f.readings.SetClock(clock)
	f.careTeam = NewCareTeamService(db, f.accounts, f.team, f.mail)
	f.summary = NewSummaryService(f.readDB, f.alertsDB, f.carelogs, SummaryConfig{
		CaloriesGoal: 2000,
		CarbsGoal:    250,
		RangeLow:     70,
		RangeHigh:    180,
	})
	f.summary.SetClock(clock)
	f.gateway = NewDoctorGateway(f.careTeam, f.summary, f.readings, f.carelogs)
	f.gateway.clock = clock

	f.bus.SubscribeTx(f.alerts)
	t.Cleanup(f.bus.Close)
	return f
}

// patient creates a patient account and returns its principal
func (f *fixture) patient(t *testing.T, email string) model.Principal {
	t.Helper()
	account, err := f.registry.CreateAccount(context.Background(), NewAccount{
		Email:     email,
		Password:  "password123",
		FirstName: "Pat",
		LastName:  "Ient",
		Role:      model.RolePatient,
	})
	require.NoError(t, err)
	return PrincipalOf(account)
}

// doctor creates a doctor account, verified when asked
func (f *fixture) doctor(t *testing.T, email string, verified bool) model.Principal {
	t.Helper()
	ctx := context.Background()
	account, err := f.registry.CreateAccount(ctx, NewAccount{
		Email:         email,
		Password:      "password123",
		FirstName:     "Doc",
		LastName:      "Tor",
		Role:          model.RoleDoctor,
		LicenseNumber: "LIC-" + email,
	})
	require.NoError(t, err)
	if verified {
		require.NoError(t, f.registry.VerifyDoctor(ctx, email, nil))
	}
	return PrincipalOf(account)
}

// link creates an ACTIVE referent edge between patient and doctor
func (f *fixture) link(t *testing.T, patient, doctor model.Principal) {
	t.Helper()
	patientProfile, _ := patient.ProfileID(model.RolePatient)
	doctorProfile, _ := doctor.ProfileID(model.RoleDoctor)
	require.NoError(t, f.team.Create(context.Background(), &model.CareTeamEdge{
		PatientProfileID: &patientProfile,
		MemberProfileID:  &doctorProfile,
		Role:             model.TeamReferentDoctor,
		Status:           model.TeamActive,
		InitiatedBy:      model.InitiatedByPatient,
	}))
}

// registerToken gives the account one active push token
func (f *fixture) registerToken(t *testing.T, p model.Principal, token string) {
	t.Helper()
	_, err := f.tokens.Upsert(context.Background(), p.AccountID, token, model.PushTokenAndroid)
	require.NoError(t, err)
}

// kindOf asserts err is a service error and returns its kind
func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	var se *Error
	require.True(t, errors.As(err, &se), "expected service error, got %v", err)
	return se.Kind
}
