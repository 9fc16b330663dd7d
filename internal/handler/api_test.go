package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/glycopilot/glycopilot-api/internal/event"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/repository"
	"github.com/glycopilot/glycopilot-api/internal/service"
	"github.com/glycopilot/glycopilot-api/internal/testutil"
	"github.com/glycopilot/glycopilot-api/internal/ws"
	"github.com/glycopilot/glycopilot-api/pkg/auth"
	"github.com/glycopilot/glycopilot-api/pkg/mailer"
	"github.com/glycopilot/glycopilot-api/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type revocations struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (r *revocations) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[tokenID] = true
	return nil
}

func (r *revocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ids[tokenID], nil
}

type noMail struct{}

func (noMail) SendDoctorInvitation(to string, inv mailer.DoctorInvitation) error   { return nil }
func (noMail) SendPatientInvitation(to string, inv mailer.PatientInvitation) error { return nil }

type memoryStorage struct {
	keys []string
}

func (m *memoryStorage) Upload(ctx context.Context, r io.Reader, size int64, fileName, contentType, folder string) (*storage.UploadResult, error) {
	key := storage.ObjectName(folder, fileName, time.Now())
	m.keys = append(m.keys, key)
	return &storage.UploadResult{URL: "http://photos.local/" + key, Key: key, FileName: fileName, FileSize: size, MimeType: contentType}, nil
}

type api struct {
	router   *gin.Engine
	registry *service.RegistryService
	photos   *memoryStorage
	hub      *ws.Hub
	bus      *event.Bus
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	ctx := context.Background()

	accounts := repository.NewAccountRepository(db)
	alerts := repository.NewAlertRepository(db)
	readings := repository.NewReadingRepository(db)
	carelogs := repository.NewCareLogRepository(db)
	team := repository.NewCareTeamRepository(db)
	tokens := repository.NewPushTokenRepository(db)
	for _, rule := range model.DefaultAlertRules() {
		rule := rule
		require.NoError(t, alerts.UpsertRule(ctx, &rule))
	}

	bus := event.NewBus(16)
	registry := service.NewRegistryService(db, accounts, alerts, team)
	alertSvc := service.NewAlertService(db, alerts, tokens, nil, time.Second)
	bus.SubscribeTx(alertSvc)
	readingSvc := service.NewReadingService(db, readings, repository.NewDeviceRepository(db), bus, 30*24*time.Hour)
	teamSvc := service.NewCareTeamService(db, accounts, team, noMail{})
	summary := service.NewSummaryService(readings, alerts, carelogs, service.SummaryConfig{CaloriesGoal: 2000, CarbsGoal: 250, RangeLow: 70, RangeHigh: 180})
	gateway := service.NewDoctorGateway(teamSvc, summary, readingSvc, carelogs)
	jwtManager := auth.NewJWTManager(auth.KeySet{Main: []byte("main-key"), Admin: []byte("admin-key")}, time.Hour, nil)
	authSvc := service.NewAuthService(registry, accounts, tokens, jwtManager, &revocations{ids: map[string]bool{}})

	hub := ws.NewHub(nil)
	hubCtx, stop := context.WithCancel(context.Background())
	go hub.Run(hubCtx)
	bus.Subscribe(ws.NewFanout(hub, 70, 180))
	t.Cleanup(func() {
		bus.Close()
		stop()
	})

	photos := &memoryStorage{}
	router := gin.New()
	RegisterRoutes(router, Handlers{
		Auth:      NewAuthHandler(authSvc),
		Glycemia:  NewGlycemiaHandler(readingSvc),
		Photos:    NewPhotoHandler(photos),
		Alerts:    NewAlertHandler(alertSvc),
		CareTeam:  NewCareTeamHandler(teamSvc, gateway),
		Dashboard: NewDashboardHandler(summary, service.NewPredictionService(repository.NewPredictionRepository(db))),
		WS:        NewWSHandler(hub, authSvc, teamSvc),
	}, authSvc)

	return &api{router: router, registry: registry, photos: photos, hub: hub, bus: bus}
}

func (a *api) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// signup registers an account over HTTP and returns its login response
func (a *api) signup(t *testing.T, req model.RegisterRequest) model.LoginResponse {
	t.Helper()
	if req.Password == "" {
		req.Password = "password123"
	}
	rec := a.do(t, http.MethodPost, "/api/auth/register", "", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.LoginResponse](t, rec)
}

func (a *api) patient(t *testing.T, email string) model.LoginResponse {
	return a.signup(t, model.RegisterRequest{Email: email, FirstName: "Pat", LastName: "Ient", Role: model.RolePatient})
}

func (a *api) doctor(t *testing.T, email string) model.LoginResponse {
	resp := a.signup(t, model.RegisterRequest{Email: email, FirstName: "Doc", LastName: "Tor", Role: model.RoleDoctor, LicenseNumber: "LIC-1"})
	require.NoError(t, a.registry.VerifyDoctor(context.Background(), email, nil))
	return resp
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	a := newAPI(t)

	rec := a.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/auth/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_RegisterValidation(t *testing.T) {
	a := newAPI(t)

	rec := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "nope", "password": "short", "role": "ADMIN"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[model.ErrorResponse](t, rec)
	assert.Equal(t, "validation_error", resp.Error)
	assert.Contains(t, resp.Fields, "email")
	assert.Contains(t, resp.Fields, "password")
	assert.Contains(t, resp.Fields, "first_name")
	assert.Contains(t, resp.Fields, "role")
}

func TestAPI_LogoutRevokesToken(t *testing.T) {
	a := newAPI(t)
	p := a.patient(t, "p1@example.com")

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/auth/me", p.Token, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/api/auth/logout", p.Token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/api/auth/me", p.Token, nil).Code)
}

func TestAPI_CGMIngest(t *testing.T) {
	a := newAPI(t)
	p := a.patient(t, "p1@example.com")
	other := a.patient(t, "p2@example.com")

	rec := a.do(t, http.MethodPost, "/api/glycemia/devices/", p.Token, map[string]interface{}{"type": "watch"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/glycemia/devices/", p.Token, model.RegisterDeviceRequest{Type: model.DeviceTypeCGM, Provider: "dexcom", SamplingInterval: 300})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sensor := decode[model.Device](t, rec)
	assert.Equal(t, p.Account.AccountID, sensor.AccountID)
	assert.True(t, sensor.IsActive)

	rec = a.do(t, http.MethodGet, "/api/glycemia/devices/", p.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Device](t, rec), 1)

	rec = a.do(t, http.MethodPost, "/api/glycemia/cgm-readings/", p.Token, map[string]interface{}{"value": 15})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/glycemia/cgm-readings/", other.Token, map[string]interface{}{"value": 120, "device_id": sensor.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/glycemia/cgm-readings/", p.Token, map[string]interface{}{"value": 15, "device_id": sensor.ID, "trend": "falling"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reading := decode[model.ReadingHistory](t, rec)
	assert.Equal(t, model.SourceCGM, reading.Source)
	assert.Equal(t, model.TrendFalling, reading.Trend)

	rec = a.do(t, http.MethodPost, "/api/glycemia/manual-readings/", p.Token, map[string]interface{}{"value": 15, "device_id": sensor.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ReadingAndAlertFlow(t *testing.T) {
	a := newAPI(t)
	p := a.patient(t, "p1@example.com")

	rec := a.do(t, http.MethodGet, "/api/glycemia/current/", p.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/glycemia/manual-readings/", p.Token, map[string]interface{}{"value": 700})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/glycemia/manual-readings/", p.Token, map[string]interface{}{"value": 62, "notes": "before lunch"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reading := decode[model.ReadingHistory](t, rec)
	assert.Equal(t, model.SourceManual, reading.Source)

	rec = a.do(t, http.MethodGet, "/api/glycemia/current/", p.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/glycemia/range/?days=31", p.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodGet, "/api/glycemia/range/?days=7", p.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/alerts/history/", p.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]model.AlertEvent](t, rec)
	require.Len(t, events, 1)
	assert.Equal(t, "HYPO", events[0].Rule.Code)

	rec = a.do(t, http.MethodPost, "/api/alerts/history/ack/", p.Token, model.AlertEventRequest{EventID: events[0].ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.AlertAcked, decode[model.AlertEvent](t, rec).Status)

	rec = a.do(t, http.MethodPost, "/api/alerts/history/treat/", p.Token, model.AlertEventRequest{EventID: events[0].ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/alerts/history/ack/", p.Token, model.AlertEventRequest{EventID: uuid.New()})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPatch, "/api/alerts/rules/HYPO/", p.Token, map[string]interface{}{"min_override": 80})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/api/dashboard/summary?include=glucose,alerts", p.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Contains(t, summary, "glucose")
	assert.Contains(t, summary, "alerts")
	assert.NotContains(t, summary, "nutrition")

	rec = a.do(t, http.MethodGet, "/api/dashboard/summary?include=sleep", p.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/glycemia/predictions/latest", p.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_DoctorAccessFollowsCareTeam(t *testing.T) {
	a := newAPI(t)
	p := a.patient(t, "p1@example.com")
	d := a.doctor(t, "doc@example.com")

	path := "/api/doctors/care-team/patient-dashboard?patient_user_id=" + p.Account.AccountID.String()
	rec := a.do(t, http.MethodGet, path, d.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// patients cannot use doctor reads
	rec = a.do(t, http.MethodGet, path, p.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/doctors/care-team/invite-doctor/", p.Token, model.InviteDoctorRequest{Email: "doc@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	member := decode[model.TeamMember](t, rec)

	rec = a.do(t, http.MethodPost, "/api/doctors/care-team/accept-invitation/", d.Token, map[string]string{"invitation_id": member.EdgeID.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodGet, path, d.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[model.Summary](t, rec)
	assert.NotNil(t, summary.Glucose)
	assert.NotNil(t, summary.Activity)

	rec = a.do(t, http.MethodGet, "/api/doctors/care-team/patient-glycemia-history?days=400&patient_user_id="+p.Account.AccountID.String(), d.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodGet, "/api/doctors/care-team/patient-meals-history?patient_user_id="+p.Account.AccountID.String(), d.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodGet, "/api/doctors/care-team/patient-medications-history?patient_user_id=not-a-uuid", d.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/doctors/care-team/my-team/", d.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	team := decode[model.MyTeam](t, rec)
	require.NotNil(t, team.DoctorTeam)
	assert.Len(t, team.DoctorTeam.ActivePatients, 1)
}

func TestAPI_PushTokens(t *testing.T) {
	a := newAPI(t)
	p := a.patient(t, "p1@example.com")

	rec := a.do(t, http.MethodPost, "/api/devices/push-tokens", p.Token, map[string]string{"token": "device-1", "kind": "android"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodDelete, "/api/devices/push-tokens?token=device-1", p.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAPI_UploadPhoto(t *testing.T) {
	a := newAPI(t)
	p := a.patient(t, "p1@example.com")

	upload := func(contentType string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="file"; filename="meter.jpg"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte("not really a jpeg"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/glycemia/photos/", &body)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+p.Token)
		rec := httptest.NewRecorder()
		a.router.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("image/jpeg")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[model.PhotoUploadResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.URL, "http://photos.local/readings/"+p.Account.AccountID.String()))
	require.Len(t, a.photos.keys, 1)

	rec = upload("application/pdf")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RealtimeReadings(t *testing.T) {
	a := newAPI(t)
	p := a.patient(t, "p1@example.com")
	stranger := a.doctor(t, "doc@example.com")

	srv := httptest.NewServer(a.router)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/glycemia/"

	conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+p.Token, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello model.WSEnvelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, model.WSConnectionEstablished, hello.Type)
	assert.Equal(t, p.Account.AccountID.String(), hello.UserID)

	rec := a.do(t, http.MethodPost, "/api/glycemia/manual-readings/", p.Token, map[string]interface{}{"value": 250})
	require.Equal(t, http.StatusCreated, rec.Code)

	var update, alert model.WSEnvelope
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, model.WSReadingUpdate, update.Type)
	require.NoError(t, conn.ReadJSON(&alert))
	assert.Equal(t, model.WSReadingAlert, alert.Type)
	assert.Equal(t, model.AlertTypeHyper, alert.AlertType)

	expectClose := func(url string, code int) {
		c, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer c.Close()
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err = c.ReadMessage()
		var ce *websocket.CloseError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, code, ce.Code)
	}
	expectClose(base+"?token=bad", ws.CloseAuthFailed)
	expectClose(base+"?token="+stranger.Token+"&patient_user_id="+p.Account.AccountID.String(), ws.CloseForbidden)
}
