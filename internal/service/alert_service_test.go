package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/event"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/pkg/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func insertReading(t *testing.T, f *fixture, p model.Principal, value float64) *model.ReadingHistory {
	t.Helper()
	reading, err := f.readings.Insert(context.Background(), p, model.Measurement{Value: value})
	require.NoError(t, err)
	return reading
}

func accountEvents(t *testing.T, f *fixture, p model.Principal) []model.AlertEvent {
	t.Helper()
	events, err := f.alerts.History(context.Background(), p, "")
	require.NoError(t, err)
	return events
}

func waitForStatus(t *testing.T, f *fixture, p model.Principal, id uuid.UUID, want model.AlertStatus) model.AlertEvent {
	t.Helper()
	var found model.AlertEvent
	require.Eventually(t, func() bool {
		for _, ev := range accountEvents(t, f, p) {
			if ev.ID == id && ev.Status == want {
				found = ev
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	return found
}

func TestAlerts_NormalReadingCreatesNoEvent(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")

	insertReading(t, f, p, 120)

	assert.Empty(t, accountEvents(t, f, p))
	assert.Equal(t, 0, f.push.Calls())
}

func TestAlerts_HypoPushedThenCooldownSuppresses(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")
	f.registerToken(t, p, "device-1")

	insertReading(t, f, p, 65)
	events := accountEvents(t, f, p)
	require.Len(t, events, 1)
	assert.Equal(t, "HYPO", events[0].Rule.Code)

	sent := waitForStatus(t, f, p, events[0].ID, model.AlertSent)
	require.NotNil(t, sent.PushSentAt)
	assert.Equal(t, 1, f.push.Calls())

	f.now = f.now.Add(time.Minute)
	insertReading(t, f, p, 60)

	events = accountEvents(t, f, p)
	require.Len(t, events, 2)
	second := events[0]
	assert.Equal(t, model.AlertTriggered, second.Status)
	assert.Nil(t, second.PushSentAt)

	pushed := 0
	for _, ev := range events {
		if ev.PushSentAt != nil {
			pushed++
		}
	}
	assert.Equal(t, 1, pushed)
	assert.Equal(t, 1, f.push.Calls())
}

func TestAlerts_CooldownExpires(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")
	f.registerToken(t, p, "device-1")
	ctx := context.Background()

	first, err := f.alerts.Evaluate(ctx, p.AccountID, 65)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, model.AlertSent, first[0].Status)

	f.now = f.now.Add(11 * time.Minute)
	second, err := f.alerts.Evaluate(ctx, p.AccountID, 65)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, model.AlertSent, second[0].Status)
	assert.Equal(t, 2, f.push.Calls())
}

func TestAlerts_PushFailureMarksEventFailed(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")
	f.registerToken(t, p, "device-1")
	ctx := context.Background()

	zero := 0
	_, err := f.alerts.UpdateRule(ctx, p, "HYPER", model.UpdateUserAlertRuleRequest{CooldownSeconds: &zero})
	require.NoError(t, err)
	f.push.err = errors.New("push error")

	events, err := f.alerts.Evaluate(ctx, p.AccountID, 200)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "HYPER", events[0].Rule.Code)
	assert.Equal(t, model.AlertFailed, events[0].Status)
	assert.Contains(t, events[0].ErrorMessage, "push error")
	assert.Nil(t, events[0].PushSentAt)

	// the failed claim is released, so the next reading pushes again
	f.push.err = nil
	events, err = f.alerts.Evaluate(ctx, p.AccountID, 200)
	require.NoError(t, err)
	assert.Equal(t, model.AlertSent, events[0].Status)
}

func TestAlerts_NoTokensKeepsTriggered(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")

	events, err := f.alerts.Evaluate(context.Background(), p.AccountID, 65)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.AlertTriggered, events[0].Status)
	assert.Equal(t, 0, f.push.Calls())
}

func TestAlerts_UnregisteredTokensAreDeactivated(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")
	f.registerToken(t, p, "device-1")
	f.registerToken(t, p, "device-gone")
	f.push.unreg = []string{"device-gone"}
	ctx := context.Background()

	_, err := f.alerts.Evaluate(ctx, p.AccountID, 65)
	require.NoError(t, err)

	tokens, err := f.tokens.ActiveTokens(ctx, p.AccountID)
	require.NoError(t, err)
	assert.Equal(t, []string{"device-1"}, tokens)
}

func TestAlerts_EventsOrderedBySeverity(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")

	events, err := f.alerts.Evaluate(context.Background(), p.AccountID, 40)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "HYPO_SEVERE", events[0].Rule.Code)
	assert.Equal(t, "HYPO", events[1].Rule.Code)
}

func TestAlerts_OverrideAndDisable(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")
	ctx := context.Background()

	min := 80.0
	resp, err := f.alerts.UpdateRule(ctx, p, "HYPO", model.UpdateUserAlertRuleRequest{MinOverride: &min})
	require.NoError(t, err)
	assert.Equal(t, 80.0, *resp.MinOverride)

	events, err := f.alerts.Evaluate(ctx, p.AccountID, 75)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	disabled := false
	_, err = f.alerts.UpdateRule(ctx, p, "HYPO", model.UpdateUserAlertRuleRequest{Enabled: &disabled})
	require.NoError(t, err)
	events, err = f.alerts.Evaluate(ctx, p.AccountID, 75)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAlerts_UpdateRuleValidation(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")
	ctx := context.Background()

	max := 60.0
	_, err := f.alerts.UpdateRule(ctx, p, "HYPO", model.UpdateUserAlertRuleRequest{MaxOverride: &max})
	assert.Equal(t, KindValidation, kindOf(t, err))

	negative := -1
	_, err = f.alerts.UpdateRule(ctx, p, "HYPO", model.UpdateUserAlertRuleRequest{CooldownSeconds: &negative})
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = f.alerts.UpdateRule(ctx, p, "NOPE", model.UpdateUserAlertRuleRequest{})
	assert.Equal(t, KindNotFound, kindOf(t, err))
}

func TestAlerts_RulesListsSubscriptions(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")

	rules, err := f.alerts.Rules(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, rules, 4)
	assert.Equal(t, "HYPO_SEVERE", rules[0].Code)
	for _, r := range rules {
		assert.True(t, r.Enabled)
		assert.Equal(t, model.DefaultCooldownSeconds, r.CooldownSeconds)
	}
}

func TestAlerts_AckIsIdempotent(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")
	f.registerToken(t, p, "device-1")
	ctx := context.Background()

	events, err := f.alerts.Evaluate(ctx, p.AccountID, 65)
	require.NoError(t, err)
	require.Equal(t, model.AlertSent, events[0].Status)

	first, err := f.alerts.Ack(ctx, p, events[0].ID)
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	second, err := f.alerts.Ack(ctx, p, events[0].ID)
	require.NoError(t, err)

	assert.Equal(t, model.AlertAcked, second.Status)
	require.NotNil(t, first.AckedAt)
	require.NotNil(t, second.AckedAt)
	assert.True(t, first.AckedAt.Equal(*second.AckedAt))
}

func TestAlerts_TreatThenAck(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")
	ctx := context.Background()

	events, err := f.alerts.Evaluate(ctx, p.AccountID, 65)
	require.NoError(t, err)
	id := events[0].ID

	treated, err := f.alerts.Treat(ctx, p, id)
	require.NoError(t, err)
	assert.Equal(t, model.AlertTreating, treated.Status)
	assert.NotNil(t, treated.TreatedAt)

	again, err := f.alerts.Treat(ctx, p, id)
	require.NoError(t, err)
	assert.Equal(t, model.AlertTreating, again.Status)

	acked, err := f.alerts.Ack(ctx, p, id)
	require.NoError(t, err)
	assert.Equal(t, model.AlertAcked, acked.Status)
	assert.Nil(t, acked.ResolvedAt)

	_, err = f.alerts.Treat(ctx, p, id)
	assert.Equal(t, KindConflict, kindOf(t, err))
}

func TestAlerts_LifecycleIsScopedToOwner(t *testing.T) {
	f := newFixture(t)
	owner := f.patient(t, "p1@example.com")
	other := f.patient(t, "p2@example.com")
	ctx := context.Background()

	events, err := f.alerts.Evaluate(ctx, owner.AccountID, 65)
	require.NoError(t, err)

	_, err = f.alerts.Ack(ctx, other, events[0].ID)
	assert.Equal(t, KindNotFound, kindOf(t, err))
}

func TestAlerts_HistoryFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")
	ctx := context.Background()

	events, err := f.alerts.Evaluate(ctx, p.AccountID, 65)
	require.NoError(t, err)
	_, err = f.alerts.Ack(ctx, p, events[0].ID)
	require.NoError(t, err)
	f.now = f.now.Add(time.Hour)
	_, err = f.alerts.Evaluate(ctx, p.AccountID, 200)
	require.NoError(t, err)

	acked, err := f.alerts.History(ctx, p, "ACKED")
	require.NoError(t, err)
	require.Len(t, acked, 1)
	assert.Equal(t, "HYPO", acked[0].Rule.Code)

	_, err = f.alerts.History(ctx, p, "RESOLVED")
	assert.Equal(t, KindValidation, kindOf(t, err))
}

// gatedTransport holds every Send until release is closed
type gatedTransport struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTransport) Send(ctx context.Context, msgs []notification.Message) (*notification.Result, error) {
	g.entered <- struct{}{}
	<-g.release
	return &notification.Result{Sent: len(msgs)}, nil
}

// ingest runs the alert engine the way the reading transaction does and
// returns the work left for after commit
func ingest(t *testing.T, f *fixture, svc *AlertService, p model.Principal, value float64) event.AfterCommit {
	t.Helper()
	var after event.AfterCommit
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		after, err = svc.OnReadingTx(context.Background(), tx, event.ReadingCommitted{
			Reading:     model.ReadingHistory{AccountID: p.AccountID, Value: value, MeasuredAt: f.now},
			CommittedAt: f.now,
		})
		return err
	}))
	return after
}

func TestAlerts_AckDuringPushKeepsDeliveryTime(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")
	f.registerToken(t, p, "device-1")
	ctx := context.Background()

	gate := &gatedTransport{entered: make(chan struct{}, 1), release: make(chan struct{})}
	svc := NewAlertService(f.db, f.alertsDB, f.tokens, gate, time.Second)
	svc.SetClock(func() time.Time { return f.now })

	after := ingest(t, f, svc, p, 65)
	require.NotNil(t, after)
	done := make(chan struct{})
	go func() {
		defer close(done)
		after(ctx)
	}()
	<-gate.entered

	events := accountEvents(t, f, p)
	require.Len(t, events, 1)
	_, err := svc.Ack(ctx, p, events[0].ID)
	require.NoError(t, err)

	close(gate.release)
	<-done

	ev, err := f.alertsDB.FindEvent(ctx, p.AccountID, events[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertAcked, ev.Status)
	require.NotNil(t, ev.PushSentAt)
	assert.True(t, ev.PushSentAt.Equal(f.now))
}

func TestAlerts_FailedPushHandsOverToSuppressedEvent(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")
	f.registerToken(t, p, "device-1")
	ctx := context.Background()

	first := ingest(t, f, f.alerts, p, 65)
	require.NotNil(t, first)
	// the first push is still in flight, so the second reading is suppressed
	second := ingest(t, f, f.alerts, p, 60)
	assert.Nil(t, second)

	f.push.errs = []error{errors.New("push error")}
	first(ctx)

	events := accountEvents(t, f, p)
	require.Len(t, events, 2)
	byValue := map[float64]model.AlertEvent{}
	for _, ev := range events {
		byValue[ev.GlycemiaValue] = ev
	}
	assert.Equal(t, model.AlertFailed, byValue[65].Status)
	assert.Nil(t, byValue[65].PushSentAt)
	assert.Equal(t, model.AlertSent, byValue[60].Status)
	assert.NotNil(t, byValue[60].PushSentAt)
	assert.Equal(t, 2, f.push.Calls())
}
