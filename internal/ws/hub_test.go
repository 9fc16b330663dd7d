package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/event"
	"github.com/glycopilot/glycopilot-api/internal/metrics"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.done
	})
	return hub
}

func join(t *testing.T, hub *Hub, accountID uuid.UUID) *Client {
	t.Helper()
	c := NewClient(hub, nil, accountID, GroupName(accountID))
	require.True(t, hub.Register(c))
	return c
}

func receive(t *testing.T, c *Client) model.WSEnvelope {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var env model.WSEnvelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("no envelope received")
	}
	return model.WSEnvelope{}
}

func TestHub_GroupSendReachesOnlyTheGroup(t *testing.T) {
	hub := startHub(t)
	patient := uuid.New()
	first := join(t, hub, patient)
	second := join(t, hub, patient)
	stranger := join(t, hub, uuid.New())

	assert.Equal(t, 2, hub.GroupSize(GroupName(patient)))

	hub.GroupSend(context.Background(), GroupName(patient), model.WSEnvelope{Type: model.WSReadingUpdate})

	assert.Equal(t, model.WSReadingUpdate, receive(t, first).Type)
	assert.Equal(t, model.WSReadingUpdate, receive(t, second).Type)
	assert.Empty(t, stranger.send)
}

func TestHub_UnregisterTwiceIsNoop(t *testing.T) {
	hub := startHub(t)
	patient := uuid.New()
	c := join(t, hub, patient)

	hub.Unregister(c)
	hub.Unregister(c)

	assert.Equal(t, 0, hub.GroupSize(GroupName(patient)))
	_, ok := <-c.send
	assert.False(t, ok)
}

func TestHub_SlowClientIsDetached(t *testing.T) {
	hub := startHub(t)
	patient := uuid.New()
	slow := join(t, hub, patient)
	fast := join(t, hub, patient)

	for i := 0; i < sendBuffer; i++ {
		slow.send <- []byte(`{}`)
	}
	dropped := testutil.ToFloat64(metrics.RealtimeDropped)

	hub.GroupSend(context.Background(), GroupName(patient), model.WSEnvelope{Type: model.WSReadingUpdate})

	assert.Equal(t, model.WSReadingUpdate, receive(t, fast).Type)
	assert.Equal(t, 1, hub.GroupSize(GroupName(patient)))
	assert.Equal(t, dropped+1, testutil.ToFloat64(metrics.RealtimeDropped))

	// the detached client drains what it had, then sees the channel closed
	for i := 0; i < sendBuffer; i++ {
		<-slow.send
	}
	_, ok := <-slow.send
	assert.False(t, ok)
}

func TestHub_GreetingPrecedesGroupTraffic(t *testing.T) {
	hub := startHub(t)
	patient := uuid.New()
	c := NewClient(hub, nil, patient, GroupName(patient))
	require.NoError(t, c.Greet(model.WSEnvelope{Type: model.WSConnectionEstablished, UserID: patient.String()}))
	require.True(t, hub.Register(c))

	hub.GroupSend(context.Background(), GroupName(patient), model.WSEnvelope{Type: model.WSReadingUpdate})

	first := receive(t, c)
	assert.Equal(t, model.WSConnectionEstablished, first.Type)
	assert.Equal(t, patient.String(), first.UserID)
	assert.Equal(t, model.WSReadingUpdate, receive(t, c).Type)
}

func TestHub_SendIgnoresUnknownClient(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub, nil, uuid.New(), "reading_user_nobody")

	hub.Send(c, model.WSEnvelope{Type: model.WSPong})
	assert.Empty(t, c.send)
}

func TestHub_RegisterAfterStop(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	c := NewClient(hub, nil, uuid.New(), "reading_user_x")
	assert.False(t, hub.Register(c))
}

func TestFanout_ClassifiesReadings(t *testing.T) {
	hub := startHub(t)
	patient := uuid.New()
	c := join(t, hub, patient)
	fanout := NewFanout(hub, 70, 180)

	tests := []struct {
		value     float64
		alertType string
	}{
		{120, ""},
		{69, model.AlertTypeHypo},
		{70, ""},
		{180, ""},
		{181, model.AlertTypeHyper},
	}
	for _, tt := range tests {
		fanout.OnReading(context.Background(), event.ReadingCommitted{
			Reading: model.ReadingHistory{AccountID: patient, Value: tt.value},
		})

		assert.Equal(t, model.WSReadingUpdate, receive(t, c).Type, tt.value)
		if tt.alertType == "" {
			assert.Empty(t, c.send, tt.value)
			continue
		}
		alert := receive(t, c)
		assert.Equal(t, model.WSReadingAlert, alert.Type)
		assert.Equal(t, tt.alertType, alert.AlertType)
	}
}
