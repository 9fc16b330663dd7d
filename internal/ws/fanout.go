package ws

import (
	"context"

	"github.com/glycopilot/glycopilot-api/internal/event"
	"github.com/glycopilot/glycopilot-api/internal/model"
)

// Fanout pushes committed readings to the live subscribers of the
// reading's account. Its thresholds are independent of alert rules.
type Fanout struct {
	hub   *Hub
	hypo  float64
	hyper float64
}

func NewFanout(hub *Hub, hypo, hyper float64) *Fanout {
	return &Fanout{hub: hub, hypo: hypo, hyper: hyper}
}

func (f *Fanout) Name() string { return "realtime" }

// OnReading emits reading_update, then reading_alert when the value is out of range
func (f *Fanout) OnReading(ctx context.Context, ev event.ReadingCommitted) {
	group := GroupName(ev.Reading.AccountID)
	f.hub.GroupSend(ctx, group, model.WSEnvelope{Type: model.WSReadingUpdate, Data: ev.Reading})

	if alertType := f.classify(ev.Reading.Value); alertType != "" {
		f.hub.GroupSend(ctx, group, model.WSEnvelope{
			Type:      model.WSReadingAlert,
			AlertType: alertType,
			Data:      ev.Reading,
		})
	}
}

func (f *Fanout) classify(value float64) string {
	switch {
	case value < f.hypo:
		return model.AlertTypeHypo
	case value > f.hyper:
		return model.AlertTypeHyper
	}
	return ""
}
