package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/event"
	"github.com/glycopilot/glycopilot-api/internal/metrics"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/repository"
	"github.com/glycopilot/glycopilot-api/pkg/notification"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AlertService evaluates alert rules against new readings, delivers pushes
// under the per-rule cooldown and drives the alert event lifecycle.
type AlertService struct {
	db          *gorm.DB
	alerts      *repository.AlertRepository
	tokens      *repository.PushTokenRepository
	push        notification.Transport
	pushTimeout time.Duration
	clock       func() time.Time
}

func NewAlertService(
	db *gorm.DB,
	alerts *repository.AlertRepository,
	tokens *repository.PushTokenRepository,
	push notification.Transport,
	pushTimeout time.Duration,
) *AlertService {
	return &AlertService{
		db:          db,
		alerts:      alerts,
		tokens:      tokens,
		push:        push,
		pushTimeout: pushTimeout,
		clock:       time.Now,
	}
}

// SetClock replaces the time source
func (s *AlertService) SetClock(clock func() time.Time) {
	s.clock = clock
}

// now is truncated to what the database stores so claims compare equal
func (s *AlertService) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

// delivery is a push claimed inside the reading transaction, to run after commit
type delivery struct {
	event     model.AlertEvent
	rule      *model.AlertRule
	subID     uuid.UUID
	claimedAt time.Time
}

// OnReadingTx materializes alert events inside the reading transaction and
// returns the push deliveries to run once it commits.
func (s *AlertService) OnReadingTx(ctx context.Context, tx *gorm.DB, ev event.ReadingCommitted) (event.AfterCommit, error) {
	_, deliveries, err := s.materialize(ctx, tx, ev.Reading.AccountID, ev.Reading.Value, ev.CommittedAt.UTC().Truncate(time.Microsecond))
	if err != nil {
		return nil, err
	}
	if len(deliveries) == 0 {
		return nil, nil
	}
	return func(ctx context.Context) {
		for _, d := range deliveries {
			s.deliver(ctx, d)
		}
	}, nil
}

// Evaluate runs the engine for one value outside of ingestion: it
// materializes events in its own transaction, delivers pushes, and returns
// the events in rule order with their final status.
func (s *AlertService) Evaluate(ctx context.Context, accountID uuid.UUID, value float64) ([]model.AlertEvent, error) {
	var (
		events     []model.AlertEvent
		deliveries []delivery
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		events, deliveries, err = s.materialize(ctx, tx, accountID, value, s.now())
		return err
	})
	if err != nil {
		return nil, Internal("failed to evaluate alert rules", err)
	}
	for _, d := range deliveries {
		s.deliver(ctx, d)
	}
	for i := range events {
		if fresh, err := s.alerts.FindEvent(ctx, accountID, events[i].ID); err == nil {
			events[i] = *fresh
		}
	}
	return events, nil
}

// materialize creates one TRIGGERED event per matching rule, ordered by
// severity then code, and claims a push for each rule outside its cooldown.
func (s *AlertService) materialize(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, value float64, now time.Time) ([]model.AlertEvent, []delivery, error) {
	alerts := s.alerts.WithTx(tx)

	subs, err := alerts.EnabledUserRules(ctx, accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user rules: %w", err)
	}
	sortByPriority(subs)

	var (
		events     []model.AlertEvent
		deliveries []delivery
	)
	for _, sub := range subs {
		lower, upper := sub.EffectiveThresholds(sub.Rule)
		if !model.RuleMatches(lower, upper, value) {
			continue
		}

		locked, err := alerts.LockUserRule(ctx, sub.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("lock user rule %s: %w", sub.Rule.Code, err)
		}

		ev := model.AlertEvent{
			AccountID:      accountID,
			RuleID:         sub.RuleID,
			GlycemiaValue:  value,
			TriggeredAt:    now,
			Status:         model.AlertTriggered,
			InappCreatedAt: &now,
		}
		if err := alerts.CreateEvent(ctx, &ev); err != nil {
			return nil, nil, fmt.Errorf("create alert event: %w", err)
		}
		ev.Rule = sub.Rule
		events = append(events, ev)
		metrics.AlertEvents.WithLabelValues(sub.Rule.Code).Inc()

		window := now.Add(-time.Duration(locked.CooldownSeconds) * time.Second)
		if locked.PushClaimedAt != nil && !locked.PushClaimedAt.Before(window) {
			log.Debug().Str("rule", sub.Rule.Code).Str("event_id", ev.ID.String()).Msg("push suppressed by cooldown")
			continue
		}
		pushed, err := alerts.PushedSince(ctx, accountID, sub.RuleID, window)
		if err != nil {
			return nil, nil, fmt.Errorf("cooldown check: %w", err)
		}
		if pushed {
			log.Debug().Str("rule", sub.Rule.Code).Str("event_id", ev.ID.String()).Msg("push suppressed by cooldown")
			continue
		}
		if err := alerts.ClaimPush(ctx, sub.ID, now); err != nil {
			return nil, nil, fmt.Errorf("claim push: %w", err)
		}
		deliveries = append(deliveries, delivery{event: ev, rule: sub.Rule, subID: sub.ID, claimedAt: now})
	}
	return events, deliveries, nil
}

// sortByPriority orders subscriptions by rule severity descending, then code ascending
func sortByPriority(subs []model.UserAlertRule) {
	sort.SliceStable(subs, func(i, j int) bool {
		ri, rj := subs[i].Rule.Severity.Rank(), subs[j].Rule.Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return subs[i].Rule.Code < subs[j].Rule.Code
	})
}

// deliver pushes one claimed event to every active token of its account and
// records the outcome. No row lock is held during the network call.
func (s *AlertService) deliver(ctx context.Context, d delivery) {
	logger := log.With().
		Str("account_id", d.event.AccountID.String()).
		Str("event_id", d.event.ID.String()).
		Str("rule", d.rule.Code).
		Logger()

	tokens, err := s.tokens.ActiveTokens(ctx, d.event.AccountID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load push tokens")
		s.release(ctx, d)
		return
	}
	if len(tokens) == 0 || s.push == nil {
		metrics.PushDeliveries.WithLabelValues("no_tokens").Inc()
		s.release(ctx, d)
		return
	}

	msgs := notification.NewMessages(tokens, d.rule.Name, pushBody(d), map[string]string{
		"type":     "glycemia_alert",
		"event_id": d.event.ID.String(),
		"rule":     d.rule.Code,
		"severity": string(d.rule.Severity),
	})

	pushCtx, cancel := context.WithTimeout(ctx, s.pushTimeout)
	start := time.Now()
	res, err := s.push.Send(pushCtx, msgs)
	cancel()
	metrics.PushLatency.Observe(time.Since(start).Seconds())

	if res != nil && len(res.Unregistered) > 0 {
		if derr := s.tokens.Deactivate(ctx, res.Unregistered); derr != nil {
			logger.Error().Err(derr).Msg("failed to deactivate unregistered tokens")
		}
	}

	switch {
	case errors.Is(err, notification.ErrNoActiveTokens):
		metrics.PushDeliveries.WithLabelValues("no_tokens").Inc()
		s.release(ctx, d)

	case err != nil:
		metrics.PushDeliveries.WithLabelValues("failed").Inc()
		logger.Warn().Err(err).Msg("push delivery failed")
		txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			alerts := s.alerts.WithTx(tx)
			if _, err := alerts.Transition(ctx, d.event.ID, model.AlertFailed, map[string]interface{}{
				"error_message": err.Error(),
			}); err != nil {
				return err
			}
			return alerts.ReleasePush(ctx, d.subID, d.claimedAt)
		})
		if txErr != nil {
			logger.Error().Err(txErr).Msg("failed to record push failure")
			return
		}
		s.requeue(ctx, d)

	default:
		metrics.PushDeliveries.WithLabelValues("sent").Inc()
		txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			alerts := s.alerts.WithTx(tx)
			if err := alerts.MarkPushSent(ctx, d.event.ID, d.claimedAt); err != nil {
				return err
			}
			n, err := alerts.Transition(ctx, d.event.ID, model.AlertSent, nil)
			if err != nil {
				return err
			}
			if n == 0 {
				logger.Info().Msg("alert left TRIGGERED before push completed, status kept")
			}
			return nil
		})
		if txErr != nil {
			logger.Error().Err(txErr).Msg("failed to record push success")
		}
	}
}

// requeue hands the released claim of a failed push to the newest event of
// the same rule whose push was suppressed while d was in flight.
func (s *AlertService) requeue(ctx context.Context, d delivery) {
	now := s.now()
	var next *delivery
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		alerts := s.alerts.WithTx(tx)
		locked, err := alerts.LockUserRule(ctx, d.subID)
		if err != nil {
			return err
		}
		window := now.Add(-time.Duration(locked.CooldownSeconds) * time.Second)
		if locked.PushClaimedAt != nil && !locked.PushClaimedAt.Before(window) {
			return nil
		}
		pushed, err := alerts.PushedSince(ctx, d.event.AccountID, d.event.RuleID, window)
		if err != nil || pushed {
			return err
		}
		ev, err := alerts.LatestUnpushed(ctx, d.event.AccountID, d.event.RuleID, d.claimedAt, d.event.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := alerts.ClaimPush(ctx, d.subID, now); err != nil {
			return err
		}
		next = &delivery{event: *ev, rule: d.rule, subID: d.subID, claimedAt: now}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("event_id", d.event.ID.String()).Msg("failed to requeue suppressed alert")
		return
	}
	if next != nil {
		log.Info().
			Str("event_id", next.event.ID.String()).
			Str("failed_event_id", d.event.ID.String()).
			Msg("pushing alert suppressed by a failed delivery")
		s.deliver(ctx, *next)
	}
}

func (s *AlertService) release(ctx context.Context, d delivery) {
	if err := s.alerts.ReleasePush(ctx, d.subID, d.claimedAt); err != nil {
		log.Error().Err(err).Str("event_id", d.event.ID.String()).Msg("failed to release push claim")
	}
}

func pushBody(d delivery) string {
	return fmt.Sprintf("Glucose at %.0f mg/dL (%s)", d.event.GlycemiaValue, d.rule.Code)
}

// ========== Lifecycle ==========

// Ack acknowledges an event. A second call leaves the event untouched and returns it.
func (s *AlertService) Ack(ctx context.Context, p model.Principal, eventID uuid.UUID) (*model.AlertEvent, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		alerts := s.alerts.WithTx(tx)
		ev, err := alerts.LockEvent(ctx, p.AccountID, eventID)
		if err != nil {
			return err
		}
		if ev.AckedAt != nil {
			return nil
		}
		n, err := alerts.Transition(ctx, ev.ID, model.AlertAcked, map[string]interface{}{"acked_at": s.now()})
		if err != nil {
			return err
		}
		if n == 0 {
			return Conflict("invalid_transition", "alert cannot be acknowledged from "+string(ev.Status))
		}
		return nil
	})
	if err != nil {
		return nil, s.lifecycleError(err)
	}
	return s.loadEvent(ctx, p.AccountID, eventID)
}

// Treat marks an event as being treated. Treating an acknowledged event is a conflict.
func (s *AlertService) Treat(ctx context.Context, p model.Principal, eventID uuid.UUID) (*model.AlertEvent, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		alerts := s.alerts.WithTx(tx)
		ev, err := alerts.LockEvent(ctx, p.AccountID, eventID)
		if err != nil {
			return err
		}
		if ev.Status == model.AlertTreating {
			return nil
		}
		if !model.CanTransition(ev.Status, model.AlertTreating) {
			return Conflict("alert_already_acked", "alert already acknowledged")
		}
		n, err := alerts.Transition(ctx, ev.ID, model.AlertTreating, map[string]interface{}{"treated_at": s.now()})
		if err != nil {
			return err
		}
		if n == 0 {
			return Conflict("invalid_transition", "alert cannot be treated from "+string(ev.Status))
		}
		return nil
	})
	if err != nil {
		return nil, s.lifecycleError(err)
	}
	return s.loadEvent(ctx, p.AccountID, eventID)
}

func (s *AlertService) loadEvent(ctx context.Context, accountID, id uuid.UUID) (*model.AlertEvent, error) {
	ev, err := s.alerts.FindEvent(ctx, accountID, id)
	if err != nil {
		return nil, notFoundOr(err, "alert not found")
	}
	return ev, nil
}

func (s *AlertService) lifecycleError(err error) error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return notFoundOr(err, "alert not found")
}

// History lists the caller's events, newest first
func (s *AlertService) History(ctx context.Context, p model.Principal, status string) ([]model.AlertEvent, error) {
	st := model.AlertStatus(status)
	if status != "" && !st.Valid() {
		return nil, Validation("status", "unknown alert status")
	}
	events, err := s.alerts.ListEvents(ctx, p.AccountID, st, 200)
	if err != nil {
		return nil, Internal("failed to list alerts", err)
	}
	return events, nil
}

// ========== Rule overrides ==========

// Rules lists the caller's subscriptions with rule thresholds and overrides
func (s *AlertService) Rules(ctx context.Context, p model.Principal) ([]model.UserAlertRuleResponse, error) {
	subs, err := s.alerts.UserRules(ctx, p.AccountID)
	if err != nil {
		return nil, Internal("failed to list alert rules", err)
	}
	out := make([]model.UserAlertRuleResponse, 0, len(subs))
	for i := range subs {
		out = append(out, ruleResponse(&subs[i]))
	}
	return out, nil
}

// UpdateRule changes the caller's subscription to the rule with code
func (s *AlertService) UpdateRule(ctx context.Context, p model.Principal, code string, req model.UpdateUserAlertRuleRequest) (*model.UserAlertRuleResponse, error) {
	sub, err := s.alerts.FindUserRuleByCode(ctx, p.AccountID, code)
	if err != nil {
		return nil, notFoundOr(err, "alert rule not found")
	}

	if req.Enabled != nil {
		sub.Enabled = *req.Enabled
	}
	if req.ClearMin {
		sub.MinOverride = nil
	} else if req.MinOverride != nil {
		sub.MinOverride = req.MinOverride
	}
	if req.ClearMax {
		sub.MaxOverride = nil
	} else if req.MaxOverride != nil {
		sub.MaxOverride = req.MaxOverride
	}
	if req.CooldownSeconds != nil {
		if *req.CooldownSeconds < 0 {
			return nil, Validation("cooldown_seconds", "cooldown must be zero or positive")
		}
		sub.CooldownSeconds = *req.CooldownSeconds
	}

	lower, upper := sub.EffectiveThresholds(sub.Rule)
	if lower != nil && upper != nil && *lower > *upper {
		return nil, Validation("min_override", "minimum threshold is above maximum threshold")
	}

	if err := s.alerts.SaveUserRuleSettings(ctx, sub); err != nil {
		return nil, Internal("failed to update alert rule", err)
	}
	resp := ruleResponse(sub)
	return &resp, nil
}

func ruleResponse(sub *model.UserAlertRule) model.UserAlertRuleResponse {
	return model.UserAlertRuleResponse{
		Code:            sub.Rule.Code,
		Name:            sub.Rule.Name,
		Severity:        sub.Rule.Severity,
		Enabled:         sub.Enabled,
		MinGlycemia:     sub.Rule.MinGlycemia,
		MaxGlycemia:     sub.Rule.MaxGlycemia,
		MinOverride:     sub.MinOverride,
		MaxOverride:     sub.MaxOverride,
		CooldownSeconds: sub.CooldownSeconds,
	}
}
