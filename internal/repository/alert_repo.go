package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// severityOrder sorts alert_rules rows by severity, most severe first
const severityOrder = "CASE alert_rules.severity " +
	"WHEN 'CRITICAL' THEN 5 WHEN 'HIGH' THEN 4 WHEN 'MEDIUM' THEN 3 WHEN 'LOW' THEN 2 WHEN 'INFO' THEN 1 ELSE 0 END DESC"

// AlertRepository handles the rule catalog, user subscriptions and alert events
type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *AlertRepository) WithTx(tx *gorm.DB) *AlertRepository {
	return &AlertRepository{db: tx}
}

// ========== Rule catalog ==========

// UpsertRule creates or refreshes a catalog rule keyed by code
func (r *AlertRepository) UpsertRule(ctx context.Context, rule *model.AlertRule) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "severity", "min_glycemia", "max_glycemia", "is_active"}),
	}).Create(rule).Error
}

// ActiveRules lists the active catalog rules
func (r *AlertRepository) ActiveRules(ctx context.Context) ([]model.AlertRule, error) {
	var rules []model.AlertRule
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("code ASC").Find(&rules).Error
	return rules, err
}

// ========== User subscriptions ==========

// SubscribeAll inserts one subscription per rule, keeping existing ones untouched
func (r *AlertRepository) SubscribeAll(ctx context.Context, accountID uuid.UUID, rules []model.AlertRule) error {
	if len(rules) == 0 {
		return nil
	}
	subs := make([]model.UserAlertRule, 0, len(rules))
	for _, rule := range rules {
		subs = append(subs, model.UserAlertRule{
			AccountID:       accountID,
			RuleID:          rule.ID,
			Enabled:         true,
			CooldownSeconds: model.DefaultCooldownSeconds,
		})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "account_id"}, {Name: "rule_id"}}, DoNothing: true}).
		Omit("Rule").
		Create(&subs).Error
}

// UserRules lists every subscription of an account with its rule
func (r *AlertRepository) UserRules(ctx context.Context, accountID uuid.UUID) ([]model.UserAlertRule, error) {
	var subs []model.UserAlertRule
	err := r.db.WithContext(ctx).
		Preload("Rule").
		Joins("JOIN alert_rules ON alert_rules.id = user_alert_rules.rule_id").
		Where("user_alert_rules.account_id = ?", accountID).
		Order(severityOrder).
		Order("alert_rules.code ASC").
		Find(&subs).Error
	return subs, err
}

// EnabledUserRules lists the enabled subscriptions whose rule is active
func (r *AlertRepository) EnabledUserRules(ctx context.Context, accountID uuid.UUID) ([]model.UserAlertRule, error) {
	var subs []model.UserAlertRule
	err := r.db.WithContext(ctx).
		Preload("Rule").
		Joins("JOIN alert_rules ON alert_rules.id = user_alert_rules.rule_id").
		Where("user_alert_rules.account_id = ? AND user_alert_rules.enabled = ? AND alert_rules.is_active = ?", accountID, true, true).
		Find(&subs).Error
	return subs, err
}

// FindUserRuleByCode finds an account's subscription to the rule with code
func (r *AlertRepository) FindUserRuleByCode(ctx context.Context, accountID uuid.UUID, code string) (*model.UserAlertRule, error) {
	var sub model.UserAlertRule
	err := r.db.WithContext(ctx).
		Preload("Rule").
		Joins("JOIN alert_rules ON alert_rules.id = user_alert_rules.rule_id").
		Where("user_alert_rules.account_id = ? AND alert_rules.code = ?", accountID, code).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// SaveUserRuleSettings persists the user-editable fields of a subscription
func (r *AlertRepository) SaveUserRuleSettings(ctx context.Context, sub *model.UserAlertRule) error {
	return r.db.WithContext(ctx).Model(sub).
		Select("enabled", "min_override", "max_override", "cooldown_seconds").
		Updates(sub).Error
}

// LockUserRule reloads a subscription holding a row lock until the transaction ends
func (r *AlertRepository) LockUserRule(ctx context.Context, id uuid.UUID) (*model.UserAlertRule, error) {
	var sub model.UserAlertRule
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ClaimPush marks a subscription as having a push in flight
func (r *AlertRepository) ClaimPush(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.UserAlertRule{}).
		Where("id = ?", id).
		UpdateColumn("push_claimed_at", at).Error
}

// ReleasePush clears a claim if it is still the one taken at claimedAt
func (r *AlertRepository) ReleasePush(ctx context.Context, id uuid.UUID, claimedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.UserAlertRule{}).
		Where("id = ? AND push_claimed_at = ?", id, claimedAt).
		UpdateColumn("push_claimed_at", nil).Error
}

// PushedSince reports whether a push was delivered for (account, rule) at or after since
func (r *AlertRepository) PushedSince(ctx context.Context, accountID uuid.UUID, ruleID uint, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.AlertEvent{}).
		Where("account_id = ? AND rule_id = ? AND push_sent_at IS NOT NULL AND push_sent_at >= ?", accountID, ruleID, since).
		Count(&count).Error
	return count > 0, err
}

// ========== Events ==========

// CreateEvent inserts an alert event
func (r *AlertRepository) CreateEvent(ctx context.Context, event *model.AlertEvent) error {
	return r.db.WithContext(ctx).Omit("Rule").Create(event).Error
}

// FindEvent loads an event owned by accountID
func (r *AlertRepository) FindEvent(ctx context.Context, accountID, id uuid.UUID) (*model.AlertEvent, error) {
	var event model.AlertEvent
	err := r.db.WithContext(ctx).
		Preload("Rule").
		Where("id = ? AND account_id = ?", id, accountID).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// LockEvent loads an event owned by accountID holding a row lock
func (r *AlertRepository) LockEvent(ctx context.Context, accountID, id uuid.UUID) (*model.AlertEvent, error) {
	var event model.AlertEvent
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND account_id = ?", id, accountID).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// MarkPushSent records the delivery time of an event's push. It is written
// whatever the event status is, and never overwrites an earlier delivery.
func (r *AlertRepository) MarkPushSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.AlertEvent{}).
		Where("id = ? AND push_sent_at IS NULL", id).
		UpdateColumn("push_sent_at", at).Error
}

// LatestUnpushed returns the newest TRIGGERED event of (account, rule)
// triggered at or after since that never had a push, other than exclude
func (r *AlertRepository) LatestUnpushed(ctx context.Context, accountID uuid.UUID, ruleID uint, since time.Time, exclude uuid.UUID) (*model.AlertEvent, error) {
	var event model.AlertEvent
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND rule_id = ? AND status = ? AND push_sent_at IS NULL AND triggered_at >= ? AND id <> ?",
			accountID, ruleID, model.AlertTriggered, since, exclude).
		Order("triggered_at DESC").
		Take(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Transition moves an event to status to, only from one of its legal
// predecessors. It returns the number of rows changed, zero meaning the
// event was not in a state that allows the move.
func (r *AlertRepository) Transition(ctx context.Context, id uuid.UUID, to model.AlertStatus, fields map[string]interface{}) (int64, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	result := r.db.WithContext(ctx).Model(&model.AlertEvent{}).
		Where("id = ? AND status IN ?", id, model.AlertPredecessors(to)).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// ListEvents lists an account's events, newest first, optionally filtered by status
func (r *AlertRepository) ListEvents(ctx context.Context, accountID uuid.UUID, status model.AlertStatus, limit int) ([]model.AlertEvent, error) {
	var events []model.AlertEvent
	q := r.db.WithContext(ctx).Preload("Rule").Where("account_id = ?", accountID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Order("triggered_at DESC").Find(&events).Error
	return events, err
}

// TopActive returns the n most severe open events, latest first within a severity
func (r *AlertRepository) TopActive(ctx context.Context, accountID uuid.UUID, n int) ([]model.AlertEvent, error) {
	var events []model.AlertEvent
	err := r.db.WithContext(ctx).
		Preload("Rule").
		Joins("JOIN alert_rules ON alert_rules.id = alert_events.rule_id").
		Where("alert_events.account_id = ? AND alert_events.status IN ?", accountID,
			[]model.AlertStatus{model.AlertTriggered, model.AlertSent}).
		Order(severityOrder).
		Order("alert_events.triggered_at DESC").
		Limit(n).
		Find(&events).Error
	return events, err
}
