package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultCooldownSeconds is the per-rule push cooldown given to new subscriptions
const DefaultCooldownSeconds = 600

// Severity of an alert rule
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Rank orders severities, higher is more severe
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// AlertRule is a named threshold policy shared by every account
type AlertRule struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Code        string    `json:"code" gorm:"size:32;not null;uniqueIndex"`
	Name        string    `json:"name" gorm:"size:100;not null"`
	Severity    Severity  `json:"severity" gorm:"type:varchar(10);not null"`
	MinGlycemia *float64  `json:"min_glycemia,omitempty"`
	MaxGlycemia *float64  `json:"max_glycemia,omitempty"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
}

// DefaultAlertRules is the catalogue installed by migrations and the seeder
func DefaultAlertRules() []AlertRule {
	f := func(v float64) *float64 { return &v }
	return []AlertRule{
		{Code: "HYPO_SEVERE", Name: "Severe hypoglycemia", Severity: SeverityCritical, MinGlycemia: f(54), IsActive: true},
		{Code: "HYPO", Name: "Hypoglycemia", Severity: SeverityHigh, MinGlycemia: f(70), IsActive: true},
		{Code: "HYPER", Name: "Hyperglycemia", Severity: SeverityMedium, MaxGlycemia: f(180), IsActive: true},
		{Code: "HYPER_SEVERE", Name: "Severe hyperglycemia", Severity: SeverityHigh, MaxGlycemia: f(250), IsActive: true},
	}
}

// UserAlertRule is an account's subscription to a rule with its overrides
type UserAlertRule struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	AccountID       uuid.UUID  `json:"account_id" gorm:"type:uuid;not null;uniqueIndex:idx_user_rule"`
	RuleID          uint       `json:"rule_id" gorm:"not null;uniqueIndex:idx_user_rule"`
	Enabled         bool       `json:"enabled"`
	MinOverride     *float64   `json:"min_override,omitempty"`
	MaxOverride     *float64   `json:"max_override,omitempty"`
	CooldownSeconds int        `json:"cooldown_seconds" gorm:"not null;default:600"`
	PushClaimedAt   *time.Time `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Rule *AlertRule `json:"rule,omitempty" gorm:"foreignKey:RuleID"`
}

func (u *UserAlertRule) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// EffectiveThresholds resolves the bounds used for matching. An override
// replaces the rule's bound on its own side only.
func (u *UserAlertRule) EffectiveThresholds(rule *AlertRule) (lower, upper *float64) {
	lower, upper = rule.MinGlycemia, rule.MaxGlycemia
	if u.MinOverride != nil {
		lower = u.MinOverride
	}
	if u.MaxOverride != nil {
		upper = u.MaxOverride
	}
	return lower, upper
}

// RuleMatches reports whether value lies strictly outside [lower, upper].
// A nil bound never matches on its side.
func RuleMatches(lower, upper *float64, value float64) bool {
	if lower != nil && value < *lower {
		return true
	}
	if upper != nil && value > *upper {
		return true
	}
	return false
}

// AlertStatus is the delivery state of an AlertEvent
type AlertStatus string

const (
	AlertTriggered AlertStatus = "TRIGGERED"
	AlertSent      AlertStatus = "SENT"
	AlertFailed    AlertStatus = "FAILED"
	AlertTreating  AlertStatus = "TREATING"
	AlertAcked     AlertStatus = "ACKED"
)

func (s AlertStatus) Valid() bool {
	switch s {
	case AlertTriggered, AlertSent, AlertFailed, AlertTreating, AlertAcked:
		return true
	}
	return false
}

// alertPredecessors lists, for each target status, the statuses it may be reached from
var alertPredecessors = map[AlertStatus][]AlertStatus{
	AlertSent:     {AlertTriggered},
	AlertFailed:   {AlertTriggered},
	AlertTreating: {AlertTriggered, AlertSent, AlertFailed},
	AlertAcked:    {AlertTriggered, AlertSent, AlertFailed, AlertTreating},
}

// AlertPredecessors returns the statuses from which to may be entered
func AlertPredecessors(to AlertStatus) []AlertStatus {
	return alertPredecessors[to]
}

// CanTransition reports whether from -> to is a forward move of the lifecycle
func CanTransition(from, to AlertStatus) bool {
	for _, s := range alertPredecessors[to] {
		if s == from {
			return true
		}
	}
	return false
}

// AlertEvent is the durable record of one rule firing for one reading
type AlertEvent struct {
	ID             uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	AccountID      uuid.UUID   `json:"account_id" gorm:"type:uuid;not null;index:idx_alert_account_triggered,priority:1"`
	RuleID         uint        `json:"rule_id" gorm:"not null;index"`
	GlycemiaValue  float64     `json:"glycemia_value" gorm:"not null"`
	TriggeredAt    time.Time   `json:"triggered_at" gorm:"not null;index:idx_alert_account_triggered,priority:2,sort:desc"`
	Status         AlertStatus `json:"status" gorm:"type:varchar(10);not null;index"`
	InappCreatedAt *time.Time  `json:"inapp_created_at,omitempty"`
	PushSentAt     *time.Time  `json:"push_sent_at,omitempty"`
	AckedAt        *time.Time  `json:"acked_at,omitempty"`
	TreatedAt      *time.Time  `json:"treated_at,omitempty"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty" gorm:"type:text"`

	Rule *AlertRule `json:"rule,omitempty" gorm:"foreignKey:RuleID"`
}

func (e *AlertEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
