package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"gorm.io/gorm"
)

// CareLogRepository reads and writes medication, meal and activity logs
type CareLogRepository struct {
	db *gorm.DB
}

func NewCareLogRepository(db *gorm.DB) *CareLogRepository {
	return &CareLogRepository{db: db}
}

func (r *CareLogRepository) CreateSchedule(ctx context.Context, s *model.MedicationSchedule) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *CareLogRepository) CreateIntake(ctx context.Context, i *model.MedicationIntake) error {
	return r.db.WithContext(ctx).Omit("Schedule").Create(i).Error
}

func (r *CareLogRepository) CreateMeal(ctx context.Context, m *model.MealLog) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *CareLogRepository) CreateActivity(ctx context.Context, a *model.ActivityLog) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// NextDose returns the active schedule with the earliest next intake
func (r *CareLogRepository) NextDose(ctx context.Context, accountID uuid.UUID) (*model.MedicationSchedule, error) {
	var s model.MedicationSchedule
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND is_active = ? AND next_intake_at IS NOT NULL", accountID, true).
		Order("next_intake_at ASC").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Schedules lists every medication schedule of an account, active first
func (r *CareLogRepository) Schedules(ctx context.Context, accountID uuid.UUID) ([]model.MedicationSchedule, error) {
	var out []model.MedicationSchedule
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("is_active DESC").
		Order("started_at DESC").
		Find(&out).Error
	return out, err
}

// IntakesBetween lists intakes scheduled in [from, to), newest first
func (r *CareLogRepository) IntakesBetween(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]model.MedicationIntake, error) {
	var out []model.MedicationIntake
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND scheduled_at >= ? AND scheduled_at < ?", accountID, from, to).
		Order("scheduled_at DESC").
		Find(&out).Error
	return out, err
}

// IntakeCounts returns the number of doses expected in [from, to) and how many were taken
func (r *CareLogRepository) IntakeCounts(ctx context.Context, accountID uuid.UUID, from, to time.Time) (expected, taken int64, err error) {
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&model.MedicationIntake{}).
			Where("account_id = ? AND scheduled_at >= ? AND scheduled_at < ?", accountID, from, to)
	}
	if err = base().Count(&expected).Error; err != nil {
		return 0, 0, err
	}
	if err = base().Where("status = ?", model.IntakeTaken).Count(&taken).Error; err != nil {
		return 0, 0, err
	}
	return expected, taken, nil
}

// MealsBetween lists meals eaten in [from, to), newest first
func (r *CareLogRepository) MealsBetween(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]model.MealLog, error) {
	var out []model.MealLog
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND eaten_at >= ? AND eaten_at < ?", accountID, from, to).
		Order("eaten_at DESC").
		Find(&out).Error
	return out, err
}

// ActivitiesBetween lists activities started in [from, to)
func (r *CareLogRepository) ActivitiesBetween(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]model.ActivityLog, error) {
	var out []model.ActivityLog
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND start_at >= ? AND start_at < ?", accountID, from, to).
		Order("start_at ASC").
		Find(&out).Error
	return out, err
}
