package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/repository"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	idealMealsPerDay    = 3.0
	activityGoalMinutes = 30
	topAlerts           = 3
	adherenceWindow     = 7 * 24 * time.Hour
)

// Score weights of the health score sub-scores
const (
	weightGlycemia  = 0.4
	weightAdherence = 0.2
	weightNutrition = 0.2
	weightActivity  = 0.2
)

// SummaryConfig carries the goals and the time-in-range bounds of the summary
type SummaryConfig struct {
	CaloriesGoal float64
	CarbsGoal    float64
	RangeLow     float64
	RangeHigh    float64
}

// SummaryService assembles the patient snapshot shown on the dashboard
type SummaryService struct {
	readings *repository.ReadingRepository
	alerts   *repository.AlertRepository
	carelogs *repository.CareLogRepository
	cfg      SummaryConfig
	clock    func() time.Time
}

func NewSummaryService(
	readings *repository.ReadingRepository,
	alerts *repository.AlertRepository,
	carelogs *repository.CareLogRepository,
	cfg SummaryConfig,
) *SummaryService {
	return &SummaryService{readings: readings, alerts: alerts, carelogs: carelogs, cfg: cfg, clock: time.Now}
}

// SetClock replaces the time source
func (s *SummaryService) SetClock(clock func() time.Time) {
	s.clock = clock
}

// ParseSections validates an include set. An empty set means every section.
func ParseSections(raw []string) ([]model.SummarySection, error) {
	if len(raw) == 0 {
		return model.AllSummarySections, nil
	}
	out := make([]model.SummarySection, 0, len(raw))
	for _, r := range raw {
		section := model.SummarySection(r)
		if !lo.Contains(model.AllSummarySections, section) {
			return nil, Validation("include", "unknown section "+r)
		}
		out = append(out, section)
	}
	return lo.Uniq(out), nil
}

// Summary builds the snapshot of accountID restricted to include. Sections
// and the score inputs are loaded concurrently.
func (s *SummaryService) Summary(ctx context.Context, accountID uuid.UUID, include []model.SummarySection) (*model.Summary, error) {
	if len(include) == 0 {
		include = model.AllSummarySections
	}
	now := s.clock().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	last24h := now.Add(-24 * time.Hour)

	var (
		out      model.Summary
		recent   []model.ReadingCache
		meals    []model.MealLog
		acts     []model.ActivityLog
		expected int64
		taken    int64
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		recent, err = s.readings.CacheSince(gctx, accountID, last24h)
		return err
	})
	g.Go(func() (err error) {
		meals, err = s.carelogs.MealsBetween(gctx, accountID, last24h, now)
		return err
	})
	g.Go(func() (err error) {
		acts, err = s.carelogs.ActivitiesBetween(gctx, accountID, dayStart, dayStart.Add(24*time.Hour))
		return err
	})
	g.Go(func() (err error) {
		expected, taken, err = s.carelogs.IntakeCounts(gctx, accountID, now.Add(-adherenceWindow), now)
		return err
	})

	for _, section := range include {
		switch section {
		case model.SectionGlucose:
			g.Go(func() error {
				glucose, err := s.glucose(gctx, accountID)
				out.Glucose = glucose
				return err
			})
		case model.SectionAlerts:
			g.Go(func() error {
				items, err := s.topAlerts(gctx, accountID)
				out.Alerts = &items
				return err
			})
		case model.SectionMedication:
			g.Go(func() error {
				med, err := s.medication(gctx, accountID, now)
				out.Medication = med
				return err
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, Internal("failed to build summary", err)
	}

	activeMinutes := int(math.Round(lo.SumBy(acts, func(a model.ActivityLog) float64 { return a.Minutes() })))
	for _, section := range include {
		switch section {
		case model.SectionNutrition:
			out.Nutrition = s.nutrition(meals)
		case model.SectionActivity:
			out.Activity = &model.ActivitySection{ActiveMinutes: activeMinutes, GoalMinutes: activityGoalMinutes}
		}
	}

	out.HealthScore = HealthScore(ScoreInputs{
		InRange:       s.timeInRange(recent),
		Expected:      expected,
		Taken:         taken,
		MealsPerDay:   len(meals),
		ActiveMinutes: activeMinutes,
	})
	return &out, nil
}

func (s *SummaryService) glucose(ctx context.Context, accountID uuid.UUID) (*model.GlucoseSection, error) {
	row, err := s.readings.Latest(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.GlucoseSection{Unit: model.DefaultUnit, Trend: model.TrendFlat}, nil
		}
		return nil, err
	}
	trend := row.Trend
	if trend == "" {
		trend = model.TrendFlat
	}
	value, measuredAt := row.Value, row.MeasuredAt
	return &model.GlucoseSection{Value: &value, Unit: row.Unit, Trend: trend, MeasuredAt: &measuredAt}, nil
}

func (s *SummaryService) topAlerts(ctx context.Context, accountID uuid.UUID) ([]model.AlertItem, error) {
	events, err := s.alerts.TopActive(ctx, accountID, topAlerts)
	if err != nil {
		return nil, err
	}
	items := lo.Map(events, func(e model.AlertEvent, _ int) model.AlertItem {
		item := model.AlertItem{
			ID:            e.ID,
			Status:        e.Status,
			GlycemiaValue: e.GlycemiaValue,
			TriggeredAt:   e.TriggeredAt,
		}
		if e.Rule != nil {
			item.Code, item.Name, item.Severity = e.Rule.Code, e.Rule.Name, e.Rule.Severity
		}
		return item
	})
	return items, nil
}

func (s *SummaryService) medication(ctx context.Context, accountID uuid.UUID, now time.Time) (*model.MedicationSection, error) {
	schedule, err := s.carelogs.NextDose(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.MedicationSection{}, nil
		}
		return nil, err
	}
	status := model.DoseStatusPending
	if schedule.NextIntakeAt.Before(now) {
		status = model.DoseStatusOverdue
	}
	return &model.MedicationSection{NextDose: &model.NextDose{
		MedicationID: schedule.ID,
		Name:         schedule.Name,
		Dosage:       schedule.Dosage,
		ScheduledAt:  *schedule.NextIntakeAt,
		Status:       status,
	}}, nil
}

// nutrition sums the last 24 h of meals. Meals without logged carbs count
// half of their calories as carbohydrates.
func (s *SummaryService) nutrition(meals []model.MealLog) *model.NutritionSection {
	calories := lo.SumBy(meals, func(m model.MealLog) float64 { return m.Calories })
	carbs := lo.SumBy(meals, func(m model.MealLog) float64 {
		if m.Carbs != nil {
			return *m.Carbs
		}
		return 0.5 * m.Calories / 4
	})
	return &model.NutritionSection{
		Calories:     round1(calories),
		Carbs:        round1(carbs),
		CaloriesGoal: s.cfg.CaloriesGoal,
		CarbsGoal:    s.cfg.CarbsGoal,
		Meals:        len(meals),
	}
}

// timeInRange returns the share of readings in [low, high], nil without readings
func (s *SummaryService) timeInRange(rows []model.ReadingCache) *float64 {
	if len(rows) == 0 {
		return nil
	}
	in := lo.CountBy(rows, func(r model.ReadingCache) bool {
		return r.Value >= s.cfg.RangeLow && r.Value <= s.cfg.RangeHigh
	})
	tir := float64(in) / float64(len(rows))
	return &tir
}

// ScoreInputs are the raw measures behind the health score
type ScoreInputs struct {
	// InRange is the time-in-range share over the last 24 h, nil when no reading exists
	InRange       *float64
	Expected      int64
	Taken         int64
	MealsPerDay   int
	ActiveMinutes int
}

// HealthScore is the weighted 0-100 score: glycemia 40%, medication
// adherence 20%, nutrition 20%, activity 20%.
func HealthScore(in ScoreInputs) int {
	glycemia := 0.0
	if in.InRange != nil {
		glycemia = clampScore(*in.InRange * 100)
	}

	adherence := 100.0
	if in.Expected > 0 {
		adherence = clampScore(float64(in.Taken) / float64(in.Expected) * 100)
	}

	nutrition := clampScore(100 - math.Abs(float64(in.MealsPerDay)-idealMealsPerDay)/idealMealsPerDay*100)

	activity := clampScore(float64(in.ActiveMinutes) / activityGoalMinutes * 100)

	score := weightGlycemia*glycemia + weightAdherence*adherence + weightNutrition*nutrition + weightActivity*activity
	return int(math.Round(score))
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
