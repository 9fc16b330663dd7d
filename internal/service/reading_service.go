package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/event"
	"github.com/glycopilot/glycopilot-api/internal/metrics"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

const (
	MinManualValue  = 20.0
	MaxReadingValue = 600.0
	MaxRangeDays    = 30
)

// ReadingService owns the dual write of readings into history and the
// rolling cache, and publishes every committed reading on the bus.
type ReadingService struct {
	db        *gorm.DB
	readings  *repository.ReadingRepository
	devices   *repository.DeviceRepository
	bus       *event.Bus
	retention time.Duration
	clock     func() time.Time
}

func NewReadingService(db *gorm.DB, readings *repository.ReadingRepository, devices *repository.DeviceRepository, bus *event.Bus, retention time.Duration) *ReadingService {
	return &ReadingService{
		db:        db,
		readings:  readings,
		devices:   devices,
		bus:       bus,
		retention: retention,
		clock:     time.Now,
	}
}

// SetClock replaces the time source
func (s *ReadingService) SetClock(clock func() time.Time) {
	s.clock = clock
}

func (s *ReadingService) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

// ValidateMeasurement checks a measurement for its source. Manual entries
// must fall in [20, 600]; CGM values only need to be finite, non-negative
// and at most 600.
func ValidateMeasurement(m model.Measurement) error {
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return Validation("value", "value must be a finite number")
	}
	if m.Source == model.SourceManual && m.Value < MinManualValue {
		return Validation("value", "value must be between 20 and 600")
	}
	if m.Value < 0 {
		return Validation("value", "value must not be negative")
	}
	if m.Value > MaxReadingValue {
		return Validation("value", "value must be between 20 and 600")
	}
	if m.Trend != "" && !m.Trend.Valid() {
		return Validation("trend", "trend must be rising, falling or flat")
	}
	if m.Context != nil && !m.Context.Valid() {
		return Validation("context", "unknown reading context")
	}
	return nil
}

// RegisterDevice records a reading source for the principal's account
func (s *ReadingService) RegisterDevice(ctx context.Context, p model.Principal, req model.RegisterDeviceRequest) (*model.Device, error) {
	device := &model.Device{
		AccountID:        p.AccountID,
		Type:             req.Type,
		Provider:         req.Provider,
		IsActive:         true,
		SamplingInterval: req.SamplingInterval,
	}
	if err := s.devices.Create(ctx, device); err != nil {
		return nil, Internal("failed to register device", err)
	}
	log.Info().
		Str("account_id", p.AccountID.String()).
		Str("device_id", device.ID.String()).
		Str("type", string(device.Type)).
		Msg("device registered")
	return device, nil
}

// Devices lists the reading sources of an account
func (s *ReadingService) Devices(ctx context.Context, accountID uuid.UUID) ([]model.Device, error) {
	devices, err := s.devices.ForAccount(ctx, accountID)
	if err != nil {
		return nil, Internal("failed to load devices", err)
	}
	if devices == nil {
		devices = []model.Device{}
	}
	return devices, nil
}

// InsertCGM stores a reading pushed by one of the principal's streaming
// devices. The value goes through the CGM bounds, not the manual ones.
func (s *ReadingService) InsertCGM(ctx context.Context, p model.Principal, m model.Measurement) (*model.ReadingHistory, error) {
	if m.DeviceID == nil {
		return nil, Validation("device_id", "device_id is required")
	}
	m.Source = model.SourceCGM
	return s.Insert(ctx, p, m)
}

// checkDevice verifies the principal owns an active device fit for source
func (s *ReadingService) checkDevice(ctx context.Context, accountID, deviceID uuid.UUID, source model.ReadingSource) error {
	device, err := s.devices.FindOwned(ctx, accountID, deviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Validation("device_id", "unknown device")
		}
		return Internal("failed to look up device", err)
	}
	if !device.IsActive {
		return Validation("device_id", "device is not active")
	}
	if source == model.SourceCGM && !device.Type.Streams() {
		return Validation("device_id", "device cannot stream readings")
	}
	return nil
}

// Insert stores a reading for the principal's account and returns the
// history row. Alert events are materialized in the same transaction;
// realtime and sinks run after commit.
func (s *ReadingService) Insert(ctx context.Context, p model.Principal, m model.Measurement) (*model.ReadingHistory, error) {
	if m.Source == "" {
		m.Source = model.SourceManual
	}
	if err := ValidateMeasurement(m); err != nil {
		return nil, err
	}
	if m.DeviceID != nil {
		if err := s.checkDevice(ctx, p.AccountID, *m.DeviceID, m.Source); err != nil {
			return nil, err
		}
	}
	if m.Unit == "" {
		m.Unit = model.DefaultUnit
	}
	if m.Trend == "" {
		m.Trend = model.TrendFlat
	}
	now := s.now()
	if m.MeasuredAt.IsZero() {
		m.MeasuredAt = now
	}

	reading := &model.ReadingHistory{
		AccountID:  p.AccountID,
		MeasuredAt: m.MeasuredAt.UTC(),
		Value:      m.Value,
		Unit:       m.Unit,
		Trend:      m.Trend,
		Rate:       m.Rate,
		Source:     m.Source,
		DeviceID:   m.DeviceID,
		Context:    m.Context,
		Notes:      m.Notes,
		PhotoURL:   m.PhotoURL,
		Location:   m.Location,
	}

	// the request going away must not abort the transaction half way
	txCtx := context.WithoutCancel(ctx)

	var (
		afters []event.AfterCommit
		ev     event.ReadingCommitted
	)
	err := s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		readings := s.readings.WithTx(tx)
		if err := readings.CreateHistory(txCtx, reading); err != nil {
			return err
		}
		if err := readings.CreateCache(txCtx, reading.CacheRow()); err != nil {
			return err
		}
		pruned, err := readings.PruneCache(txCtx, p.AccountID, now.Add(-s.retention))
		if err != nil {
			return err
		}
		if pruned > 0 {
			metrics.CachePruned.WithLabelValues("insert").Add(float64(pruned))
		}

		ev = event.ReadingCommitted{Reading: *reading, CommittedAt: now}
		afters, err = s.bus.RunTx(txCtx, tx, ev)
		return err
	})
	if err != nil {
		return nil, Internal("failed to store reading", err)
	}

	metrics.ReadingsIngested.WithLabelValues(string(reading.Source)).Inc()
	log.Info().
		Str("account_id", p.AccountID.String()).
		Str("reading_id", reading.ReadingID.String()).
		Float64("value", reading.Value).
		Msg("reading stored")

	s.bus.Defer(txCtx, afters...)
	s.bus.Publish(ev)
	return reading, nil
}

// Latest returns the most recent cached reading of an account
func (s *ReadingService) Latest(ctx context.Context, accountID uuid.UUID) (*model.ReadingCache, error) {
	row, err := s.readings.Latest(ctx, accountID)
	if err != nil {
		return nil, notFoundOr(err, "no reading available")
	}
	return row, nil
}

// Range returns the cached readings of the last days days with their
// aggregate stats. Only the cache is read, so days is capped at 30.
func (s *ReadingService) Range(ctx context.Context, accountID uuid.UUID, days int) (*model.RangeResponse, error) {
	if days < 1 || days > MaxRangeDays {
		return nil, Validation("days", "days must be between 1 and 30")
	}
	rows, err := s.readings.CacheSince(ctx, accountID, s.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, Internal("failed to load readings", err)
	}
	if rows == nil {
		rows = []model.ReadingCache{}
	}
	return &model.RangeResponse{
		Days:    days,
		Entries: rows,
		Stats:   rangeStats(rows),
	}, nil
}

// History returns history rows of the last days days, newest first
func (s *ReadingService) History(ctx context.Context, accountID uuid.UUID, days, limit int) ([]model.ReadingHistory, error) {
	if days < 1 {
		return nil, Validation("days", "days must be positive")
	}
	rows, err := s.readings.HistorySince(ctx, accountID, s.now().AddDate(0, 0, -days), limit)
	if err != nil {
		return nil, Internal("failed to load reading history", err)
	}
	if rows == nil {
		rows = []model.ReadingHistory{}
	}
	return rows, nil
}

// DeleteHistory removes one history row. The cache row it produced is left
// to age out.
func (s *ReadingService) DeleteHistory(ctx context.Context, accountID, readingID uuid.UUID) error {
	n, err := s.readings.DeleteHistory(ctx, accountID, readingID)
	if err != nil {
		return Internal("failed to delete reading", err)
	}
	if n == 0 {
		return NotFound("reading not found")
	}
	log.Info().Str("account_id", accountID.String()).Str("reading_id", readingID.String()).Msg("history row deleted")
	return nil
}

// SweepAll prunes the cache rows of every account older than the retention
func (s *ReadingService) SweepAll(ctx context.Context) (int64, error) {
	n, err := s.readings.PruneAllCache(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, err
	}
	metrics.CachePruned.WithLabelValues("sweep").Add(float64(n))
	return n, nil
}

// RunSweeper prunes the cache every interval until ctx is done
func (s *ReadingService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepAll(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("cache sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("pruned", n).Msg("cache sweep done")
			}
		}
	}
}

func rangeStats(rows []model.ReadingCache) model.RangeStats {
	if len(rows) == 0 {
		return model.RangeStats{}
	}
	values := lo.Map(rows, func(r model.ReadingCache, _ int) float64 { return r.Value })
	sort.Float64s(values)

	n := len(values)
	median := values[n/2]
	if n%2 == 0 {
		median = (values[n/2-1] + values[n/2]) / 2
	}
	return model.RangeStats{
		Min:    values[0],
		Max:    values[n-1],
		Mean:   round1(lo.Sum(values) / float64(n)),
		Median: median,
		Count:  n,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
