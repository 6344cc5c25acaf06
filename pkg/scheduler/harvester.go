package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/twinforge/twinforge/pkg/component"
	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/log"
	"github.com/twinforge/twinforge/pkg/metrics"
	"github.com/twinforge/twinforge/pkg/types"
)

// runHarvester executes one derivation cycle. It returns whether any
// record was produced; running with no new source data is a no-op.
func (s *Scheduler) runHarvester(ctx context.Context, h component.Harvester) (bool, error) {
	cfg := h.Configuration()
	logger := log.WithComponent(cfg.Name)

	if cfg.Source == "" {
		return false, errdefs.Newf(errdefs.KindConfiguration, "harvester %s declares no source", cfg.Name)
	}
	srcRange, err := component.ParseSourceRange(cfg.SourceRange)
	if err != nil {
		return false, err
	}

	cursor, ok, err := s.harvestCursor(ctx, cfg)
	if err != nil || !ok {
		return false, err
	}

	var (
		sourceData []*types.Record
		endDate    time.Time
	)
	if srcRange.TimeMode() {
		endDate = cursor.Add(srcRange.Window)
		sourceData, err = s.records.RecordsInRange(ctx, cfg.Source, cursor, endDate, 0, false)
	} else {
		sourceData, err = s.records.RecordsAfter(ctx, cfg.Source, cursor, srcRange.Count)
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch source records for %s: %w", cfg.Name, err)
	}
	if len(sourceData) == 0 {
		logger.Debug().Msg("no new source records")
		return false, nil
	}
	if cfg.SourceRangeMin {
		if !srcRange.TimeMode() && len(sourceData) < srcRange.Count {
			logger.Debug().Int("have", len(sourceData)).Int("want", srcRange.Count).Msg("below source range minimum")
			return false, nil
		}
		if srcRange.TimeMode() {
			latestSrc, err := s.records.Latest(ctx, cfg.Source)
			if err != nil {
				return false, err
			}
			// The window must be fully covered by source data.
			if latestSrc == nil || latestSrc.Date.Before(endDate) {
				logger.Debug().Time("window_end", endDate).Msg("source window not yet covered")
				return false, nil
			}
		}
	}

	storageDate := endDate
	if storageDate.IsZero() {
		storageDate = sourceData[len(sourceData)-1].Date
	}

	deps, err := s.harvestDependencies(ctx, cfg, storageDate)
	if err != nil {
		return false, err
	}

	input := &component.HarvestInput{
		Records:      sourceData,
		Single:       !srcRange.TimeMode() && srcRange.Count == 1,
		Dependencies: deps,
		Fetch: func(ctx context.Context, rec *types.Record) ([]byte, error) {
			return s.blobs.Retrieve(ctx, rec.URL)
		},
	}

	result, err := h.Harvest(ctx, input)
	if err != nil {
		return false, fmt.Errorf("failed to harvest %s: %w", cfg.Name, err)
	}
	if result == nil || len(result.Payloads) == 0 {
		logger.Debug().Msg("harvest produced no payload")
		return false, nil
	}

	if cfg.MultipleResults && !input.Single {
		n := len(result.Payloads)
		if n > len(sourceData) {
			n = len(sourceData)
		}
		for i := 0; i < n; i++ {
			if err := s.persistDerived(ctx, cfg, result.Payloads[i], sourceData[i].Date); err != nil {
				return false, err
			}
		}
		logger.Debug().Int("records", n).Msg("derivation cycle complete")
		return true, nil
	}

	if err := s.persistDerived(ctx, cfg, result.Payloads[0], storageDate); err != nil {
		return false, err
	}
	logger.Debug().Time("storage_date", storageDate).Msg("derivation cycle complete")
	return true, nil
}

// harvestCursor computes where the next source slice begins. ok is false
// when the source table is still empty.
func (s *Scheduler) harvestCursor(ctx context.Context, cfg component.Configuration) (time.Time, bool, error) {
	latest, err := s.records.Latest(ctx, cfg.Name)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read cursor for %s: %w", cfg.Name, err)
	}
	if latest != nil {
		return latest.Date, true, nil
	}
	first, err := s.records.First(ctx, cfg.Source)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read source %s: %w", cfg.Source, err)
	}
	if first == nil {
		return time.Time{}, false, nil
	}
	return first.Date.Add(-time.Second), true, nil
}

// harvestDependencies resolves each declared dependency to its records
// strictly before the storage date, newest first.
func (s *Scheduler) harvestDependencies(ctx context.Context, cfg component.Configuration, storageDate time.Time) (map[string][]*types.Record, error) {
	if len(cfg.Dependencies) == 0 {
		return nil, nil
	}
	deps := make(map[string][]*types.Record, len(cfg.Dependencies))
	for i, dep := range cfg.Dependencies {
		limit := 1
		if i < len(cfg.DependenciesLimit) {
			limit = cfg.DependenciesLimit[i]
		}
		recs, err := s.records.LatestBefore(ctx, dep, storageDate, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch dependency %s for %s: %w", dep, cfg.Name, err)
		}
		deps[dep] = recs
	}
	return deps, nil
}

// persistDerived saves one derived payload and its record.
func (s *Scheduler) persistDerived(ctx context.Context, cfg component.Configuration, payload []byte, date time.Time) error {
	handle, err := s.blobs.Save(ctx, payload, cfg.Name, extensionFor(cfg.ContentType))
	if err != nil {
		return fmt.Errorf("failed to store derived payload for %s: %w", cfg.Name, err)
	}
	rec := &types.Record{
		Name:        cfg.Name,
		ContentType: cfg.ContentType,
		URL:         handle,
		Date:        date,
	}
	if err := s.records.Insert(ctx, cfg.Name, rec); err != nil {
		return fmt.Errorf("failed to insert derived record for %s: %w", cfg.Name, err)
	}
	metrics.RecordsInserted.WithLabelValues(cfg.Name).Inc()
	return nil
}
