package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ledger-service/internal/models"
	"ledger-service/internal/repositories"
)

// RebuildService enumerates source records and feeds them through the normalizer.
// Runs are not transactional: rows inserted before a failure stay, and the next
// run picks up the rest.
type RebuildService struct {
	sources         []repositories.SourceReader
	normalizer      *NormalizerService
	transactionRepo repositories.TransactionRepository
	runRepo         repositories.RebuildRunRepository
	log             zerolog.Logger
	now             func() time.Time
}

func NewRebuildService(
	sources []repositories.SourceReader,
	normalizer *NormalizerService,
	transactionRepo repositories.TransactionRepository,
	runRepo repositories.RebuildRunRepository,
	log zerolog.Logger,
) *RebuildService {
	return &RebuildService{
		sources:         sources,
		normalizer:      normalizer,
		transactionRepo: transactionRepo,
		runRepo:         runRepo,
		log:             log.With().Str("component", "rebuild").Logger(),
		now:             time.Now,
	}
}

// RebuildStatistics describes the canonical store per source system
type RebuildStatistics struct {
	Sources       []models.SourceStatistics `json:"sources"`
	LastRebuiltAt *time.Time                `json:"last_rebuilt_at,omitempty"`
}

// Rebuild runs one rebuild. Incremental runs read source rows updated at or after since;
// full runs read every row and back-fill empty links on rows already present.
func (s *RebuildService) Rebuild(ctx context.Context, mode models.RebuildMode, since *time.Time) (*models.RebuildResult, error) {
	var filter *time.Time
	switch mode {
	case models.RebuildFull:
	case models.RebuildIncremental:
		if since == nil {
			return nil, errors.New("incremental rebuild requires a since watermark")
		}
		filter = since
	default:
		return nil, fmt.Errorf("unknown rebuild mode %q", mode)
	}

	started := s.now()
	result := &models.RebuildResult{
		BatchID:   batchID(mode, started),
		Mode:      mode,
		Since:     filter,
		StartedAt: started,
	}
	log := s.log.With().Str("batch_id", result.BatchID).Str("mode", string(mode)).Logger()
	log.Info().Msg("Rebuild started")

	runErr := s.run(ctx, result, filter, log)

	result.DurationSeconds = s.now().Sub(started).Seconds()
	result.Status = models.StatusSucceeded
	if runErr != nil {
		result.Status = models.StatusFailed
		result.Error = runErr.Error()
	}

	if err := s.runRepo.CreateRun(ctx, result); err != nil {
		log.Error().Err(err).Msg("Failed to record rebuild run")
	}

	event := log.Info()
	if runErr != nil {
		event = log.Error().Err(runErr)
	}
	event.
		Int("processed", result.RecordsProcessed).
		Int("inserted", result.RecordsInserted).
		Int("skipped", result.RecordsSkipped).
		Int("failed", result.RecordsFailed).
		Int("linked", result.RecordsLinked).
		Float64("duration_seconds", result.DurationSeconds).
		Msg("Rebuild finished")

	if runErr != nil {
		return result, fmt.Errorf("rebuild %s failed: %w", result.BatchID, runErr)
	}
	return result, nil
}

func (s *RebuildService) run(ctx context.Context, result *models.RebuildResult, since *time.Time, log zerolog.Logger) error {
	backfill := result.Mode == models.RebuildFull

	for _, source := range s.sources {
		records, err := source.ListUpdatedSince(ctx, since)
		if err != nil {
			return fmt.Errorf("failed to read %s records: %w", source.SourceSystem(), err)
		}

		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			result.RecordsProcessed++

			var res NormalizeResult
			if backfill {
				res, err = s.normalizer.NormalizeAndBackfill(ctx, rec)
			} else {
				res, err = s.normalizer.Normalize(ctx, rec)
			}
			if err != nil {
				result.RecordsFailed++
				log.Warn().Err(err).
					Str("source_system", string(rec.SourceSystem)).
					Str("source_id", rec.SourceID).
					Int64("row_id", rec.RowID).
					Msg("Failed to normalize record")
				continue
			}

			if res.Inserted {
				result.RecordsInserted++
			} else {
				result.RecordsSkipped++
			}
			if res.Linked {
				result.RecordsLinked++
			}
		}
	}
	return nil
}

func batchID(mode models.RebuildMode, started time.Time) string {
	prefix := "INCREMENTAL"
	if mode == models.RebuildFull {
		prefix = "REBUILD"
	}
	return fmt.Sprintf("%s-%s-%s", prefix, started.Format("20060102-150405"), uuid.NewString()[:8])
}

func (s *RebuildService) GetStatistics(ctx context.Context) (*RebuildStatistics, error) {
	sources, err := s.transactionRepo.GetStatistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get canonical statistics: %w", err)
	}
	if sources == nil {
		sources = []models.SourceStatistics{}
	}

	stats := &RebuildStatistics{Sources: sources}
	last, err := s.runRepo.LastRunAt(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get last rebuild time: %w", err)
	}
	if last.Valid {
		stats.LastRebuiltAt = &last.Time
	}
	return stats, nil
}

func (s *RebuildService) ListRuns(ctx context.Context, limit int) ([]*models.RebuildRun, error) {
	if limit <= 0 {
		limit = 20
	}
	runs, err := s.runRepo.ListRecentRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rebuild runs: %w", err)
	}
	if runs == nil {
		runs = []*models.RebuildRun{}
	}
	return runs, nil
}
