package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ledger-service/internal/models"
)

// Rebuilder runs one rebuild
type Rebuilder interface {
	Rebuild(ctx context.Context, mode models.RebuildMode, since *time.Time) (*models.RebuildResult, error)
}

// Plan is the rebuild a notification asks for
type Plan struct {
	Mode  models.RebuildMode
	Since *time.Time
}

// Dispatcher turns notifications into rebuilds. Rebuild failures stop here.
type Dispatcher struct {
	rebuilder Rebuilder
	backdate  time.Duration
	log       zerolog.Logger
}

func NewDispatcher(rebuilder Rebuilder, backdate time.Duration, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		rebuilder: rebuilder,
		backdate:  backdate,
		log:       log.With().Str("component", "dispatcher").Logger(),
	}
}

// Plan decides the rebuild for n. It returns false when n triggers nothing.
//
// Historical imports always rebuild incrementally from the import time minus the backdate.
// Platform syncs trigger nothing unless successful; comprehensive syncs rebuild fully
// because they can relink rows an incremental pass would not revisit.
func (d *Dispatcher) Plan(n Notification) (Plan, bool) {
	switch n := n.(type) {
	case HistoricalImported:
		return d.incremental(n.ImportTime), true
	case PlatformSynced:
		if !n.Success {
			return Plan{}, false
		}
		if IsComprehensiveSync(n.SyncType) {
			return Plan{Mode: models.RebuildFull}, true
		}
		return d.incremental(n.SyncTime), true
	case RebuildRequested:
		if n.Mode == models.RebuildIncremental && n.Since == nil {
			return d.incremental(time.Now()), true
		}
		return Plan{Mode: n.Mode, Since: n.Since}, true
	}
	return Plan{}, false
}

func (d *Dispatcher) incremental(at time.Time) Plan {
	since := at.Add(-d.backdate)
	return Plan{Mode: models.RebuildIncremental, Since: &since}
}

// IsComprehensiveSync reports whether a sync type names a comprehensive, full or complete sync
func IsComprehensiveSync(syncType string) bool {
	t := strings.ToLower(syncType)
	return strings.Contains(t, "comprehensive") || strings.Contains(t, "full") || strings.Contains(t, "complete")
}

// Handle runs the planned rebuild for n. Errors and panics are logged, never returned.
func (d *Dispatcher) Handle(ctx context.Context, n Notification) {
	log := d.log.With().Str("event_id", n.EventID().String()).Str("kind", n.Kind()).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Err(fmt.Errorf("panic: %v", r)).Msg("Rebuild panicked")
		}
	}()

	plan, ok := d.Plan(n)
	if !ok {
		log.Info().Msg("Notification does not trigger a rebuild")
		return
	}

	result, err := d.rebuilder.Rebuild(ctx, plan.Mode, plan.Since)
	if err != nil {
		log.Error().Err(err).Str("mode", string(plan.Mode)).Msg("Rebuild failed")
		return
	}
	log.Info().
		Str("batch_id", result.BatchID).
		Str("mode", string(result.Mode)).
		Int("inserted", result.RecordsInserted).
		Int("skipped", result.RecordsSkipped).
		Msg("Rebuild triggered by notification completed")
}
