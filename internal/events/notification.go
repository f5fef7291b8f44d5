// Package events carries "source data changed" notifications to the rebuild worker.
package events

import (
	"time"

	"github.com/google/uuid"

	"ledger-service/internal/models"
)

// Notification is one of HistoricalImported, PlatformSynced or RebuildRequested
type Notification interface {
	EventID() uuid.UUID
	Kind() string
}

// HistoricalImported is raised after a batch of historical rows was stored
type HistoricalImported struct {
	ID              uuid.UUID `json:"id"`
	RecordsImported int       `json:"recordsImported"`
	ImportTime      time.Time `json:"importTime"`
	DataSourceLabel string    `json:"dataSourceLabel"`
}

func (n HistoricalImported) EventID() uuid.UUID { return n.ID }
func (n HistoricalImported) Kind() string       { return "historical_imported" }

// PlatformSynced is raised after an external platform sync completed
type PlatformSynced struct {
	ID               uuid.UUID `json:"id"`
	RecordsProcessed int       `json:"recordsProcessed"`
	SyncTime         time.Time `json:"syncTime"`
	SyncType         string    `json:"syncType"`
	Success          bool      `json:"success"`
}

func (n PlatformSynced) EventID() uuid.UUID { return n.ID }
func (n PlatformSynced) Kind() string       { return "platform_synced" }

// RebuildRequested is an operator-requested rebuild
type RebuildRequested struct {
	ID    uuid.UUID          `json:"id"`
	Mode  models.RebuildMode `json:"mode"`
	Since *time.Time         `json:"since,omitempty"`
}

func (n RebuildRequested) EventID() uuid.UUID { return n.ID }
func (n RebuildRequested) Kind() string       { return "rebuild_requested" }

func NewHistoricalImported(records int, importTime time.Time, label string) HistoricalImported {
	return HistoricalImported{
		ID:              uuid.New(),
		RecordsImported: records,
		ImportTime:      importTime,
		DataSourceLabel: label,
	}
}

func NewPlatformSynced(records int, syncTime time.Time, syncType string, success bool) PlatformSynced {
	return PlatformSynced{
		ID:               uuid.New(),
		RecordsProcessed: records,
		SyncTime:         syncTime,
		SyncType:         syncType,
		Success:          success,
	}
}

func NewRebuildRequested(mode models.RebuildMode, since *time.Time) RebuildRequested {
	return RebuildRequested{ID: uuid.New(), Mode: mode, Since: since}
}
