package ws

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/calmerge/calmerge-server/logging"
	"github.com/calmerge/calmerge-server/metrics"
	"github.com/calmerge/calmerge-server/model"
	"github.com/calmerge/calmerge-server/query"
)

// ChangeNotice is the message broadcast to clients after a calendar changed.
type ChangeNotice struct {
	// Calendar that changed.
	Calendar string `json:"calendar"`
	// Version after the change.
	Version int `json:"version"`
	// AddedCount of new events.
	AddedCount int `json:"added_count"`
	// RemovedCount of dropped events.
	RemovedCount int `json:"removed_count"`
	// ChangedCount of events with detail changes.
	ChangedCount int `json:"changed_count"`
	// OccurredAt is when the change was persisted.
	OccurredAt time.Time `json:"occurred_at"`
}

// ChangeNotifier broadcasts calendar changes via a Hub.
type ChangeNotifier struct {
	hub *Hub
}

// NewChangeNotifier creates a ChangeNotifier using the given Hub.
func NewChangeNotifier(hub *Hub) *ChangeNotifier {
	return &ChangeNotifier{hub: hub}
}

// NotifyCalendarChanged broadcasts a ChangeNotice for the given change.
func (n *ChangeNotifier) NotifyCalendarChanged(name string, metadata model.CalendarMetadata,
	diff query.DiffResult) {
	notice := ChangeNotice{
		Calendar:     name,
		Version:      metadata.Version,
		AddedCount:   len(diff.Added),
		RemovedCount: len(diff.Removed),
		ChangedCount: len(diff.Changed),
		OccurredAt:   metadata.LastUpdated,
	}
	message, err := json.Marshal(notice)
	if err != nil {
		logging.WSLogger.Error("marshal change notice", zap.Error(err))
		return
	}
	n.hub.Broadcast(message)
	metrics.WSNotices.Inc()
}
