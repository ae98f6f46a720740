package query

import (
	"strings"
	"time"

	"github.com/calmerge/calmerge-server/model"
)

// Statistics summarizes an event set.
type Statistics struct {
	// TotalCount of events.
	TotalCount int `json:"total_count"`
	// CountsByType maps event types to their counts.
	CountsByType map[model.EventType]int `json:"counts_by_type"`
	// CountsByMonth maps months (1-12) to their counts.
	CountsByMonth map[time.Month]int `json:"counts_by_month"`
	// OvernightCount of events crossing midnight.
	OvernightCount int `json:"overnight_count"`
	// UntimedCount of events without a start time.
	UntimedCount int `json:"untimed_count"`
	// EarliestDate of any event, zero when the set is empty.
	EarliestDate model.Date `json:"earliest_date"`
	// LatestDate of any event, zero when the set is empty.
	LatestDate model.Date `json:"latest_date"`
}

// Stats computes summary statistics over the given events.
func Stats(events []model.Event) Statistics {
	stats := Statistics{
		TotalCount:    len(events),
		CountsByType:  make(map[model.EventType]int),
		CountsByMonth: make(map[time.Month]int),
	}
	for i, event := range events {
		stats.CountsByType[event.Type]++
		stats.CountsByMonth[event.Date.Month]++
		if event.Overnight {
			stats.OvernightCount++
		}
		if !event.Start.Valid {
			stats.UntimedCount++
		}
		if i == 0 || event.Date.Before(stats.EarliestDate) {
			stats.EarliestDate = event.Date
		}
		if i == 0 || event.Date.After(stats.LatestDate) {
			stats.LatestDate = event.Date
		}
	}
	return stats
}

// FilterByType returns the events of the given type, preserving order.
func FilterByType(events []model.Event, eventType model.EventType) []model.Event {
	filtered := make([]model.Event, 0)
	for _, event := range events {
		if event.Type == eventType {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

// FilterByRange returns the events with from <= date <= to, preserving order.
func FilterByRange(events []model.Event, from, to model.Date) []model.Event {
	filtered := make([]model.Event, 0)
	for _, event := range events {
		if event.Date.Before(from) || event.Date.After(to) {
			continue
		}
		filtered = append(filtered, event)
	}
	return filtered
}

// FilterByYear returns the events of the given year, preserving order.
func FilterByYear(events []model.Event, year int) []model.Event {
	filtered := make([]model.Event, 0)
	for _, event := range events {
		if event.Date.Year == year {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

// Search returns the events whose title or location contains the given term,
// case-insensitively, preserving order.
func Search(events []model.Event, term string) []model.Event {
	term = strings.ToLower(term)
	filtered := make([]model.Event, 0)
	for _, event := range events {
		if strings.Contains(strings.ToLower(event.Title), term) {
			filtered = append(filtered, event)
			continue
		}
		if event.Location.Valid && strings.Contains(strings.ToLower(event.Location.String), term) {
			filtered = append(filtered, event)
		}
	}
	return filtered
}
