// Package project provides pure projection functions that turn a single
// aggregate's event history into read-friendly structures.
//
// All functions in this package are pure: they take []event.Event as input
// and return derived structures. They do not perform I/O or have side effects.
// Views are computed on demand from the log; nothing here is persisted.
package project

import (
	"strconv"
	"time"

	"github.com/underthemoss/esengine/event"
)

// Entry is one row of an aggregate's history.
type Entry struct {
	Sequence      int64
	Type          event.EventType
	Timestamp     time.Time
	PrincipalID   string
	CorrelationID string
	Message       string // Human-readable description
}

// Timeline projects one entry per event in log order.
// Returns an empty slice for an empty history.
func Timeline(events []event.Event) []Entry {
	result := make([]Entry, 0, len(events))
	for _, e := range events {
		result = append(result, Entry{
			Sequence:      e.Sequence,
			Type:          e.Type,
			Timestamp:     e.Timestamp,
			PrincipalID:   e.PrincipalID,
			CorrelationID: e.CorrelationID,
			Message:       describe(e),
		})
	}
	return result
}

func describe(e event.Event) string {
	msg := "#" + strconv.FormatInt(e.Sequence, 10) + " " + e.Type.String()
	if e.PrincipalID != "" {
		msg += " by " + e.PrincipalID
	}
	return msg
}

// Summary condenses an aggregate's history.
type Summary struct {
	AggregateID   string
	AggregateType string
	Events        int
	CreatedAt     *time.Time
	UpdatedAt     *time.Time
	LastPrincipal string

	// Contributors lists distinct principals in order of first appearance.
	Contributors []string
}

// Summarize projects a Summary from an aggregate's history.
// An empty history yields a zero Summary with no contributors.
func Summarize(events []event.Event) Summary {
	result := Summary{Contributors: []string{}}
	if len(events) == 0 {
		return result
	}

	first, last := events[0], events[len(events)-1]
	result.AggregateID = first.AggregateID
	result.AggregateType = first.AggregateType
	result.Events = len(events)
	created, updated := first.Timestamp, last.Timestamp
	result.CreatedAt = &created
	result.UpdatedAt = &updated

	seen := make(map[string]bool)
	for _, e := range events {
		if e.PrincipalID == "" {
			continue
		}
		result.LastPrincipal = e.PrincipalID
		if !seen[e.PrincipalID] {
			seen[e.PrincipalID] = true
			result.Contributors = append(result.Contributors, e.PrincipalID)
		}
	}

	return result
}
