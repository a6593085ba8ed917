package project

import (
	"reflect"
	"testing"
	"time"

	"github.com/underthemoss/esengine/event"
)

var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func history() []event.Event {
	return []event.Event{
		{
			AggregateType: "folder", AggregateID: "f-1", Type: "folder_created", Sequence: 1,
			Timestamp: baseTime, PrincipalID: "alice", CorrelationID: "c-1",
		},
		{
			AggregateType: "folder", AggregateID: "f-1", Type: "folder_renamed", Sequence: 2,
			Timestamp: baseTime.Add(time.Minute), PrincipalID: "bob", CorrelationID: "c-2",
		},
		{
			AggregateType: "folder", AggregateID: "f-1", Type: "folder_renamed", Sequence: 3,
			Timestamp: baseTime.Add(2 * time.Minute), PrincipalID: "alice", CorrelationID: "c-3",
		},
	}
}

func TestTimeline(t *testing.T) {
	tests := []struct {
		name   string
		events []event.Event
		want   []Entry
	}{
		{
			name:   "empty history",
			events: nil,
			want:   []Entry{},
		},
		{
			name:   "one entry per event",
			events: history(),
			want: []Entry{
				{Sequence: 1, Type: "folder_created", Timestamp: baseTime, PrincipalID: "alice", CorrelationID: "c-1", Message: "#1 folder_created by alice"},
				{Sequence: 2, Type: "folder_renamed", Timestamp: baseTime.Add(time.Minute), PrincipalID: "bob", CorrelationID: "c-2", Message: "#2 folder_renamed by bob"},
				{Sequence: 3, Type: "folder_renamed", Timestamp: baseTime.Add(2 * time.Minute), PrincipalID: "alice", CorrelationID: "c-3", Message: "#3 folder_renamed by alice"},
			},
		},
		{
			name:   "missing principal",
			events: []event.Event{{Type: "folder_created", Sequence: 1, Timestamp: baseTime}},
			want:   []Entry{{Sequence: 1, Type: "folder_created", Timestamp: baseTime, Message: "#1 folder_created"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Timeline(tt.events)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Timeline() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		got := Summarize(nil)
		if got.Events != 0 || got.CreatedAt != nil || got.UpdatedAt != nil {
			t.Errorf("Summarize(nil) = %+v, want zero summary", got)
		}
		if got.Contributors == nil || len(got.Contributors) != 0 {
			t.Errorf("Contributors = %v, want empty slice", got.Contributors)
		}
	})

	t.Run("full history", func(t *testing.T) {
		got := Summarize(history())
		if got.AggregateID != "f-1" || got.AggregateType != "folder" {
			t.Errorf("aggregate = %s/%s, want folder/f-1", got.AggregateType, got.AggregateID)
		}
		if got.Events != 3 {
			t.Errorf("Events = %d, want 3", got.Events)
		}
		if got.CreatedAt == nil || !got.CreatedAt.Equal(baseTime) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, baseTime)
		}
		if want := baseTime.Add(2 * time.Minute); got.UpdatedAt == nil || !got.UpdatedAt.Equal(want) {
			t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, want)
		}
		if got.LastPrincipal != "alice" {
			t.Errorf("LastPrincipal = %q, want alice", got.LastPrincipal)
		}
		if want := []string{"alice", "bob"}; !reflect.DeepEqual(got.Contributors, want) {
			t.Errorf("Contributors = %v, want %v", got.Contributors, want)
		}
	})
}
