package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/underthemoss/esengine/event"
	"github.com/underthemoss/esengine/query"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	return s
}

func makeEvent(id, aggregateID string, seq int64) event.Event {
	return event.Event{
		ID:            id,
		AggregateType: "folder",
		AggregateID:   aggregateID,
		Type:          "folder_renamed",
		Sequence:      seq,
		Data:          []byte(`{"name":"docs"}`),
		Timestamp:     time.Date(2024, 3, 1, 12, 0, int(seq), 500, time.UTC),
		TenantID:      "tenant-1",
		PrincipalID:   "user-1",
		CorrelationID: "corr-" + id,
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		if err := s.Init(context.Background()); err != nil {
			t.Fatalf("Init() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestStore_Append(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		event   event.Event
		wantErr error
	}{
		{"first event with sequence 1", makeEvent("evt-1", "agg-1", 1), nil},
		{"second event with sequence 2", makeEvent("evt-2", "agg-1", 2), nil},
		{"wrong sequence (too high)", makeEvent("evt-3", "agg-1", 5), event.ErrSequenceConflict},
		{"sequence already taken", makeEvent("evt-4", "agg-1", 1), event.ErrSequenceConflict},
		{"duplicate event ID", makeEvent("evt-1", "agg-2", 1), event.ErrDuplicateEvent},
		{"different aggregate starts at 1", makeEvent("evt-5", "agg-2", 1), nil},
		{"missing aggregate ID", makeEvent("evt-6", "", 1), event.ErrMissingAggregateID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Append(ctx, tt.event)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Append() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Errorf("Append() unexpected error = %v", err)
			}
		})
	}
}

func TestStore_Append_ConflictDetails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, makeEvent("evt-1", "agg-1", 1)); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	err := s.Append(ctx, makeEvent("evt-2", "agg-1", 4))
	var seqErr *event.SequenceConflictError
	if !errors.As(err, &seqErr) {
		t.Fatalf("Append() error = %T, want *SequenceConflictError", err)
	}
	if seqErr.Expected != 2 || seqErr.Actual != 4 {
		t.Errorf("SequenceConflictError = %+v, want Expected 2, Actual 4", seqErr)
	}
}

func TestStore_Load(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := []event.Event{
		makeEvent("evt-1", "agg-1", 1),
		makeEvent("evt-2", "agg-1", 2),
		makeEvent("evt-3", "agg-1", 3),
	}
	for _, e := range want {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
	}
	if err := s.Append(ctx, makeEvent("evt-other", "agg-2", 1)); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	got, err := s.Load(ctx, "agg-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Load() returned %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Sequence != want[i].Sequence {
			t.Errorf("events[%d] = %s/%d, want %s/%d", i, got[i].ID, got[i].Sequence, want[i].ID, want[i].Sequence)
		}
		if !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("events[%d].Timestamp = %v, want %v", i, got[i].Timestamp, want[i].Timestamp)
		}
		if string(got[i].Data) != string(want[i].Data) {
			t.Errorf("events[%d].Data = %s, want %s", i, got[i].Data, want[i].Data)
		}
		if got[i].Metadata() != want[i].Metadata() {
			t.Errorf("events[%d].Metadata() = %+v, want %+v", i, got[i].Metadata(), want[i].Metadata())
		}
	}

	for _, id := range []string{"", "unknown"} {
		events, err := s.Load(ctx, id)
		if err != nil {
			t.Fatalf("Load(%q) error = %v", id, err)
		}
		if events == nil || len(events) != 0 {
			t.Errorf("Load(%q) = %v, want empty slice", id, events)
		}
	}
}

func TestStore_ListAggregates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := makeEvent("evt-a", "agg-a", 1)
	b := makeEvent("evt-b", "agg-b", 1)
	b.TenantID = "tenant-2"
	c := makeEvent("evt-c", "agg-c", 1)
	c.AggregateType = "invoice"
	a2 := makeEvent("evt-a2", "agg-a", 2)
	for _, e := range []event.Event{a, b, c, a2} {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter query.Filter
		want   string
	}{
		{"all", query.Filter{}, "[agg-a agg-b agg-c]"},
		{"by type", query.Filter{AggregateType: "folder"}, "[agg-a agg-b]"},
		{"by tenant", query.Filter{TenantID: "tenant-2"}, "[agg-b]"},
		{"paged", query.Filter{Offset: 1, Limit: 1}, "[agg-b]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListAggregates(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListAggregates() error = %v", err)
			}
			if fmt.Sprint(got) != tt.want {
				t.Errorf("ListAggregates() = %v, want %s", got, tt.want)
			}
		})
	}
}
