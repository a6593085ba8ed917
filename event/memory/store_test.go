package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/underthemoss/esengine/event"
	"github.com/underthemoss/esengine/query"
)

// makeEvent is a test helper that creates an event with sensible defaults.
func makeEvent(id, aggregateID string, seq int64, eventType event.EventType) event.Event {
	return event.Event{
		ID:            id,
		AggregateType: "folder",
		AggregateID:   aggregateID,
		Type:          eventType,
		Sequence:      seq,
		Timestamp:     time.Now(),
		TenantID:      "tenant-1",
		PrincipalID:   "user-1",
		CorrelationID: "corr-" + id,
	}
}

func TestStore_Append(t *testing.T) {
	tests := []struct {
		name    string
		events  []event.Event // events to append before test
		event   event.Event   // event to append in test
		wantErr error
	}{
		{
			name:   "first event with sequence 1",
			events: nil,
			event:  makeEvent("evt-1", "agg-1", 1, "folder_created"),
		},
		{
			name: "second event with sequence 2",
			events: []event.Event{
				makeEvent("evt-1", "agg-1", 1, "folder_created"),
			},
			event: makeEvent("evt-2", "agg-1", 2, "folder_renamed"),
		},
		{
			name:    "wrong sequence (too high)",
			events:  nil,
			event:   makeEvent("evt-1", "agg-1", 2, "folder_created"),
			wantErr: event.ErrSequenceConflict,
		},
		{
			name:    "wrong sequence (zero)",
			events:  nil,
			event:   makeEvent("evt-1", "agg-1", 0, "folder_created"),
			wantErr: event.ErrSequenceConflict,
		},
		{
			name: "duplicate event ID",
			events: []event.Event{
				makeEvent("evt-1", "agg-1", 1, "folder_created"),
			},
			event:   makeEvent("evt-1", "agg-1", 2, "folder_renamed"),
			wantErr: event.ErrDuplicateEvent,
		},
		{
			name: "same sequence as existing",
			events: []event.Event{
				makeEvent("evt-1", "agg-1", 1, "folder_created"),
			},
			event:   makeEvent("evt-2", "agg-1", 1, "folder_renamed"),
			wantErr: event.ErrSequenceConflict,
		},
		{
			name: "different aggregate starts at sequence 1",
			events: []event.Event{
				makeEvent("evt-1", "agg-1", 1, "folder_created"),
			},
			event: makeEvent("evt-2", "agg-2", 1, "folder_created"),
		},
		{
			name:    "missing aggregate ID",
			events:  nil,
			event:   makeEvent("evt-1", "", 1, "folder_created"),
			wantErr: event.ErrMissingAggregateID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := New()
			ctx := context.Background()

			for _, e := range tt.events {
				if err := store.Append(ctx, e); err != nil {
					t.Fatalf("Setup failed: %v", err)
				}
			}

			err := store.Append(ctx, tt.event)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Append() error = %v, want %v", err, tt.wantErr)
				}
				if got := store.Len(tt.event.AggregateID); got != len(tt.events) {
					t.Errorf("rejected append changed the log: len = %d, want %d", got, len(tt.events))
				}
			} else if err != nil {
				t.Errorf("Append() unexpected error = %v", err)
			}
		})
	}
}

func TestStore_Load(t *testing.T) {
	tests := []struct {
		name        string
		setupEvents []event.Event
		loadID      string
		wantCount   int
	}{
		{
			name:      "load empty store",
			loadID:    "agg-1",
			wantCount: 0,
		},
		{
			name: "load empty aggregate ID",
			setupEvents: []event.Event{
				makeEvent("evt-1", "agg-1", 1, "folder_created"),
			},
			loadID:    "",
			wantCount: 0,
		},
		{
			name: "load non-existent aggregate",
			setupEvents: []event.Event{
				makeEvent("evt-1", "agg-1", 1, "folder_created"),
			},
			loadID:    "agg-2",
			wantCount: 0,
		},
		{
			name: "load multiple events",
			setupEvents: []event.Event{
				makeEvent("evt-1", "agg-1", 1, "folder_created"),
				makeEvent("evt-2", "agg-1", 2, "folder_renamed"),
				makeEvent("evt-3", "agg-1", 3, "folder_renamed"),
			},
			loadID:    "agg-1",
			wantCount: 3,
		},
		{
			name: "load only specific aggregate",
			setupEvents: []event.Event{
				makeEvent("evt-1", "agg-1", 1, "folder_created"),
				makeEvent("evt-2", "agg-2", 1, "folder_created"),
				makeEvent("evt-3", "agg-1", 2, "folder_renamed"),
			},
			loadID:    "agg-1",
			wantCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := New()
			ctx := context.Background()

			for _, e := range tt.setupEvents {
				if err := store.Append(ctx, e); err != nil {
					t.Fatalf("Setup failed: %v", err)
				}
			}

			events, err := store.Load(ctx, tt.loadID)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if events == nil {
				t.Fatal("Load() returned nil slice, want empty slice")
			}
			if len(events) != tt.wantCount {
				t.Errorf("Load() returned %d events, want %d", len(events), tt.wantCount)
			}
			for i, e := range events {
				if e.Sequence != int64(i+1) {
					t.Errorf("events[%d].Sequence = %d, want %d", i, e.Sequence, i+1)
				}
			}
		})
	}
}

func TestStore_Load_ReturnsCopy(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.Append(ctx, makeEvent("evt-1", "agg-1", 1, "folder_created")); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	events1, _ := store.Load(ctx, "agg-1")
	events2, _ := store.Load(ctx, "agg-1")

	events1[0].ID = "modified"

	if events2[0].ID == "modified" {
		t.Errorf("Load() should return a copy, but modifications affected subsequent loads")
	}
}

func TestStore_ZeroValue(t *testing.T) {
	var store Store
	ctx := context.Background()

	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := store.Append(ctx, makeEvent("evt-1", "agg-1", 1, "folder_created")); err != nil {
		t.Fatalf("Append() on zero value error = %v", err)
	}
	events, err := store.Load(ctx, "agg-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Load() returned %d events, want 1", len(events))
	}
}

func TestStore_Concurrent_SameSequence(t *testing.T) {
	store := New()
	ctx := context.Background()

	const writers = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded, conflicted int

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.Append(ctx, makeEvent(fmt.Sprintf("evt-%d", i), "agg-1", 1, "folder_created"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, event.ErrSequenceConflict):
				conflicted++
			default:
				t.Errorf("Append() unexpected error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("succeeded = %d, want exactly 1", succeeded)
	}
	if conflicted != writers-1 {
		t.Errorf("conflicted = %d, want %d", conflicted, writers-1)
	}
}

func TestStore_Concurrent_DifferentAggregates(t *testing.T) {
	store := New()
	ctx := context.Background()

	const numAggregates = 10
	const eventsPerAggregate = 100

	var wg sync.WaitGroup
	errs := make(chan error, numAggregates)

	for i := 0; i < numAggregates; i++ {
		wg.Add(1)
		go func(aggID string) {
			defer wg.Done()
			for seq := int64(1); seq <= eventsPerAggregate; seq++ {
				e := makeEvent(fmt.Sprintf("%s-%d", aggID, seq), aggID, seq, "folder_renamed")
				if err := store.Append(ctx, e); err != nil {
					errs <- err
					return
				}
			}
		}(fmt.Sprintf("agg-%d", i))
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent append error: %v", err)
	}
	for i := 0; i < numAggregates; i++ {
		if n := store.Len(fmt.Sprintf("agg-%d", i)); n != eventsPerAggregate {
			t.Errorf("aggregate %d has %d events, want %d", i, n, eventsPerAggregate)
		}
	}
}

func TestStore_SequenceConflictError_Details(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.Append(ctx, makeEvent("evt-1", "agg-1", 1, "folder_created")); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	err := store.Append(ctx, makeEvent("evt-2", "agg-1", 5, "folder_renamed"))

	var seqErr *event.SequenceConflictError
	if !errors.As(err, &seqErr) {
		t.Fatalf("Expected SequenceConflictError, got %T", err)
	}
	if seqErr.AggregateID != "agg-1" {
		t.Errorf("SequenceConflictError.AggregateID = %q, want %q", seqErr.AggregateID, "agg-1")
	}
	if seqErr.Expected != 2 {
		t.Errorf("SequenceConflictError.Expected = %d, want %d", seqErr.Expected, 2)
	}
	if seqErr.Actual != 5 {
		t.Errorf("SequenceConflictError.Actual = %d, want %d", seqErr.Actual, 5)
	}
}

func TestStore_ListAggregates(t *testing.T) {
	store := New()
	ctx := context.Background()

	setup := []event.Event{
		makeEvent("evt-1", "agg-b", 1, "folder_created"),
		makeEvent("evt-2", "agg-a", 1, "folder_created"),
		makeEvent("evt-3", "agg-c", 1, "invoice_created"),
	}
	setup[2].AggregateType = "invoice"
	setup[1].TenantID = "tenant-2"
	for _, e := range setup {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter query.Filter
		want   []string
	}{
		{"all", query.Filter{}, []string{"agg-a", "agg-b", "agg-c"}},
		{"by type", query.Filter{AggregateType: "folder"}, []string{"agg-a", "agg-b"}},
		{"by tenant", query.Filter{TenantID: "tenant-2"}, []string{"agg-a"}},
		{"paged", query.Filter{Offset: 1, Limit: 1}, []string{"agg-b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListAggregates(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListAggregates() error = %v", err)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("ListAggregates() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStore_EventsByCorrelation(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	e1 := makeEvent("evt-1", "agg-2", 1, "folder_created")
	e1.CorrelationID, e1.Timestamp = "req-1", base.Add(time.Second)
	e2 := makeEvent("evt-2", "agg-1", 1, "folder_created")
	e2.CorrelationID, e2.Timestamp = "req-1", base
	e3 := makeEvent("evt-3", "agg-1", 2, "folder_renamed")
	e3.CorrelationID, e3.Timestamp = "req-2", base

	for _, e := range []event.Event{e1, e2, e3} {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
	}

	got, err := store.EventsByCorrelation(ctx, "req-1")
	if err != nil {
		t.Fatalf("EventsByCorrelation() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "evt-2" || got[1].ID != "evt-1" {
		t.Errorf("EventsByCorrelation() = %+v, want [evt-2 evt-1]", got)
	}

	none, err := store.EventsByCorrelation(ctx, "missing")
	if err != nil {
		t.Fatalf("EventsByCorrelation() error = %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("EventsByCorrelation() = %v, want empty slice", none)
	}
}
