package query

import (
	"reflect"
	"testing"

	"github.com/underthemoss/esengine/event"
)

func TestFilter_Matches(t *testing.T) {
	e := event.Event{AggregateType: "folder", TenantID: "t1"}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"matching type", Filter{AggregateType: "folder"}, true},
		{"other type", Filter{AggregateType: "invoice"}, false},
		{"matching tenant", Filter{TenantID: "t1"}, true},
		{"other tenant", Filter{TenantID: "t2"}, false},
		{"both match", Filter{AggregateType: "folder", TenantID: "t1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(e); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_Page(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"no paging", Filter{}, []string{"a", "b", "c", "d"}},
		{"limit", Filter{Limit: 2}, []string{"a", "b"}},
		{"offset", Filter{Offset: 1}, []string{"b", "c", "d"}},
		{"offset and limit", Filter{Offset: 1, Limit: 2}, []string{"b", "c"}},
		{"offset beyond end", Filter{Offset: 10}, []string{}},
		{"limit larger than list", Filter{Limit: 10}, []string{"a", "b", "c", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Page(ids); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Page() = %v, want %v", got, tt.want)
			}
		})
	}
}
