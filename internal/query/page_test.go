package query

import (
	"errors"
	"testing"

	"github.com/snapshare/snapfeed/internal/apperr"
)

func TestNewPage(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		page      int
		wantLimit int
		wantErr   bool
	}{
		{name: "valid", limit: 10, page: 2, wantLimit: 10},
		{name: "clamped", limit: 500, page: 0, wantLimit: 100},
		{name: "zero limit", limit: 0, wantErr: true},
		{name: "negative limit", limit: -3, wantErr: true},
		{name: "negative page", limit: 5, page: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPage("test", tt.limit, tt.page, 100)
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrInvalidArgument) {
					t.Fatalf("NewPage() error = %v, want invalid argument", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPage() unexpected error: %v", err)
			}
			if p.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", p.Limit, tt.wantLimit)
			}
		})
	}
}

func TestSlice(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6}

	tests := []struct {
		name string
		page Page
		want []int
	}{
		{name: "first", page: Page{Limit: 3, Page: 0}, want: []int{0, 1, 2}},
		{name: "last partial", page: Page{Limit: 3, Page: 2}, want: []int{6}},
		{name: "past end", page: Page{Limit: 3, Page: 5}, want: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slice(items, tt.page)
			if len(got) != len(tt.want) {
				t.Fatalf("Slice() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Slice() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
