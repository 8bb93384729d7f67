package model

import "testing"

func TestListOptions_Clamp(t *testing.T) {
	tests := []struct {
		name      string
		input     ListOptions
		wantLimit int
		wantOffset int
	}{
		{"defaults", ListOptions{Limit: 0, Offset: 0}, 20, 0},
		{"negative limit", ListOptions{Limit: -5, Offset: 0}, 20, 0},
		{"over max", ListOptions{Limit: 200, Offset: 0}, 100, 0},
		{"negative offset", ListOptions{Limit: 10, Offset: -3}, 10, 0},
		{"valid", ListOptions{Limit: 50, Offset: 10}, 50, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.Clamp()
			if tt.input.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", tt.input.Limit, tt.wantLimit)
			}
			if tt.input.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", tt.input.Offset, tt.wantOffset)
			}
		})
	}
}

func TestDefaultListOptions(t *testing.T) {
	opts := DefaultListOptions()
	if opts.Limit != 20 {
		t.Errorf("Limit = %d, want 20", opts.Limit)
	}
	if opts.Offset != 0 {
		t.Errorf("Offset = %d, want 0", opts.Offset)
	}
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	got, pg := Page(items, ListOptions{Limit: 2, Offset: 1})
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("Page = %v, want [2 3]", got)
	}
	if pg.Total != 5 || !pg.HasMore {
		t.Errorf("pagination = %+v, want total 5 with more", pg)
	}

	got, pg = Page(items, ListOptions{Limit: 10, Offset: 4})
	if len(got) != 1 || pg.HasMore {
		t.Errorf("last page = %v (%+v), want one item and no more", got, pg)
	}

	got, _ = Page(items, ListOptions{Limit: 10, Offset: 9})
	if len(got) != 0 {
		t.Errorf("offset past end = %v, want empty", got)
	}
}
