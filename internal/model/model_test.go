package model

import "testing"

func TestSpacingGetSet(t *testing.T) {
	var sp SpacingOffsets
	for i, key := range SpacingKeys {
		sp.Set(key, i+1)
	}
	want := SpacingOffsets{ImageX: 1, ImageY: 2, TextX: 3, TextY: 4}
	if sp != want {
		t.Fatalf("spacing = %+v, want %+v", sp, want)
	}
	for i, key := range SpacingKeys {
		if got := sp.Get(key); got != i+1 {
			t.Errorf("Get(%s) = %d, want %d", key, got, i+1)
		}
	}
	if got := sp.Get("bogus"); got != 0 {
		t.Errorf("Get(bogus) = %d, want 0", got)
	}
}

func TestIsPNGDocument(t *testing.T) {
	cases := []struct {
		item MediaItem
		want bool
	}{
		{MediaItem{MIME: "image/png", AsDocument: true}, true},
		{MediaItem{MIME: "image/png", AsDocument: false}, false},
		{MediaItem{MIME: "image/jpeg", AsDocument: true}, false},
		{MediaItem{}, false},
	}
	for _, tc := range cases {
		if got := tc.item.IsPNGDocument(); got != tc.want {
			t.Errorf("IsPNGDocument(%+v) = %v, want %v", tc.item, got, tc.want)
		}
	}
}
