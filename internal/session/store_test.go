package session

import (
	"sync"
	"testing"

	"github.com/mkarpov/mergerbot/internal/model"
)

func TestResetJobRetainsSettings(t *testing.T) {
	s := Session{
		UserID:         7,
		State:          StateAwaitLabel,
		Spacing:        model.SpacingOffsets{ImageX: 20, TextY: -5},
		LastPreset:     "Demo",
		MainMedia:      &model.MediaItem{MIME: "image/jpeg"},
		ReferenceMedia: &model.MediaItem{MIME: "image/png"},
		Label:          "hello",
		EditingPreset:  "Demo",
		PendingKey:     model.KeyImageX,
	}
	s.ResetJob()

	if s.State != StateIdle {
		t.Fatalf("state = %v, want idle", s.State)
	}
	if s.Spacing != (model.SpacingOffsets{ImageX: 20, TextY: -5}) {
		t.Fatalf("spacing = %+v, lost on reset", s.Spacing)
	}
	if s.LastPreset != "Demo" {
		t.Fatalf("last preset = %q, lost on reset", s.LastPreset)
	}
	if s.MainMedia != nil || s.ReferenceMedia != nil || s.Label != "" || s.EditingPreset != "" || s.PendingKey != "" {
		t.Fatalf("job fields survived reset: %+v", s)
	}
}

func TestWithCreatesLazily(t *testing.T) {
	st := NewStore()

	st.With(1, func(s *Session) {
		if s.UserID != 1 || s.State != StateIdle {
			t.Fatalf("fresh session = %+v", s)
		}
		s.Label = "set"
	})
	if got := st.Snapshot(1).Label; got != "set" {
		t.Fatalf("label = %q, mutation lost", got)
	}
}

func TestWithSerializesPerUser(t *testing.T) {
	st := NewStore()
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.With(42, func(s *Session) {
				s.Spacing.ImageX++
			})
		}()
	}
	wg.Wait()

	if got := st.Snapshot(42).Spacing.ImageX; got != n {
		t.Fatalf("image_x = %d, want %d (lost updates)", got, n)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	st := NewStore()

	st.With(1, func(s *Session) { s.State = StateAwaitMain })
	st.With(2, func(s *Session) { s.State = StateSettingsMenu })

	if got := st.Snapshot(1).State; got != StateAwaitMain {
		t.Fatalf("user 1 state = %v", got)
	}
	if got := st.Snapshot(2).State; got != StateSettingsMenu {
		t.Fatalf("user 2 state = %v", got)
	}
}

func TestStateString(t *testing.T) {
	if got := StateAwaitSpacingValue.String(); got != "await_spacing_value" {
		t.Fatalf("String = %q", got)
	}
	if got := State(99).String(); got != "unknown" {
		t.Fatalf("String = %q", got)
	}
}
