// Package session holds per-user conversation state: transient job data plus
// settings that survive across jobs.
package session

import (
	"sync"

	"github.com/mkarpov/mergerbot/internal/model"
)

// State is the position of a user inside the conversation flow.
type State int

const (
	StateIdle State = iota
	StateAwaitMain
	StateAwaitReference
	StateAwaitLabel
	StateSettingsMenu
	StateSpacingMenu
	StateAwaitSpacingValue
	StatePresetsMenu
	StateAwaitPresetName
	StateEditPresetSelect
	StateDeletePresetSelect
)

var stateNames = map[State]string{
	StateIdle:               "idle",
	StateAwaitMain:          "await_main",
	StateAwaitReference:     "await_reference",
	StateAwaitLabel:         "await_label",
	StateSettingsMenu:       "settings_menu",
	StateSpacingMenu:        "spacing_menu",
	StateAwaitSpacingValue:  "await_spacing_value",
	StatePresetsMenu:        "presets_menu",
	StateAwaitPresetName:    "await_preset_name",
	StateEditPresetSelect:   "edit_preset_select",
	StateDeletePresetSelect: "delete_preset_select",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Session is one user's conversation state. Sessions are in-memory only and
// live until process shutdown.
type Session struct {
	UserID int64
	State  State

	// Settings: survive job completion and cancellation.
	Spacing    model.SpacingOffsets
	LastPreset string

	// Job-scoped fields, discarded by ResetJob.
	MainMedia      *model.MediaItem
	ReferenceMedia *model.MediaItem
	Label          string
	EditingPreset  string
	PendingKey     model.SpacingKey
}

// ResetJob discards transient job data and returns the session to idle,
// retaining spacing and the last used preset name.
func (s *Session) ResetJob() {
	s.State = StateIdle
	s.MainMedia = nil
	s.ReferenceMedia = nil
	s.Label = ""
	s.EditingPreset = ""
	s.PendingKey = ""
}

type entry struct {
	mu sync.Mutex
	s  Session
}

// Store is a keyed session map. Access to any individual session goes
// through With, which holds that session's lock for the duration of fn, so
// interleaved events for the same user cannot lose updates.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*entry
}

// NewStore constructs an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*entry)}
}

// With runs fn with exclusive access to the user's session, creating it
// lazily on first interaction.
func (st *Store) With(userID int64, fn func(*Session)) {
	st.mu.Lock()
	e, ok := st.sessions[userID]
	if !ok {
		e = &entry{s: Session{UserID: userID, State: StateIdle}}
		st.sessions[userID] = e
	}
	st.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.s)
}

// Snapshot returns a copy of the user's session, creating it if absent.
func (st *Store) Snapshot(userID int64) Session {
	var out Session
	st.With(userID, func(s *Session) { out = *s })
	return out
}
