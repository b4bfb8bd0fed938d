// Package flow implements the per-user conversation state machine: it
// validates inbound events against the session state, drives the settings and
// preset sub-flows, and triggers composition on job completion.
package flow

import (
	"strings"

	"github.com/mkarpov/mergerbot/internal/model"
)

// Menu button labels. The transport renders these as quick-reply buttons and
// classifies inbound text against them exactly once, at the boundary.
const (
	LabelCreateImage  = "🖼️ Create New Image"
	LabelSettings     = "⚙️ Settings"
	LabelCancel       = "❌ Cancel"
	LabelBack         = "⬅️ Back"
	LabelSpacing      = "📏 Position Settings"
	LabelPresets      = "💾 Presets"
	LabelSavePreset   = "💾 Save as Preset"
	LabelDone         = "✅ Done"
	LabelDeletePreset = "🗑️ Delete Preset"
	LabelEditPreset   = "✏️ Edit Preset"

	LabelImageX = "◀️ Move Image Left/Right ▶️"
	LabelImageY = "🔼 Move Image Up/Down 🔽"
	LabelTextX  = "◀️ Move Text Left/Right ▶️"
	LabelTextY  = "🔼 Move Text Up/Down 🔽"

	prefixPreset = "Preset: "
	prefixEdit   = "Edit: "
	prefixDelete = "Delete: "
)

// Action is a recognized menu action, decided at the transport boundary.
type Action int

const (
	ActionNone Action = iota
	ActionCreateImage
	ActionSettings
	ActionCancel
	ActionBack
	ActionDone
	ActionSpacingMenu
	ActionPresetsMenu
	ActionSavePreset
	ActionEditPreset
	ActionDeletePreset
	// ActionAdjust carries the spacing key being edited in Event.Key.
	ActionAdjust
	// Selection actions carry the preset name in Event.Name.
	ActionSelectPreset
	ActionSelectEdit
	ActionSelectDelete
)

// EventKind classifies an inbound event.
type EventKind int

const (
	// EventCommand is a named bot command ("start", "settings", "cancel").
	EventCommand EventKind = iota
	// EventAction is a recognized menu-label press.
	EventAction
	// EventText is free text.
	EventText
	// EventPhoto is a photo attachment.
	EventPhoto
	// EventDocument is an image document attachment.
	EventDocument
)

// Event is one inbound interaction, fully classified by the transport.
type Event struct {
	UserID    int64
	FirstName string
	Username  string

	Kind    EventKind
	Command string
	Action  Action
	Key     model.SpacingKey // set for ActionAdjust
	Name    string           // set for preset selection actions
	Text    string
	Media   *model.MediaItem // set for EventPhoto / EventDocument
}

// ClassifyText maps message text onto a structured action. Returns
// ActionNone when the text matches no known label, in which case the event
// stays free text. The spacing key or preset name accompanies actions that
// carry one.
func ClassifyText(text string) (Action, model.SpacingKey, string) {
	switch text {
	case LabelCreateImage:
		return ActionCreateImage, "", ""
	case LabelSettings:
		return ActionSettings, "", ""
	case LabelCancel:
		return ActionCancel, "", ""
	case LabelBack:
		return ActionBack, "", ""
	case LabelDone:
		return ActionDone, "", ""
	case LabelPresets:
		return ActionPresetsMenu, "", ""
	case LabelSavePreset:
		return ActionSavePreset, "", ""
	case LabelEditPreset:
		return ActionEditPreset, "", ""
	case LabelDeletePreset:
		return ActionDeletePreset, "", ""
	}

	// Direction and selection buttons carry dynamic suffixes, so they match
	// on prefix.
	switch {
	case strings.HasPrefix(text, LabelSpacing):
		return ActionSpacingMenu, "", ""
	case strings.HasPrefix(text, LabelImageX):
		return ActionAdjust, model.KeyImageX, ""
	case strings.HasPrefix(text, LabelImageY):
		return ActionAdjust, model.KeyImageY, ""
	case strings.HasPrefix(text, LabelTextX):
		return ActionAdjust, model.KeyTextX, ""
	case strings.HasPrefix(text, LabelTextY):
		return ActionAdjust, model.KeyTextY, ""
	case strings.HasPrefix(text, prefixPreset):
		return ActionSelectPreset, "", buttonName(text, prefixPreset)
	case strings.HasPrefix(text, prefixEdit):
		return ActionSelectEdit, "", buttonName(text, prefixEdit)
	case strings.HasPrefix(text, prefixDelete):
		return ActionSelectDelete, "", buttonName(text, prefixDelete)
	}
	return ActionNone, "", ""
}

// buttonName strips the selection prefix and the trailing directional
// summary ("Preset: Demo (20px Left)" -> "Demo").
func buttonName(text, prefix string) string {
	name := strings.TrimPrefix(text, prefix)
	if i := strings.Index(name, " ("); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

// Outbound is one message the transport should deliver.
type Outbound struct {
	Text string
	// Menu is a list of quick-reply button labels, one per row. Nil leaves
	// the current keyboard in place.
	Menu []string
	// RemoveMenu clears any visible quick-reply keyboard.
	RemoveMenu bool
	// Document, when set, is a composed image delivered as a file.
	Document *model.CompositionResult
}

// Reply is the ordered list of outbound messages produced by one event.
type Reply struct {
	Msgs []Outbound
}

func (r *Reply) text(body string, menu ...string) {
	r.Msgs = append(r.Msgs, Outbound{Text: body, Menu: menu})
}

func (r *Reply) textNoMenu(body string) {
	r.Msgs = append(r.Msgs, Outbound{Text: body, RemoveMenu: true})
}

func (r *Reply) document(res model.CompositionResult) {
	r.Msgs = append(r.Msgs, Outbound{Document: &res})
}
