package flow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mkarpov/mergerbot/internal/errs"
	"github.com/mkarpov/mergerbot/internal/model"
	"github.com/mkarpov/mergerbot/internal/repository"
	"github.com/mkarpov/mergerbot/internal/session"
)

// Composer produces the final encoded image for a completed job.
type Composer interface {
	Compose(ctx context.Context, req model.CompositionRequest) (model.CompositionResult, error)
}

// Broadcaster delivers a composed result to the shared group chat.
type Broadcaster interface {
	Broadcast(ctx context.Context, res model.CompositionResult, caption string) error
}

// Notifier sends a transient progress message ahead of a slow operation.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string)
}

// Engine routes inbound events through the conversation state machine.
// All session mutation happens under the store's per-user lock.
type Engine struct {
	sessions    *session.Store
	presets     repository.PresetRepository
	composer    Composer
	broadcaster Broadcaster
	notifier    Notifier
	log         *zap.Logger
}

// New constructs an Engine with injected collaborators.
func New(
	sessions *session.Store,
	presets repository.PresetRepository,
	composer Composer,
	broadcaster Broadcaster,
	notifier Notifier,
	log *zap.Logger,
) *Engine {
	return &Engine{
		sessions:    sessions,
		presets:     presets,
		composer:    composer,
		broadcaster: broadcaster,
		notifier:    notifier,
		log:         log,
	}
}

// Handle processes one classified event and returns the outbound reply.
// Never returns an error: every failure mode maps to a user-facing message,
// and no single job failure is allowed to escape the flow.
func (e *Engine) Handle(ctx context.Context, ev Event) Reply {
	var r Reply
	e.sessions.With(ev.UserID, func(s *session.Session) {
		before := s.State
		e.handle(ctx, ev, s, &r)
		if s.State != before {
			e.log.Debug("state transition",
				zap.Int64("user", ev.UserID),
				zap.Stringer("from", before),
				zap.Stringer("to", s.State))
		}
	})
	return r
}

func (e *Engine) handle(ctx context.Context, ev Event, s *session.Session, r *Reply) {
	// Cancel works from any state and always preserves settings.
	if ev.Action == ActionCancel || (ev.Kind == EventCommand && ev.Command == "cancel") {
		s.ResetJob()
		r.text("Operation cancelled.", mainMenu()...)
		return
	}

	// Entry commands take effect only from idle; mid-job they fall through
	// to the state handler and get the usual re-prompt.
	if ev.Kind == EventCommand && s.State == session.StateIdle {
		switch ev.Command {
		case "start":
			r.text("Welcome! Use the buttons below to start creating an image or adjust settings.", mainMenu()...)
			return
		case "settings":
			e.showSettings(s, r)
			return
		}
	}

	switch s.State {
	case session.StateIdle:
		e.handleIdle(ctx, ev, s, r)
	case session.StateAwaitMain:
		e.handleAwaitMain(ev, s, r)
	case session.StateAwaitReference:
		e.handleAwaitReference(ev, s, r)
	case session.StateAwaitLabel:
		e.handleAwaitLabel(ctx, ev, s, r)
	case session.StateSettingsMenu:
		e.handleSettingsMenu(ctx, ev, s, r)
	case session.StateSpacingMenu:
		e.handleSpacingMenu(ev, s, r)
	case session.StateAwaitSpacingValue:
		e.handleAwaitSpacingValue(ev, s, r)
	case session.StatePresetsMenu:
		e.handlePresetsMenu(ctx, ev, s, r)
	case session.StateAwaitPresetName:
		e.handleAwaitPresetName(ctx, ev, s, r)
	case session.StateEditPresetSelect:
		e.handleEditPresetSelect(ctx, ev, s, r)
	case session.StateDeletePresetSelect:
		e.handleDeletePresetSelect(ctx, ev, s, r)
	}
}

// --- Idle / image collection ---

func (e *Engine) handleIdle(ctx context.Context, ev Event, s *session.Session, r *Reply) {
	switch ev.Action {
	case ActionCreateImage:
		e.startNewImage(ctx, s, r)
	case ActionSettings:
		e.showSettings(s, r)
	default:
		r.text("Welcome! Use the buttons below to start creating an image or adjust settings.", mainMenu()...)
	}
}

// startNewImage begins a job, auto-applying the user's last preset when it
// still exists.
func (e *Engine) startNewImage(ctx context.Context, s *session.Session, r *Reply) {
	applied := false
	if s.LastPreset != "" {
		sp, err := e.presets.Load(ctx, s.LastPreset)
		switch {
		case err == nil:
			s.Spacing = sp
			applied = true
		case !errors.Is(err, errs.ErrNotFound):
			e.log.Warn("loading last preset", zap.String("preset", s.LastPreset), zap.Error(err))
		}
	}

	msg := "Great! Please send me the main image."
	if applied {
		msg = fmt.Sprintf(
			"Great! Using your last preset. Please send me the main image. The reference image will be %s from center.",
			imagePhrase(s.Spacing))
	}
	r.textNoMenu(msg)
	s.State = session.StateAwaitMain
}

func (e *Engine) handleAwaitMain(ev Event, s *session.Session, r *Reply) {
	if ev.Media == nil {
		r.text("Please send an image or photo.", mainMenu()...)
		return
	}
	s.MainMedia = ev.Media
	e.logMedia("main", ev)
	r.text(fmt.Sprintf("Great! Now send me the reference image to place. It will be %s from center.",
		imagePhrase(s.Spacing)), LabelCancel)
	s.State = session.StateAwaitReference
}

func (e *Engine) handleAwaitReference(ev Event, s *session.Session, r *Reply) {
	if ev.Media == nil {
		r.text("Please send an image or photo.", LabelCancel)
		return
	}
	s.ReferenceMedia = ev.Media
	e.logMedia("reference", ev)
	r.text("Perfect! Now send me the text to add to the image:", LabelCancel)
	s.State = session.StateAwaitLabel
}

func (e *Engine) handleAwaitLabel(ctx context.Context, ev Event, s *session.Session, r *Reply) {
	if ev.Text == "" {
		r.text("Please send me the text to add to the image:", LabelCancel)
		return
	}
	s.Label = ev.Text
	e.runJob(ctx, ev, s, r)
}

// runJob completes a collected job: compose, deliver to the user, broadcast
// to the group, reset. Only this path abandons a job on error.
func (e *Engine) runJob(ctx context.Context, ev Event, s *session.Session, r *Reply) {
	e.notifier.Notify(ctx, ev.UserID, "Processing your images... Please wait.")

	req := model.CompositionRequest{
		Main:      *s.MainMedia,
		Reference: *s.ReferenceMedia,
		Label:     s.Label,
		Spacing:   s.Spacing,
	}
	res, err := e.composer.Compose(ctx, req)
	if err != nil {
		e.log.Error("composition failed", zap.Int64("user", ev.UserID), zap.Error(err))
		r.text(fmt.Sprintf("Error: %v. Please try again.", err))
		r.text("Click below to try again:", mainMenu()...)
		s.ResetJob()
		return
	}

	r.document(res)

	username := ev.Username
	if username == "" {
		username = "Anonymous"
	}
	caption := fmt.Sprintf("Created by %s (@%s)\nText: %s", ev.FirstName, username, s.Label)
	if err := e.broadcaster.Broadcast(ctx, res, caption); err != nil {
		e.log.Error("group broadcast failed", zap.Int64("user", ev.UserID), zap.Error(err))
		r.text("Note: Could not share to the group channel. Please check bot permissions.")
	}

	s.ResetJob()
	r.text("Here's your merged image! It has also been shared to the group.", mainMenu()...)
}

// --- Settings ---

func (e *Engine) showSettings(s *session.Session, r *Reply) {
	r.Msgs = append(r.Msgs, settingsMenu(s.Spacing))
	s.State = session.StateSettingsMenu
}

func (e *Engine) handleSettingsMenu(ctx context.Context, ev Event, s *session.Session, r *Reply) {
	switch ev.Action {
	case ActionSpacingMenu:
		e.showSpacingMenu(s, r)
	case ActionPresetsMenu:
		e.showPresetsMenu(ctx, s, r)
	case ActionSavePreset:
		e.promptPresetName(s, r)
	case ActionSelectPreset:
		e.loadPreset(ctx, ev.Name, s, r)
	case ActionCreateImage:
		e.startNewImage(ctx, s, r)
	case ActionDone:
		r.text("Settings saved! Use the buttons below to create an image.", mainMenu()...)
		s.State = session.StateIdle
	default:
		// Unrecognized input re-renders the menu without mutation.
		r.Msgs = append(r.Msgs, settingsMenu(s.Spacing))
	}
}

func (e *Engine) showSpacingMenu(s *session.Session, r *Reply) {
	r.Msgs = append(r.Msgs, spacingMenu(s.Spacing))
	s.State = session.StateSpacingMenu
}

func (e *Engine) handleSpacingMenu(ev Event, s *session.Session, r *Reply) {
	switch ev.Action {
	case ActionAdjust:
		s.PendingKey = ev.Key
		r.text(adjustPrompt(ev.Key, s.Spacing.Get(ev.Key)), LabelBack)
		s.State = session.StateAwaitSpacingValue
	case ActionBack:
		e.showSettings(s, r)
	default:
		r.Msgs = append(r.Msgs, spacingMenu(s.Spacing))
	}
}

func (e *Engine) handleAwaitSpacingValue(ev Event, s *session.Session, r *Reply) {
	if ev.Action == ActionBack {
		s.PendingKey = ""
		e.showSpacingMenu(s, r)
		return
	}

	key := s.PendingKey
	if key == "" {
		key = model.KeyImageX
	}
	v, err := strconv.Atoi(strings.TrimSpace(ev.Text))
	if err != nil {
		r.text(fmt.Sprintf("Please enter a valid number for %s offset in pixels:", key), LabelBack)
		return
	}
	s.Spacing.Set(key, v)
	s.PendingKey = ""
	e.showSpacingMenu(s, r)
}

// --- Presets ---

func (e *Engine) showPresetsMenu(ctx context.Context, s *session.Session, r *Reply) {
	presets, err := e.presets.LoadAll(ctx)
	if err != nil {
		e.log.Error("loading presets", zap.Error(err))
		r.text("Error loading presets. Please try again.", LabelBack)
		return
	}
	r.Msgs = append(r.Msgs, presetsMenu(presets))
	s.State = session.StatePresetsMenu
}

func (e *Engine) handlePresetsMenu(ctx context.Context, ev Event, s *session.Session, r *Reply) {
	switch ev.Action {
	case ActionSelectPreset:
		e.loadPreset(ctx, ev.Name, s, r)
	case ActionSavePreset:
		e.promptPresetName(s, r)
	case ActionEditPreset:
		e.showPresetSelect(ctx, s, r, prefixEdit,
			"Select which preset you want to edit:", "No presets found to edit.",
			session.StateEditPresetSelect)
	case ActionDeletePreset:
		e.showPresetSelect(ctx, s, r, prefixDelete,
			"Select which preset you want to delete:", "No presets found to delete.",
			session.StateDeletePresetSelect)
	case ActionBack:
		e.showSettings(s, r)
	default:
		e.showPresetsMenu(ctx, s, r)
	}
}

func (e *Engine) showPresetSelect(
	ctx context.Context, s *session.Session, r *Reply,
	prefix, prompt, emptyMsg string, next session.State,
) {
	presets, err := e.presets.LoadAll(ctx)
	if err != nil {
		e.log.Error("loading presets", zap.Error(err))
		r.text("Error loading presets. Please try again.", LabelBack)
		return
	}
	if len(presets) == 0 {
		r.text(emptyMsg, LabelBack)
		return
	}
	r.Msgs = append(r.Msgs, presetSelectMenu(presets, prefix, prompt))
	s.State = next
}

func (e *Engine) promptPresetName(s *session.Session, r *Reply) {
	if s.EditingPreset != "" {
		r.text(fmt.Sprintf(
			"You're editing preset '%s'.\nPressing save will update this preset. Type a different name to save as new preset:",
			s.EditingPreset), s.EditingPreset, LabelBack)
	} else {
		r.text("Please enter a name for this preset:", LabelBack)
	}
	s.State = session.StateAwaitPresetName
}

func (e *Engine) handleAwaitPresetName(ctx context.Context, ev Event, s *session.Session, r *Reply) {
	if ev.Action == ActionBack {
		e.showSettings(s, r)
		return
	}

	name := strings.TrimSpace(ev.Text)
	if name == "" {
		r.text("Preset name cannot be empty. Please try again:", LabelBack)
		return
	}

	if err := e.presets.Save(ctx, name, s.Spacing); err != nil {
		e.log.Error("saving preset", zap.String("preset", name), zap.Error(err))
		r.text("Error saving preset. Please try again.", LabelBack)
		s.State = session.StateSettingsMenu
		return
	}
	s.EditingPreset = ""
	s.LastPreset = name
	r.text(fmt.Sprintf("Preset '%s' saved successfully!", name), LabelBack)
	s.State = session.StateSettingsMenu
}

func (e *Engine) handleEditPresetSelect(ctx context.Context, ev Event, s *session.Session, r *Reply) {
	switch ev.Action {
	case ActionSelectEdit:
		sp, err := e.presets.Load(ctx, ev.Name)
		if err != nil {
			e.presetError(err, r)
			return
		}
		s.Spacing = sp
		s.EditingPreset = ev.Name
		r.text(fmt.Sprintf("Editing preset '%s'. Adjust the position values as needed, then save when done.", ev.Name),
			LabelSpacing, LabelSavePreset, LabelBack)
		s.State = session.StateSettingsMenu
	case ActionBack:
		e.showPresetsMenu(ctx, s, r)
	default:
		r.text("Please select a preset to edit.", LabelBack)
	}
}

func (e *Engine) handleDeletePresetSelect(ctx context.Context, ev Event, s *session.Session, r *Reply) {
	switch ev.Action {
	case ActionSelectDelete:
		if err := e.presets.Delete(ctx, ev.Name); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				r.text("Error: Preset not found.", LabelBack)
			} else {
				e.log.Error("deleting preset", zap.String("preset", ev.Name), zap.Error(err))
				r.text("Error deleting preset. Please try again.", LabelBack)
			}
			return
		}
		r.text(fmt.Sprintf("Preset '%s' deleted successfully!", ev.Name))
		e.showPresetsMenu(ctx, s, r)
	case ActionBack:
		e.showPresetsMenu(ctx, s, r)
	default:
		r.text("Please select a preset to delete.", LabelBack)
	}
}

// loadPreset applies a stored preset to the session and remembers it as the
// last used one.
func (e *Engine) loadPreset(ctx context.Context, name string, s *session.Session, r *Reply) {
	sp, err := e.presets.Load(ctx, name)
	if err != nil {
		e.presetError(err, r)
		return
	}
	s.Spacing = sp
	s.LastPreset = name
	r.text(fmt.Sprintf("Preset '%s' loaded successfully!", name), LabelBack)
	s.State = session.StateSettingsMenu
}

func (e *Engine) presetError(err error, r *Reply) {
	if errors.Is(err, errs.ErrNotFound) {
		r.text("Error: Preset not found.", LabelBack)
		return
	}
	e.log.Error("loading preset", zap.Error(err))
	r.text("Error loading presets. Please try again.", LabelBack)
}

func (e *Engine) logMedia(role string, ev Event) {
	kind := "photo"
	if ev.Media.AsDocument {
		kind = "document"
	}
	e.log.Info("received image",
		zap.String("role", role),
		zap.String("kind", kind),
		zap.String("mime", ev.Media.MIME),
		zap.Int64("user", ev.UserID))
}
