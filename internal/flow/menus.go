package flow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mkarpov/mergerbot/internal/model"
)

// mainMenu is the idle-state keyboard.
func mainMenu() []string {
	return []string{LabelCreateImage, LabelSettings}
}

// axisWord renders one signed offset in directional language:
// "Center" / "Default", "20px Left", "10px Down".
func axisWord(v int, neg, pos, zero string) string {
	switch {
	case v < 0:
		return fmt.Sprintf("%dpx %s", -v, neg)
	case v > 0:
		return fmt.Sprintf("%dpx %s", v, pos)
	}
	return zero
}

// imageSummary describes the reference-image offsets for menus and preset
// buttons: "Center", "20px Left", "20px Left, 10px Down".
func imageSummary(sp model.SpacingOffsets) string {
	out := axisWord(sp.ImageX, "Left", "Right", "Center")
	if sp.ImageY != 0 {
		out += ", " + axisWord(sp.ImageY, "Up", "Down", "")
	}
	return out
}

// textSummary describes the label offsets: "Default" when untouched.
func textSummary(sp model.SpacingOffsets) string {
	if sp.TextX == 0 && sp.TextY == 0 {
		return "Default"
	}
	var parts []string
	if sp.TextX != 0 {
		parts = append(parts, axisWord(sp.TextX, "Left", "Right", ""))
	}
	if sp.TextY != 0 {
		parts = append(parts, axisWord(sp.TextY, "Up", "Down", ""))
	}
	return strings.Join(parts, ", ")
}

// imagePhrase is the lowercase variant used in prompts:
// "centered", "20px left and 10px down".
func imagePhrase(sp model.SpacingOffsets) string {
	if sp.ImageX == 0 && sp.ImageY == 0 {
		return "centered"
	}
	var parts []string
	if sp.ImageX != 0 {
		parts = append(parts, axisWord(sp.ImageX, "left", "right", ""))
	}
	if sp.ImageY != 0 {
		parts = append(parts, axisWord(sp.ImageY, "up", "down", ""))
	}
	return strings.Join(parts, " and ")
}

// settingsMenu renders the settings keyboard with a positions summary.
func settingsMenu(sp model.SpacingOffsets) Outbound {
	body := fmt.Sprintf(
		"Settings:\n\nImage position: %s\nText position: %s\n\nUse the buttons below to adjust positions:",
		imageSummary(sp), textSummary(sp))
	return Outbound{Text: body, Menu: []string{LabelSpacing, LabelPresets, LabelDone, LabelCreateImage}}
}

// spacingMenu renders the four direction buttons with current values.
func spacingMenu(sp model.SpacingOffsets) Outbound {
	menu := []string{
		fmt.Sprintf("%s (%s)", LabelImageX, axisWord(sp.ImageX, "Left", "Right", "Center")),
		fmt.Sprintf("%s (%s)", LabelImageY, axisWord(sp.ImageY, "Up", "Down", "Center")),
		fmt.Sprintf("%s (%s)", LabelTextX, axisWord(sp.TextX, "Left", "Right", "Center")),
		fmt.Sprintf("%s (%s)", LabelTextY, axisWord(sp.TextY, "Up", "Down", "Default")),
		LabelBack,
	}
	body := "Select which position to adjust:\n\n" +
		"The reference image is centered by default.\n" +
		"The text is positioned at the bottom center by default."
	return Outbound{Text: body, Menu: menu}
}

// presetsMenu renders one button per stored preset plus management buttons.
// Names are sorted so the menu is stable between renders.
func presetsMenu(presets map[string]model.SpacingOffsets) Outbound {
	var menu []string
	if len(presets) == 0 {
		menu = append(menu, "No saved presets yet")
	} else {
		for _, name := range sortedNames(presets) {
			menu = append(menu, fmt.Sprintf("%s%s (%s)", prefixPreset, name, imageSummary(presets[name])))
		}
	}
	menu = append(menu, LabelSavePreset)
	if len(presets) > 0 {
		menu = append(menu, LabelEditPreset, LabelDeletePreset)
	}
	menu = append(menu, LabelBack)
	return Outbound{
		Text: "Position Presets:\nSelect a preset to load, or use the buttons below to manage presets.",
		Menu: menu,
	}
}

// presetSelectMenu lists presets under a selection prefix ("Edit: ", "Delete: ").
func presetSelectMenu(presets map[string]model.SpacingOffsets, prefix, prompt string) Outbound {
	var menu []string
	for _, name := range sortedNames(presets) {
		menu = append(menu, fmt.Sprintf("%s%s (%s)", prefix, name, imageSummary(presets[name])))
	}
	menu = append(menu, LabelBack)
	return Outbound{Text: prompt, Menu: menu}
}

// adjustPrompt explains the selected offset and its current value.
func adjustPrompt(key model.SpacingKey, value int) string {
	var direction, current string
	switch key {
	case model.KeyImageX:
		direction = "Positive values move RIGHT, negative values move LEFT"
		current = axisCurrent(value, "%dpx to the LEFT of center", "%dpx to the RIGHT of center", "Centered horizontally")
	case model.KeyImageY:
		direction = "Positive values move DOWN, negative values move UP"
		current = axisCurrent(value, "%dpx ABOVE center", "%dpx BELOW center", "Centered vertically")
	case model.KeyTextX:
		direction = "Positive values move RIGHT, negative values move LEFT"
		current = axisCurrent(value, "%dpx to the LEFT of center", "%dpx to the RIGHT of center", "Centered horizontally")
	case model.KeyTextY:
		direction = "Positive values move DOWN, negative values move UP"
		current = axisCurrent(value, "%dpx HIGHER than default", "%dpx LOWER than default", "Default position (near bottom)")
	}
	return fmt.Sprintf("Current position: %s\n\n%s\n\nEnter a value in pixels (e.g. 50 or -50):", current, direction)
}

func axisCurrent(v int, negFmt, posFmt, zero string) string {
	switch {
	case v < 0:
		return fmt.Sprintf(negFmt, -v)
	case v > 0:
		return fmt.Sprintf(posFmt, v)
	}
	return zero
}

func sortedNames(presets map[string]model.SpacingOffsets) []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
