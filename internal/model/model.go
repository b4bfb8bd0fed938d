// Package model defines domain entities shared by the flow, compositor and repositories.
package model

// SpacingOffsets are the four signed pixel deltas controlling where the
// reference image and the label land relative to their default anchors.
// The zero value means "centered" / "default position".
type SpacingOffsets struct {
	ImageX int `json:"image_x"`
	ImageY int `json:"image_y"`
	TextX  int `json:"text_x"`
	TextY  int `json:"text_y"`
}

// SpacingKey names one of the four offset fields for menu-driven editing.
type SpacingKey string

const (
	KeyImageX SpacingKey = "image_x"
	KeyImageY SpacingKey = "image_y"
	KeyTextX  SpacingKey = "text_x"
	KeyTextY  SpacingKey = "text_y"
)

// SpacingKeys lists the editable offset fields in menu order.
var SpacingKeys = []SpacingKey{KeyImageX, KeyImageY, KeyTextX, KeyTextY}

// Get returns the offset stored under key.
func (s SpacingOffsets) Get(key SpacingKey) int {
	switch key {
	case KeyImageX:
		return s.ImageX
	case KeyImageY:
		return s.ImageY
	case KeyTextX:
		return s.TextX
	case KeyTextY:
		return s.TextY
	}
	return 0
}

// Set writes value into the offset named by key.
func (s *SpacingOffsets) Set(key SpacingKey, value int) {
	switch key {
	case KeyImageX:
		s.ImageX = value
	case KeyImageY:
		s.ImageY = value
	case KeyTextX:
		s.TextX = value
	case KeyTextY:
		s.TextY = value
	}
}

// Preset is a named, durably stored offset configuration.
type Preset struct {
	Name    string
	Spacing SpacingOffsets
}

// MediaItem is one user-supplied image as delivered by the transport.
type MediaItem struct {
	Data []byte
	// MIME is the declared content type; only meaningful for documents.
	MIME string
	// AsDocument is true when the image arrived as a file rather than a
	// transcoded photo. Documents keep their original encoding.
	AsDocument bool
}

// IsPNGDocument reports whether this item forces transparency preservation
// downstream: an image/png delivered as a document.
func (m MediaItem) IsPNGDocument() bool {
	return m.AsDocument && m.MIME == "image/png"
}

// OutputFormat is the encoding chosen for a composed image.
type OutputFormat string

const (
	FormatPNG  OutputFormat = "PNG"
	FormatJPEG OutputFormat = "JPEG"
)

// CompositionRequest carries everything the compositor needs for one job.
type CompositionRequest struct {
	Main      MediaItem
	Reference MediaItem
	Label     string
	Spacing   SpacingOffsets
}

// CompositionResult is the encoded output of a composition job.
type CompositionResult struct {
	Data     []byte
	Format   OutputFormat
	Filename string
}
