// Package compositor produces the final encoded image from a composition request.
package compositor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/mkarpov/mergerbot/internal/errs"
	"github.com/mkarpov/mergerbot/internal/model"
)

const (
	// RefImageSize is the fixed square side the reference image is resized to.
	// Aspect ratio is deliberately not preserved.
	RefImageSize = 400

	bottomMargin  = 30
	edgeMargin    = 10
	outlineOffset = 1
	jpegQuality   = 95
)

// FaceSource supplies a renderable font face. Resolution never fails.
type FaceSource interface {
	Face(ctx context.Context) font.Face
}

// Compositor is a pure transformation from request to encoded result.
// Its only collaborator is the font source.
type Compositor struct {
	fonts FaceSource
	log   *zap.Logger
}

// New constructs a compositor rendering labels with faces from fonts.
func New(fonts FaceSource, log *zap.Logger) *Compositor {
	return &Compositor{fonts: fonts, log: log}
}

// Compose decodes both images, places the resized reference at the offset
// center anchor, renders the outlined label and encodes the result.
// Only decode failures abort; they carry errs.ErrDecode.
func (c *Compositor) Compose(ctx context.Context, req model.CompositionRequest) (model.CompositionResult, error) {
	mainImg, _, err := image.Decode(bytes.NewReader(req.Main.Data))
	if err != nil {
		return model.CompositionResult{}, fmt.Errorf("decode main image: %w (%w)", err, errs.ErrDecode)
	}
	refImg, _, err := image.Decode(bytes.NewReader(req.Reference.Data))
	if err != nil {
		return model.CompositionResult{}, fmt.Errorf("decode reference image: %w (%w)", err, errs.ErrDecode)
	}

	// Transparency survives only when a source arrived as a PNG document;
	// photo uploads are transcoded by the transport and lose alpha anyway.
	preserveAlpha := req.Main.IsPNGDocument() || req.Reference.IsPNGDocument()

	ref := imaging.Resize(refImg, RefImageSize, RefImageSize, imaging.Lanczos)

	mainW := mainImg.Bounds().Dx()
	mainH := mainImg.Bounds().Dy()
	x := clamp(mainW/2-RefImageSize/2+req.Spacing.ImageX, 0, mainW-RefImageSize)
	y := clamp(mainH/2-RefImageSize/2+req.Spacing.ImageY, 0, mainH-RefImageSize)

	var canvas *image.NRGBA
	if preserveAlpha {
		// Transparent canvas, main image first, then the reference with its
		// alpha channel acting as a cutout mask.
		canvas = imaging.Paste(image.NewNRGBA(image.Rect(0, 0, mainW, mainH)), mainImg, image.Pt(0, 0))
		canvas = imaging.Overlay(canvas, ref, image.Pt(x, y), 1.0)
	} else {
		// Opaque path: flatten both images first so a transparent GIF or
		// BMP document cannot leak alpha into the JPEG encode, then paste
		// directly with no masking.
		canvas = imaging.Paste(flatten(mainImg), flatten(ref), image.Pt(x, y))
	}

	c.drawLabel(ctx, canvas, req.Label, req.Spacing)

	var buf bytes.Buffer
	result := model.CompositionResult{}
	if preserveAlpha {
		err = imaging.Encode(&buf, canvas, imaging.PNG)
		result.Format = model.FormatPNG
		result.Filename = "merged_image.png"
	} else {
		err = imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(jpegQuality))
		result.Format = model.FormatJPEG
		result.Filename = "merged_image.jpg"
	}
	if err != nil {
		return model.CompositionResult{}, fmt.Errorf("encode result: %w", err)
	}
	result.Data = buf.Bytes()

	c.log.Info("composed image",
		zap.Int("width", mainW), zap.Int("height", mainH),
		zap.String("format", string(result.Format)),
		zap.Bool("alpha", preserveAlpha))
	return result, nil
}

// drawLabel renders the label in white with a one-pixel black outline near
// the bottom of the canvas. An empty label degenerates to zero-width draws.
func (c *Compositor) drawLabel(ctx context.Context, canvas *image.NRGBA, label string, sp model.SpacingOffsets) {
	face := c.fonts.Face(ctx)
	metrics := face.Metrics()
	textW := font.MeasureString(face, label).Ceil()
	textH := (metrics.Ascent + metrics.Descent).Ceil()

	mainW := canvas.Bounds().Dx()
	mainH := canvas.Bounds().Dy()
	x := clamp((mainW-textW)/2+sp.TextX, edgeMargin, mainW-textW-edgeMargin)
	y := clamp(mainH-textH-bottomMargin+sp.TextY, edgeMargin, mainH-textH-edgeMargin)

	// Outline approximation: four black draws offset diagonally, then the
	// label itself in white on top.
	for _, d := range [][2]int{{-1, -1}, {1, -1}, {-1, 1}, {1, 1}} {
		drawString(canvas, face, label, x+d[0]*outlineOffset, y+d[1]*outlineOffset, color.Black)
	}
	drawString(canvas, face, label, x, y, color.White)
}

// drawString draws s with its top-left corner at (x, y).
func drawString(dst *image.NRGBA, face font.Face, s string, x, y int, col color.Color) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(x),
			Y: fixed.I(y) + face.Metrics().Ascent,
		},
	}
	d.DrawString(s)
}

// flatten composites img over an opaque black background, discarding any
// alpha channel the source encoding may carry.
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.NRGBA{A: 255})
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// clamp bounds v to [lo, hi]. When hi < lo (an oversized reference on a small
// main image) the lower bound wins, collapsing the anchor to lo.
func clamp(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
