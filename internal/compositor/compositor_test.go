package compositor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/mkarpov/mergerbot/internal/errs"
	"github.com/mkarpov/mergerbot/internal/model"
)

type fakeFaces struct{}

func (fakeFaces) Face(context.Context) font.Face { return basicfont.Face7x13 }

func newCompositor() *Compositor {
	return New(fakeFaces{}, zap.NewNop())
}

func solidNRGBA(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func photo(data []byte) model.MediaItem {
	return model.MediaItem{Data: data, MIME: "image/jpeg"}
}

func pngDocument(data []byte) model.MediaItem {
	return model.MediaItem{Data: data, MIME: "image/png", AsDocument: true}
}

// closeTo tolerates JPEG quantization noise.
func closeTo(t *testing.T, got color.Color, r, g, b uint8) bool {
	t.Helper()
	gr, gg, gb, _ := got.RGBA()
	diff := func(a uint32, want uint8) int {
		d := int(a>>8) - int(want)
		if d < 0 {
			d = -d
		}
		return d
	}
	const tol = 48
	return diff(gr, r) <= tol && diff(gg, g) <= tol && diff(gb, b) <= tol
}

var (
	red  = color.NRGBA{R: 220, A: 255}
	blue = color.NRGBA{B: 220, A: 255}
)

func TestComposeCentersReference(t *testing.T) {
	c := newCompositor()

	req := model.CompositionRequest{
		Main:      photo(encodeJPEG(t, solidNRGBA(500, 500, red))),
		Reference: photo(encodeJPEG(t, solidNRGBA(100, 100, blue))),
	}
	res, err := c.Compose(context.Background(), req)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if res.Format != model.FormatJPEG {
		t.Fatalf("format = %s, want %s", res.Format, model.FormatJPEG)
	}
	if res.Filename != "merged_image.jpg" {
		t.Fatalf("filename = %s", res.Filename)
	}

	out, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	// With zero offsets the 400px reference sits at (50, 50) on a 500px main.
	if !closeTo(t, out.At(250, 250), 0, 0, 220) {
		t.Errorf("center pixel = %v, want blue", out.At(250, 250))
	}
	if !closeTo(t, out.At(20, 20), 220, 0, 0) {
		t.Errorf("corner pixel = %v, want main image showing through", out.At(20, 20))
	}
}

func TestComposeClampsAnchorToCanvas(t *testing.T) {
	c := newCompositor()

	req := model.CompositionRequest{
		Main:      photo(encodeJPEG(t, solidNRGBA(500, 500, red))),
		Reference: photo(encodeJPEG(t, solidNRGBA(100, 100, blue))),
		Spacing:   model.SpacingOffsets{ImageX: -1000},
	}
	res, err := c.Compose(context.Background(), req)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	out, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	// The anchor collapses to x=0, so the reference hugs the left edge.
	if !closeTo(t, out.At(5, 250), 0, 0, 220) {
		t.Errorf("left edge pixel = %v, want blue", out.At(5, 250))
	}
	if !closeTo(t, out.At(470, 250), 220, 0, 0) {
		t.Errorf("right edge pixel = %v, want main image", out.At(470, 250))
	}
}

func TestComposeOversizedReferenceCoversMain(t *testing.T) {
	c := newCompositor()

	req := model.CompositionRequest{
		Main:      photo(encodeJPEG(t, solidNRGBA(200, 200, red))),
		Reference: photo(encodeJPEG(t, solidNRGBA(100, 100, blue))),
	}
	res, err := c.Compose(context.Background(), req)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	out, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	// 400px reference anchored at (0, 0) on a 200px main covers everything.
	if !closeTo(t, out.At(5, 5), 0, 0, 220) {
		t.Errorf("pixel = %v, want blue", out.At(5, 5))
	}
	if !closeTo(t, out.At(195, 100), 0, 0, 220) {
		t.Errorf("pixel = %v, want blue", out.At(195, 100))
	}
}

func TestComposePreservesAlphaForPNGDocuments(t *testing.T) {
	c := newCompositor()

	transparent := image.NewNRGBA(image.Rect(0, 0, 600, 600))
	req := model.CompositionRequest{
		Main:      pngDocument(encodePNG(t, transparent)),
		Reference: photo(encodeJPEG(t, solidNRGBA(50, 50, blue))),
	}
	res, err := c.Compose(context.Background(), req)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if res.Format != model.FormatPNG {
		t.Fatalf("format = %s, want %s", res.Format, model.FormatPNG)
	}
	if res.Filename != "merged_image.png" {
		t.Fatalf("filename = %s", res.Filename)
	}

	out, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if _, _, _, a := out.At(20, 20).RGBA(); a != 0 {
		t.Errorf("corner alpha = %d, want fully transparent", a)
	}
	if _, _, _, a := out.At(300, 300).RGBA(); a == 0 {
		t.Error("reference area is transparent, want opaque")
	}
	if !closeTo(t, out.At(300, 300), 0, 0, 220) {
		t.Errorf("reference pixel = %v, want blue", out.At(300, 300))
	}
}

func TestComposeClampsWideLabelToLeftMargin(t *testing.T) {
	c := newCompositor()

	// 30 glyphs at 7px under the bitmap face measure 210px, wider than the
	// 200px main minus its margins, so the text anchor must collapse to the
	// 10px left margin instead of going negative.
	label := strings.Repeat("H", 30)
	req := model.CompositionRequest{
		Main:      photo(encodeJPEG(t, solidNRGBA(200, 200, red))),
		Reference: photo(encodeJPEG(t, solidNRGBA(10, 10, blue))),
		Label:     label,
	}
	res, err := c.Compose(context.Background(), req)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	out, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	// The oversized reference paints the whole canvas blue; the label band
	// sits around y=157. The leftmost label pixel (black outline at
	// anchor-1) must land near x=10, not at the canvas edge.
	minX := -1
	for y := 150; y < 175; y++ {
		for x := 0; x < 200; x++ {
			if closeTo(t, out.At(x, y), 0, 0, 220) {
				continue
			}
			if minX == -1 || x < minX {
				minX = x
			}
			break
		}
	}
	if minX == -1 {
		t.Fatal("no label pixels found in the label band")
	}
	if minX < 8 || minX > 14 {
		t.Fatalf("leftmost label pixel at x=%d, want the clamped 10px margin", minX)
	}
}

func TestComposeFlattensTransparentDocument(t *testing.T) {
	c := newCompositor()

	// A GIF document with transparent pixels goes down the opaque path:
	// it must not force PNG output, and its transparency must flatten to
	// black rather than leak alpha into the JPEG encode.
	pal := color.Palette{
		color.NRGBA{R: 255, G: 255, B: 255, A: 0},
		color.NRGBA{G: 200, A: 255},
	}
	transparent := image.NewPaletted(image.Rect(0, 0, 100, 100), pal)
	var buf bytes.Buffer
	if err := gif.Encode(&buf, transparent, nil); err != nil {
		t.Fatalf("encode gif: %v", err)
	}

	req := model.CompositionRequest{
		Main:      photo(encodeJPEG(t, solidNRGBA(500, 500, red))),
		Reference: model.MediaItem{Data: buf.Bytes(), MIME: "image/gif", AsDocument: true},
	}
	res, err := c.Compose(context.Background(), req)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if res.Format != model.FormatJPEG {
		t.Fatalf("format = %s, only PNG documents keep their encoding", res.Format)
	}

	out, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !closeTo(t, out.At(250, 250), 0, 0, 0) {
		t.Errorf("reference area = %v, want flattened black", out.At(250, 250))
	}
	if !closeTo(t, out.At(20, 20), 220, 0, 0) {
		t.Errorf("corner pixel = %v, want main image", out.At(20, 20))
	}
}

func TestComposeRendersLabel(t *testing.T) {
	c := newCompositor()

	req := model.CompositionRequest{
		Main:      photo(encodeJPEG(t, solidNRGBA(500, 500, red))),
		Reference: photo(encodeJPEG(t, solidNRGBA(100, 100, blue))),
		Label:     "HELLO",
	}
	res, err := c.Compose(context.Background(), req)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	out, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	// The label band sits 30px above the bottom. Scan it for a white pixel.
	found := false
	for y := 440; y < 490 && !found; y++ {
		for x := 0; x < 500; x++ {
			if closeTo(t, out.At(x, y), 255, 255, 255) {
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("no white label pixels found near the bottom of the canvas")
	}
}

func TestComposeDecodeErrors(t *testing.T) {
	c := newCompositor()
	valid := encodeJPEG(t, solidNRGBA(100, 100, red))

	cases := []struct {
		name string
		req  model.CompositionRequest
	}{
		{"main", model.CompositionRequest{Main: photo([]byte("not an image")), Reference: photo(valid)}},
		{"reference", model.CompositionRequest{Main: photo(valid), Reference: photo([]byte("not an image"))}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Compose(context.Background(), tc.req)
			if !errors.Is(err, errs.ErrDecode) {
				t.Fatalf("err = %v, want ErrDecode", err)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	cases := []struct {
		v, lo, hi, want int
	}{
		{50, 0, 100, 50},
		{-10, 0, 100, 0},
		{150, 0, 100, 100},
		{0, 10, 5, 10},   // hi < lo collapses to lo
		{999, 10, -50, 10},
	}
	for _, tc := range cases {
		if got := clamp(tc.v, tc.lo, tc.hi); got != tc.want {
			t.Errorf("clamp(%d, %d, %d) = %d, want %d", tc.v, tc.lo, tc.hi, got, tc.want)
		}
	}
}
