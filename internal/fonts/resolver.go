// Package fonts resolves a renderable font face with caching and a fallback chain.
package fonts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
)

const (
	// DefaultFamily is the web font family fetched from Google Fonts.
	DefaultFamily = "Boldonse"

	// FontSize is the fixed point size labels are rendered at.
	FontSize = 48

	stylesheetURL = "https://fonts.googleapis.com/css2?family=%s&display=swap"
	fetchTimeout  = 15 * time.Second
)

// fallbackPaths are tried in order when the cache and the web fetch both fail.
var fallbackPaths = []string{
	"/System/Library/Fonts/Courier.ttc",
	"/System/Library/Fonts/Monaco.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationMono-Regular.ttf",
	"C:\\Windows\\Fonts\\consola.ttf",
	"C:\\Windows\\Fonts\\cour.ttf",
	"/System/Library/Fonts/Menlo.ttc",
}

// Resolver obtains a font face: local cache first, then a web fetch persisted
// to the cache, then known platform font files, then a built-in bitmap face.
// Resolution never fails; every fallback step is logged and non-fatal.
type Resolver struct {
	cachePath  string
	family     string
	stylesheet string
	fallbacks  []string
	client     *http.Client
	log        *zap.Logger

	mu   sync.Mutex
	face font.Face
}

// NewResolver constructs a resolver caching the web font at cachePath.
func NewResolver(cachePath string, log *zap.Logger) *Resolver {
	return &Resolver{
		cachePath:  cachePath,
		family:     DefaultFamily,
		stylesheet: fmt.Sprintf(stylesheetURL, url.QueryEscape(DefaultFamily)),
		fallbacks:  fallbackPaths,
		client:     &http.Client{Timeout: fetchTimeout},
		log:        log,
	}
}

// Face returns a usable font face. The first successful resolution is
// memoized for the life of the process.
func (r *Resolver) Face(ctx context.Context) font.Face {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.face != nil {
		return r.face
	}

	if face, err := r.faceFromFile(r.cachePath); err == nil {
		r.log.Info("using cached font", zap.String("path", r.cachePath))
		r.face = face
		return face
	}

	if face, err := r.fetchWebFont(ctx); err == nil {
		r.face = face
		return face
	} else {
		r.log.Warn("web font unavailable", zap.Error(err))
	}

	for _, path := range r.fallbacks {
		face, err := r.faceFromFile(path)
		if err != nil {
			continue
		}
		r.log.Info("using fallback font", zap.String("path", path))
		r.face = face
		return face
	}

	r.log.Warn("no fonts found, using built-in bitmap face")
	r.face = basicfont.Face7x13
	return r.face
}

// fetchWebFont downloads the family stylesheet, extracts the binary font URL,
// downloads the font and persists it to the cache path.
func (r *Resolver) fetchWebFont(ctx context.Context) (font.Face, error) {
	css, err := r.get(ctx, r.stylesheet)
	if err != nil {
		return nil, fmt.Errorf("fetch stylesheet: %w", err)
	}

	fontURL := extractFontURL(string(css))
	if fontURL == "" {
		return nil, fmt.Errorf("no font url in stylesheet for %q", r.family)
	}

	data, err := r.get(ctx, fontURL)
	if err != nil {
		return nil, fmt.Errorf("fetch font: %w", err)
	}

	face, err := faceFromData(data)
	if err != nil {
		return nil, fmt.Errorf("parse fetched font: %w", err)
	}

	if err := os.WriteFile(r.cachePath, data, 0o644); err != nil {
		// The face is already usable; losing the cache only costs a refetch.
		r.log.Warn("persisting font cache", zap.Error(err))
	} else {
		r.log.Info("downloaded font", zap.String("family", r.family), zap.String("path", r.cachePath))
	}
	return face, nil
}

func (r *Resolver) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", u, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// extractFontURL pulls the first url(...ttf) target out of a stylesheet.
func extractFontURL(css string) string {
	for _, line := range strings.Split(css, "\n") {
		if !strings.Contains(line, "url(") || !strings.Contains(line, ".ttf") {
			continue
		}
		start := strings.Index(line, "url(") + len("url(")
		end := strings.Index(line[start:], ")")
		if end < 0 {
			continue
		}
		return strings.Trim(line[start:start+end], `'" `)
	}
	return ""
}

func (r *Resolver) faceFromFile(path string) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	face, err := faceFromData(data)
	if err != nil {
		r.log.Debug("unusable font file", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	return face, nil
}

func faceFromData(data []byte) (font.Face, error) {
	ft, err := opentype.Parse(data)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(ft, &opentype.FaceOptions{
		Size:    FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}
