// Package strip lays out a finished session as a single captioned photostrip.
package strip

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/logic/capture"
	"github.com/cjeanneret/BoothGo/internal/render"
)

// Filename is the download name of every exported strip.
const Filename = "Booth-strip.jpg"

// CaptionLayout renders dates as "day month year", e.g. "18 October 2026".
const CaptionLayout = "2 January 2006"

// ErrNothingToExport means there is no finished strip to render yet.
var ErrNothingToExport = errors.New("strip: nothing to export")

// Layout controls the strip geometry, in pixels.
type Layout struct {
	Width       int // outer width of the strip
	Padding     int // frame border around the photos
	Gap         int // space between photos
	CaptionSize float64
	Background  color.RGBA
	Ink         color.RGBA
	Quality     int // JPEG quality of the export
}

// DefaultLayout is a white frame with dark caption text.
func DefaultLayout() Layout {
	return Layout{
		Width:       400,
		Padding:     20,
		Gap:         15,
		CaptionSize: 22,
		Background:  color.RGBA{255, 255, 255, 255},
		Ink:         color.RGBA{34, 34, 34, 255},
		Quality:     render.DefaultQuality,
	}
}

// Composer renders stills into a strip.
type Composer struct {
	layout Layout
	face   font.Face
	now    func() time.Time
}

// NewComposer creates a composer. Zero layout fields take DefaultLayout values.
func NewComposer(l Layout) (*Composer, error) {
	d := DefaultLayout()
	if l.Width <= 0 {
		l.Width = d.Width
	}
	if l.Padding <= 0 {
		l.Padding = d.Padding
	}
	if l.Gap <= 0 {
		l.Gap = d.Gap
	}
	if l.CaptionSize <= 0 {
		l.CaptionSize = d.CaptionSize
	}
	if l.Background == (color.RGBA{}) {
		l.Background = d.Background
	}
	if l.Ink == (color.RGBA{}) {
		l.Ink = d.Ink
	}
	if l.Quality < 1 || l.Quality > 100 {
		l.Quality = d.Quality
	}
	if l.Width <= 2*l.Padding {
		return nil, fmt.Errorf("strip width %d too small for padding %d", l.Width, l.Padding)
	}

	face, err := loadFace(l.CaptionSize)
	if err != nil {
		return nil, fmt.Errorf("load caption font: %w", err)
	}
	return &Composer{layout: l, face: face, now: time.Now}, nil
}

func loadFace(size float64) (font.Face, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// Caption formats the strip date.
func Caption(t time.Time) string {
	return t.Format(CaptionLayout)
}

// Compose stacks the stills top to bottom, each scaled to the inner width,
// and writes the caption under them.
func (c *Composer) Compose(stills []*render.Still, when time.Time) (*image.RGBA, error) {
	if len(stills) == 0 {
		return nil, ErrNothingToExport
	}
	l := c.layout
	inner := l.Width - 2*l.Padding

	photos := make([]image.Image, 0, len(stills))
	heights := make([]int, 0, len(stills))
	total := l.Padding
	for i, s := range stills {
		img, err := s.Decode()
		if err != nil {
			return nil, fmt.Errorf("decode still %d: %w", i, err)
		}
		b := img.Bounds()
		if b.Dx() == 0 || b.Dy() == 0 {
			return nil, fmt.Errorf("still %d is empty", i)
		}
		h := b.Dy() * inner / b.Dx()
		photos = append(photos, img)
		heights = append(heights, h)
		total += h + l.Gap
	}

	m := c.face.Metrics()
	lineHeight := (m.Ascent + m.Descent).Ceil()
	captionBlock := lineHeight + 2*l.Padding
	total += captionBlock - l.Gap

	out := image.NewRGBA(image.Rect(0, 0, l.Width, total))
	draw.Draw(out, out.Bounds(), image.NewUniform(l.Background), image.Point{}, draw.Src)

	y := l.Padding
	for i, img := range photos {
		dst := image.Rect(l.Padding, y, l.Padding+inner, y+heights[i])
		draw.CatmullRom.Scale(out, dst, img, img.Bounds(), draw.Over, nil)
		y += heights[i] + l.Gap
	}
	y -= l.Gap

	label := Caption(when)
	drawer := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(l.Ink),
		Face: c.face,
	}
	textWidth := drawer.MeasureString(label).Round()
	drawer.Dot = fixed.Point26_6{
		X: fixed.I((l.Width - textWidth) / 2),
		Y: fixed.I(y + l.Padding + m.Ascent.Ceil()),
	}
	drawer.DrawString(label)

	debug.Verbose("Composed strip %dx%d from %d stills", out.Bounds().Dx(), out.Bounds().Dy(), len(stills))
	return out, nil
}

// Export is an encoded strip ready for download.
type Export struct {
	Filename string
	JPEG     []byte
	Caption  string
}

// Export renders a completed session. Sessions that are not complete or
// hold no stills produce ErrNothingToExport.
func (c *Composer) Export(s capture.Session) (*Export, error) {
	if !s.Complete() || len(s.Stills) == 0 {
		return nil, ErrNothingToExport
	}
	when := c.now()
	img, err := c.Compose(s.Stills, when)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.layout.Quality}); err != nil {
		return nil, fmt.Errorf("encode strip: %w", err)
	}
	debug.Info("Exported strip for session %s (%d bytes)", s.ID, buf.Len())
	return &Export{Filename: Filename, JPEG: buf.Bytes(), Caption: Caption(when)}, nil
}

// WriteFile saves the export into dir under its filename and returns the path.
func (e *Export) WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, e.Filename)
	if err := os.WriteFile(path, e.JPEG, 0o644); err != nil {
		return "", fmt.Errorf("write strip: %w", err)
	}
	return path, nil
}
