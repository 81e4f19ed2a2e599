// Package render rasterizes booth stills from a live video source.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"

	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/filter"
	"github.com/cjeanneret/BoothGo/internal/hw/camera"
)

// ErrSourceNotReady means the source had no decodable frame at capture time.
var ErrSourceNotReady = errors.New("render: video source not ready")

const (
	// GrainOpacity is the alpha applied to the grain texture.
	GrainOpacity = 0.2
	// DefaultQuality matches the usual browser JPEG export quality.
	DefaultQuality = 92
)

// Still is one captured frame with the filter it was taken with.
// It must not be modified after creation.
type Still struct {
	ID      string    `json:"id"`
	Index   int       `json:"index"`
	Filter  filter.ID `json:"filter"`
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	TakenAt time.Time `json:"taken_at"`
	JPEG    []byte    `json:"-"`
}

// Decode returns the still's pixels.
func (s *Still) Decode() (image.Image, error) {
	return jpeg.Decode(bytes.NewReader(s.JPEG))
}

// Renderer turns live frames into stills.
type Renderer struct {
	grain   Grain
	quality int
	now     func() time.Time
}

// NewRenderer creates a renderer. grain may be nil (no overlay is ever drawn).
// quality outside 1..100 uses DefaultQuality.
func NewRenderer(grain Grain, quality int) *Renderer {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Renderer{grain: grain, quality: quality, now: time.Now}
}

// Frame renders the current source frame (mirrored, filtered, grain for the
// grain preset) without encoding it.
func (r *Renderer) Frame(ctx context.Context, src camera.Source, id filter.ID) (*image.RGBA, error) {
	if src == nil || !src.Ready() {
		return nil, ErrSourceNotReady
	}
	frame, err := src.Frame()
	if err != nil {
		if errors.Is(err, camera.ErrNoFrame) {
			return nil, ErrSourceNotReady
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}

	effect := filter.Lookup(id)
	img := effect.Apply(Mirror(frame))

	// The texture is drawn through the same effect as the frame.
	if filter.IsGrain(id) && r.grain != nil {
		tex, err := r.grain.Texture(ctx)
		if err != nil {
			// fail open: the still is kept without overlay
			debug.Warn("Grain overlay skipped: %v", err)
		} else {
			Overlay(img, effect.Apply(tex), GrainOpacity)
		}
	}
	return img, nil
}

// Capture renders and encodes one still.
func (r *Renderer) Capture(ctx context.Context, src camera.Source, id filter.ID) (*Still, error) {
	img, err := r.Frame(ctx, src, id)
	if err != nil {
		return nil, err
	}
	data, err := r.Encode(img)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	debug.Verbose("Rendered still %dx%d, filter=%s, %d bytes", b.Dx(), b.Dy(), id, len(data))
	return &Still{
		ID:      uuid.NewString(),
		Filter:  id,
		Width:   b.Dx(),
		Height:  b.Dy(),
		TakenAt: r.now(),
		JPEG:    data,
	}, nil
}

// Encode writes img as JPEG at the renderer's quality.
func (r *Renderer) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Mirror returns a horizontally flipped copy of img, origin at (0,0).
func Mirror(img image.Image) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	src, ok := img.(*image.RGBA)
	if !ok {
		src = image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.Draw(src, src.Bounds(), img, b.Min, xdraw.Src)
		b = src.Bounds()
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		srow := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		drow := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			copy(drow[4*(w-1-x):4*(w-1-x)+4], srow[4*x:4*x+4])
		}
	}
	return out
}

// Overlay composites texture over dst with the overlay blend mode at the
// given opacity. The texture is stretched to dst's size.
func Overlay(dst *image.RGBA, texture image.Image, opacity float64) {
	b := dst.Bounds()
	tex := image.NewRGBA(b)
	xdraw.BiLinear.Scale(tex, b, texture, texture.Bounds(), xdraw.Src, nil)

	for i := 0; i+3 < len(dst.Pix); i += 4 {
		alpha := opacity * float64(tex.Pix[i+3]) / 255
		if alpha == 0 {
			continue
		}
		for c := 0; c < 3; c++ {
			base := float64(dst.Pix[i+c]) / 255
			// tex is premultiplied; recover the straight colour
			s := 0.0
			if tex.Pix[i+3] > 0 {
				s = float64(tex.Pix[i+c]) / float64(tex.Pix[i+3])
			}
			var blended float64
			if base < 0.5 {
				blended = 2 * base * s
			} else {
				blended = 1 - 2*(1-base)*(1-s)
			}
			v := (1-alpha)*base + alpha*blended
			dst.Pix[i+c] = uint8(v*255 + 0.5)
		}
	}
}
