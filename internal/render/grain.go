package render

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // texture decoders
	_ "image/png"
	"os"
	"sync"
	"time"

	"github.com/cjeanneret/BoothGo/internal/debug"
)

// Grain provides the film-grain texture composited over the grain preset.
type Grain interface {
	Texture(ctx context.Context) (image.Image, error)
}

// StaticGrain is an in-memory texture.
type StaticGrain struct {
	Image image.Image
}

func (g StaticGrain) Texture(context.Context) (image.Image, error) {
	if g.Image == nil {
		return nil, fmt.Errorf("grain: no texture")
	}
	return g.Image, nil
}

// DefaultGrainTimeout bounds a single texture load.
const DefaultGrainTimeout = 2 * time.Second

// GrainLoader reads the texture from disk. The decoded texture is cached
// after the first successful load; failed loads are retried on next use.
type GrainLoader struct {
	path    string
	timeout time.Duration

	mu      sync.Mutex
	texture image.Image

	// open is swapped in tests to simulate slow storage.
	open func(path string) (image.Image, error)
}

// NewGrainLoader creates a loader for path. timeout <= 0 uses DefaultGrainTimeout.
func NewGrainLoader(path string, timeout time.Duration) *GrainLoader {
	if timeout <= 0 {
		timeout = DefaultGrainTimeout
	}
	return &GrainLoader{path: path, timeout: timeout, open: decodeFile}
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Texture returns the cached texture or loads it, giving up after the timeout.
func (g *GrainLoader) Texture(ctx context.Context) (image.Image, error) {
	g.mu.Lock()
	if g.texture != nil {
		t := g.texture
		g.mu.Unlock()
		return t, nil
	}
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		img image.Image
		err error
	}
	ch := make(chan result, 1)
	go func() {
		img, err := g.open(g.path)
		ch <- result{img, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("grain: load texture: %w", r.err)
		}
		g.mu.Lock()
		g.texture = r.img
		g.mu.Unlock()
		debug.Verbose("Grain texture loaded from %s (%v)", g.path, r.img.Bounds().Size())
		return r.img, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("grain: load texture %s: %w", g.path, ctx.Err())
	}
}
