package camera

import (
	"image"
	"image/color"
	"sync"

	"github.com/cjeanneret/BoothGo/internal/debug"
)

// Mock is a synthetic Source used for development on machines without a
// webcam, and for tests. It produces a left-to-right red ramp with a green
// marker block in the top-left corner so mirroring is easy to detect.
type Mock struct {
	mu     sync.Mutex
	width  int
	height int
	ready  bool
	frames int
	frame  image.Image // optional fixed frame
}

// NewMock creates a ready mock source with the given resolution.
func NewMock(width, height int) *Mock {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	debug.Info("Using MOCK camera source (%dx%d)", width, height)
	return &Mock{width: width, height: height, ready: true}
}

// SetReady toggles readiness (simulates a camera that has not delivered a frame yet).
func (m *Mock) SetReady(ready bool) {
	m.mu.Lock()
	m.ready = ready
	m.mu.Unlock()
}

// SetFrame makes the mock return img instead of the generated pattern.
func (m *Mock) SetFrame(img image.Image) {
	m.mu.Lock()
	m.frame = img
	m.mu.Unlock()
}

// Frames returns how many frames have been served.
func (m *Mock) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

func (m *Mock) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *Mock) Frame() (image.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return nil, ErrNoFrame
	}
	m.frames++
	if m.frame != nil {
		return m.frame, nil
	}
	return TestPattern(m.width, m.height), nil
}

func (m *Mock) Close() error {
	debug.Trace("Camera Close (mock)")
	return nil
}

// TestPattern draws the mock's frame: a horizontal red ramp with a green
// marker in the top-left quarter-width, quarter-height block.
func TestPattern(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{R: uint8(x * 255 / max(width-1, 1)), G: 40, B: 80, A: 255}
			if x < width/4 && y < height/4 {
				c = color.RGBA{R: 0, G: 220, B: 0, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
