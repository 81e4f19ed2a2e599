package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/BoothGo/internal/filter"
	"github.com/cjeanneret/BoothGo/internal/hw/camera"
)

// recordingGrain counts Texture calls and returns a fixed texture or error.
type recordingGrain struct {
	mu    sync.Mutex
	calls int
	img   image.Image
	err   error
}

func (g *recordingGrain) Texture(context.Context) (image.Image, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.img, g.err
}

func grayTexture(v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
	}
	return img
}

func sameImage(a, b *image.RGBA) bool {
	return a.Bounds() == b.Bounds() && bytes.Equal(a.Pix, b.Pix)
}

// ---------- Mirror ----------

func TestMirror_FlipsHorizontally(t *testing.T) {
	src := camera.TestPattern(16, 8)
	out := Mirror(src)
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			if out.RGBAAt(x, y) != src.RGBAAt(15-x, y) {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, out.RGBAAt(x, y), src.RGBAAt(15-x, y))
			}
		}
	}
}

func TestMirror_NonRGBASource(t *testing.T) {
	src := image.NewNRGBA(image.Rect(10, 10, 13, 11))
	src.SetNRGBA(10, 10, color.NRGBA{255, 0, 0, 255})
	out := Mirror(src)
	if out.Bounds() != image.Rect(0, 0, 3, 1) {
		t.Fatalf("bounds = %v, want (0,0)-(3,1)", out.Bounds())
	}
	if c := out.RGBAAt(2, 0); c.R != 255 {
		t.Errorf("mirrored pixel = %v, want red", c)
	}
}

// ---------- Frame / Capture ----------

func TestFrame_MirrorsSource(t *testing.T) {
	src := camera.NewMock(16, 8)
	r := NewRenderer(nil, 0)
	img, err := r.Frame(context.Background(), src, "identity")
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	raw := camera.TestPattern(16, 8)
	if img.RGBAAt(15, 0) != raw.RGBAAt(0, 0) {
		t.Errorf("top-right = %v, want raw top-left %v", img.RGBAAt(15, 0), raw.RGBAAt(0, 0))
	}
	if img.RGBAAt(0, 0) == raw.RGBAAt(0, 0) {
		t.Error("top-left should no longer be the marker")
	}
}

func TestCapture_NotReady(t *testing.T) {
	src := camera.NewMock(8, 8)
	src.SetReady(false)
	r := NewRenderer(nil, 0)
	still, err := r.Capture(context.Background(), src, filter.GoldenHour)
	if !errors.Is(err, ErrSourceNotReady) {
		t.Errorf("err = %v, want ErrSourceNotReady", err)
	}
	if still != nil {
		t.Error("no still should be produced")
	}
}

func TestCapture_NilSource(t *testing.T) {
	r := NewRenderer(nil, 0)
	if _, err := r.Capture(context.Background(), nil, filter.GoldenHour); !errors.Is(err, ErrSourceNotReady) {
		t.Errorf("err = %v, want ErrSourceNotReady", err)
	}
}

func TestCapture_EncodesJPEGAtNativeSize(t *testing.T) {
	src := camera.NewMock(64, 48)
	r := NewRenderer(nil, 80)
	still, err := r.Capture(context.Background(), src, filter.GoldenHour)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if still.Filter != filter.GoldenHour {
		t.Errorf("Filter = %q, want %q", still.Filter, filter.GoldenHour)
	}
	if still.Width != 64 || still.Height != 48 {
		t.Errorf("size = %dx%d, want 64x48", still.Width, still.Height)
	}
	if still.ID == "" {
		t.Error("still should have an ID")
	}
	img, err := still.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("decoded bounds = %v, want 64x48", b)
	}
	// green marker ends up top-right after mirroring (allow JPEG loss)
	r8, g8, _, _ := img.At(60, 2).RGBA()
	if g8>>8 < 150 || r8>>8 > 80 {
		t.Errorf("top-right pixel not green after mirror: r=%d g=%d", r8>>8, g8>>8)
	}
}

// ---------- Grain overlay ----------

func TestGrain_OnlyForGrainPreset(t *testing.T) {
	src := camera.NewMock(16, 16)
	grain := &recordingGrain{img: grayTexture(230)}
	withGrain := NewRenderer(grain, 0)
	plain := NewRenderer(nil, 0)
	ctx := context.Background()

	for _, id := range filter.All() {
		a, err := withGrain.Frame(ctx, src, id)
		if err != nil {
			t.Fatalf("%s: Frame: %v", id, err)
		}
		b, err := plain.Frame(ctx, src, id)
		if err != nil {
			t.Fatalf("%s: Frame: %v", id, err)
		}
		if filter.IsGrain(id) {
			if sameImage(a, b) {
				t.Errorf("%s: grain overlay did not change the frame", id)
			}
		} else if !sameImage(a, b) {
			t.Errorf("%s: frame changed although preset has no grain", id)
		}
	}
	if grain.calls != 1 {
		t.Errorf("texture requested %d times, want 1 (grain preset only)", grain.calls)
	}
}

func TestGrain_FailOpen(t *testing.T) {
	src := camera.NewMock(16, 16)
	broken := NewRenderer(&recordingGrain{err: errors.New("missing asset")}, 0)
	plain := NewRenderer(nil, 0)

	a, err := broken.Frame(context.Background(), src, filter.Eighties)
	if err != nil {
		t.Fatalf("Frame should succeed without overlay, got %v", err)
	}
	b, _ := plain.Frame(context.Background(), src, filter.Eighties)
	if !sameImage(a, b) {
		t.Error("failed texture should leave the base frame untouched")
	}
}

func TestGrain_TextureTakesPresetEffect(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < len(base.Pix); i += 4 {
		base.Pix[i], base.Pix[i+1], base.Pix[i+2], base.Pix[i+3] = 100, 100, 100, 255
	}
	src := camera.NewMock(16, 16)
	src.SetFrame(base)

	red := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(red.Pix); i += 4 {
		red.Pix[i], red.Pix[i+3] = 255, 255
	}
	r := NewRenderer(&recordingGrain{img: red}, 0)

	img, err := r.Frame(context.Background(), src, filter.Eighties)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	// A grayscale preset turns the red texture gray, so no channel may drift.
	p := img.RGBAAt(8, 8)
	if p.R != p.G || p.G != p.B {
		t.Errorf("pixel = %v, want neutral gray after grayscale grain", p)
	}
}

func TestOverlay_Math(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 1, 1))
	dst.Pix[0], dst.Pix[1], dst.Pix[2], dst.Pix[3] = 51, 204, 128, 255
	Overlay(dst, grayTexture(255), 1)
	// white overlay: dark base doubles, light base goes to white
	if dst.Pix[0] != 102 {
		t.Errorf("dark channel = %d, want 102", dst.Pix[0])
	}
	if dst.Pix[1] != 255 {
		t.Errorf("light channel = %d, want 255", dst.Pix[1])
	}
	if dst.Pix[3] != 255 {
		t.Errorf("alpha = %d, want 255", dst.Pix[3])
	}
}

func TestOverlay_ZeroOpacity(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range dst.Pix {
		dst.Pix[i] = 77
	}
	before := append([]byte(nil), dst.Pix...)
	Overlay(dst, grayTexture(255), 0)
	if !bytes.Equal(before, dst.Pix) {
		t.Error("zero opacity should not change pixels")
	}
}

// ---------- GrainLoader ----------

func TestGrainLoader_CachesTexture(t *testing.T) {
	calls := 0
	g := NewGrainLoader("grain.png", time.Second)
	g.open = func(string) (image.Image, error) {
		calls++
		return grayTexture(10), nil
	}
	for i := 0; i < 3; i++ {
		if _, err := g.Texture(context.Background()); err != nil {
			t.Fatalf("Texture: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("open called %d times, want 1", calls)
	}
}

func TestGrainLoader_Timeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	g := NewGrainLoader("grain.png", 20*time.Millisecond)
	g.open = func(string) (image.Image, error) {
		<-block
		return grayTexture(10), nil
	}

	start := time.Now()
	_, err := g.Texture(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Texture should give up after the timeout")
	}
}

func TestGrainLoader_MissingFile(t *testing.T) {
	g := NewGrainLoader(t.TempDir()+"/nope.png", time.Second)
	if _, err := g.Texture(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGrainLoader_ShippedTexture(t *testing.T) {
	g := NewGrainLoader("../../assets/grain.png", 2*time.Second)
	tex, err := g.Texture(context.Background())
	if err != nil {
		t.Fatalf("shipped grain texture: %v", err)
	}
	if b := tex.Bounds(); b.Dx() != 256 || b.Dy() != 256 {
		t.Errorf("texture bounds = %v, want 256x256", b)
	}
}

func TestStaticGrain_Empty(t *testing.T) {
	if _, err := (StaticGrain{}).Texture(context.Background()); err == nil {
		t.Error("expected error for empty static grain")
	}
}
