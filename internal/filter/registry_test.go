package filter

import (
	"image"
	"image/color"
	"testing"
)

// ---------- Lookup ----------

func TestLookup_AllPresetsNonEmpty(t *testing.T) {
	ids := All()
	if len(ids) != 9 {
		t.Fatalf("All() returned %d presets, want 9", len(ids))
	}
	for _, id := range ids {
		t.Run(string(id), func(t *testing.T) {
			e := Lookup(id)
			if e.IsIdentity() {
				t.Errorf("Lookup(%q) returned identity effect", id)
			}
			if e.String() == "none" {
				t.Errorf("Lookup(%q).String() = none", id)
			}
		})
	}
}

func TestLookup_Deterministic(t *testing.T) {
	for _, id := range All() {
		a, b := Lookup(id).String(), Lookup(id).String()
		if a != b {
			t.Errorf("Lookup(%q) not deterministic: %q vs %q", id, a, b)
		}
	}
}

func TestLookup_UnknownIsIdentity(t *testing.T) {
	cases := []ID{"", "70s", "Vaporwave", "golden hour"}
	for _, id := range cases {
		e := Lookup(id)
		if !e.IsIdentity() {
			t.Errorf("Lookup(%q) = %v, want identity", id, e)
		}
		if e.String() != "none" {
			t.Errorf("Lookup(%q).String() = %q, want none", id, e.String())
		}
	}
}

func TestLookup_CaseInsensitive(t *testing.T) {
	if got, want := Lookup("goldenhour").String(), Lookup(GoldenHour).String(); got != want {
		t.Errorf("Lookup(goldenhour) = %q, want %q", got, want)
	}
}

func TestLookup_ReturnsCopy(t *testing.T) {
	e := Lookup(SunnyDay)
	e[0].Amount = 99
	if Lookup(SunnyDay)[0].Amount == 99 {
		t.Error("mutating a looked-up effect changed the registry")
	}
}

func TestEffectString(t *testing.T) {
	cases := map[ID]string{
		Eighties:   "grayscale(1) blur(2px) contrast(1.1)",
		GoldenHour: "sepia(0.2) brightness(1.1) contrast(1.05) hue-rotate(-10deg) saturate(1.2)",
		SunnyDay:   "brightness(1.3) contrast(1.1) saturate(1.2) hue-rotate(-5deg)",
	}
	for id, want := range cases {
		if got := Lookup(id).String(); got != want {
			t.Errorf("Lookup(%q).String() = %q, want %q", id, got, want)
		}
	}
}

// ---------- Parse / IsGrain / Class ----------

func TestParse(t *testing.T) {
	id, ok := Parse("  roseTINT ")
	if !ok || id != RoseTint {
		t.Errorf("Parse = (%q, %v), want (%q, true)", id, ok, RoseTint)
	}
	if _, ok := Parse("nope"); ok {
		t.Error("Parse(nope) should fail")
	}
}

func TestIsGrain(t *testing.T) {
	for _, id := range All() {
		if got, want := IsGrain(id), id == Eighties; got != want {
			t.Errorf("IsGrain(%q) = %v, want %v", id, got, want)
		}
	}
	if IsGrain("unknown") {
		t.Error("IsGrain(unknown) should be false")
	}
}

func TestClass_SingleClass(t *testing.T) {
	for _, id := range append(All(), "unknown") {
		if Class(id) != ClassRetro {
			t.Errorf("Class(%q) = %q, want %q", id, Class(id), ClassRetro)
		}
	}
}

// ---------- Apply ----------

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestApply_IdentityCopies(t *testing.T) {
	src := solid(4, 4, color.RGBA{10, 200, 30, 255})
	out := Effect{}.Apply(src)
	if out == src {
		t.Fatal("Apply should return a new image")
	}
	if out.RGBAAt(1, 1) != src.RGBAAt(1, 1) {
		t.Errorf("identity changed pixel: %v -> %v", src.RGBAAt(1, 1), out.RGBAAt(1, 1))
	}
}

func TestApply_GrayscaleEqualizesChannels(t *testing.T) {
	out := Effect{{Grayscale, 1}}.Apply(solid(2, 2, color.RGBA{200, 40, 90, 255}))
	c := out.RGBAAt(0, 0)
	if c.R != c.G || c.G != c.B {
		t.Errorf("grayscale(1) pixel = %v, want equal channels", c)
	}
}

func TestApply_Brightness(t *testing.T) {
	out := Effect{{Brightness, 2}}.Apply(solid(1, 1, color.RGBA{50, 100, 200, 255}))
	c := out.RGBAAt(0, 0)
	if c.R != 100 || c.G != 200 || c.B != 255 {
		t.Errorf("brightness(2) = %v, want {100 200 255}", c)
	}
}

func TestApply_ContrastKeepsMidGray(t *testing.T) {
	out := Effect{{Contrast, 1.5}}.Apply(solid(1, 1, color.RGBA{128, 128, 128, 255}))
	c := out.RGBAAt(0, 0)
	if c.R < 127 || c.R > 129 {
		t.Errorf("contrast on mid gray = %v, want ~128", c)
	}
}

func TestApply_HueRotateZeroIsIdentity(t *testing.T) {
	src := solid(1, 1, color.RGBA{180, 60, 20, 255})
	c := Effect{{HueRotate, 0}}.Apply(src).RGBAAt(0, 0)
	want := src.RGBAAt(0, 0)
	if absDiff(c.R, want.R) > 1 || absDiff(c.G, want.G) > 1 || absDiff(c.B, want.B) > 1 {
		t.Errorf("hue-rotate(0) = %v, want ~%v", c, want)
	}
}

func TestApply_BlurSmoothsEdge(t *testing.T) {
	img := solid(10, 1, color.RGBA{0, 0, 0, 255})
	for x := 5; x < 10; x++ {
		img.SetRGBA(x, 0, color.RGBA{255, 255, 255, 255})
	}
	out := Effect{{Blur, 1}}.Apply(img)
	left, right := out.RGBAAt(4, 0).R, out.RGBAAt(5, 0).R
	if left == 0 || right == 255 {
		t.Errorf("blur did not smooth the edge: left=%d right=%d", left, right)
	}
	if out.RGBAAt(0, 0).R > 5 || out.RGBAAt(9, 0).R < 250 {
		t.Errorf("blur should leave far pixels near their value: %v %v", out.RGBAAt(0, 0), out.RGBAAt(9, 0))
	}
}

func TestApply_PresetsChangePixels(t *testing.T) {
	src := solid(3, 3, color.RGBA{120, 90, 60, 255})
	for _, id := range All() {
		out := Lookup(id).Apply(src)
		if out.RGBAAt(1, 1) == src.RGBAAt(1, 1) {
			t.Errorf("preset %q left the pixel unchanged", id)
		}
	}
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
