package filter

import (
	"image"
	"image/draw"
	"math"
)

// plane is a float RGB working copy of an image, channels in [0,1].
type plane struct {
	w, h int
	px   []float64 // r,g,b interleaved
	a    []uint8
}

func newPlane(img *image.RGBA) *plane {
	b := img.Bounds()
	p := &plane{
		w:  b.Dx(),
		h:  b.Dy(),
		px: make([]float64, 3*b.Dx()*b.Dy()),
		a:  make([]uint8, b.Dx()*b.Dy()),
	}
	for y := 0; y < p.h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < p.w; x++ {
			i := y*p.w + x
			p.px[3*i] = float64(row[4*x]) / 255
			p.px[3*i+1] = float64(row[4*x+1]) / 255
			p.px[3*i+2] = float64(row[4*x+2]) / 255
			p.a[i] = row[4*x+3]
		}
	}
	return p
}

func (p *plane) rgba() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, p.w, p.h))
	for i := 0; i < p.w*p.h; i++ {
		out.Pix[4*i] = to8(p.px[3*i])
		out.Pix[4*i+1] = to8(p.px[3*i+1])
		out.Pix[4*i+2] = to8(p.px[3*i+2])
		out.Pix[4*i+3] = p.a[i]
	}
	return out
}

func to8(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Apply renders the effect onto a copy of img and returns it.
// Primitives run in order, each clamped to [0,1] before the next.
func (e Effect) Apply(img image.Image) *image.RGBA {
	b := img.Bounds()
	src := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(src, src.Bounds(), img, b.Min, draw.Src)
	if e.IsIdentity() {
		return src
	}

	p := newPlane(src)
	for _, prim := range e {
		switch prim.Kind {
		case Blur:
			p.blur(prim.Amount)
		case Brightness:
			p.linear(prim.Amount, 0)
		case Contrast:
			p.linear(prim.Amount, 0.5-0.5*prim.Amount)
		default:
			if m, ok := prim.matrix(); ok {
				p.mul(m)
			}
		}
	}
	return p.rgba()
}

func (p *plane) linear(slope, intercept float64) {
	for i := range p.px {
		p.px[i] = clamp01(p.px[i]*slope + intercept)
	}
}

func (p *plane) mul(m [9]float64) {
	for i := 0; i < len(p.px); i += 3 {
		r, g, b := p.px[i], p.px[i+1], p.px[i+2]
		p.px[i] = clamp01(m[0]*r + m[1]*g + m[2]*b)
		p.px[i+1] = clamp01(m[3]*r + m[4]*g + m[5]*b)
		p.px[i+2] = clamp01(m[6]*r + m[7]*g + m[8]*b)
	}
}

// matrix returns the 3x3 colour matrix for the point primitives
// defined by the Filter Effects module.
func (prim Primitive) matrix() ([9]float64, bool) {
	switch prim.Kind {
	case Saturate:
		s := prim.Amount
		return [9]float64{
			0.213 + 0.787*s, 0.715 - 0.715*s, 0.072 - 0.072*s,
			0.213 - 0.213*s, 0.715 + 0.285*s, 0.072 - 0.072*s,
			0.213 - 0.213*s, 0.715 - 0.715*s, 0.072 + 0.928*s,
		}, true
	case HueRotate:
		rad := prim.Amount * math.Pi / 180
		c, s := math.Cos(rad), math.Sin(rad)
		return [9]float64{
			0.213 + c*0.787 - s*0.213, 0.715 - c*0.715 - s*0.715, 0.072 - c*0.072 + s*0.928,
			0.213 - c*0.213 + s*0.143, 0.715 + c*0.285 + s*0.140, 0.072 - c*0.072 - s*0.283,
			0.213 - c*0.213 - s*0.787, 0.715 - c*0.715 + s*0.715, 0.072 + c*0.928 + s*0.072,
		}, true
	case Sepia:
		k := 1 - clamp01(prim.Amount)
		return [9]float64{
			0.393 + 0.607*k, 0.769 - 0.769*k, 0.189 - 0.189*k,
			0.349 - 0.349*k, 0.686 + 0.314*k, 0.168 - 0.168*k,
			0.272 - 0.272*k, 0.534 - 0.534*k, 0.131 + 0.869*k,
		}, true
	case Grayscale:
		k := 1 - clamp01(prim.Amount)
		return [9]float64{
			0.2126 + 0.7874*k, 0.7152 - 0.7152*k, 0.0722 - 0.0722*k,
			0.2126 - 0.2126*k, 0.7152 + 0.2848*k, 0.0722 - 0.0722*k,
			0.2126 - 0.2126*k, 0.7152 - 0.7152*k, 0.0722 + 0.9278*k,
		}, true
	}
	return [9]float64{}, false
}

// blur runs a separable gaussian with the given sigma, clamping at the edges.
func (p *plane) blur(sigma float64) {
	if sigma <= 0 || p.w == 0 || p.h == 0 {
		return
	}
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	tmp := make([]float64, len(p.px))
	// horizontal
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var r, g, b float64
			for k := -radius; k <= radius; k++ {
				sx := clampInt(x+k, 0, p.w-1)
				j := 3 * (y*p.w + sx)
				wt := kernel[k+radius]
				r += p.px[j] * wt
				g += p.px[j+1] * wt
				b += p.px[j+2] * wt
			}
			i := 3 * (y*p.w + x)
			tmp[i], tmp[i+1], tmp[i+2] = r, g, b
		}
	}
	// vertical
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var r, g, b float64
			for k := -radius; k <= radius; k++ {
				sy := clampInt(y+k, 0, p.h-1)
				j := 3 * (sy*p.w + x)
				wt := kernel[k+radius]
				r += tmp[j] * wt
				g += tmp[j+1] * wt
				b += tmp[j+2] * wt
			}
			i := 3 * (y*p.w + x)
			p.px[i], p.px[i+1], p.px[i+2] = clamp01(r), clamp01(g), clamp01(b)
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
