// Package filter maps booth filter presets to their visual effects.
package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// ID names a filter preset.
type ID string

const (
	Eighties    ID = "80s"
	Nineties    ID = "90s"
	SoftGlow    ID = "SoftGlow"
	GoldenHour  ID = "GoldenHour"
	MoodyFade   ID = "MoodyFade"
	PastelDream ID = "PastelDream"
	ClassicFilm ID = "ClassicFilm"
	RoseTint    ID = "RoseTint"
	SunnyDay    ID = "SunnyDay"
)

// Default is the filter selected when the booth starts.
const Default = Eighties

// Grain is the preset that gets the film-grain texture composited on top.
const Grain = Eighties

// Kind is an effect primitive.
type Kind string

const (
	Brightness Kind = "brightness"
	Contrast   Kind = "contrast"
	Saturate   Kind = "saturate"
	HueRotate  Kind = "hue-rotate" // degrees
	Sepia      Kind = "sepia"
	Grayscale  Kind = "grayscale"
	Blur       Kind = "blur" // pixels (gaussian sigma)
)

// Primitive is one effect step with its parameter.
type Primitive struct {
	Kind   Kind    `json:"kind"`
	Amount float64 `json:"amount"`
}

func (p Primitive) String() string {
	v := strconv.FormatFloat(p.Amount, 'f', -1, 64)
	switch p.Kind {
	case HueRotate:
		return fmt.Sprintf("%s(%sdeg)", p.Kind, v)
	case Blur:
		return fmt.Sprintf("%s(%spx)", p.Kind, v)
	default:
		return fmt.Sprintf("%s(%s)", p.Kind, v)
	}
}

// Effect is an ordered chain of primitives. The empty chain is the identity.
type Effect []Primitive

// IsIdentity reports whether the effect leaves images unchanged.
func (e Effect) IsIdentity() bool { return len(e) == 0 }

// String renders the effect as a CSS filter descriptor.
func (e Effect) String() string {
	if e.IsIdentity() {
		return "none"
	}
	parts := make([]string, len(e))
	for i, p := range e {
		parts[i] = p.String()
	}
	return strings.Join(parts, " ")
}

var order = []ID{
	Eighties, Nineties, SoftGlow, GoldenHour, MoodyFade,
	PastelDream, ClassicFilm, RoseTint, SunnyDay,
}

var registry = map[ID]Effect{
	Eighties: {
		{Grayscale, 1}, {Blur, 2}, {Contrast, 1.1},
	},
	Nineties: {
		{Sepia, 0.25}, {Saturate, 0.85}, {Contrast, 0.95}, {Brightness, 1.05},
	},
	SoftGlow: {
		{Brightness, 1.15}, {Contrast, 0.95}, {Saturate, 1.05},
	},
	GoldenHour: {
		{Sepia, 0.2}, {Brightness, 1.1}, {Contrast, 1.05}, {HueRotate, -10}, {Saturate, 1.2},
	},
	MoodyFade: {
		{Contrast, 1.1}, {Brightness, 0.9}, {Saturate, 0.8},
	},
	PastelDream: {
		{Contrast, 0.9}, {Saturate, 0.85}, {Brightness, 1.1},
	},
	ClassicFilm: {
		{Sepia, 0.3}, {Contrast, 1.05}, {Brightness, 0.95}, {Saturate, 0.9},
	},
	RoseTint: {
		{HueRotate, -20}, {Saturate, 1.1}, {Brightness, 1.05},
	},
	SunnyDay: {
		{Brightness, 1.3}, {Contrast, 1.1}, {Saturate, 1.2}, {HueRotate, -5},
	},
}

// All returns the presets in display order.
func All() []ID {
	out := make([]ID, len(order))
	copy(out, order)
	return out
}

// Parse canonicalizes a user-supplied filter name (case-insensitive).
func Parse(s string) (ID, bool) {
	s = strings.TrimSpace(s)
	for _, id := range order {
		if strings.EqualFold(string(id), s) {
			return id, true
		}
	}
	return "", false
}

// Lookup returns the effect for id. Unknown ids get the identity effect.
// The returned slice is a copy.
func Lookup(id ID) Effect {
	canon, ok := Parse(string(id))
	if !ok {
		return Effect{}
	}
	e := registry[canon]
	out := make(Effect, len(e))
	copy(out, e)
	return out
}

// IsGrain reports whether id is the film-grain preset.
func IsGrain(id ID) bool {
	canon, ok := Parse(string(id))
	return ok && canon == Grain
}

// OverlayClass selects the static overlay drawn over a preview or still.
type OverlayClass string

const ClassRetro OverlayClass = "_80s"

// Class returns the overlay class for id.
// Every filter shares the retro overlay; there is no per-filter class yet.
func Class(id ID) OverlayClass {
	return ClassRetro
}
