package camera

import (
	"errors"
	"image"
)

// ErrNoFrame is returned by Frame when no decodable frame is available yet.
var ErrNoFrame = errors.New("camera: no frame available")

// Source is the high-level interface used by the rest of the application.
// It represents a live video source, regardless of how frames are produced
// (USB webcam, network stream, synthetic pattern, etc.). The booth only
// reads frames; it never controls the device lifecycle beyond Close.
type Source interface {
	// Ready reports whether a decodable frame is available.
	Ready() bool
	// Frame returns the latest frame at the source's native resolution.
	Frame() (image.Image, error)
	Close() error
}
