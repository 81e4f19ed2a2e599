// Package webcam reads live frames from a local camera through OpenCV.
package webcam

import (
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/hw/camera"
)

// Source is a camera.Source backed by a gocv VideoCapture.
// A reader goroutine keeps the most recent frame; Ready turns true once
// the first frame has been decoded.
type Source struct {
	cap *gocv.VideoCapture

	mu     sync.RWMutex
	latest image.Image

	stop chan struct{}
	done chan struct{}
}

// Open starts capturing from deviceID. width/height are requested from the
// driver (0 keeps the device default); the actual size is whatever it delivers.
func Open(deviceID, width, height int) (*Source, error) {
	vc, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("open video device %d: %w", deviceID, err)
	}
	if width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	}
	if height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	debug.Info("Webcam %d opened (requested %dx%d)", deviceID, width, height)

	s := &Source{
		cap:  vc,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *Source) run() {
	defer close(s.done)
	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if ok := s.cap.Read(&mat); !ok || mat.Empty() {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		img, err := mat.ToImage()
		if err != nil {
			debug.Verbose("Webcam: frame conversion failed: %v", err)
			continue
		}
		s.mu.Lock()
		s.latest = img
		s.mu.Unlock()
	}
}

func (s *Source) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest != nil
}

func (s *Source) Frame() (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, camera.ErrNoFrame
	}
	return s.latest, nil
}

// Close stops the reader and releases the device.
func (s *Source) Close() error {
	close(s.stop)
	<-s.done
	debug.Trace("Webcam Close")
	return s.cap.Close()
}

var _ camera.Source = (*Source)(nil)
