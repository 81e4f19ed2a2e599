// Package trigger connects the booth to physical controls: a shutter button
// that starts a session and a lamp lit while the camera is shooting.
package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/hw/gpio"
	"github.com/cjeanneret/BoothGo/internal/logic/capture"
)

// Button is an active-LOW push button on a pulled-up input.
type Button struct {
	drv      gpio.Driver
	pin      int
	debounce time.Duration
	poll     time.Duration
	onPress  func()
}

// NewButton configures pin as a pulled-up input. onPress runs on the polling
// goroutine once per debounced press.
func NewButton(drv gpio.Driver, pin int, debounce, poll time.Duration, onPress func()) (*Button, error) {
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	if err := drv.SetupPin(pin, gpio.InputPullUp); err != nil {
		return nil, fmt.Errorf("setup button pin %d: %w", pin, err)
	}
	return &Button{drv: drv, pin: pin, debounce: debounce, poll: poll, onPress: onPress}, nil
}

// Run samples the pin until ctx is done. A press fires when the pin has read
// LOW for the debounce interval; holding the button does not repeat.
func (b *Button) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	stable := gpio.High
	candidate := gpio.High
	since := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			level, err := b.drv.ReadPin(b.pin)
			if err != nil {
				return fmt.Errorf("read button pin %d: %w", b.pin, err)
			}
			if level != candidate {
				candidate = level
				since = now
			}
			if candidate == stable || now.Sub(since) < b.debounce {
				continue
			}
			stable = candidate
			if stable == gpio.Low {
				debug.Live("Button pressed (pin %d)", b.pin)
				b.onPress()
			}
		}
	}
}

// StartOnPress returns a press handler that starts a capture session.
// Presses while a session is running are ignored.
func StartOnPress(ctx context.Context, c *capture.Controller) func() {
	return func() {
		if _, err := c.Start(ctx); err != nil {
			debug.Verbose("Button ignored: %v", err)
		}
	}
}

// Lamp drives an output pin HIGH while the booth is counting down or capturing.
type Lamp struct {
	drv gpio.Driver
	pin int

	mu  sync.Mutex
	lit bool
}

// NewLamp configures pin as an output and switches it off.
func NewLamp(drv gpio.Driver, pin int) (*Lamp, error) {
	if err := drv.SetupPin(pin, gpio.Output); err != nil {
		return nil, fmt.Errorf("setup lamp pin %d: %w", pin, err)
	}
	if err := drv.WritePin(pin, gpio.Low); err != nil {
		return nil, fmt.Errorf("switch lamp off: %w", err)
	}
	return &Lamp{drv: drv, pin: pin}, nil
}

// Observe is a capture.Observer.
func (l *Lamp) Observe(evt capture.Event) {
	on := evt.Status == capture.StatusCountingDown || evt.Status == capture.StatusCapturing
	if err := l.set(on); err != nil {
		debug.Error(err)
	}
}

// Lit reports whether the lamp is on.
func (l *Lamp) Lit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lit
}

// Off switches the lamp off.
func (l *Lamp) Off() error {
	return l.set(false)
}

func (l *Lamp) set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if on == l.lit {
		return nil
	}
	level := gpio.Low
	if on {
		level = gpio.High
	}
	if err := l.drv.WritePin(l.pin, level); err != nil {
		return fmt.Errorf("lamp pin %d: %w", l.pin, err)
	}
	l.lit = on
	return nil
}
