package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/filter"
	"github.com/cjeanneret/BoothGo/internal/hw/camera"
	"github.com/cjeanneret/BoothGo/internal/render"
)

var (
	// ErrBusy is returned by Start when the session is not idle.
	ErrBusy = errors.New("capture: sequence already started")
	// ErrNotComplete is returned by Reshoot before the sequence has finished.
	ErrNotComplete = errors.New("capture: session not complete")
	// ErrUnknownFilter is returned by SetFilter for ids outside the registry.
	ErrUnknownFilter = errors.New("capture: unknown filter")
)

// Capturer renders one still from the source.
type Capturer interface {
	Capture(ctx context.Context, src camera.Source, id filter.ID) (*render.Still, error)
}

// EventKind classifies controller events.
type EventKind string

const (
	EventStatus    EventKind = "status"
	EventCountdown EventKind = "countdown"
	EventShot      EventKind = "shot"
	EventSkip      EventKind = "skip"
	EventFilter    EventKind = "filter"
)

// Event is published on every observable state change.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	Status    Status    `json:"status"`
	Countdown string    `json:"countdown,omitempty"`
	Filter    filter.ID `json:"filter,omitempty"`
	Shot      int       `json:"shot,omitempty"` // 1-based
	Total     int       `json:"total,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Observer receives controller events. It is called synchronously from the
// sequence goroutine and must not block.
type Observer func(Event)

// Controller owns the capture session and drives the timed sequence
// (idle -> counting-down -> capturing -> complete -> idle via Reshoot).
type Controller struct {
	src      camera.Source
	capturer Capturer
	timing   Timing
	filter   *FilterCell

	mu        sync.Mutex
	sess      Session
	observers []Observer
}

// NewController creates an idle controller. An unknown initial filter falls
// back to filter.Default.
func NewController(src camera.Source, c Capturer, timing Timing, initial filter.ID) *Controller {
	id, ok := filter.Parse(string(initial))
	if !ok {
		id = filter.Default
	}
	timing = timing.withDefaults()
	return &Controller{
		src:      src,
		capturer: c,
		timing:   timing,
		filter:   NewFilterCell(id),
		sess:     Session{Status: StatusIdle, Shots: timing.Shots},
	}
}

// Subscribe registers an observer for all future events.
func (c *Controller) Subscribe(o Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()
}

// Timing returns the sequence constants in use.
func (c *Controller) Timing() Timing { return c.timing }

// Filter returns the currently selected filter.
func (c *Controller) Filter() filter.ID { return c.filter.Load() }

// SetFilter changes the selection. It is valid at any time; a running
// sequence picks it up at its next shot.
func (c *Controller) SetFilter(id filter.ID) error {
	canon, ok := filter.Parse(string(id))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, id)
	}
	c.filter.Store(canon)
	debug.Verbose("Filter selected: %s", canon)

	c.mu.Lock()
	evt := c.eventLocked(EventFilter)
	c.mu.Unlock()
	c.publish(evt)
	return nil
}

// Session returns a snapshot of the current session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sess
	s.Filter = c.filter.Load()
	s.Stills = append([]*render.Still(nil), c.sess.Stills...)
	return s
}

// Still returns the i-th still of the current session.
func (c *Controller) Still(i int) (*render.Still, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.sess.Stills) {
		return nil, false
	}
	return c.sess.Stills[i], true
}

// Start claims the session and runs the sequence in the background.
// The returned channel is closed when the sequence ends. Start fails with
// ErrBusy, leaving the session untouched, unless the controller is idle.
func (c *Controller) Start(ctx context.Context) (<-chan struct{}, error) {
	if err := c.claim(); err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.sequence(ctx); err != nil {
			debug.Error(fmt.Errorf("capture sequence: %w", err))
		}
	}()
	return done, nil
}

// Run claims the session and runs the sequence, blocking until it ends.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.claim(); err != nil {
		return err
	}
	return c.sequence(ctx)
}

// Reshoot discards a completed session and returns to idle.
func (c *Controller) Reshoot() error {
	c.mu.Lock()
	if c.sess.Status != StatusComplete {
		c.mu.Unlock()
		return ErrNotComplete
	}
	c.resetLocked()
	evt := c.eventLocked(EventStatus)
	c.mu.Unlock()

	debug.Live("Reshoot: session cleared")
	c.publish(evt)
	return nil
}

func (c *Controller) claim() error {
	c.mu.Lock()
	if c.sess.Status != StatusIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.resetLocked()
	c.sess.ID = uuid.NewString()
	c.sess.Status = StatusCountingDown
	evt := c.eventLocked(EventStatus)
	c.mu.Unlock()

	debug.Info("Session %s started (%d shots)", evt.SessionID, c.timing.Shots)
	c.publish(evt)
	return nil
}

func (c *Controller) sequence(ctx context.Context) error {
	total := c.timing.Shots
	for shot := 1; shot <= total; shot++ {
		for _, stage := range c.timing.Stages {
			c.update(EventCountdown, func(s *Session) {
				s.Status = StatusCountingDown
				s.Countdown = stage
			}, shot)
			debug.Countdown(shot, total, stage)
			if err := sleep(ctx, c.timing.StageDelay); err != nil {
				return c.abort(err)
			}
		}

		c.update(EventStatus, func(s *Session) { s.Status = StatusCapturing }, shot)

		id := c.filter.Load()
		still, err := c.shoot(ctx, id)
		if ctx.Err() != nil {
			return c.abort(ctx.Err())
		}
		if err != nil {
			debug.Warn("Shot %d/%d skipped: %v", shot, total, err)
			c.update(EventSkip, func(s *Session) {
				s.Skipped++
				s.Countdown = ""
			}, shot, err.Error())
		} else {
			debug.Shot(shot, total, string(id))
			c.update(EventShot, func(s *Session) {
				kept := *still
				kept.Index = len(s.Stills)
				s.Stills = append(s.Stills, &kept)
				s.Countdown = ""
			}, shot)
		}

		if err := sleep(ctx, c.timing.SettleDelay); err != nil {
			return c.abort(err)
		}
	}

	c.update(EventStatus, func(s *Session) {
		s.Status = StatusComplete
		s.Countdown = ""
	}, 0)
	sess := c.Session()
	debug.Info("Session %s complete: %d stills, %d skipped", sess.ID, len(sess.Stills), sess.Skipped)
	return nil
}

// shoot captures once, retrying a single time if the source was not ready.
func (c *Controller) shoot(ctx context.Context, id filter.ID) (*render.Still, error) {
	still, err := c.capturer.Capture(ctx, c.src, id)
	if errors.Is(err, render.ErrSourceNotReady) {
		debug.Verbose("Source not ready, retrying in %v", c.timing.RetryDelay)
		if serr := sleep(ctx, c.timing.RetryDelay); serr != nil {
			return nil, serr
		}
		still, err = c.capturer.Capture(ctx, c.src, id)
	}
	return still, err
}

func (c *Controller) abort(err error) error {
	c.mu.Lock()
	c.resetLocked()
	evt := c.eventLocked(EventStatus)
	evt.Message = "sequence interrupted"
	c.mu.Unlock()

	debug.Warn("Sequence interrupted: %v", err)
	c.publish(evt)
	return err
}

func (c *Controller) update(kind EventKind, fn func(*Session), shot int, msg ...string) {
	c.mu.Lock()
	fn(&c.sess)
	evt := c.eventLocked(kind)
	c.mu.Unlock()

	evt.Shot = shot
	if len(msg) > 0 {
		evt.Message = msg[0]
	}
	c.publish(evt)
}

func (c *Controller) resetLocked() {
	c.sess = Session{Status: StatusIdle, Shots: c.timing.Shots}
}

func (c *Controller) eventLocked(kind EventKind) Event {
	return Event{
		Kind:      kind,
		SessionID: c.sess.ID,
		Status:    c.sess.Status,
		Countdown: c.sess.Countdown,
		Filter:    c.filter.Load(),
		Total:     c.timing.Shots,
	}
}

func (c *Controller) publish(evt Event) {
	c.mu.Lock()
	obs := append([]Observer(nil), c.observers...)
	c.mu.Unlock()
	for _, o := range obs {
		o(evt)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
