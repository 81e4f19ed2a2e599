package capture

import (
	"sync/atomic"
	"time"

	"github.com/cjeanneret/BoothGo/internal/filter"
	"github.com/cjeanneret/BoothGo/internal/render"
)

// Status is the capture state machine's state.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusCountingDown Status = "counting-down"
	StatusCapturing    Status = "capturing"
	StatusComplete     Status = "complete"
)

// Timing holds the sequence constants.
type Timing struct {
	Shots       int           // stills per session
	Stages      []string      // countdown tokens shown before each shot
	StageDelay  time.Duration // how long each countdown token is shown
	SettleDelay time.Duration // pause after each shot
	RetryDelay  time.Duration // wait before retrying a not-ready source once
}

// DefaultTiming returns the booth's standard sequence: three shots, each
// preceded by "3.. 2.. 1.. Smile!" one second apart.
func DefaultTiming() Timing {
	return Timing{
		Shots:       3,
		Stages:      []string{"3..", "2..", "1..", "Smile!"},
		StageDelay:  time.Second,
		SettleDelay: 500 * time.Millisecond,
		RetryDelay:  100 * time.Millisecond,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.Shots <= 0 {
		t.Shots = d.Shots
	}
	if len(t.Stages) == 0 {
		t.Stages = d.Stages
	}
	if t.StageDelay < 0 {
		t.StageDelay = 0
	}
	if t.SettleDelay < 0 {
		t.SettleDelay = 0
	}
	if t.RetryDelay < 0 {
		t.RetryDelay = 0
	}
	return t
}

// Session is a snapshot of the current capture session.
type Session struct {
	ID        string          `json:"id"`
	Status    Status          `json:"status"`
	Countdown string          `json:"countdown,omitempty"`
	Filter    filter.ID       `json:"filter"`
	Shots     int             `json:"shots"`
	Skipped   int             `json:"skipped"`
	Stills    []*render.Still `json:"stills"`
}

// Complete reports whether the session finished its sequence.
func (s Session) Complete() bool { return s.Status == StatusComplete }

// FilterCell is the one shared binding for the selected filter. Captures
// read it at the instant they happen, so a selection made mid-sequence
// applies to the next shot and never to stills already taken.
type FilterCell struct {
	v atomic.Value // filter.ID
}

// NewFilterCell creates a cell holding id.
func NewFilterCell(id filter.ID) *FilterCell {
	c := &FilterCell{}
	c.v.Store(id)
	return c
}

func (c *FilterCell) Load() filter.ID {
	id, _ := c.v.Load().(filter.ID)
	return id
}

func (c *FilterCell) Store(id filter.ID) {
	c.v.Store(id)
}
