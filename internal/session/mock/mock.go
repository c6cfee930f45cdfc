// Package mock provides mock implementations of the component interfaces
// used by [session.Session], for use in unit tests.
//
// All mocks are safe for concurrent use and record their calls.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/betterspeak/internal/capture"
	"github.com/MrWong99/betterspeak/internal/detect"
	"github.com/MrWong99/betterspeak/internal/session"
)

var (
	_ session.Capturer = (*Capture)(nil)
	_ session.Detector = (*Detector)(nil)
	_ session.Player   = (*Player)(nil)
	_ session.Saver    = (*Saver)(nil)
)

// Capture is a mock [session.Capturer]. It tracks state but records no
// audio.
type Capture struct {
	mu sync.Mutex

	// StartErr, StopErr and ResetErr are returned by the respective methods
	// when non-nil.
	StartErr error
	StopErr  error
	ResetErr error

	// LoopErr is returned by Err.
	LoopErr error

	// Recorded is returned by Duration.
	Recorded time.Duration

	// Calls records method names in call order.
	Calls []string

	// StartCtx is the context passed to the last Start call.
	StartCtx context.Context

	state capture.State
}

// Start implements [session.Capturer].
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, "Start")
	if c.StartErr != nil {
		return c.StartErr
	}
	if c.state == capture.StateRunning {
		return capture.ErrAlreadyRunning
	}
	c.StartCtx = ctx
	c.state = capture.StateRunning
	return nil
}

// Stop implements [session.Capturer].
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, "Stop")
	if c.StopErr != nil {
		return c.StopErr
	}
	c.state = capture.StateStopped
	return nil
}

// Reset implements [session.Capturer].
func (c *Capture) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, "Reset")
	if c.ResetErr != nil {
		return c.ResetErr
	}
	c.Recorded = 0
	return nil
}

// State implements [session.Capturer].
func (c *Capture) State() capture.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Duration implements [session.Capturer].
func (c *Capture) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Recorded
}

// Err implements [session.Capturer].
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.LoopErr
}

// SetState forces the capture state.
func (c *Capture) SetState(s capture.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// CallLog returns a copy of the recorded calls.
func (c *Capture) CallLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Calls))
	copy(out, c.Calls)
	return out
}

// Detector is a mock [session.Detector].
type Detector struct {
	mu sync.Mutex

	// Result is returned by Run. Its Syllables field is overwritten with the
	// argument.
	Result detect.SessionMetrics

	// RunErr is returned by Run when non-nil.
	RunErr error

	// Syllables records the argument of every Run call.
	Syllables []int

	// Cancelled records whether the ctx of each Run call was already done.
	Cancelled []bool

	// OnRun, when set, is called at the start of Run.
	OnRun func()

	state detect.State
	last  *detect.SessionMetrics
}

// Run implements [session.Detector].
func (d *Detector) Run(ctx context.Context, syllables int) (detect.SessionMetrics, error) {
	d.mu.Lock()
	onRun := d.OnRun
	d.mu.Unlock()
	if onRun != nil {
		onRun()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.Syllables = append(d.Syllables, syllables)
	d.Cancelled = append(d.Cancelled, ctx.Err() != nil)
	if d.RunErr != nil {
		return detect.SessionMetrics{}, d.RunErr
	}
	m := d.Result
	m.Syllables = syllables
	d.last = &m
	d.state = detect.StateDone
	return m, nil
}

// State implements [session.Detector].
func (d *Detector) State() detect.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Last implements [session.Detector].
func (d *Detector) Last() (detect.SessionMetrics, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return detect.SessionMetrics{}, false
	}
	return *d.last, true
}

// Runs returns a copy of the recorded syllable arguments.
func (d *Detector) Runs() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, len(d.Syllables))
	copy(out, d.Syllables)
	return out
}

// Player is a mock [session.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by PlayAsync when non-nil.
	PlayErr error

	// Busy is returned by Playing.
	Busy bool

	// CallCount records how many times PlayAsync was called.
	CallCount int
}

// PlayAsync implements [session.Player].
func (p *Player) PlayAsync(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCount++
	return p.PlayErr
}

// Playing implements [session.Player].
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Busy
}

// Calls returns how many times PlayAsync was called.
func (p *Player) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CallCount
}

// Saver is a mock [session.Saver].
type Saver struct {
	mu sync.Mutex

	// Location is returned by a successful Save.
	Location string

	// SaveErr is returned by Save when non-nil.
	SaveErr error

	// Busy is returned by Saving.
	Busy bool

	// CallCount records how many times Save was called.
	CallCount int
}

// Save implements [session.Saver].
func (s *Saver) Save(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCount++
	if s.SaveErr != nil {
		return "", s.SaveErr
	}
	return s.Location, nil
}

// Saving implements [session.Saver].
func (s *Saver) Saving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Busy
}

// Calls returns how many times Save was called.
func (s *Saver) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCount
}
