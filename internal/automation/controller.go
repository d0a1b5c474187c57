// Package automation plays the pointing study unattended: it finds the
// target on screen, glides the pointer onto it at a fixed speed and
// clicks, until the target disappears or the kill switch fires.
package automation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"webfitts/internal/clock"
	"webfitts/internal/input"
	"webfitts/internal/screen"
	"webfitts/internal/vision"

	"go.uber.org/zap"
)

const (
	DefaultDelay        = 3 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	DefaultMaxMisses    = 30

	CenterDuration  = 500 * time.Millisecond
	CenterSettle    = 500 * time.Millisecond
	ClickSettle     = 50 * time.Millisecond
	MinMoveDuration = 10 * time.Millisecond

	// StepInterval is the spacing of intermediate pointer positions
	// during a glide.
	StepInterval = 10 * time.Millisecond

	// killPollInterval bounds how long the initial delay can ignore the
	// kill switch.
	killPollInterval = 50 * time.Millisecond
)

// ErrInvalidSpeed is returned by NewController for a speed that is not a
// positive finite number.
var ErrInvalidSpeed = errors.New("speed must be a positive number of pixels per second")

// State is a controller phase.
type State int

const (
	StateIdle State = iota
	StateDelaying
	StateCentering
	StateScanning
	StateMoving
	StateClicking
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDelaying:
		return "delaying"
	case StateCentering:
		return "centering"
	case StateScanning:
		return "scanning"
	case StateMoving:
		return "moving"
	case StateClicking:
		return "clicking"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StopReason says why a run ended.
type StopReason string

const (
	ReasonKilled        StopReason = "killed"
	ReasonCancelled     StopReason = "cancelled"
	ReasonTargetLost    StopReason = "target_lost"
	ReasonCaptureFailed StopReason = "capture_failed"
	ReasonPointerFailed StopReason = "pointer_failed"
)

// Result is the outcome of a run. Err is set only for capture and
// pointer failures.
type Result struct {
	Clicks int
	Reason StopReason
	Err    error
}

// Options configures a Controller. Zero values take the defaults above;
// Speed has no default.
type Options struct {
	// Speed is the glide speed in pointer pixels per second.
	Speed float64

	// Delay is the pause before centering. Negative means no pause.
	Delay time.Duration

	PollInterval time.Duration
	MaxMisses    int

	Detector *vision.Detector
	Kill     *KillSwitch
	Clock    clock.Clock
	Logger   *zap.Logger

	// OnState, if set, observes every state change.
	OnState func(State)
}

// Controller is the closed-loop automation state machine. A Controller
// runs once.
type Controller struct {
	opts     Options
	pointer  input.Pointer
	capturer screen.Capturer
	clock    clock.Clock
	log      *zap.Logger

	state  State
	clicks int
	misses int
}

func NewController(pointer input.Pointer, capturer screen.Capturer, opts Options) (*Controller, error) {
	if !(opts.Speed > 0) || math.IsInf(opts.Speed, 0) {
		return nil, ErrInvalidSpeed
	}
	if opts.Delay == 0 {
		opts.Delay = DefaultDelay
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxMisses <= 0 {
		opts.MaxMisses = DefaultMaxMisses
	}
	if opts.Detector == nil {
		opts.Detector = vision.NewDetector()
	}
	if opts.Kill == nil {
		opts.Kill = NewKillSwitch()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Controller{
		opts:     opts,
		pointer:  pointer,
		capturer: capturer,
		clock:    clk,
		log:      logger.With(zap.String("component", "automation")),
		state:    StateIdle,
	}, nil
}

// MoveDuration is the glide time for distance at speed, never shorter
// than MinMoveDuration. Durations too long for time.Duration saturate.
func MoveDuration(distance, speed float64) time.Duration {
	ns := distance / speed * float64(time.Second)
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	if d := time.Duration(ns); d > MinMoveDuration {
		return d
	}
	return MinMoveDuration
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.log.Debug("State change", zap.Stringer("from", c.state), zap.Stringer("state", s))
	c.state = s
	if c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}

// State returns the current phase. It is only meaningful from the
// goroutine running Run or after Run returns.
func (c *Controller) State() State { return c.state }

func (c *Controller) stopReason(ctx context.Context) (StopReason, bool) {
	if c.opts.Kill.Triggered() {
		return ReasonKilled, true
	}
	if ctx.Err() != nil {
		return ReasonCancelled, true
	}
	return "", false
}

func (c *Controller) stop(reason StopReason, err error) Result {
	c.setState(StateStopped)
	fields := []zap.Field{zap.String("reason", string(reason)), zap.Int("clicks", c.clicks)}
	if err != nil {
		c.log.Error("Automation aborted", append(fields, zap.Error(err))...)
	} else {
		c.log.Info("Automation stopped", fields...)
	}
	return Result{Clicks: c.clicks, Reason: reason, Err: err}
}

// Run drives the state machine to completion. The kill switch and ctx
// are checked between steps, never during one.
func (c *Controller) Run(ctx context.Context) Result {
	c.setState(StateDelaying)
	c.log.Info("Starting", zap.Duration("delay", c.opts.Delay), zap.Float64("speed", c.opts.Speed))
	if reason, stopped := c.wait(ctx, c.opts.Delay); stopped {
		return c.stop(reason, nil)
	}

	c.setState(StateCentering)
	screenW, screenH, err := c.pointer.ScreenSize()
	if err != nil {
		return c.stop(ReasonPointerFailed, fmt.Errorf("screen size: %w", err))
	}
	center := input.Point{X: screenW / 2, Y: screenH / 2}
	if err := c.glideTo(center, CenterDuration); err != nil {
		return c.stop(ReasonPointerFailed, err)
	}
	c.log.Info("Pointer centered", zap.Float64("x", center.X), zap.Float64("y", center.Y))
	if reason, stopped := c.wait(ctx, CenterSettle); stopped {
		return c.stop(reason, nil)
	}

	for {
		if reason, stopped := c.stopReason(ctx); stopped {
			return c.stop(reason, nil)
		}

		c.setState(StateScanning)
		frame, err := c.capturer.Capture(ctx)
		if err != nil {
			if reason, stopped := c.stopReason(ctx); stopped && errors.Is(err, ctx.Err()) {
				return c.stop(reason, nil)
			}
			return c.stop(ReasonCaptureFailed, fmt.Errorf("capture: %w", err))
		}

		det := c.opts.Detector.Detect(frame)
		if !det.Found {
			c.misses++
			if c.misses >= c.opts.MaxMisses {
				c.log.Info("Target lost",
					zap.Int("misses", c.misses),
					zap.Duration("window", time.Duration(c.misses)*c.opts.PollInterval))
				return c.stop(ReasonTargetLost, nil)
			}
			c.clock.Sleep(c.opts.PollInterval)
			continue
		}
		c.misses = 0

		target := toScreen(det, frame.Bounds(), screenW, screenH)

		c.setState(StateMoving)
		from, err := c.pointer.Position()
		if err != nil {
			return c.stop(ReasonPointerFailed, fmt.Errorf("pointer position: %w", err))
		}
		if err := c.glide(from, target, MoveDuration(from.Distance(target), c.opts.Speed)); err != nil {
			return c.stop(ReasonPointerFailed, err)
		}

		if reason, stopped := c.stopReason(ctx); stopped {
			return c.stop(reason, nil)
		}

		c.setState(StateClicking)
		if err := c.pointer.Click(); err != nil {
			return c.stop(ReasonPointerFailed, fmt.Errorf("click: %w", err))
		}
		c.clicks++
		c.log.Info("Click",
			zap.Int("clicks", c.clicks),
			zap.Float64("x", target.X),
			zap.Float64("y", target.Y))
		c.clock.Sleep(ClickSettle)
	}
}

// wait sleeps for d in short slices so the kill switch is observed
// promptly.
func (c *Controller) wait(ctx context.Context, d time.Duration) (StopReason, bool) {
	deadline := c.clock.Now().Add(d)
	for {
		if reason, stopped := c.stopReason(ctx); stopped {
			return reason, true
		}
		remaining := deadline.Sub(c.clock.Now())
		if remaining <= 0 {
			return "", false
		}
		c.clock.Sleep(min(remaining, killPollInterval))
	}
}

func (c *Controller) glideTo(to input.Point, d time.Duration) error {
	from, err := c.pointer.Position()
	if err != nil {
		return fmt.Errorf("pointer position: %w", err)
	}
	return c.glide(from, to, d)
}

// glide moves at constant velocity from one point to another over d,
// one position every StepInterval. It always ends exactly on to.
func (c *Controller) glide(from, to input.Point, d time.Duration) error {
	steps := int(d / StepInterval)
	if steps < 1 {
		steps = 1
	}
	stepDur := d / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		c.clock.Sleep(stepDur)
		p := to
		if i < steps {
			p = from.Lerp(to, float64(i)/float64(steps))
		}
		if err := c.pointer.MoveTo(p); err != nil {
			return fmt.Errorf("move pointer: %w", err)
		}
	}
	return nil
}

// toScreen maps a frame-pixel centroid to pointer coordinates. Frames
// are denser than pointer space on high-DPI displays.
func toScreen(det vision.Detection, frame image.Rectangle, screenW, screenH float64) input.Point {
	sx, sy := 1.0, 1.0
	if frame.Dx() > 0 && frame.Dy() > 0 {
		sx = screenW / float64(frame.Dx())
		sy = screenH / float64(frame.Dy())
	}
	return input.Point{X: det.X * sx, Y: det.Y * sy}
}
