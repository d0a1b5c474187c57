package automation

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"webfitts/internal/clock"
	"webfitts/internal/input"
	"webfitts/internal/screen"
)

type fakePointer struct {
	pos      input.Point
	w, h     float64
	moves    []input.Point
	clicks   []input.Point
	clickErr error
	onMove   func(p input.Point)
	onClick  func(n int)
}

func (p *fakePointer) Position() (input.Point, error) { return p.pos, nil }

func (p *fakePointer) MoveTo(pt input.Point) error {
	p.pos = pt
	p.moves = append(p.moves, pt)
	if p.onMove != nil {
		p.onMove(pt)
	}
	return nil
}

func (p *fakePointer) Click() error {
	if p.clickErr != nil {
		return p.clickErr
	}
	p.clicks = append(p.clicks, p.pos)
	if p.onClick != nil {
		p.onClick(len(p.clicks))
	}
	return nil
}

func (p *fakePointer) ScreenSize() (float64, float64, error) { return p.w, p.h, nil }

// script returns frames in order, repeating the last entry forever.
type script struct {
	frames []func() (*image.RGBA, error)
	calls  int
}

func (s *script) Capture(ctx context.Context) (*image.RGBA, error) {
	i := s.calls
	if i >= len(s.frames) {
		i = len(s.frames) - 1
	}
	s.calls++
	return s.frames[i]()
}

func repeat(n int, f func() (*image.RGBA, error)) []func() (*image.RGBA, error) {
	out := make([]func() (*image.RGBA, error), n)
	for i := range out {
		out[i] = f
	}
	return out
}

var targetColor = color.RGBA{R: 61, G: 153, B: 112, A: 255}

func blank() (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	return img, nil
}

// withTarget has a solid target whose centroid is (50, 35).
func withTarget() (*image.RGBA, error) {
	img, _ := blank()
	for y := 20; y <= 50; y++ {
		for x := 40; x <= 60; x++ {
			img.SetRGBA(x, y, targetColor)
		}
	}
	return img, nil
}

func newTestController(t *testing.T, p input.Pointer, c screen.Capturer, opts Options) (*Controller, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Unix(0, 0))
	opts.Clock = fake
	if opts.Speed == 0 {
		opts.Speed = 1000
	}
	if opts.Delay == 0 {
		opts.Delay = -1
	}
	ctrl, err := NewController(p, c, opts)
	if err != nil {
		t.Fatalf("NewController returned error: %v", err)
	}
	return ctrl, fake
}

func countSleeps(f *clock.Fake, d time.Duration) int {
	n := 0
	for _, s := range f.Sleeps() {
		if s == d {
			n++
		}
	}
	return n
}

func TestMoveDuration(t *testing.T) {
	tests := []struct {
		distance, speed float64
		want            time.Duration
	}{
		{0, 500, MinMoveDuration},
		{1, 1000, MinMoveDuration},
		{500, 1000, 500 * time.Millisecond},
		{300, 100, 3 * time.Second},
		{1000, 0.5, 2000 * time.Second},
		{1000, 1e-9, time.Duration(math.MaxInt64)},
		{math.Inf(1), 1, time.Duration(math.MaxInt64)},
	}
	for _, tt := range tests {
		if got := MoveDuration(tt.distance, tt.speed); got != tt.want {
			t.Errorf("MoveDuration(%v, %v) = %v, want %v", tt.distance, tt.speed, got, tt.want)
		}
	}
}

func TestNewControllerRejectsInvalidSpeed(t *testing.T) {
	p := &fakePointer{w: 200, h: 100}
	for _, speed := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		_, err := NewController(p, &script{}, Options{Speed: speed})
		if !errors.Is(err, ErrInvalidSpeed) {
			t.Errorf("Speed %v: expected ErrInvalidSpeed, got %v", speed, err)
		}
	}
	if len(p.moves) != 0 {
		t.Error("Pointer must not move when the speed is rejected")
	}
}

func TestStopsExactlyOnThirtiethMiss(t *testing.T) {
	p := &fakePointer{w: 200, h: 100}
	sc := &script{frames: repeat(1, blank)}
	ctrl, fake := newTestController(t, p, sc, Options{})

	res := ctrl.Run(context.Background())

	if res.Reason != ReasonTargetLost || res.Err != nil {
		t.Fatalf("Expected target_lost without error, got %+v", res)
	}
	if sc.calls != 30 {
		t.Errorf("Expected 30 captures, got %d", sc.calls)
	}
	if n := countSleeps(fake, DefaultPollInterval); n != 29 {
		t.Errorf("Expected 29 poll waits, got %d", n)
	}
	if ctrl.State() != StateStopped {
		t.Errorf("Expected stopped, got %v", ctrl.State())
	}
}

func TestMissCounterResetsOnDetection(t *testing.T) {
	p := &fakePointer{w: 200, h: 100}
	frames := repeat(29, blank)
	frames = append(frames, withTarget)
	frames = append(frames, blank)
	sc := &script{frames: frames}
	ctrl, fake := newTestController(t, p, sc, Options{})

	res := ctrl.Run(context.Background())

	if res.Reason != ReasonTargetLost || res.Clicks != 1 {
		t.Fatalf("Expected one click then target_lost, got %+v", res)
	}
	if sc.calls != 60 {
		t.Errorf("Expected 29 misses, 1 hit and 30 misses, got %d captures", sc.calls)
	}
	if n := countSleeps(fake, DefaultPollInterval); n != 58 {
		t.Errorf("Expected 58 poll waits, got %d", n)
	}
}

func TestClicksUntilKilled(t *testing.T) {
	ks := NewKillSwitch()
	p := &fakePointer{w: 200, h: 100}
	p.onClick = func(n int) {
		if n == 3 {
			ks.Trigger()
		}
	}
	sc := &script{frames: repeat(1, withTarget)}
	ctrl, _ := newTestController(t, p, sc, Options{Kill: ks})

	res := ctrl.Run(context.Background())

	if res.Reason != ReasonKilled || res.Clicks != 3 {
		t.Fatalf("Expected 3 clicks then killed, got %+v", res)
	}
	for i, at := range p.clicks {
		if at != (input.Point{X: 50, Y: 35}) {
			t.Errorf("Click %d at %+v, expected (50,35)", i, at)
		}
	}
	if sc.calls != 3 {
		t.Errorf("Expected one capture per click, got %d", sc.calls)
	}
}

func TestKillBetweenMoveAndClickSkipsClick(t *testing.T) {
	ks := NewKillSwitch()
	target := input.Point{X: 50, Y: 35}
	p := &fakePointer{w: 200, h: 100}
	p.onMove = func(pt input.Point) {
		if pt == target {
			ks.Trigger()
		}
	}
	ctrl, _ := newTestController(t, p, &script{frames: repeat(1, withTarget)}, Options{Kill: ks})

	res := ctrl.Run(context.Background())

	if res.Reason != ReasonKilled || res.Clicks != 0 || len(p.clicks) != 0 {
		t.Errorf("Expected no click after kill, got %+v with %d clicks", res, len(p.clicks))
	}
	if p.pos != target {
		t.Errorf("The move in progress should finish, pointer at %+v", p.pos)
	}
}

func TestKillDuringDelay(t *testing.T) {
	ks := NewKillSwitch()
	p := &fakePointer{w: 200, h: 100}
	sc := &script{frames: repeat(1, withTarget)}

	var states []State
	ctrl, fake := newTestController(t, p, sc, Options{
		Kill:    ks,
		Delay:   DefaultDelay,
		OnState: func(s State) { states = append(states, s) },
	})
	fake.OnSleep = func(n int) {
		if n == 2 {
			ks.Trigger()
		}
	}

	res := ctrl.Run(context.Background())

	if res.Reason != ReasonKilled || res.Clicks != 0 {
		t.Fatalf("Expected killed with no clicks, got %+v", res)
	}
	if len(p.moves) != 0 || sc.calls != 0 {
		t.Errorf("Expected no pointer or capture activity, got %d moves and %d captures", len(p.moves), sc.calls)
	}
	if elapsed := fake.Now().Sub(time.Unix(0, 0)); elapsed >= DefaultDelay {
		t.Errorf("Expected the delay to be cut short, waited %v", elapsed)
	}
	if len(states) != 2 || states[0] != StateDelaying || states[1] != StateStopped {
		t.Errorf("Expected delaying -> stopped, got %v", states)
	}
}

func TestFullDelayIsObserved(t *testing.T) {
	p := &fakePointer{w: 200, h: 100}
	ctrl, fake := newTestController(t, p, &script{frames: repeat(1, blank)}, Options{Delay: 3 * time.Second, MaxMisses: 1})

	var atCenter time.Time
	p.onMove = func(input.Point) {
		if atCenter.IsZero() {
			atCenter = fake.Now()
		}
	}
	ctrl.Run(context.Background())

	// The first centering step lands one step after the delay.
	if got := atCenter.Sub(time.Unix(0, 0)); got != 3*time.Second+StepInterval {
		t.Errorf("Expected first move at 3.01s, got %v", got)
	}
}

func TestCaptureFailureAbortsWithProgress(t *testing.T) {
	errBroken := errors.New("display went away")
	frames := repeat(2, withTarget)
	frames = append(frames, func() (*image.RGBA, error) { return nil, errBroken })
	p := &fakePointer{w: 200, h: 100}
	ctrl, _ := newTestController(t, p, &script{frames: frames}, Options{})

	res := ctrl.Run(context.Background())

	if res.Reason != ReasonCaptureFailed || res.Clicks != 2 {
		t.Fatalf("Expected capture_failed after 2 clicks, got %+v", res)
	}
	if !errors.Is(res.Err, errBroken) {
		t.Errorf("Expected wrapped capture error, got %v", res.Err)
	}
}

func TestClickFailureAborts(t *testing.T) {
	errDenied := errors.New("accessibility denied")
	p := &fakePointer{w: 200, h: 100, clickErr: errDenied}
	ctrl, _ := newTestController(t, p, &script{frames: repeat(1, withTarget)}, Options{})

	res := ctrl.Run(context.Background())

	if res.Reason != ReasonPointerFailed || res.Clicks != 0 || !errors.Is(res.Err, errDenied) {
		t.Errorf("Expected pointer_failed wrapping the click error, got %+v", res)
	}
}

func TestCentersBeforeScanning(t *testing.T) {
	p := &fakePointer{w: 200, h: 100}
	ctrl, _ := newTestController(t, p, &script{frames: repeat(1, blank)}, Options{})

	ctrl.Run(context.Background())

	steps := int(CenterDuration / StepInterval)
	if len(p.moves) != steps {
		t.Fatalf("Expected %d centering steps, got %d", steps, len(p.moves))
	}
	if last := p.moves[len(p.moves)-1]; last != (input.Point{X: 100, Y: 50}) {
		t.Errorf("Expected to end at screen center, got %+v", last)
	}
}

func TestGlideIsLinear(t *testing.T) {
	p := &fakePointer{w: 200, h: 100}
	ctrl, fake := newTestController(t, p, &script{}, Options{Speed: 100})

	from := input.Point{X: 0, Y: 0}
	to := input.Point{X: 60, Y: 80} // distance 100 at 100px/s: 1s
	if err := ctrl.glide(from, to, MoveDuration(from.Distance(to), 100)); err != nil {
		t.Fatalf("glide returned error: %v", err)
	}

	if len(p.moves) != 100 {
		t.Fatalf("Expected 100 steps, got %d", len(p.moves))
	}
	prev := from
	for i, m := range p.moves {
		step := prev.Distance(m)
		if math.Abs(step-1) > 1e-9 {
			t.Fatalf("Step %d moved %v px, expected 1", i, step)
		}
		prev = m
	}
	if p.pos != to {
		t.Errorf("Expected to finish at %+v, got %+v", to, p.pos)
	}
	if elapsed := fake.Now().Sub(time.Unix(0, 0)); elapsed != time.Second {
		t.Errorf("Expected glide to take 1s, took %v", elapsed)
	}
}

func TestZeroDistanceStillMoves(t *testing.T) {
	p := &fakePointer{w: 200, h: 100, pos: input.Point{X: 5, Y: 5}}
	ctrl, fake := newTestController(t, p, &script{}, Options{})

	ctrl.glide(p.pos, p.pos, MoveDuration(0, 1000))

	if len(p.moves) != 1 || p.moves[0] != (input.Point{X: 5, Y: 5}) {
		t.Errorf("Expected a single move in place, got %v", p.moves)
	}
	if elapsed := fake.Now().Sub(time.Unix(0, 0)); elapsed != MinMoveDuration {
		t.Errorf("Expected %v, got %v", MinMoveDuration, elapsed)
	}
}

func TestFrameToScreenScaling(t *testing.T) {
	// Frame is twice as dense as pointer space.
	p := &fakePointer{w: 100, h: 50}
	ks := NewKillSwitch()
	p.onClick = func(int) { ks.Trigger() }
	ctrl, _ := newTestController(t, p, &script{frames: repeat(1, withTarget)}, Options{Kill: ks})

	res := ctrl.Run(context.Background())

	if res.Clicks != 1 {
		t.Fatalf("Expected 1 click, got %+v", res)
	}
	if p.clicks[0] != (input.Point{X: 25, Y: 17.5}) {
		t.Errorf("Expected click at (25,17.5), got %+v", p.clicks[0])
	}
}

func TestStateSequence(t *testing.T) {
	p := &fakePointer{w: 200, h: 100}
	frames := []func() (*image.RGBA, error){withTarget, blank}
	var states []State
	ctrl, _ := newTestController(t, p, &script{frames: frames}, Options{
		MaxMisses: 1,
		OnState:   func(s State) { states = append(states, s) },
	})

	ctrl.Run(context.Background())

	want := []State{StateDelaying, StateCentering, StateScanning, StateMoving, StateClicking, StateScanning, StateStopped}
	if len(states) != len(want) {
		t.Fatalf("Expected %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("State %d: expected %v, got %v", i, want[i], states[i])
		}
	}
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakePointer{w: 200, h: 100}
	p.onClick = func(int) { cancel() }
	ctrl, _ := newTestController(t, p, &script{frames: repeat(1, withTarget)}, Options{})

	res := ctrl.Run(ctx)

	if res.Reason != ReasonCancelled || res.Clicks != 1 || res.Err != nil {
		t.Errorf("Expected cancelled after 1 click, got %+v", res)
	}
}

func TestStateString(t *testing.T) {
	if StateScanning.String() != "scanning" || State(42).String() != "state(42)" {
		t.Errorf("Unexpected names: %s, %s", StateScanning, State(42))
	}
}
