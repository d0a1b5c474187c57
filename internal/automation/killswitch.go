package automation

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"webfitts/internal/hotkey"

	"go.uber.org/zap"
	"golang.org/x/term"
)

// KillSwitch is a one-way abort flag. Any goroutine may trigger it; the
// controller only reads it between steps.
type KillSwitch struct {
	fired atomic.Bool
}

func NewKillSwitch() *KillSwitch {
	return &KillSwitch{}
}

// Trigger sets the flag. It is idempotent.
func (k *KillSwitch) Trigger() { k.fired.Store(true) }

// Triggered never blocks.
func (k *KillSwitch) Triggered() bool { return k.fired.Load() }

const (
	keyEsc   = 0x1b
	keyCtrlC = 0x03
)

// DefaultKillHotkey is the global abort key.
const DefaultKillHotkey = "Esc"

// KillSourceOptions selects what can trigger a KillSwitch.
type KillSourceOptions struct {
	// Hotkey is registered with the global hotkey manager. Empty means
	// DefaultKillHotkey.
	Hotkey string

	// Stdin is read in raw mode for esc or Ctrl+C when global hotkeys
	// are unavailable. Nil disables the fallback.
	Stdin *os.File

	// Signals makes SIGINT and SIGTERM trigger the switch.
	Signals bool

	Logger *zap.Logger
}

// KillSources are the running listeners feeding a KillSwitch.
type KillSources struct {
	// Global reports whether the system-wide hotkey is active.
	Global bool

	// RawStdin reports whether the stdin fallback put the terminal in
	// raw mode.
	RawStdin bool

	stopOnce sync.Once
	stops    []func()
}

// Stop removes the global hotkey, releases signal handlers and restores
// the terminal.
func (s *KillSources) Stop() {
	s.stopOnce.Do(func() {
		for i := len(s.stops) - 1; i >= 0; i-- {
			s.stops[i]()
		}
	})
}

// StartKillSources wires the abort key and signals to ks. Each source
// runs on its own goroutine and only ever calls ks.Trigger.
func StartKillSources(ks *KillSwitch, opts KillSourceOptions) (*KillSources, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("component", "killswitch"))
	sources := &KillSources{}

	combo := opts.Hotkey
	if combo == "" {
		combo = DefaultKillHotkey
	}
	hk := hotkey.NewManager(logger)
	if err := hk.Register(combo, func() {
		log.Info("Kill hotkey pressed", zap.String("hotkey", combo))
		ks.Trigger()
	}); err != nil {
		return nil, err
	}

	switch err := hk.Start(); {
	case err == nil:
		sources.Global = true
		sources.stops = append(sources.stops, hk.Stop)
	case errors.Is(err, hotkey.ErrUnsupported):
		log.Info("Global hotkeys unavailable, using terminal input")
	default:
		log.Warn("Global hotkey failed, using terminal input", zap.Error(err))
	}

	if !sources.Global && opts.Stdin != nil {
		fd := int(opts.Stdin.Fd())
		if term.IsTerminal(fd) {
			oldState, err := term.MakeRaw(fd)
			if err != nil {
				log.Warn("Cannot read terminal keys", zap.Error(err))
			} else {
				sources.RawStdin = true
				sources.stops = append(sources.stops, func() { term.Restore(fd, oldState) })
				go WatchKeys(opts.Stdin, ks)
			}
		}
	}

	if opts.Signals {
		sigCh := make(chan os.Signal, 1)
		done := make(chan struct{})
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sigCh:
				log.Info("Signal received", zap.String("signal", sig.String()))
				ks.Trigger()
			case <-done:
			}
		}()
		sources.stops = append(sources.stops, func() {
			signal.Stop(sigCh)
			close(done)
		})
	}

	return sources, nil
}

// WatchKeys triggers ks when esc or Ctrl+C is read from r. It returns at
// the first abort key or when r ends.
func WatchKeys(r io.Reader, ks *KillSwitch) {
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		if b == keyEsc || b == keyCtrlC {
			ks.Trigger()
			return
		}
	}
}
