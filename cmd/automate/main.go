// webfitts-automate plays the pointing study unattended: it finds the
// target on screen and clicks it at a fixed pointer speed until the target
// disappears or the kill key is pressed.
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"webfitts/internal/automation"
	"webfitts/internal/config"
	"webfitts/internal/input"
	"webfitts/internal/logging"
	"webfitts/internal/screen"
	"webfitts/internal/vision"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var version = "0.3.0"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type automateFlags struct {
	speed      float64
	delay      float64
	configPath string
	logLevel   string
	version    bool
}

func parseFlags(args []string) (*pflag.FlagSet, *automateFlags, error) {
	var f automateFlags
	flagSet := pflag.NewFlagSet("webfitts-automate", pflag.ContinueOnError)
	flagSet.Float64VarP(&f.speed, "speed", "s", 0, "pointer speed in pixels per second (required)")
	flagSet.Float64VarP(&f.delay, "delay", "d", 3.0, "seconds to wait before starting")
	flagSet.StringVar(&f.configPath, "config", "", "config file (default: per-user config dir)")
	flagSet.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.BoolVar(&f.version, "version", false, "print version and exit")
	if err := flagSet.Parse(args); err != nil {
		return nil, nil, err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return nil, nil, fmt.Errorf("unexpected argument: %s", extra[0])
	}
	return flagSet, &f, nil
}

// settings is the resolved controller configuration.
type settings struct {
	speed     float64
	delay     time.Duration
	poll      time.Duration
	maxMisses int
	detector  *vision.Detector
	logLevel  string
}

func resolve(flagSet *pflag.FlagSet, f *automateFlags) (settings, error) {
	var mgr *config.Manager
	if f.configPath != "" {
		mgr = config.NewManagerAt(f.configPath)
	} else {
		m, err := config.NewManager()
		if err != nil {
			return settings{}, err
		}
		mgr = m
	}
	if err := mgr.Load(); err != nil {
		return settings{}, fmt.Errorf("config: %w", err)
	}
	cfg := mgr.Get().Automation

	s := settings{
		speed:     cfg.Speed,
		delay:     cfg.DelayDuration(),
		poll:      cfg.PollDuration(),
		maxMisses: cfg.MaxMisses,
		logLevel:  mgr.Get().Logging.Level,
	}
	if flagSet.Changed("speed") {
		s.speed = f.speed
	}
	if flagSet.Changed("delay") {
		s.delay = time.Duration(f.delay * float64(time.Second))
	}
	if flagSet.Changed("log-level") {
		s.logLevel = f.logLevel
	}

	if !(s.speed > 0) || math.IsInf(s.speed, 0) {
		if !flagSet.Changed("speed") && cfg.Speed == 0 {
			return settings{}, errors.New("--speed is required")
		}
		return settings{}, fmt.Errorf("--speed must be greater than 0, got %v", s.speed)
	}
	if s.delay <= 0 {
		// The controller treats zero as "use the default".
		s.delay = -1
	}

	color, err := vision.ParseHexColor(cfg.TargetColor)
	if err != nil {
		return settings{}, fmt.Errorf("config: automation.target_color: %w", err)
	}
	s.detector = &vision.Detector{Color: color, Tolerance: cfg.Tolerance}
	return s, nil
}

// loggerOptions ends log lines with "\r\n" only while the kill sources
// hold the terminal in raw mode.
func loggerOptions(level string, sources *automation.KillSources) logging.Options {
	return logging.Options{
		Level:       level,
		RawTerminal: sources != nil && sources.RawStdin,
	}
}

func run(args []string) error {
	flagSet, flags, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.version {
		fmt.Printf("webfitts-automate version %s\n", version)
		return nil
	}

	s, err := resolve(flagSet, flags)
	if err != nil {
		return err
	}

	logger, err := logging.New(loggerOptions(s.logLevel, nil))
	if err != nil {
		return err
	}
	defer logger.Sync()

	kill := automation.NewKillSwitch()
	sources, err := automation.StartKillSources(kill, automation.KillSourceOptions{
		Stdin:   os.Stdin,
		Signals: true,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer sources.Stop()

	// stdin only goes raw when the global hotkey is unavailable
	if sources.RawStdin {
		rawLogger, err := logging.New(loggerOptions(s.logLevel, sources))
		if err != nil {
			return err
		}
		defer rawLogger.Sync()
		logger = rawLogger
	}

	ctrl, err := automation.NewController(input.NewSystem(), screen.NewSystem(), automation.Options{
		Speed:        s.speed,
		Delay:        s.delay,
		PollInterval: s.poll,
		MaxMisses:    s.maxMisses,
		Detector:     s.detector,
		Kill:         kill,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	logger.Info("Focus the study window",
		zap.Float64("speed", s.speed),
		zap.Duration("delay", max(s.delay, 0)),
		zap.Bool("globalHotkey", sources.Global),
		zap.String("stop", automation.DefaultKillHotkey))

	res := ctrl.Run(context.Background())
	sources.Stop()

	fmt.Printf("Total clicks: %d (%s)\n", res.Clicks, res.Reason)
	return res.Err
}
