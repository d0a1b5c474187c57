// webfitts-relay bridges browser study sessions to the operator: it
// receives study telemetry over websockets and broadcasts cursor and click
// commands from the keyboard, the tray or the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"webfitts/internal/api"
	"webfitts/internal/config"
	"webfitts/internal/control"
	"webfitts/internal/logging"
	"webfitts/internal/network"
	"webfitts/internal/osutils"
	"webfitts/internal/tray"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var version = "0.3.0"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type relayFlags struct {
	host       string
	port       int
	keyboard   bool
	speed      int
	tray       bool
	configPath string
	logLevel   string
	version    bool
}

func parseFlags(args []string) (*pflag.FlagSet, *relayFlags, error) {
	var f relayFlags
	flagSet := pflag.NewFlagSet("webfitts-relay", pflag.ContinueOnError)
	flagSet.StringVar(&f.host, "host", "localhost", "interface to listen on")
	flagSet.IntVar(&f.port, "port", 8765, "port to listen on")
	flagSet.BoolVar(&f.keyboard, "keyboard", false, "drive the study cursor from this terminal (w/a/s/d, g, +/-, esc)")
	flagSet.IntVar(&f.speed, "speed", control.DefaultSpeed, "keyboard step in pixels, clamped to [5, 100]")
	flagSet.BoolVar(&f.tray, "tray", false, "show a system tray menu")
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

// loadConfig reads the config file and lets explicitly set flags win.
// The manager still holds the file values, without the flag overrides.
func loadConfig(flagSet *pflag.FlagSet, f *relayFlags) (config.Config, *config.Manager, error) {
	var mgr *config.Manager
	if f.configPath != "" {
		mgr = config.NewManagerAt(f.configPath)
	} else {
		m, err := config.NewManager()
		if err != nil {
			return config.Config{}, nil, err
		}
		mgr = m
	}
	if err := mgr.Load(); err != nil {
		return config.Config{}, nil, err
	}

	cfg := mgr.Get()
	if flagSet.Changed("host") {
		cfg.Relay.Host = f.host
	}
	if flagSet.Changed("port") {
		cfg.Relay.Port = f.port
	}
	if flagSet.Changed("keyboard") {
		cfg.Relay.Keyboard = f.keyboard
	}
	if flagSet.Changed("speed") {
		cfg.Relay.Speed = f.speed
	}
	if flagSet.Changed("tray") {
		cfg.Relay.Tray = f.tray
	}
	if flagSet.Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	return cfg, mgr, cfg.Validate()
}

// saveSpeed writes the keyboard step back to relay.speed when +/- moved
// it away from the configured value. Flag overrides are not persisted.
func saveSpeed(mgr *config.Manager, speed float64, logger *zap.Logger) error {
	cfg := mgr.Get()
	step := int(math.Round(speed))
	if cfg.Relay.Speed == step {
		return nil
	}
	cfg.Relay.Speed = step
	mgr.Set(cfg)
	if err := mgr.Save(); err != nil {
		return err
	}
	logger.Info("Keyboard speed saved", zap.Int("speed", step), zap.String("path", mgr.Path()))
	return nil
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
		fmt.Printf("webfitts-relay version %s\n", version)
		return nil
	}

	cfg, mgr, err := loadConfig(flagSet, flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	rawStdin := cfg.Relay.Keyboard && term.IsTerminal(int(os.Stdin.Fd()))
	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, RawTerminal: rawStdin})
	if err != nil {
		return err
	}
	defer logger.Sync()

	speed := control.ClampSpeed(float64(cfg.Relay.Speed))
	session := control.NewSession(speed, cfg.Relay.Keyboard)

	server := api.NewServer(api.Params{
		Host:       cfg.Relay.Host,
		Port:       cfg.Relay.Port,
		ServerName: cfg.Relay.ServerName,
		APIToken:   cfg.Relay.APIToken,
		Session:    session,
		Logger:     logger,
	})

	if osutils.NeedsFirewallRule(cfg.Relay.Host) {
		logReachable(cfg.Relay.Host, cfg.Relay.Port, logger)
		if runtime.GOOS == "windows" {
			go func() {
				if err := osutils.EnsureFirewallRule(cfg.Relay.Port, logger); err != nil {
					logger.Warn("Firewall rule not applied", zap.Error(err))
				}
			}()
		}
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
		cancel()
	}()

	if cfg.Relay.Keyboard {
		if err := startKeyboard(ctx, cancel, session, server, logger); err != nil {
			cancel()
			<-serverErr
			return err
		}
	}

	if cfg.Relay.Tray {
		menu := tray.NewRelayMenu(server, cancel, logger)
		go func() {
			<-ctx.Done()
			menu.Stop()
		}()
		menu.Run()
	}

	err = <-serverErr
	if cfg.Relay.Keyboard && session.Speed() != speed {
		if saveErr := saveSpeed(mgr, session.Speed(), logger); saveErr != nil {
			logger.Warn("Keyboard speed not saved", zap.Error(saveErr))
		}
	}
	logger.Info("Relay stopped")
	return err
}

// logReachable lists the addresses study machines can use when the
// relay listens on every interface.
func logReachable(host string, port int, logger *zap.Logger) {
	if host != "" && host != "0.0.0.0" && host != "::" {
		return
	}
	ips, err := network.GetLocalIPs()
	if err != nil {
		logger.Debug("Cannot list local addresses", zap.Error(err))
		return
	}
	for _, ip := range ips {
		logger.Info("Reachable at", zap.String("url", "ws://"+net.JoinHostPort(ip, strconv.Itoa(port))+"/ws"))
	}
}

func startKeyboard(ctx context.Context, cancel context.CancelFunc, session *control.Session, b control.Broadcaster, logger *zap.Logger) error {
	listener := control.NewKeyboardListener(session, b, logger)
	done, restore, err := listener.Start(os.Stdin)
	if err != nil {
		return fmt.Errorf("keyboard: %w", err)
	}
	logger.Info("Keyboard control ready",
		zap.String("move", "w/a/s/d"),
		zap.String("click", "g"),
		zap.String("control", "e enable, q disable"),
		zap.String("speed", "+/-"),
		zap.String("stop", "esc"),
		zap.Float64("step", session.Speed()))

	go func() {
		select {
		case err := <-done:
			restore()
			switch {
			case errors.Is(err, control.ErrInterrupted):
				logger.Info("Interrupted from keyboard")
				cancel()
			case err != nil:
				logger.Warn("Keyboard listener failed", zap.Error(err))
			default:
				logger.Info("Keyboard control ended, relay still serving")
			}
		case <-ctx.Done():
			restore()
		}
	}()
	return nil
}
