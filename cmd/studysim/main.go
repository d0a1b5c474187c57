// webfitts-studysim stands in for the browser study: it connects to a
// relay, streams synthetic telemetry and applies the commands it receives.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webfitts/internal/logging"
	"webfitts/internal/network"
	"webfitts/internal/protocol"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const defaultRelayPort = 8765

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		relay     string
		rate      float64
		targets   int
		amplitude float64
		width     float64
		speed     float64
		logLevel  string
	)
	flagSet := pflag.NewFlagSet("webfitts-studysim", pflag.ContinueOnError)
	flagSet.StringVar(&relay, "relay", "localhost:8765", `relay address (host:port or ws:// URL), or "auto" to search the LAN`)
	flagSet.Float64Var(&rate, "rate", 30, "telemetry frames per second")
	flagSet.IntVar(&targets, "targets", 9, "targets in the ring")
	flagSet.Float64Var(&amplitude, "amplitude", 400, "ring diameter in pixels")
	flagSet.Float64Var(&width, "width", 40, "target diameter in pixels")
	flagSet.Float64Var(&speed, "autopilot", 0, "move toward the target at this speed (px/s) while not under relay control")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rate <= 0 || targets < 1 {
		return errors.New("--rate must be positive and --targets at least 1")
	}

	logger, err := logging.New(logging.Options{Level: logLevel})
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if relay == "auto" {
		found, err := network.FindRelay(ctx, defaultRelayPort)
		if err != nil {
			return err
		}
		relay = found.Addr()
		logger.Info("Relay found", zap.String("addr", relay))
	}

	client, err := network.NewStudyClient(relay, network.StudyClientOptions{
		Client:     "WebFitts Simulator",
		RetryDelay: 2 * time.Second,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	s := newStudy(targets, amplitude, width)
	log := logger.With(zap.String("component", "studysim"))

	client.OnAck = func(*protocol.HandshakeAck) {
		client.SendEvent("task_start", map[string]any{"numTargets": targets})
	}
	client.OnCommand = func(cmd *protocol.Command) {
		event, data, err := s.apply(cmd)
		if err != nil {
			log.Warn("Bad command payload", zap.String("command", string(cmd.Command)), zap.Error(err))
			return
		}
		log.Info("Command applied", zap.String("command", string(cmd.Command)))
		if event != "" {
			if err := client.SendEvent(event, data); err != nil {
				log.Warn("Event dropped", zap.String("event", event), zap.Error(err))
			}
		}
	}

	go client.Run(ctx)

	period := time.Duration(float64(time.Second) / rate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	dt := period.Seconds()

	for {
		select {
		case <-ctx.Done():
			log.Info("Simulator stopped")
			return nil
		case now := <-ticker.C:
			s.step(dt, speed)
			if !client.IsConnected() {
				continue
			}
			if err := client.SendStudyData(s.frame(now.UnixMilli(), dt)); err != nil {
				log.Debug("Frame dropped", zap.Error(err))
			}
		}
	}
}
