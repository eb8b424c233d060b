package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/martinmarsh/helm/internal/actuator"
	"github.com/martinmarsh/helm/internal/autopilot"
	"github.com/martinmarsh/helm/internal/boatstate"
	"github.com/martinmarsh/helm/internal/command"
	"github.com/martinmarsh/helm/internal/config"
	"github.com/martinmarsh/helm/internal/diagnostics"
	"github.com/martinmarsh/helm/internal/hal"
	"github.com/martinmarsh/helm/internal/journal"
	"github.com/martinmarsh/helm/internal/logger"
	"github.com/martinmarsh/helm/internal/nmea"
	"github.com/martinmarsh/helm/internal/relay"
	"github.com/martinmarsh/helm/internal/sensor"
	"github.com/martinmarsh/helm/internal/serialio"
	"github.com/martinmarsh/helm/internal/supervisor"
	"github.com/martinmarsh/helm/internal/udpsink"
)

var Version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Logger.Level
	logCfg.Format = cfg.Logger.Format
	logCfg.LogDir = cfg.Logger.LogDir
	if cfg.Logger.MaxSizeMB > 0 {
		logCfg.MaxSizeMB = cfg.Logger.MaxSizeMB
	}
	if err := logger.Init(logCfg); err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("helm starting", zap.String("version", Version))

	initHAL()
	h, err := hal.GetGlobalHAL()
	if err != nil {
		logger.Fatal("hal not initialized", zap.Error(err))
	}

	state := boatstate.New()

	compass, err := sensor.New(h.I2C(), 0)
	if err != nil {
		logger.Fatal("compass init failed", zap.Error(err))
	}

	helm, err := actuator.New(h.GPIO())
	if err != nil {
		logger.Fatal("actuator init failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())

	commandCtx, commandCancel := context.WithTimeout(ctx, 10*time.Second)
	cmdChannel, err := command.New(commandCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	commandCancel()
	if err != nil {
		logger.Fatal("command channel connect failed, treating as startup fault", zap.Error(err))
	}
	defer cmdChannel.Close()

	sup := supervisor.New(serialQueueNames(cfg), cfg.Relays)

	loop := autopilot.New(autopilot.Config{
		TickInterval:    cfg.Autopilot.TickInterval,
		WarmupDelay:     cfg.Autopilot.WarmupDelay,
		DefaultGain:     cfg.Autopilot.DefaultGain,
		DefaultTSF:      cfg.Autopilot.DefaultTSF,
		DefaultBaseDuty: cfg.Autopilot.DefaultBaseDuty,
	}, compass, helm, state, cmdChannel)
	sup.Spawn(ctx, supervisor.Task{Name: "auto_helm", Run: loop.Run})

	journalWriter, err := journal.New(afero.NewOsFs(), cfg.Logger.LogDir)
	if err != nil {
		logger.Fatal("journal init failed", zap.Error(err))
	}
	sup.Spawn(ctx, supervisor.Task{Name: "log", Run: func(ctx context.Context) error {
		return runJournal(ctx, journalWriter, state, cmdChannel)
	}})

	opener := buildSerialOpener(cfg)
	for _, sp := range cfg.Serial {
		sp := sp
		port, err := serialio.Open(opener, sp.Name, sp.Baud)
		if err != nil {
			logger.Get().Warn("serial port unavailable, skipping", zap.String("port", sp.Name), zap.Error(err))
			continue
		}

		out := sup.Queues[sp.QueueOut]
		sup.Spawn(ctx, supervisor.Task{Name: "nmea_reader_" + sp.Name, Run: func(ctx context.Context) error {
			return runNMEAReader(ctx, port, state, out)
		}})

		if sp.Relay != "" {
			if r, ok := sup.Relays[sp.Relay]; ok && out != nil {
				sup.Spawn(ctx, supervisor.Task{Name: "relay_serial_input_" + sp.Name, Run: func(ctx context.Context) error {
					return runRelaySerialInput(ctx, out, r)
				}})
			} else {
				logger.Get().Warn("serial relay not configured, raw traffic will not be relayed", zap.String("port", sp.Name), zap.String("relay", sp.Relay))
			}
		}

		if sp.QueueIn != "" {
			if in := sup.Queues[sp.QueueIn]; in != nil {
				sup.Spawn(ctx, supervisor.Task{Name: "write_queue_to_serial_" + sp.Name, Run: func(ctx context.Context) error {
					return runWriteQueueToSerial(ctx, port, in)
				}})
			} else {
				logger.Get().Warn("serial output queue not configured", zap.String("port", sp.Name), zap.String("queue_in", sp.QueueIn))
			}
		}
	}

	if cfg.UDP.Host != "" {
		udpQueue := sup.Queues[cfg.UDP.Queue]
		sink := udpsink.New(
			fmt.Sprintf("%s:%d", cfg.UDP.Host, cfg.UDP.Port),
			udpQueue,
			relayValues(sup.Relays),
			cfg.UDP.Queue,
			cfg.UDP.RetryBackoff,
		)
		stop := make(chan struct{})
		go func() {
			<-ctx.Done()
			close(stop)
		}()
		sup.Spawn(ctx, supervisor.Task{Name: "udp_sender", Run: func(ctx context.Context) error {
			return sink.Run(stop)
		}})
	}

	if cfg.Diagnostics.Enabled {
		diag := diagnostics.New(cfg.Diagnostics.Addr, cfg.Diagnostics.JWTSecret, state)
		go func() {
			if err := diag.Run(); err != nil {
				logger.Get().Warn("diagnostics server stopped", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			diag.Shutdown()
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")
	cancel()
	sup.Wait()
	logger.Info("helm stopped")
}

func serialQueueNames(cfg *config.Config) []string {
	names := map[string]bool{cfg.UDP.Queue: true}
	for _, sp := range cfg.Serial {
		if sp.QueueOut != "" {
			names[sp.QueueOut] = true
		}
		if sp.QueueIn != "" {
			names[sp.QueueIn] = true
		}
	}
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	return out
}

func relayValues(relays map[string]*relay.Relay) []*relay.Relay {
	out := make([]*relay.Relay, 0, len(relays))
	for _, r := range relays {
		out = append(out, r)
	}
	return out
}

func buildSerialOpener(cfg *config.Config) serialio.SerialOpener {
	m := serialio.StaticOpener{}
	for _, sp := range cfg.Serial {
		if sp.DevicePath != "" {
			m[sp.Name] = sp.DevicePath
		}
	}
	return m
}

func runNMEAReader(ctx context.Context, port *serialio.Port, state *boatstate.State, out *supervisor.ByteQueue) error {
	defer port.Close()
	sink := nmea.StateSink{State: state}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line, err := port.ReadLine()
		if err != nil {
			return err
		}
		magVar := 0.0
		if v, ok := state.Get(boatstate.KeyMagVar); ok {
			magVar = v.Float
		}
		if decodeErr := nmea.Decode(string(line), sink, magVar); decodeErr != nil {
			logger.WithTask("nmea_reader").Warn("sentence decode error", zap.Error(decodeErr))
		}
		if out != nil {
			out.Put(line)
		}
	}
}

// runRelaySerialInput drains a port's raw-line queue and fans each line out
// through its configured relay, e.g. to the UDP queue and/or another
// serial port's inbound queue.
func runRelaySerialInput(ctx context.Context, in *supervisor.ByteQueue, r *relay.Relay) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line := in.Get()
		if line == nil {
			return nil
		}
		r.Put(line)
	}
}

// runWriteQueueToSerial drains a relay's target queue and writes each line
// out to the wire on port, completing the "other serial" leg of the relay
// fabric.
func runWriteQueueToSerial(ctx context.Context, port *serialio.Port, in *supervisor.ByteQueue) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line := in.Get()
		if line == nil {
			return nil
		}
		if err := port.Write(line); err != nil {
			return err
		}
	}
}

func runJournal(ctx context.Context, w *journal.Writer, state *boatstate.State, ch *command.Channel) error {
	if err := w.Seed(toStringSnapshot(state)); err != nil {
		return err
	}
	ticker := time.NewTicker(6 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snapshot := toStringSnapshot(state)
			if err := w.Record(snapshot, func() { resetExtremes(state) }); err != nil {
				logger.Get().Warn("journal record failed", zap.Error(err))
			}
			if err := ch.WriteTelemetry(ctx, snapshot); err != nil {
				logger.Get().Warn("telemetry write failed", zap.Error(err))
			}
		}
	}
}

func toStringSnapshot(state *boatstate.State) map[string]string {
	out := make(map[string]string)
	for k, v := range state.Snapshot() {
		switch v.Kind {
		case boatstate.KindInt:
			out[string(k)] = fmt.Sprintf("%d", v.Int)
		case boatstate.KindFloat:
			out[string(k)] = fmt.Sprintf("%g", v.Float)
		default:
			out[string(k)] = v.Text
		}
	}
	return out
}

func resetExtremes(state *boatstate.State) {
	state.Set(boatstate.KeyMaxHeal, boatstate.Float(-90))
	state.Set(boatstate.KeyMinHeal, boatstate.Float(90))
	state.Set(boatstate.KeyMaxPitch, boatstate.Float(-90))
	state.Set(boatstate.KeyMinPitch, boatstate.Float(90))
}
