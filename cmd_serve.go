package main

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/oszuidwest/noisesense/internal/config"
	"github.com/oszuidwest/noisesense/internal/meter"
	"github.com/oszuidwest/noisesense/internal/sensors"
	"github.com/oszuidwest/noisesense/internal/server"
	"github.com/oszuidwest/noisesense/internal/types"
	"github.com/oszuidwest/noisesense/internal/util"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the meter with the web interface",
	Long: `Run the meter daemon. The web interface shows every classified reading
and accepts motion and location from the browsing device. Sensor feeds from
MQTT and a local IIO accelerometer are started when configured.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	snap := cfg.Snapshot()

	// Check FFmpeg availability
	ffmpegPath := util.ResolveFFmpegPath(snap.FFmpegPath)
	ffmpegAvailable := ffmpegPath != ""
	if !ffmpegAvailable {
		slog.Warn("FFmpeg not found, process capture limited to arecord", "configured_path", snap.FFmpegPath)
	} else {
		slog.Info("FFmpeg found", "path", ffmpegPath)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), util.ShutdownSignals()...)
	defer stop()

	hub := server.NewHub()
	m := meter.New(meter.Options{
		Opener:    configuredOpener(cfg, ffmpegPath),
		Settings:  meter.SettingsFrom(cfg.MeterSettings(), snap.BlockSize),
		Presenter: meter.Multi{&meter.LogPresenter{}, hub},
	})

	runCtx, cancelRun := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		m.Run(runCtx)
	}()

	if snap.StaticLocation != nil {
		if err := m.Location().Store(server.StaticFix(snap.StaticLocation)); err != nil {
			slog.Warn("ignoring static location", "error", err)
		}
	}
	closeSensors := startSensors(ctx, &snap, m)

	srv := NewServer(cfg, m, hub, ffmpegAvailable)
	srv.version.Start(ctx)
	httpServer := srv.Start()

	autostartDone := make(chan struct{})
	go func() {
		defer close(autostartDone)
		if snap.AudioAutostart {
			autostart(ctx, srv.commands.StartMeter)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	srv.version.Stop()
	<-autostartDone

	var errs []error
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, util.WrapError("shut down HTTP server", err))
	}
	if err := m.Stop(); err != nil {
		errs = append(errs, util.WrapError("stop meter", err))
	}
	closeSensors()
	cancelRun()
	<-runDone

	slog.Info("shutdown complete")
	return errors.Join(errs...)
}

// autostart starts the meter, retrying with backoff while the device is unavailable.
func autostart(ctx context.Context, start func() (string, error)) {
	backoff := util.NewBackoff(types.InitialRetryDelay, types.MaxRetryDelay)
	for attempt := 1; attempt <= types.MaxRetries; attempt++ {
		_, err := start()
		if err == nil || errors.Is(err, meter.ErrAlreadyRunning) {
			return
		}
		if !errors.Is(err, meter.ErrDeviceUnavailable) {
			slog.Error("autostart failed", "error", err)
			return
		}

		delay := backoff.Next()
		slog.Warn("autostart failed, retrying", "attempt", attempt, "retry_in", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
	slog.Error("autostart gave up", "attempts", types.MaxRetries)
}

// startSensors starts the configured motion and location feeds and returns
// a function that stops them.
func startSensors(ctx context.Context, snap *config.Snapshot, m *meter.Meter) func() {
	var closers []func()

	if snap.HasMQTT() {
		sub := sensors.NewSubscriber(sensors.MQTTConfig{
			Broker:        snap.MQTTBroker,
			ClientID:      snap.MQTTClientID,
			Username:      snap.MQTTUsername,
			Password:      snap.MQTTPassword,
			MotionTopic:   snap.MotionTopic,
			LocationTopic: snap.LocationTopic,
		}, m.Motion(), m.Location())
		if err := sub.Connect(); err != nil {
			slog.Error("failed to connect to MQTT broker", "broker", snap.MQTTBroker, "error", err)
		}
		closers = append(closers, sub.Close)
	}

	if snap.IIOEnabled {
		if acc, err := openAccelerometer(snap.IIODevice); err != nil {
			slog.Error("accelerometer unavailable", "error", err)
		} else {
			pollCtx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			interval := time.Duration(cmp.Or(snap.IIOIntervalMs, config.DefaultIIOIntervalMs)) * time.Millisecond
			go func() {
				defer close(done)
				acc.Poll(pollCtx, interval, m.Motion())
			}()
			closers = append(closers, func() {
				cancel()
				<-done
			})
		}
	}

	return func() {
		for _, c := range closers {
			c()
		}
	}
}

// openAccelerometer opens the configured IIO device, or the first one found.
func openAccelerometer(dir string) (*sensors.Accelerometer, error) {
	if dir == "" {
		found, err := sensors.FindAccelerometer(sensors.DefaultIIORoot)
		if err != nil {
			return nil, err
		}
		dir = found
	}
	slog.Info("polling accelerometer", "device", dir)
	return sensors.OpenAccelerometer(dir)
}
