package main

import (
	"context"
	"errors"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/oszuidwest/noisesense/internal/capture"
	"github.com/oszuidwest/noisesense/internal/config"
	"github.com/oszuidwest/noisesense/internal/meter"
	"github.com/oszuidwest/noisesense/internal/server"
	"github.com/oszuidwest/noisesense/internal/types"
	"github.com/oszuidwest/noisesense/internal/util"
)

var (
	measureFile   string
	measureBlocks int
	measureMotion float64
)

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Run one metering session on the terminal",
	Long: `Run one metering session and print every classified reading.

Without --file the configured capture device is used and the session runs
until interrupted or --blocks readings have been shown. With --file the
session ends at the end of the WAV file. --motion seeds the motion magnitude
(m/s²) the readings are gated against.`,
	Args: cobra.NoArgs,
	RunE: runMeasure,
}

func init() {
	measureCmd.Flags().StringVar(&measureFile, "file", "", "read 16-bit PCM from a WAV file instead of a capture device")
	measureCmd.Flags().IntVar(&measureBlocks, "blocks", 0, "stop after this many readings (0 = no limit)")
	measureCmd.Flags().Float64Var(&measureMotion, "motion", 0, "initial motion magnitude in m/s²")
	rootCmd.AddCommand(measureCmd)
}

func runMeasure(cmd *cobra.Command, _ []string) error {
	if measureBlocks < 0 {
		return errors.New("--blocks must not be negative")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	snap := cfg.Snapshot()

	opener := configuredOpener(cfg, util.ResolveFFmpegPath(snap.FFmpegPath))
	if measureFile != "" {
		opener = capture.FileOpener(measureFile)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), util.ShutdownSignals()...)
	defer stop()
	limitCtx, reached := context.WithCancel(ctx)
	defer reached()

	term := newTerminalPresenter(cmd.OutOrStdout())
	m := meter.New(meter.Options{
		Opener:   opener,
		Settings: meter.SettingsFrom(cfg.MeterSettings(), snap.BlockSize),
		Presenter: meter.Multi{
			&meter.LogPresenter{},
			&limitPresenter{next: term, limit: measureBlocks, reached: reached},
		},
	})

	if measureMotion != 0 {
		if err := m.Motion().Store(measureMotion, time.Now()); err != nil {
			return err
		}
	}
	if snap.StaticLocation != nil {
		if err := m.Location().Store(server.StaticFix(snap.StaticLocation)); err != nil {
			return err
		}
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		m.Run(runCtx)
	}()
	defer func() {
		cancelRun()
		<-runDone
	}()

	if _, err := m.Start(); err != nil {
		return err
	}

	// Ends at the end of the source, the reading limit, or an interrupt.
	_ = m.Wait(limitCtx)

	var errs []error
	if err := m.Stop(); err != nil {
		errs = append(errs, err)
	}
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), types.ShutdownTimeout)
	defer cancelDrain()
	if err := m.Wait(drainCtx); err != nil {
		errs = append(errs, util.WrapError("drain readings", err))
	}

	term.Summary()

	if lastErr := m.Status().LastError; lastErr != "" {
		errs = append(errs, errors.New(lastErr))
	}
	return errors.Join(errs...)
}

// configuredOpener opens the capture device named by the current
// configuration, so every session picks up audio setting changes.
func configuredOpener(cfg *config.Config, ffmpegPath string) capture.Opener {
	return func() (capture.Device, error) {
		snap := cfg.Snapshot()
		open, err := capture.NewOpener(capture.Config{
			Backend:    snap.AudioBackend,
			Input:      snap.AudioInput,
			SampleRate: snap.SampleRate,
			FFmpegPath: ffmpegPath,
		})
		if err != nil {
			return nil, err
		}
		return open()
	}
}
