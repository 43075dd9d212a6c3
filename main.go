// Package main provides a noise meter that estimates sound levels from a
// microphone, suppresses readings while the device is moving, and reports
// nuisance levels in a web interface or on the terminal.
//
// Usage:
//
//	noisesense serve [--config path/to/config.json]
//	noisesense measure [--file in.wav] [--blocks n] [--motion m]
//	noisesense devices
//	noisesense version
//
// If --config is not specified, NOISESENSE_CONFIG is used, then config.json
// in the same directory as the binary. A .env file in the working directory
// is loaded first.
package main

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/oszuidwest/noisesense/internal/config"
	"github.com/oszuidwest/noisesense/internal/util"
)

// configEnv names the environment variable holding the config file path.
const configEnv = "NOISESENSE_CONFIG"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "noisesense",
	Short:         "Noise meter with motion-gated nuisance detection",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: $"+configEnv+" or config.json next to binary)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "minimum log level: debug, info, warn or error (default: from config)")
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Warning: failed to load .env:", err)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// resolveConfigPath picks the config file from the flag, the environment, or
// the binary's directory, in that order.
func resolveConfigPath() (string, error) {
	if p := cmp.Or(configPath, os.Getenv(configEnv)); p != "" {
		return p, nil
	}
	execPath, err := os.Executable()
	if err != nil {
		return "", util.WrapError("get executable path", err)
	}
	return filepath.Join(filepath.Dir(execPath), "config.json"), nil
}

// loadConfig loads the configuration and sets up logging from it.
func loadConfig() (*config.Config, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := config.New(path)
	if err := cfg.Load(); err != nil {
		return nil, util.WrapError("load config", err)
	}

	setupLogging(cmp.Or(logLevel, cfg.Snapshot().LogLevel))
	slog.Info("using config file", "path", path)
	return cfg, nil
}

// setupLogging installs a text handler on stderr at the given level.
func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cmp.Or(level, config.DefaultLogLevel))); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
