package sensors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oszuidwest/noisesense/internal/motion"
)

// DefaultIIORoot is where Linux exposes industrial I/O devices.
const DefaultIIORoot = "/sys/bus/iio/devices"

// ErrNoAccelerometer is returned when no IIO accelerometer is present.
var ErrNoAccelerometer = errors.New("no IIO accelerometer found")

// Accelerometer reads an IIO accelerometer through sysfs.
type Accelerometer struct {
	dir   string
	scale [3]float64
}

var axes = [3]string{"x", "y", "z"}

// FindAccelerometer returns the first device under root exposing all three
// acceleration axes.
func FindAccelerometer(root string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(root, "iio:device*"))
	if err != nil {
		return "", err
	}
	for _, dir := range matches {
		if hasAccelAxes(dir) {
			return dir, nil
		}
	}
	return "", ErrNoAccelerometer
}

func hasAccelAxes(dir string) bool {
	for _, a := range axes {
		if _, err := os.Stat(filepath.Join(dir, "in_accel_"+a+"_raw")); err != nil {
			return false
		}
	}
	return true
}

// OpenAccelerometer reads the scale factors of the device at dir. Per-axis
// scales take precedence over the shared one.
func OpenAccelerometer(dir string) (*Accelerometer, error) {
	if !hasAccelAxes(dir) {
		return nil, fmt.Errorf("%w in %s", ErrNoAccelerometer, dir)
	}

	shared := 1.0
	if v, err := readFloat(filepath.Join(dir, "in_accel_scale")); err == nil {
		shared = v
	}

	a := &Accelerometer{dir: dir}
	for i, axis := range axes {
		a.scale[i] = shared
		if v, err := readFloat(filepath.Join(dir, "in_accel_"+axis+"_scale")); err == nil {
			a.scale[i] = v
		}
	}
	return a, nil
}

// Sample reads the current acceleration in m/s².
func (a *Accelerometer) Sample() (motion.Sample, error) {
	var v [3]float64
	for i, axis := range axes {
		raw, err := readFloat(filepath.Join(a.dir, "in_accel_"+axis+"_raw"))
		if err != nil {
			return motion.Sample{}, err
		}
		v[i] = raw * a.scale[i]
	}
	return motion.Sample{X: v[0], Y: v[1], Z: v[2]}, nil
}

// Poll samples the accelerometer every interval into cell until ctx is done.
func (a *Accelerometer) Poll(ctx context.Context, interval time.Duration, cell *motion.Cell) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var failing bool
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s, err := a.Sample()
			if err == nil {
				err = cell.StoreSample(s, now)
			}
			switch {
			case err != nil && !failing:
				slog.Warn("accelerometer read failed", "device", a.dir, "error", err)
				failing = true
			case err == nil && failing:
				slog.Info("accelerometer read recovered", "device", a.dir)
				failing = false
			}
		}
	}
}

func readFloat(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
}
