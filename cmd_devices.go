package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oszuidwest/noisesense/internal/audio"
	"github.com/oszuidwest/noisesense/internal/capture"
	"github.com/oszuidwest/noisesense/internal/types"
)

var devicesBackend string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio capture devices",
	Long: `List audio capture devices for a backend.

The process backend lists the devices arecord or FFmpeg can open; the native
backend lists the devices miniaudio reports. Use the ID as audio.input.`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

func init() {
	devicesCmd.Flags().StringVar(&devicesBackend, "backend", types.BackendProcess, "capture backend: process or native")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, _ []string) error {
	devices, err := listDevices(devicesBackend)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\n", d.ID, d.Name)
	}
	return w.Flush()
}

// listDevices returns the capture devices for a backend.
func listDevices(backend string) ([]audio.Device, error) {
	switch backend {
	case "", types.BackendProcess:
		return audio.Devices(), nil
	case types.BackendNative:
		return capture.NativeDevices()
	default:
		return nil, fmt.Errorf("%w: %q", capture.ErrUnknownBackend, backend)
	}
}

// deviceList converts capture devices for status responses.
func deviceList(backend string) []types.AudioDevice {
	devices, err := listDevices(backend)
	if err != nil {
		return nil
	}
	out := make([]types.AudioDevice, 0, len(devices))
	for _, d := range devices {
		out = append(out, types.AudioDevice{ID: d.ID, Name: d.Name})
	}
	return out
}
