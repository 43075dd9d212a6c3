//go:build windows

package util

import (
	"os"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulSignal terminates the process. Windows has no SIGINT for child
// processes, and a capture process holds no state worth flushing.
func GracefulSignal(p *os.Process) error {
	return p.Kill()
}
