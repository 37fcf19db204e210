package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/pulse/internal/device"
	"github.com/srg/pulse/internal/heartrate"
	"github.com/srg/pulse/internal/monitor"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the BLE connection was unexpectedly lost during operation.
	// This is distinct from device.ErrNotConnected, which indicates an attempt to use
	// a device that was never connected or was already disconnected.
	ErrConnectionLost = errors.New("connection lost")

	// ErrMalformedFrames is returned by decode when at least one frame failed to decode
	ErrMalformedFrames = errors.New("malformed frames")
)

// FormatUserError turns an error chain into a one-line message for the terminal
func FormatUserError(err error) string {
	var nf *device.NotFoundError
	var failed *monitor.ConnectionFailedError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, monitor.ErrCapabilityUnavailable):
		return "Bluetooth is not available on this host (is the adapter present and powered on?)"
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off"
	case errors.Is(err, device.ErrNoDeviceFound):
		return "no heart rate monitor found nearby (is it worn and advertising?)"
	case errors.As(err, &nf):
		return fmt.Sprintf("the device does not provide heart rate data: %s", nf.Error())
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("the device cannot stream heart rate data: %v", err)
	case errors.Is(err, ErrConnectionLost):
		return "connection to the heart rate monitor was lost"
	case errors.Is(err, heartrate.ErrMalformedFrame), errors.Is(err, ErrMalformedFrames):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		if errors.As(err, &failed) {
			return fmt.Sprintf("timed out during %s", failed.Stage)
		}
		return "operation timed out"
	case errors.As(err, &failed):
		return fmt.Sprintf("could not connect (%s): %v", failed.Stage, failed.Cause)
	default:
		return err.Error()
	}
}
