package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/pulse/internal/device"
)

// knownErrors maps lower-case fragments of go-ble and OS error messages to
// the device sentinels callers match with errors.Is
var knownErrors = []struct {
	fragment string
	sentinel error
}{
	{"central manager has invalid state", device.ErrBluetoothOff}, // darwin, radio powered off
	{"bluetooth is turned off", device.ErrBluetoothOff},
	{"can't init hci", device.ErrBluetoothOff}, // linux, adapter down or missing
	{"device already connected", device.ErrAlreadyConnected},
	{"device not connected", device.ErrNotConnected},
	{"disconnected", device.ErrNotConnected},
}

// NormalizeError wraps err with the matching device sentinel, keeping the
// original message. Errors already carrying a sentinel and unknown errors are
// returned as is.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	var cerr *device.ConnectionError
	if errors.As(err, &cerr) {
		return err
	}

	msg := strings.ToLower(err.Error())
	for _, known := range knownErrors {
		if strings.Contains(msg, known.fragment) {
			return fmt.Errorf("%w: %v", known.sentinel, err)
		}
	}
	return err
}
