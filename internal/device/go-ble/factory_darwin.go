//go:build darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// newPlatformDevice opens the CoreBluetooth central manager
func newPlatformDevice() (ble.Device, error) {
	return darwin.NewDevice()
}
