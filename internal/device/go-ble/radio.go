package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/srg/pulse/internal/device"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func() (ble.Device, error) {
	return newPlatformDevice()
}

// radio is the part of ble.Device the transport uses
type radio interface {
	Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error
	Dial(ctx context.Context, address string) (gattClient, error)
}

// gattClient is the part of ble.Client the transport uses
type gattClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// bleRadio wraps ble.Device to implement radio
type bleRadio struct {
	dev ble.Device
}

func newBLERadio() (radio, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return &bleRadio{dev: dev}, nil
}

func (r *bleRadio) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	return NormalizeError(r.dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(advertisement{adv})
	}))
}

func (r *bleRadio) Dial(ctx context.Context, address string) (gattClient, error) {
	client, err := r.dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, NormalizeError(err)
	}
	return client, nil
}
