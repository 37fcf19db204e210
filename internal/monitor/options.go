package monitor

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulse/internal/device"
)

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the logger; nil keeps the default
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFilter sets the filter passed to Transport.RequestDevice
func WithFilter(filter device.DeviceFilter) Option {
	return func(c *Controller) {
		c.filter = filter
	}
}

// WithCharacteristic overrides the service and characteristic subscribed to.
// Defaults to the Heart Rate service and Heart Rate Measurement characteristic.
func WithCharacteristic(service, characteristic string) Option {
	return func(c *Controller) {
		c.serviceUUID = device.NormalizeUUID(service)
		c.charUUID = device.NormalizeUUID(characteristic)
	}
}

// WithClock sets the source of measurement timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}
