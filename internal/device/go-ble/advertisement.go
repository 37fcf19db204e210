package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/pulse/internal/device"
)

// advertisement adapts ble.Advertisement to device.Advertisement
type advertisement struct {
	ble.Advertisement
}

var _ device.Advertisement = advertisement{}

func (a advertisement) Addr() string { return a.Advertisement.Addr().String() }

// Services merges the complete and overflow service lists; iOS peripherals
// in the background only advertise through the overflow area.
func (a advertisement) Services() []string {
	complete, overflow := a.Advertisement.Services(), a.OverflowService()
	services := make([]string, 0, len(complete)+len(overflow))
	for _, u := range complete {
		services = append(services, u.String())
	}
	for _, u := range overflow {
		services = append(services, u.String())
	}
	return services
}
