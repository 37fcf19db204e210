package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/srg/pulse/internal/device"
	"github.com/stretchr/testify/mock"
)

type mockRadio struct {
	mock.Mock
}

func (m *mockRadio) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	args := m.Called(ctx, allowDup, handler)
	return args.Error(0)
}

func (m *mockRadio) Dial(ctx context.Context, address string) (gattClient, error) {
	args := m.Called(ctx, address)
	client, _ := args.Get(0).(gattClient)
	return client, args.Error(1)
}

type mockGATTClient struct {
	mock.Mock
}

func (m *mockGATTClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	profile, _ := args.Get(0).(*ble.Profile)
	return profile, args.Error(1)
}

func (m *mockGATTClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockGATTClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	args := m.Called(c, ind, h)
	return args.Error(0)
}

func (m *mockGATTClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	args := m.Called(c, ind)
	return args.Error(0)
}

func (m *mockGATTClient) CancelConnection() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockGATTClient) Disconnected() <-chan struct{} {
	args := m.Called()
	return args.Get(0).(<-chan struct{})
}

// fakeAdvertisement is a static device.Advertisement
type fakeAdvertisement struct {
	addr     string
	name     string
	services []string
	rssi     int
	scanRsp  bool
}

func (a *fakeAdvertisement) LocalName() string  { return a.name }
func (a *fakeAdvertisement) Services() []string { return a.services }
func (a *fakeAdvertisement) Connectable() bool  { return !a.scanRsp }
func (a *fakeAdvertisement) RSSI() int          { return a.rssi }
func (a *fakeAdvertisement) Addr() string       { return a.addr }

// scanEmitting makes a Scan expectation deliver ads in order until the scan is canceled
func scanEmitting(ads ...device.Advertisement) func(mock.Arguments) {
	return func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		handler := args.Get(2).(func(device.Advertisement))
		for _, adv := range ads {
			if ctx.Err() != nil {
				return
			}
			handler(adv)
		}
	}
}

func heartRateProfile(props ble.Property, withGAPName bool) *ble.Profile {
	hrm := &ble.Characteristic{UUID: ble.UUID16(0x2A37), Property: props}
	profile := &ble.Profile{
		Services: []*ble.Service{
			{
				UUID:            ble.UUID16(0x180D),
				Characteristics: []*ble.Characteristic{hrm},
			},
		},
	}
	if withGAPName {
		profile.Services = append(profile.Services, &ble.Service{
			UUID: ble.UUID16(0x1800),
			Characteristics: []*ble.Characteristic{
				{UUID: ble.UUID16(0x2A00), Property: ble.CharRead},
			},
		})
	}
	return profile
}
