//go:build test

package monitor_test

import (
	"context"
	"sync"

	"github.com/srg/pulse/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a testify mock of device.Transport
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) IsAvailable() bool {
	return m.Called().Bool(0)
}

func (m *MockTransport) RequestDevice(ctx context.Context, filter device.DeviceFilter) (device.DeviceHandle, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(device.DeviceHandle), args.Error(1)
}

func (m *MockTransport) Open(ctx context.Context, handle device.DeviceHandle) (device.Channel, error) {
	args := m.Called(ctx, handle)
	ch, _ := args.Get(0).(device.Channel)
	return ch, args.Error(1)
}

func (m *MockTransport) ResolveCharacteristic(ctx context.Context, ch device.Channel, service, characteristic string) (device.CharacteristicHandle, error) {
	args := m.Called(ctx, ch, service, characteristic)
	char, _ := args.Get(0).(device.CharacteristicHandle)
	return char, args.Error(1)
}

func (m *MockTransport) Subscribe(ctx context.Context, char device.CharacteristicHandle, handler device.NotificationHandler) error {
	return m.Called(ctx, char, handler).Error(0)
}

func (m *MockTransport) Unsubscribe(ctx context.Context, char device.CharacteristicHandle) error {
	return m.Called(ctx, char).Error(0)
}

func (m *MockTransport) Close(ctx context.Context, ch device.Channel) error {
	return m.Called(ctx, ch).Error(0)
}

func (m *MockTransport) OnLinkDropped(ch device.Channel, fn func()) func() {
	args := m.Called(ch, fn)
	if cancel, ok := args.Get(0).(func()); ok {
		return cancel
	}
	return func() {}
}

type fakeChannel struct {
	handle device.DeviceHandle
}

func (c *fakeChannel) Device() device.DeviceHandle { return c.handle }

type fakeChar struct{}

func (fakeChar) Service() string { return device.HeartRateServiceUUID }
func (fakeChar) UUID() string    { return device.HeartRateMeasurementUUID }

// eventRecorder captures every controller callback
type eventRecorder struct {
	mu          sync.Mutex
	connects    []string
	disconnects int
	bpms        []int
	errors      []string
}

func (r *eventRecorder) Connects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.connects...)
}

func (r *eventRecorder) Disconnects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnects
}

func (r *eventRecorder) BPMs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.bpms...)
}

func (r *eventRecorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}
