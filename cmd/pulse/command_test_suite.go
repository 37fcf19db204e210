//go:build test

package main

import (
	"bytes"
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulse/internal/device"
	goble "github.com/srg/pulse/internal/device/go-ble"
	"github.com/srg/pulse/internal/groutine"
	"github.com/stretchr/testify/suite"
)

// TestDeviceAddress identifies the scripted heart rate monitor
const TestDeviceAddress = "00:00:00:00:00:01"

// CommandTestSuite runs root command invocations against a scripted transport.
// All cmd/pulse test suites should embed it.
type CommandTestSuite struct {
	suite.Suite

	Transport        *scriptedTransport
	originalFactory  func(*goble.Options, *logrus.Logger) device.Transport
	transportOptions *goble.Options
}

func (s *CommandTestSuite) SetupSuite() {
	s.originalFactory = transportFactory
}

func (s *CommandTestSuite) TearDownSuite() {
	transportFactory = s.originalFactory
}

// SetupTest installs a fresh transport and resets every flag to its default
func (s *CommandTestSuite) SetupTest() {
	s.Transport = newScriptedTransport()
	s.transportOptions = nil
	transportFactory = func(opts *goble.Options, _ *logrus.Logger) device.Transport {
		s.transportOptions = opts
		return s.Transport
	}

	monitorCmd.ResetFlags()
	initMonitorFlags()
	decodeCmd.ResetFlags()
	initDecodeFlags()

	for _, name := range []string{"config", "log-level"} {
		f := rootCmd.PersistentFlags().Lookup(name)
		s.Require().NotNil(f)
		s.Require().NoError(f.Value.Set(f.DefValue))
		f.Changed = false
	}
}

// ExecuteCommand runs the root command with args and returns stdout and stderr separately
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// scriptedTransport is a device.Transport that plays back frames once the
// controller is subscribed, then optionally drops the link
type scriptedTransport struct {
	mu sync.Mutex

	available  bool
	handle     device.DeviceHandle
	requestErr error
	frames     [][]byte
	dropLink   bool

	filter       device.DeviceFilter
	handler      device.NotificationHandler
	unsubscribes int
	closes       int
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{
		available: true,
		handle:    device.DeviceHandle{Address: TestDeviceAddress, Name: "Garmin HRM-Dual"},
	}
}

type scriptedChannel struct{ handle device.DeviceHandle }

func (c *scriptedChannel) Device() device.DeviceHandle { return c.handle }

type scriptedChar struct{}

func (scriptedChar) Service() string { return device.HeartRateServiceUUID }
func (scriptedChar) UUID() string    { return device.HeartRateMeasurementUUID }

func (t *scriptedTransport) IsAvailable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.available
}

func (t *scriptedTransport) RequestDevice(_ context.Context, filter device.DeviceFilter) (device.DeviceHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filter = filter
	if t.requestErr != nil {
		return device.DeviceHandle{}, t.requestErr
	}
	return t.handle, nil
}

func (t *scriptedTransport) Open(_ context.Context, handle device.DeviceHandle) (device.Channel, error) {
	return &scriptedChannel{handle: handle}, nil
}

func (t *scriptedTransport) ResolveCharacteristic(context.Context, device.Channel, string, string) (device.CharacteristicHandle, error) {
	return scriptedChar{}, nil
}

func (t *scriptedTransport) Subscribe(_ context.Context, _ device.CharacteristicHandle, handler device.NotificationHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
	return nil
}

func (t *scriptedTransport) Unsubscribe(context.Context, device.CharacteristicHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unsubscribes++
	return nil
}

func (t *scriptedTransport) Close(context.Context, device.Channel) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

// OnLinkDropped is the last step of Connect, so playback starts here
func (t *scriptedTransport) OnLinkDropped(_ device.Channel, fn func()) func() {
	t.mu.Lock()
	handler := t.handler
	frames := t.frames
	drop := t.dropLink
	t.mu.Unlock()

	groutine.Go(context.Background(), "scripted-playback", func(context.Context) {
		for _, frame := range frames {
			handler(frame)
		}
		if drop {
			fn()
		}
	})
	return func() {}
}

func (t *scriptedTransport) requestedFilter() device.DeviceFilter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filter
}

func (t *scriptedTransport) teardownCounts() (unsubscribes, closes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unsubscribes, t.closes
}
