// Package goble implements device.Transport on top of github.com/go-ble/ble.
//
// The platform radio is chosen at build time: CoreBluetooth on darwin, HCI
// sockets on linux. Other platforms build but report the transport as
// unavailable.
package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/pulse/internal/device"
)

const (
	// DefaultScanTimeout bounds RequestDevice when the caller's context has no deadline
	DefaultScanTimeout = 10 * time.Second

	// DefaultConnectTimeout bounds Open
	DefaultConnectTimeout = 30 * time.Second
)

// Options configures a Transport
type Options struct {
	// Address connects directly to a known peripheral and skips scanning
	Address        string
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
}

// DefaultOptions returns default transport options
func DefaultOptions() *Options {
	return &Options{
		ScanTimeout:    DefaultScanTimeout,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// Transport implements device.Transport with go-ble
type Transport struct {
	opts   Options
	logger *logrus.Logger

	mu       sync.Mutex
	radio    radio
	newRadio func() (radio, error)
}

var _ device.Transport = (*Transport)(nil)

// NewTransport creates a Transport. The radio is opened lazily on first use.
func NewTransport(opts *Options, logger *logrus.Logger) *Transport {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = logrus.New()
	}

	o := *opts
	if o.ScanTimeout <= 0 {
		o.ScanTimeout = DefaultScanTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}

	return &Transport{
		opts:     o,
		logger:   logger,
		newRadio: newBLERadio,
	}
}

func (t *Transport) getRadio() (radio, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.radio != nil {
		return t.radio, nil
	}
	r, err := t.newRadio()
	if err != nil {
		return nil, err
	}
	t.radio = r
	return r, nil
}

// IsAvailable opens the platform radio. It reports false when Bluetooth is
// off or the platform has no supported stack.
func (t *Transport) IsAvailable() bool {
	if _, err := t.getRadio(); err != nil {
		t.logger.WithField("error", err).Error("Failed to create BLE device")
		return false
	}
	return true
}

// RequestDevice scans until the first advertisement matching filter.
// With Options.Address set it returns that address without scanning.
func (t *Transport) RequestDevice(ctx context.Context, filter device.DeviceFilter) (device.DeviceHandle, error) {
	if t.opts.Address != "" {
		t.logger.WithField("address", t.opts.Address).Debug("Using configured device address, skipping scan")
		return device.DeviceHandle{Address: t.opts.Address}, nil
	}
	if filter.IsEmpty() {
		return device.DeviceHandle{}, fmt.Errorf("device filter is empty")
	}

	r, err := t.getRadio()
	if err != nil {
		return device.DeviceHandle{}, err
	}

	scanCtx, cancel := context.WithTimeout(ctx, t.opts.ScanTimeout)
	defer cancel()

	seen := hashmap.New[string, device.DeviceHandle]()
	var found atomic.Pointer[device.DeviceHandle]

	t.logger.WithField("timeout", t.opts.ScanTimeout).Info("Scanning for heart rate devices...")

	err = r.Scan(scanCtx, true, func(adv device.Advertisement) {
		if found.Load() != nil {
			return
		}

		addr := adv.Addr()
		h, existing := seen.Get(addr)
		if !existing {
			h = device.DeviceHandle{Address: addr}
		}
		// names often arrive in the scan response, after the first advertisement
		if name := adv.LocalName(); name != "" {
			h.Name = name
		}
		seen.Set(addr, h)

		if !adv.Connectable() || !filter.Matches(h.Name, adv.Services()) {
			return
		}
		if found.CompareAndSwap(nil, &h) {
			t.logger.WithFields(logrus.Fields{
				"address": h.Address,
				"name":    h.Name,
				"rssi":    adv.RSSI(),
			}).Info("Found matching device")
			cancel()
		}
	})

	if h := found.Load(); h != nil {
		return *h, nil
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return device.DeviceHandle{}, fmt.Errorf("scan failed: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return device.DeviceHandle{}, ctxErr
	}
	return device.DeviceHandle{}, fmt.Errorf("%w within %s (%d devices seen)", device.ErrNoDeviceFound, t.opts.ScanTimeout, seen.Len())
}

// Open dials the peripheral and starts watching the link
func (t *Transport) Open(ctx context.Context, handle device.DeviceHandle) (device.Channel, error) {
	if strings.TrimSpace(handle.Address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	r, err := t.getRadio()
	if err != nil {
		return nil, err
	}

	connCtx, cancel := context.WithTimeout(ctx, t.opts.ConnectTimeout)
	defer cancel()

	t.logger.WithFields(logrus.Fields{
		"address": handle.Address,
		"timeout": t.opts.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	client, err := r.Dial(connCtx, handle.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", handle.Address, err)
	}

	ch := newChannel(client, handle, t.logger)
	ch.startMonitor()
	ch.resolveName()

	t.logger.WithFields(logrus.Fields{
		"address": handle.Address,
		"name":    ch.Device().Name,
	}).Info("BLE device connected")
	return ch, nil
}

func asChannel(ch device.Channel) (*bleChannel, error) {
	bc, ok := ch.(*bleChannel)
	if !ok || bc == nil {
		return nil, fmt.Errorf("channel %T was not opened by this transport", ch)
	}
	return bc, nil
}

func asCharacteristic(char device.CharacteristicHandle) (*bleCharacteristic, error) {
	bc, ok := char.(*bleCharacteristic)
	if !ok || bc == nil {
		return nil, fmt.Errorf("characteristic %T was not resolved by this transport", char)
	}
	return bc, nil
}

// ResolveCharacteristic discovers the GATT profile and looks up the
// characteristic. It must support notify or indicate.
func (t *Transport) ResolveCharacteristic(ctx context.Context, ch device.Channel, service, characteristic string) (device.CharacteristicHandle, error) {
	bc, err := asChannel(ch)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	service = device.NormalizeUUID(service)
	characteristic = device.NormalizeUUID(characteristic)

	profile, err := bc.discoverProfile()
	if err != nil {
		return nil, fmt.Errorf("failed to discover profile: %w", err)
	}

	if findService(profile, service) == nil {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
	}
	char := findCharacteristic(profile, service, characteristic)
	if char == nil {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, characteristic}}
	}

	handle := &bleCharacteristic{channel: bc, service: service, uuid: characteristic, char: char}
	if !handle.supportsNotify() && !handle.supportsIndicate() {
		return nil, fmt.Errorf("characteristic %s does not support notifications: %w", characteristic, device.ErrUnsupported)
	}

	t.logger.WithFields(logrus.Fields{
		"service_uuid": service,
		"char_uuid":    characteristic,
	}).Debug("Resolved characteristic")
	return handle, nil
}

// Subscribe enables notifications (indications when notify is unsupported).
// Each payload is copied before it reaches handler.
func (t *Transport) Subscribe(ctx context.Context, char device.CharacteristicHandle, handler device.NotificationHandler) error {
	bc, err := asCharacteristic(char)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	indicate := !bc.supportsNotify()
	err = NormalizeError(bc.channel.client.Subscribe(bc.char, indicate, func(data []byte) {
		payload := make([]byte, len(data))
		copy(payload, data)
		handler(payload)
	}))
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"serviceUUID": bc.service,
			"charUUID":    bc.uuid,
			"error":       err,
		}).Error("Failed to subscribe to characteristic notifications")
		return fmt.Errorf("subscribe %s: %w", bc.uuid, err)
	}

	t.logger.WithFields(logrus.Fields{
		"serviceUUID": bc.service,
		"charUUID":    bc.uuid,
		"indicate":    indicate,
	}).Info("Successfully subscribed to characteristic notifications")
	return nil
}

// Unsubscribe attempts both notify and indicate modes and fails only if both fail
func (t *Transport) Unsubscribe(ctx context.Context, char device.CharacteristicHandle) error {
	bc, err := asCharacteristic(char)
	if err != nil {
		return err
	}

	err1 := NormalizeError(bc.channel.client.Unsubscribe(bc.char, false)) // notify
	err2 := NormalizeError(bc.channel.client.Unsubscribe(bc.char, true))  // indicate

	if err1 != nil && err2 != nil {
		t.logger.WithFields(logrus.Fields{
			"serviceUUID": bc.service,
			"charUUID":    bc.uuid,
			"notifyErr":   err1,
			"indicateErr": err2,
		}).Error("Failed to unsubscribe from characteristic notifications")
		return fmt.Errorf("%s: notify=%v, indicate=%v", bc.uuid, err1, err2)
	}

	t.logger.WithFields(logrus.Fields{
		"serviceUUID": bc.service,
		"charUUID":    bc.uuid,
	}).Debug("Unsubscribed from characteristic notifications")
	return nil
}

// Close cancels the connection and stops the link monitor
func (t *Transport) Close(ctx context.Context, ch device.Channel) error {
	bc, err := asChannel(ch)
	if err != nil {
		return err
	}

	if err := bc.close(); err != nil {
		t.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return err
	}
	t.logger.WithField("address", bc.Device().Address).Info("BLE device disconnected successfully")
	return nil
}

// OnLinkDropped registers fn for a disconnection not caused by Close
func (t *Transport) OnLinkDropped(ch device.Channel, fn func()) func() {
	bc, err := asChannel(ch)
	if err != nil {
		t.logger.WithField("error", err).Error("Cannot watch link")
		return func() {}
	}
	return bc.onDropped(fn)
}
