package goble

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/pulse/internal/device"
	"github.com/srg/pulse/internal/groutine"
)

// bleChannel is an open GATT client connection implementing device.Channel
type bleChannel struct {
	client gattClient
	logger *logrus.Logger

	mu           sync.Mutex
	handle       device.DeviceHandle
	profile      *ble.Profile
	closed       bool
	dropped      bool
	dropHandlers map[uint64]func()
	nextID       uint64

	stopMonitor context.CancelFunc
}

func newChannel(client gattClient, handle device.DeviceHandle, logger *logrus.Logger) *bleChannel {
	return &bleChannel{
		client:       client,
		handle:       handle,
		logger:       logger,
		dropHandlers: make(map[uint64]func()),
	}
}

func (c *bleChannel) Device() device.DeviceHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// startMonitor watches the client's Disconnected() channel. go-ble closes it
// when the peripheral or the radio drops the link.
func (c *bleChannel) startMonitor() {
	ctx, cancel := context.WithCancel(context.Background())
	c.stopMonitor = cancel

	disconnected := c.client.Disconnected()
	groutine.Go(ctx, "ble-link-monitor", func(ctx context.Context) {
		select {
		case <-disconnected:
			c.markDropped()
		case <-ctx.Done():
		}
	})
}

func (c *bleChannel) markDropped() {
	c.mu.Lock()
	if c.closed || c.dropped {
		c.mu.Unlock()
		return
	}
	c.dropped = true
	handlers := make([]func(), 0, len(c.dropHandlers))
	for _, fn := range c.dropHandlers {
		handlers = append(handlers, fn)
	}
	c.dropHandlers = make(map[uint64]func())
	address := c.handle.Address
	c.mu.Unlock()

	c.logger.WithField("address", address).Warn("BLE link reported disconnection")
	for _, fn := range handlers {
		fn()
	}
}

// onDropped registers fn. If the link is already gone fn runs on its own
// goroutine, never on the caller's.
func (c *bleChannel) onDropped(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dropped {
		groutine.Go(context.Background(), "ble-link-dropped", func(context.Context) { fn() })
		return func() {}
	}
	if c.closed {
		return func() {}
	}

	id := c.nextID
	c.nextID++
	c.dropHandlers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.dropHandlers, id)
	}
}

// discoverProfile runs GATT discovery once per channel
func (c *bleChannel) discoverProfile() (*ble.Profile, error) {
	c.mu.Lock()
	if c.profile != nil {
		p := c.profile
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	profile, err := c.client.DiscoverProfile(true)
	if err != nil {
		return nil, NormalizeError(err)
	}

	c.mu.Lock()
	c.profile = profile
	c.mu.Unlock()
	return profile, nil
}

// resolveName fills in the display name from the GAP Device Name
// characteristic when the advertisement carried none. Best-effort.
func (c *bleChannel) resolveName() {
	if c.Device().Name != "" {
		return
	}

	profile, err := c.discoverProfile()
	if err != nil {
		c.logger.WithField("error", err).Debug("Profile discovery for device name failed")
		return
	}
	char := findCharacteristic(profile, device.GAPServiceUUID, device.DeviceNameUUID)
	if char == nil {
		return
	}
	data, err := c.client.ReadCharacteristic(char)
	if err != nil || len(data) == 0 {
		return
	}

	name := strings.TrimSpace(strings.TrimRight(string(data), "\x00"))
	if !isValidDeviceName(name) {
		return
	}

	c.mu.Lock()
	c.handle.Name = name
	c.mu.Unlock()
	c.logger.WithFields(logrus.Fields{
		"address": c.handle.Address,
		"name":    name,
	}).Debug("Resolved device name from GAP")
}

// close cancels the connection. Closing twice, or closing a link that
// already dropped, is not an error.
func (c *bleChannel) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	dropped := c.dropped
	c.dropHandlers = make(map[uint64]func())
	c.mu.Unlock()

	if c.stopMonitor != nil {
		c.stopMonitor()
	}

	err := NormalizeError(c.client.CancelConnection())
	if err != nil && (dropped || device.IsConnectionState(err, device.NotConnected)) {
		c.logger.WithField("error", err).Debug("Cancel on a dropped link")
		return nil
	}
	return err
}

// findCharacteristic looks up a characteristic by normalized UUIDs
func findCharacteristic(profile *ble.Profile, service, characteristic string) *ble.Characteristic {
	svc := findService(profile, service)
	if svc == nil {
		return nil
	}
	for _, char := range svc.Characteristics {
		if device.NormalizeUUID(char.UUID.String()) == characteristic {
			return char
		}
	}
	return nil
}

func findService(profile *ble.Profile, service string) *ble.Service {
	if profile == nil {
		return nil
	}
	for _, svc := range profile.Services {
		if device.NormalizeUUID(svc.UUID.String()) == service {
			return svc
		}
	}
	return nil
}

// isValidDeviceName checks if a string looks like a valid device name
func isValidDeviceName(name string) bool {
	if len(name) < 2 || len(name) > 32 {
		return false
	}
	for _, r := range name {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// bleCharacteristic is a resolved characteristic implementing device.CharacteristicHandle
type bleCharacteristic struct {
	channel *bleChannel
	service string
	uuid    string
	char    *ble.Characteristic
}

func (c *bleCharacteristic) Service() string { return c.service }
func (c *bleCharacteristic) UUID() string    { return c.uuid }

func (c *bleCharacteristic) supportsNotify() bool {
	return c.char.Property&ble.CharNotify != 0
}

func (c *bleCharacteristic) supportsIndicate() bool {
	return c.char.Property&ble.CharIndicate != 0
}
