// Package monitor implements the heart-rate session controller: the
// connection state machine wrapping a device.Transport, the notification
// pipeline into the session store, and the consumer-facing event surface.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulse/internal/device"
	"github.com/srg/pulse/internal/heartrate"
	"github.com/srg/pulse/internal/session"
)

// State is the connection state of a Controller
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DeviceIdentity is the peripheral of the current Connected session
type DeviceIdentity struct {
	Handle device.DeviceHandle
	Name   string
}

// Controller owns one connection to one heart-rate peripheral and the
// session of measurements received over it.
//
// Notifications are processed one at a time in delivery order. Event
// handlers are never called with internal locks held, so they may call back
// into the controller.
type Controller struct {
	transport   device.Transport
	logger      *logrus.Logger
	filter      device.DeviceFilter
	serviceUUID string
	charUUID    string
	now         func() time.Time

	store  *session.Store
	events listeners

	mu         sync.Mutex
	state      State
	identity   *DeviceIdentity
	channel    device.Channel
	char       device.CharacteristicHandle
	cancelDrop func()
	generation uint64 // bumped whenever a session starts or ends; stale callbacks compare against it
	closed     bool
	pending    []pendingFrame // frames received while Connecting, committed on success

	dispatchMu sync.Mutex
}

// pendingFrame is a notification held back until the attempt completes
type pendingFrame struct {
	m   session.Measurement
	err error
}

// New creates a Disconnected controller on top of transport
func New(transport device.Transport, opts ...Option) *Controller {
	c := &Controller{
		transport:   transport,
		logger:      logrus.New(),
		filter:      device.DefaultFilter(),
		serviceUUID: device.HeartRateServiceUUID,
		charUUID:    device.HeartRateMeasurementUUID,
		now:         time.Now,
		store:       session.NewStore(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Device returns the identity of the connected peripheral
func (c *Controller) Device() (DeviceIdentity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected || c.identity == nil {
		return DeviceIdentity{}, false
	}
	return *c.identity, true
}

// Connect selects a peripheral, opens a channel, resolves the measurement
// characteristic and subscribes to it. Every step must succeed; a failure
// releases what was acquired and returns the controller to Disconnected.
//
// Connect is not reentrant: while a previous attempt is in flight or a
// session is active it returns ErrAlreadyConnecting or ErrAlreadyConnected
// without side effects.
func (c *Controller) Connect(ctx context.Context) (DeviceIdentity, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return DeviceIdentity{}, ErrClosed
	}
	switch c.state {
	case Connecting:
		c.mu.Unlock()
		c.logger.Warn("Connect called while a connection attempt is in progress")
		return DeviceIdentity{}, ErrAlreadyConnecting
	case Connected, Disconnecting:
		state := c.state
		c.mu.Unlock()
		c.logger.WithField("state", state).Warn("Connect called while already connected")
		return DeviceIdentity{}, ErrAlreadyConnected
	}
	c.state = Connecting
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	if !c.transport.IsAvailable() {
		c.resetToDisconnected()
		c.logger.Error("Bluetooth transport is not available")
		c.events.fireError(ErrCapabilityUnavailable.Error())
		return DeviceIdentity{}, ErrCapabilityUnavailable
	}

	c.logger.WithFields(logrus.Fields{
		"services":      c.filter.ServiceIDs,
		"name_prefixes": c.filter.NamePrefixes,
		"names":         c.filter.ExactNames,
	}).Info("Requesting heart rate device...")

	handle, err := c.transport.RequestDevice(ctx, c.filter)
	if err != nil {
		return DeviceIdentity{}, c.failConnect(StageRequestDevice, err, nil)
	}

	c.logger.WithFields(logrus.Fields{
		"address": handle.Address,
		"name":    handle.Name,
	}).Debug("Opening channel...")

	ch, err := c.transport.Open(ctx, handle)
	if err != nil {
		return DeviceIdentity{}, c.failConnect(StageOpen, err, nil)
	}

	char, err := c.transport.ResolveCharacteristic(ctx, ch, c.serviceUUID, c.charUUID)
	if err != nil {
		return DeviceIdentity{}, c.failConnect(StageResolve, err, ch)
	}

	err = c.transport.Subscribe(ctx, char, func(data []byte) {
		c.handleNotification(gen, data)
	})
	if err != nil {
		return DeviceIdentity{}, c.failSubscribe(err, ch, char)
	}

	identity := DeviceIdentity{Handle: handle, Name: handle.DisplayName()}
	if name := ch.Device().Name; name != "" {
		identity.Name = name
	}

	// Holding dispatchMu keeps frames that arrived while Connecting ahead of
	// any frame delivered after the commit.
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	// OnLinkDropped never calls back synchronously, so registering under the
	// lock guarantees a drop is only observed once the session is Connected.
	c.mu.Lock()
	c.cancelDrop = c.transport.OnLinkDropped(ch, func() {
		c.handleLinkDropped(gen)
	})
	c.state = Connected
	c.identity = &identity
	c.channel = ch
	c.char = char
	pending := c.pending
	c.pending = nil
	for _, f := range pending {
		if f.err == nil {
			c.store.Append(f.m)
		}
	}
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"address": handle.Address,
		"name":    identity.Name,
		"pending": len(pending),
	}).Info("Heart rate device connected")

	c.events.fireConnect(identity.Name)
	for _, f := range pending {
		c.reportFrame(f.m, f.err)
	}
	return identity, nil
}

// failSubscribe unwinds an attempt whose subscription may be half done.
// The unsubscribe is best-effort; the channel is closed either way.
func (c *Controller) failSubscribe(cause error, ch device.Channel, char device.CharacteristicHandle) error {
	if err := c.transport.Unsubscribe(context.Background(), char); err != nil {
		c.logger.WithField("error", err).Debug("Unsubscribe after failed subscribe attempt failed")
	}
	return c.failConnect(StageSubscribe, cause, ch)
}

// failConnect unwinds a partial connection attempt. Frames held back
// during the attempt are discarded.
func (c *Controller) failConnect(stage Stage, cause error, ch device.Channel) error {
	if ch != nil {
		if err := c.transport.Close(context.Background(), ch); err != nil {
			c.logger.WithFields(logrus.Fields{
				"stage": stage,
				"error": err,
			}).Warn("Failed to close channel after aborted connection attempt")
		}
	}

	c.resetToDisconnected()

	err := &ConnectionFailedError{Stage: stage, Cause: cause}
	c.logger.WithFields(logrus.Fields{
		"stage": stage,
		"error": cause,
	}).Error("Connection attempt failed")
	c.events.fireError(err.Error())
	return err
}

func (c *Controller) resetToDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Disconnected
	c.identity = nil
	c.channel = nil
	c.char = nil
	c.cancelDrop = nil
	c.pending = nil
	c.generation++
}

// Disconnect ends the Connected session: best-effort unsubscribe, then
// channel close. Teardown failures are reported through OnError and never
// returned. Calling it while Disconnected is a silent no-op. An already
// cancelled ctx is returned as an error and leaves the session Connected.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Disconnected, Disconnecting:
		c.mu.Unlock()
		c.logger.Debug("Disconnect called but already disconnected")
		return nil
	case Connecting:
		c.mu.Unlock()
		return fmt.Errorf("cannot disconnect: %w", ErrAlreadyConnecting)
	}
	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("cannot disconnect: %w", err)
	}

	c.state = Disconnecting
	c.generation++
	ch := c.channel
	char := c.char
	cancelDrop := c.cancelDrop
	c.mu.Unlock()

	c.logger.WithField("name", ch.Device().DisplayName()).Info("Disconnecting heart rate device...")

	if cancelDrop != nil {
		cancelDrop()
	}

	if err := c.transport.Unsubscribe(ctx, char); err != nil {
		c.warnTeardown("unsubscribe", err)
	}
	if err := c.transport.Close(ctx, ch); err != nil {
		c.warnTeardown("close", err)
	}

	c.resetToDisconnected()
	c.logger.Info("Heart rate device disconnected")
	c.events.fireDisconnect()
	return nil
}

func (c *Controller) warnTeardown(op string, cause error) {
	w := &TeardownWarning{Op: op, Cause: cause}
	c.logger.WithFields(logrus.Fields{
		"op":    op,
		"error": cause,
	}).Warn("Teardown step failed, continuing")
	c.events.fireError(w.Error())
}

// handleLinkDropped is the out-of-band Connected -> Disconnected transition
func (c *Controller) handleLinkDropped(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != Connected {
		c.mu.Unlock()
		c.logger.Debug("Ignoring link drop from a finished session")
		return
	}
	ch := c.channel
	cancelDrop := c.cancelDrop
	c.state = Disconnected
	c.identity = nil
	c.channel = nil
	c.char = nil
	c.cancelDrop = nil
	c.generation++
	c.mu.Unlock()

	c.logger.WithField("name", ch.Device().DisplayName()).Warn("Link to heart rate device dropped")

	if cancelDrop != nil {
		cancelDrop()
	}
	if err := c.transport.Close(context.Background(), ch); err != nil {
		c.logger.WithField("error", err).Debug("Releasing dropped channel failed")
	}

	c.events.fireDisconnect()
}

// handleNotification decodes one payload and appends it to the session.
// While Connecting the frame is held back until Connect commits. Decode
// errors are per-frame and never affect the connection.
func (c *Controller) handleNotification(gen uint64, data []byte) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	frame, decodeErr := heartrate.Decode(data)
	m := session.Measurement{BPM: frame.BPM}

	c.mu.Lock()
	accepted := gen == c.generation && (c.state == Connecting || c.state == Connected)
	held := accepted && c.state == Connecting
	if accepted && decodeErr == nil {
		m.CapturedAt = c.now()
	}
	switch {
	case held:
		c.pending = append(c.pending, pendingFrame{m: m, err: decodeErr})
	case accepted && decodeErr == nil:
		c.store.Append(m)
	}
	c.mu.Unlock()

	if !accepted {
		c.logger.WithField("bytes", len(data)).Debug("Dropping notification outside of an active session")
		return
	}
	if decodeErr != nil {
		c.logger.WithFields(logrus.Fields{
			"payload": fmt.Sprintf("% x", data),
			"error":   decodeErr,
		}).Warn("Discarding malformed heart rate frame")
	}
	if held {
		c.logger.Debug("Holding notification until the connection attempt completes")
		return
	}
	c.reportFrame(m, decodeErr)
}

// reportFrame fires the event for a processed frame
func (c *Controller) reportFrame(m session.Measurement, decodeErr error) {
	if decodeErr != nil {
		c.events.fireError(decodeErr.Error())
		return
	}
	c.logger.WithField("bpm", m.BPM).Debug("Heart rate measurement")
	c.events.fireHeartRate(int(m.BPM))
}

// Clear discards the session measurements; the connection is not affected
func (c *Controller) Clear() {
	c.store.Clear()
}

// Close disconnects if needed, clears the session and removes all event
// handlers. The controller cannot be used afterwards.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.state == Connecting {
		c.mu.Unlock()
		return fmt.Errorf("cannot close: %w", ErrAlreadyConnecting)
	}
	if err := ctx.Err(); err != nil && c.state == Connected {
		c.mu.Unlock()
		return fmt.Errorf("cannot close: %w", err)
	}
	c.closed = true
	c.mu.Unlock()

	err := c.Disconnect(ctx)
	c.store.Clear()
	c.events.reset()
	return err
}
