package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a GATT resource is not found on a peripheral
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // [serviceUUID] or [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected      ConnectionState = "not_connected"
	AlreadyConnecting ConnectionState = "already_connecting"
	AlreadyConnected  ConnectionState = "already_connected"
	BluetoothOff      ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected      = &ConnectionError{State: NotConnected}
	ErrAlreadyConnecting = &ConnectionError{State: AlreadyConnecting}
	ErrAlreadyConnected  = &ConnectionError{State: AlreadyConnected}
	ErrBluetoothOff      = &ConnectionError{State: BluetoothOff}
)

// Operation errors
var (
	ErrTimeout       = errors.New("timeout")
	ErrUnsupported   = errors.New("unsupported")
	ErrNoDeviceFound = errors.New("no matching device found")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// Advertisement is the subset of advertising data used to select a peripheral
type Advertisement interface {
	LocalName() string
	Services() []string
	// Connectable is false for beacons and scan responses; those can still
	// carry the name but cannot be dialed.
	Connectable() bool
	RSSI() int
	Addr() string
}

// DeviceFilter selects a compatible peripheral. A device matches when ANY
// criterion matches: an advertised service, a name prefix or an exact name.
type DeviceFilter struct {
	ServiceIDs   []string `yaml:"services" json:"services"`
	NamePrefixes []string `yaml:"name_prefixes" json:"name_prefixes"`
	ExactNames   []string `yaml:"names" json:"names"`
}

// DefaultFilter returns the filter for heart-rate monitors and the wearables
// known to expose the Heart Rate service.
func DefaultFilter() DeviceFilter {
	return DeviceFilter{
		ServiceIDs:   []string{HeartRateServiceUUID},
		NamePrefixes: []string{"Fitbit", "Apple", "Garmin"},
		ExactNames:   []string{"Sw 81"},
	}
}

// IsEmpty reports whether the filter has no criteria at all
func (f DeviceFilter) IsEmpty() bool {
	return len(f.ServiceIDs) == 0 && len(f.NamePrefixes) == 0 && len(f.ExactNames) == 0
}

// Matches reports whether a peripheral with the given name and advertised
// services satisfies the filter. Service UUIDs are normalized before comparison.
func (f DeviceFilter) Matches(name string, services []string) bool {
	for _, want := range f.ServiceIDs {
		want = NormalizeUUID(want)
		for _, have := range services {
			if NormalizeUUID(have) == want {
				return true
			}
		}
	}

	if name == "" {
		return false
	}
	for _, exact := range f.ExactNames {
		if name == exact {
			return true
		}
	}
	for _, prefix := range f.NamePrefixes {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// DeviceHandle identifies a selected peripheral
type DeviceHandle struct {
	Address string
	Name    string
}

// DisplayName returns the name if known, otherwise the address
func (h DeviceHandle) DisplayName() string {
	if h.Name != "" {
		return h.Name
	}
	return h.Address
}

// Channel is an open link to a peripheral. It is opaque to callers and only
// valid for the Transport that created it.
type Channel interface {
	Device() DeviceHandle
}

// CharacteristicHandle is a resolved GATT characteristic on an open Channel
type CharacteristicHandle interface {
	Service() string
	UUID() string
}

// NotificationHandler receives raw notification payloads. The slice is owned
// by the handler for the duration of the call only.
type NotificationHandler func(data []byte)

// Transport is the platform capability the session controller is built on.
// Every blocking operation honours ctx.
type Transport interface {
	// IsAvailable reports whether the radio stack can be used on this host
	IsAvailable() bool

	RequestDevice(ctx context.Context, filter DeviceFilter) (DeviceHandle, error)
	Open(ctx context.Context, handle DeviceHandle) (Channel, error)
	ResolveCharacteristic(ctx context.Context, ch Channel, service, characteristic string) (CharacteristicHandle, error)
	Subscribe(ctx context.Context, char CharacteristicHandle, handler NotificationHandler) error
	Unsubscribe(ctx context.Context, char CharacteristicHandle) error
	Close(ctx context.Context, ch Channel) error

	// OnLinkDropped registers fn to be called at most once when the link behind
	// ch is lost without Close being called. The returned func cancels the
	// registration.
	OnLinkDropped(ch Channel, fn func()) (cancel func())
}
