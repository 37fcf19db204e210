package monitor

import (
	"errors"
	"fmt"

	"github.com/srg/pulse/internal/device"
)

// Stage names the step of a connection attempt that failed
type Stage string

const (
	StageRequestDevice Stage = "request-device"
	StageOpen          Stage = "open"
	StageResolve       Stage = "resolve"
	StageSubscribe     Stage = "subscribe"
)

var (
	// ErrCapabilityUnavailable means the host has no usable Bluetooth transport
	ErrCapabilityUnavailable = errors.New("bluetooth capability unavailable")

	// ErrConnectionFailed is matched by every *ConnectionFailedError via errors.Is
	ErrConnectionFailed = errors.New("connection failed")

	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("controller closed")

	// Reentrant Connect rejections, compared by state like every device.ConnectionError
	ErrAlreadyConnecting = device.ErrAlreadyConnecting
	ErrAlreadyConnected  = device.ErrAlreadyConnected
)

// ConnectionFailedError reports the stage at which a connection attempt was aborted
type ConnectionFailedError struct {
	Stage Stage
	Cause error
}

func (e *ConnectionFailedError) Error() string {
	return fmt.Sprintf("%s at %s: %v", ErrConnectionFailed, e.Stage, e.Cause)
}

func (e *ConnectionFailedError) Unwrap() error { return e.Cause }

func (e *ConnectionFailedError) Is(target error) bool { return target == ErrConnectionFailed }

// TeardownWarning is a non-fatal failure while releasing a connection
type TeardownWarning struct {
	Op    string // "unsubscribe" or "close"
	Cause error
}

func (w *TeardownWarning) Error() string {
	return fmt.Sprintf("disconnection error during %s: %v", w.Op, w.Cause)
}

func (w *TeardownWarning) Unwrap() error { return w.Cause }
