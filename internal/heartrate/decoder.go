// Package heartrate decodes the standard Heart Rate Measurement
// characteristic (0x2A37) notification payload.
//
// Only the flags byte and the heart rate value field are interpreted. The
// remaining flag bits (sensor contact, energy expended, RR-interval) are
// exposed for inspection but never affect decoding.
package heartrate

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Flag bits of the first byte of a measurement frame
const (
	FlagValueFormat16     byte = 0x01
	FlagContactDetected   byte = 0x02
	FlagContactSupported  byte = 0x04
	FlagEnergyExpended    byte = 0x08
	FlagRRIntervalPresent byte = 0x10
)

// ErrMalformedFrame is matched by every *MalformedFrameError via errors.Is
var ErrMalformedFrame = errors.New("malformed heart rate frame")

// MalformedFrameError reports a frame too short for the value width its flags announce
type MalformedFrameError struct {
	Need int
	Got  int
}

func (e *MalformedFrameError) Error() string {
	if e.Got == 0 {
		return fmt.Sprintf("%s: empty payload", ErrMalformedFrame)
	}
	return fmt.Sprintf("%s: need %d bytes, got %d", ErrMalformedFrame, e.Need, e.Got)
}

func (e *MalformedFrameError) Is(target error) bool {
	return target == ErrMalformedFrame
}

// Flags is the raw flags byte of a measurement frame
type Flags byte

// Wide reports whether the value field is 16 bits
func (f Flags) Wide() bool { return byte(f)&FlagValueFormat16 != 0 }

func (f Flags) SensorContactSupported() bool { return byte(f)&FlagContactSupported != 0 }

// SensorContact is only meaningful when SensorContactSupported is true
func (f Flags) SensorContact() bool { return byte(f)&FlagContactDetected != 0 }

func (f Flags) EnergyExpendedPresent() bool { return byte(f)&FlagEnergyExpended != 0 }

func (f Flags) RRIntervalPresent() bool { return byte(f)&FlagRRIntervalPresent != 0 }

// Frame is a decoded measurement notification
type Frame struct {
	Flags Flags
	BPM   uint16
}

// Decode parses a measurement frame. It never retains data.
func Decode(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, &MalformedFrameError{Need: 2, Got: 0}
	}

	flags := Flags(data[0])
	if flags.Wide() {
		if len(data) < 3 {
			return Frame{}, &MalformedFrameError{Need: 3, Got: len(data)}
		}
		return Frame{Flags: flags, BPM: binary.LittleEndian.Uint16(data[1:3])}, nil
	}

	if len(data) < 2 {
		return Frame{}, &MalformedFrameError{Need: 2, Got: len(data)}
	}
	return Frame{Flags: flags, BPM: uint16(data[1])}, nil
}
