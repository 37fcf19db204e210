// Package session keeps the ordered log of heart rate measurements captured
// during one monitoring session and derives its statistics.
package session

import (
	"math"
	"sync"
	"time"
)

// Measurement is a single decoded heart rate reading
type Measurement struct {
	BPM        uint16    `json:"bpm" yaml:"bpm"`
	CapturedAt time.Time `json:"captured_at" yaml:"captured_at"`
}

// Store is an append-only, arrival-ordered measurement log.
// Aggregates are maintained incrementally. Safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	measurements []Measurement
	sum          uint64
	max          uint16
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{}
}

// Append adds m after every previously appended measurement
func (s *Store) Append(m Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.measurements = append(s.measurements, m)
	s.sum += uint64(m.BPM)
	if m.BPM > s.max {
		s.max = m.BPM
	}
}

// Len returns the number of measurements
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.measurements)
}

// Measurements returns a copy of the log in arrival order
func (s *Store) Measurements() []Measurement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Measurement, len(s.measurements))
	copy(out, s.measurements)
	return out
}

// Average returns the mean BPM rounded half away from zero, 0 when empty
func (s *Store) Average() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.measurements) == 0 {
		return 0
	}
	return int(math.Round(float64(s.sum) / float64(len(s.measurements))))
}

// Max returns the highest BPM seen, 0 when empty
func (s *Store) Max() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.max)
}

// Duration returns the time between the first and the last measurement.
// Fewer than two measurements, or a clock that went backwards, yield 0.
func (s *Store) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.measurements) < 2 {
		return 0
	}
	elapsed := s.measurements[len(s.measurements)-1].CapturedAt.Sub(s.measurements[0].CapturedAt)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// DurationMinutes returns Duration rounded to whole minutes
func (s *Store) DurationMinutes() int {
	return int(math.Round(s.Duration().Minutes()))
}

// Clear discards every measurement
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.measurements = nil
	s.sum = 0
	s.max = 0
}
