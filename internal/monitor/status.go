package monitor

import "github.com/srg/pulse/internal/session"

// Status is a read-only snapshot of the controller
type Status struct {
	IsConnected            bool                  `json:"is_connected" yaml:"is_connected"`
	DeviceName             *string               `json:"device_name" yaml:"device_name"`
	Measurements           []session.Measurement `json:"measurements" yaml:"measurements"`
	AverageHeartRate       int                   `json:"average_heart_rate" yaml:"average_heart_rate"`
	MaxHeartRate           int                   `json:"max_heart_rate" yaml:"max_heart_rate"`
	SessionDurationMinutes int                   `json:"session_duration_minutes" yaml:"session_duration_minutes"`
}

// Status returns a snapshot. It is safe in any state; with no device the
// name is nil and with an empty session every statistic is 0.
func (c *Controller) Status() Status {
	c.mu.Lock()
	connected := c.state == Connected
	var name *string
	if connected && c.identity != nil {
		n := c.identity.Name
		name = &n
	}
	c.mu.Unlock()

	return Status{
		IsConnected:            connected,
		DeviceName:             name,
		Measurements:           c.store.Measurements(),
		AverageHeartRate:       c.store.Average(),
		MaxHeartRate:           c.store.Max(),
		SessionDurationMinutes: c.store.DurationMinutes(),
	}
}
