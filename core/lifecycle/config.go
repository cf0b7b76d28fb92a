package lifecycle

import (
	"fmt"
	"time"
)

// Config defines the gate-closure parameters of the lifecycle scheduler.
type Config struct {
	// PtuDurationMinutes is the length of one program time unit.
	PtuDurationMinutes int `json:"ptu_duration_minutes"`
	// DayAheadGateClosure is the local time of day ("HH:MM") at which the
	// day-ahead market closes.
	DayAheadGateClosure string `json:"day_ahead_gate_closure"`
	// DayAheadClosurePtus is the number of PTUs before gate closure at
	// which the day-ahead trigger runs.
	DayAheadClosurePtus int `json:"day_ahead_closure_ptus"`
	// IntradayClosurePtus is the number of PTUs ahead of now that the
	// intraday trigger closes.
	IntradayClosurePtus int `json:"intraday_closure_ptus"`
}

// SetDefaults applies the common USEF parameters.
func (c *Config) SetDefaults() {
	if c.PtuDurationMinutes == 0 {
		c.PtuDurationMinutes = 15
	}
	if c.DayAheadGateClosure == "" {
		c.DayAheadGateClosure = "18:00"
	}
	if c.DayAheadClosurePtus == 0 {
		c.DayAheadClosurePtus = 8
	}
	if c.IntradayClosurePtus == 0 {
		c.IntradayClosurePtus = 4
	}
}

// Validate checks the configured parameters.
func (c Config) Validate() error {
	if c.PtuDurationMinutes <= 0 || (24*60)%c.PtuDurationMinutes != 0 {
		return fmt.Errorf("ptu duration %d does not divide a day evenly", c.PtuDurationMinutes)
	}
	if _, _, err := c.gateClosure(); err != nil {
		return err
	}
	if c.DayAheadClosurePtus < 0 || c.IntradayClosurePtus < 0 {
		return fmt.Errorf("gate-closure offsets must not be negative")
	}
	return nil
}

// PtuDuration returns the PTU duration as a time.Duration.
func (c Config) PtuDuration() time.Duration {
	return time.Duration(c.PtuDurationMinutes) * time.Minute
}

func (c Config) gateClosure() (hour, minute int, err error) {
	if _, err := time.Parse("15:04", c.DayAheadGateClosure); err != nil {
		return 0, 0, fmt.Errorf("day_ahead_gate_closure %q: %w", c.DayAheadGateClosure, err)
	}
	t, _ := time.Parse("15:04", c.DayAheadGateClosure)
	return t.Hour(), t.Minute(), nil
}
