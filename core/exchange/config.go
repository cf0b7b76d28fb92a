package exchange

import "fmt"

// Config parameterizes the delivery engine.
type Config struct {
	// PtuDurationMinutes scales acknowledgement deadlines.
	PtuDurationMinutes int `json:"ptu_duration_minutes"`
	// TransactionalFactor and CriticalFactor multiply the PTU duration to
	// form the acknowledgement deadline of the respective precedence.
	TransactionalFactor float64 `json:"transactional_factor"`
	CriticalFactor      float64 `json:"critical_factor"`
	// AllowedSenders restricts inbound traffic to these domains when
	// non-empty.
	AllowedSenders []string `json:"allowed_senders"`
	// BarredSenders rejects inbound traffic from these domains.
	BarredSenders []string `json:"barred_senders"`
}

// SetDefaults applies the standard notification factors.
func (c *Config) SetDefaults() {
	if c.PtuDurationMinutes == 0 {
		c.PtuDurationMinutes = 15
	}
	if c.TransactionalFactor == 0 {
		c.TransactionalFactor = 1
	}
	if c.CriticalFactor == 0 {
		c.CriticalFactor = 0.25
	}
}

// Validate checks the configured parameters.
func (c Config) Validate() error {
	if c.PtuDurationMinutes <= 0 {
		return fmt.Errorf("ptu duration must be positive")
	}
	if c.TransactionalFactor <= 0 || c.CriticalFactor <= 0 {
		return fmt.Errorf("notification factors must be positive")
	}
	return nil
}
