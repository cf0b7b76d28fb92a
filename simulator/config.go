package main

import "fmt"

// Config holds parameters for the market simulator.
type Config struct {
	// Groups is the number of connection groups played.
	Groups int
	// Conversations is the number of request/order conversations per group.
	Conversations int
	// DisputeRate is the fraction of settlement claims sent with an
	// inflated delivered value.
	DisputeRate float64
	// DropRate is the fraction of deliveries silently lost in transit.
	DropRate float64
	// Seed makes a run reproducible.
	Seed int64
	// Verbose prints every conversation instead of the summary only.
	Verbose bool
}

// Validate checks the simulation parameters.
func (c *Config) Validate() error {
	if c.Groups <= 0 || c.Conversations <= 0 {
		return fmt.Errorf("groups and conversations must be positive")
	}
	if c.DisputeRate < 0 || c.DisputeRate > 1 {
		return fmt.Errorf("dispute rate %f out of [0,1]", c.DisputeRate)
	}
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("drop rate %f out of [0,1]", c.DropRate)
	}
	return nil
}
