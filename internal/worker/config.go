// Package worker consumes navigation events from Pub/Sub into the trip
// journal.
package worker

import (
	"errors"
	"time"
)

// Config holds configuration for the journal consumer.
type Config struct {
	// ProjectID and Subscription name the Pub/Sub subscription (required).
	ProjectID    string
	Subscription string

	// MaxOutstanding bounds unacknowledged messages in flight.
	// Default: 10
	MaxOutstanding int

	// MaxExtension is how long a message lease is extended while it is
	// processed.
	// Default: 1 minute
	MaxExtension time.Duration

	// RecordTimeout bounds one journal write.
	// Default: 10 seconds
	RecordTimeout time.Duration
}

// DefaultConfig returns the default consumer configuration without a
// subscription.
func DefaultConfig() Config {
	return Config{
		MaxOutstanding: 10,
		MaxExtension:   time.Minute,
		RecordTimeout:  10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxOutstanding <= 0 {
		c.MaxOutstanding = d.MaxOutstanding
	}
	if c.MaxExtension <= 0 {
		c.MaxExtension = d.MaxExtension
	}
	if c.RecordTimeout <= 0 {
		c.RecordTimeout = d.RecordTimeout
	}
	return c
}

// Validate reports a missing subscription.
func (c Config) Validate() error {
	switch {
	case c.ProjectID == "":
		return errors.New("worker: project id is required")
	case c.Subscription == "":
		return errors.New("worker: subscription is required")
	}
	return nil
}
