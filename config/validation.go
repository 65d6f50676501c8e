package config

import (
	"fmt"
	"net"
	"time"

	"github.com/grovetools/repostore/errors"
	"github.com/moby/patternmatcher"
)

// minInterval bounds how often the collector may rescan its roots.
const minInterval = time.Second

// Validate checks semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.Engine.QueueSize < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "engine.queue_size cannot be negative").
			WithDetail("queue_size", c.Engine.QueueSize)
	}
	if c.Server.StreamBuffer < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "server.stream_buffer cannot be negative").
			WithDetail("stream_buffer", c.Server.StreamBuffer)
	}

	if c.Server.Address != "" {
		if _, _, err := net.SplitHostPort(c.Server.Address); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigValidation, fmt.Sprintf("invalid server.address %q", c.Server.Address)).
				WithDetail("address", c.Server.Address)
		}
	}

	if err := validateCollector(&c.Collector); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid collector configuration")
	}

	return nil
}

func validateCollector(c *CollectorConfig) error {
	if _, err := patternmatcher.New(c.Exclude); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid exclude pattern")
	}

	if !c.IsEnabled() {
		return nil
	}

	if len(c.Roots) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "collector is enabled but has no roots")
	}
	for _, root := range c.Roots {
		if root == "" {
			return errors.New(errors.ErrCodeInvalidInput, "collector root cannot be empty")
		}
	}
	if c.Interval.Std() < minInterval {
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("collector interval must be at least %s", minInterval)).
			WithDetail("interval", c.Interval.String())
	}
	for _, rev := range c.Revs {
		if rev == "" {
			return errors.New(errors.ErrCodeInvalidInput, "collector revision cannot be empty")
		}
	}
	return nil
}
