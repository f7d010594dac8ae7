// README: Functional options for the job list controller.
package jobs

import (
	"errors"
	"time"

	"wecare/internal/types"
)

type Option func(c *Controller) error

// WithCache sets where the last confirmed ride list is kept for offline use.
func WithCache(cache Cache) Option {
	return func(c *Controller) error {
		if cache == nil {
			return errors.New("nil cache")
		}
		c.cache = cache
		return nil
	}
}

func WithClock(clock types.Clock) Option {
	return func(c *Controller) error {
		if clock == nil {
			return errors.New("nil clock")
		}
		c.clock = clock
		return nil
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		c.pollInterval = d
		return nil
	}
}

func WithDrainInterval(d time.Duration) Option {
	return func(c *Controller) error {
		if d <= 0 {
			return errors.New("drain interval must be positive")
		}
		c.drainInterval = d
		return nil
	}
}

// WithRequestTimeout bounds every single backend call.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Controller) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		c.requestTimeout = d
		return nil
	}
}

// WithPolling sets whether periodic reloads start enabled.
func WithPolling(enabled bool) Option {
	return func(c *Controller) error {
		c.polling = enabled
		return nil
	}
}
