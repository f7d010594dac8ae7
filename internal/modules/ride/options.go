// README: Functional options for the ride service's optional collaborators.
package ride

import (
	"errors"
	"time"
)

// Option configures optional collaborators of a Service.
type Option func(s *Service) error

// WithRouteEstimator fills EstimatedDuration on newly created rides.
func WithRouteEstimator(e RouteEstimator) Option {
	return func(s *Service) error {
		if e == nil {
			return errors.New("nil route estimator")
		}
		s.estimator = e
		return nil
	}
}

// WithPublisher publishes every applied transition.
func WithPublisher(p Publisher) Option {
	return func(s *Service) error {
		if p == nil {
			return errors.New("nil publisher")
		}
		s.publisher = p
		return nil
	}
}

// WithDriverNotifier pushes refresh hints to drivers on dispatcher changes.
func WithDriverNotifier(n DriverNotifier) Option {
	return func(s *Service) error {
		if n == nil {
			return errors.New("nil driver notifier")
		}
		s.notifier = n
		return nil
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return errors.New("nil clock")
		}
		s.now = now
		return nil
	}
}
