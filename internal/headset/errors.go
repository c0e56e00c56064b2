package headset

import "errors"

// Domain errors for the headset package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, headset.ErrStaleTransition) {
//	    // lost a race with another transition
//	}
var (
	// ErrInvalidTransition is returned when a transition is illegal in the current state.
	ErrInvalidTransition = errors.New("headset: invalid transition")

	// ErrStaleTransition is returned when a transition's prior state no longer
	// matches the live record.
	ErrStaleTransition = errors.New("headset: stale transition")

	// ErrStore is returned when the priority store fails.
	ErrStore = errors.New("headset: priority store error")

	// ErrInvalidDevice is returned for a malformed device address.
	ErrInvalidDevice = errors.New("headset: invalid device address")

	// ErrInvalidPriority is returned for a priority outside the defined set.
	ErrInvalidPriority = errors.New("headset: invalid priority")

	// ErrServiceUnavailable is returned when the service is not started.
	ErrServiceUnavailable = errors.New("headset: service unavailable")

	// ErrDispatcherStopped is returned when submitting to a stopped dispatcher.
	ErrDispatcherStopped = errors.New("headset: dispatcher stopped")
)
