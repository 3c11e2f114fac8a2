package service

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingOrigin is returned when the origin address is blank.
	ErrMissingOrigin = errors.New("origin is required")

	// ErrMissingDestination is returned when the destination address is blank.
	ErrMissingDestination = errors.New("destination is required")

	// ErrInvalidFare is returned when a declared fare is negative.
	ErrInvalidFare = errors.New("invalid fare")

	// ErrInvalidRideID is returned when a ride id is not a positive integer.
	ErrInvalidRideID = errors.New("invalid ride id")

	// ErrRideNotTracked is returned when the ride is not in the tracked set.
	ErrRideNotTracked = errors.New("ride not tracked")

	// ErrRideAlreadyTracked is returned when registering a ride id twice.
	ErrRideAlreadyTracked = errors.New("ride already tracked")

	// ErrRideAlreadyFinished is returned when cancelling a finished ride.
	ErrRideAlreadyFinished = errors.New("ride already finished")

	// ErrRideAlreadyCancelled is returned when cancelling a cancelled ride.
	ErrRideAlreadyCancelled = errors.New("ride already cancelled")

	// ErrRideNotRelaunchable is returned when relaunching a ride that is not frozen or cancelled.
	ErrRideNotRelaunchable = errors.New("ride can only be relaunched when frozen or cancelled")

	// ErrRelaunchInProgress is returned while a relaunch of the same ride is pending.
	ErrRelaunchInProgress = errors.New("relaunch already in progress")

	// ErrRideIDNotFound matches every *IDNotFoundError.
	ErrRideIDNotFound = errors.New("ride id not found in dispatch response")

	// ErrInvalidSubscription is returned when a push subscription lacks an endpoint or keys.
	ErrInvalidSubscription = errors.New("invalid push subscription")

	// ErrSubscriptionGone is returned by push senders when the push service
	// reports the subscription no longer exists (404/410).
	ErrSubscriptionGone = errors.New("push subscription gone")
)

// IDNotFoundError is returned when the dispatch API accepted a request but no
// ride id could be located in its answer. Payload is the raw answer so the
// operator can inspect it.
type IDNotFoundError struct {
	Payload any
}

func (e *IDNotFoundError) Error() string {
	return fmt.Sprintf("%v: check the dispatch response manually", ErrRideIDNotFound)
}

func (e *IDNotFoundError) Is(target error) bool {
	return target == ErrRideIDNotFound
}
