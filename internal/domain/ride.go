package domain

import "time"

// RideState represents where a tracked ride is in its lifecycle.
type RideState string

const (
	RideStateActive   RideState = "ACTIVE"
	RideStateAccepted RideState = "ACCEPTED"
	RideStateFrozen   RideState = "FROZEN"
	RideStateCanceled RideState = "CANCELED"
	RideStateFinished RideState = "FINISHED"
)

// Pollable reports whether rides in this state are still queried upstream.
func (s RideState) Pollable() bool {
	return s == RideStateActive || s == RideStateAccepted
}

// Relaunchable reports whether a ride in this state may be relaunched.
func (s RideState) Relaunchable() bool {
	return s == RideStateFrozen || s == RideStateCanceled
}

// Ride represents a dispatch request tracked from creation to a terminal state.
type Ride struct {
	ID           int64
	Origin       string
	Destination  string
	Note         string
	DeclaredFare *float64 // nil lets the dispatch API compute the fare
	CreatedAt    time.Time
	UpdatedAt    time.Time

	State      RideState
	StatusText string
	StageLabel string
	LastError  string // transient, cleared by the next successful poll

	// Populated once a driver is assigned; never cleared afterwards.
	DriverName string
	Vehicle    string
	Plate      string

	FinalFare *float64

	Alerted            bool // audible cue already played
	NotifiedAcceptance bool // acceptance push already attempted
	Relaunching        bool

	RelaunchedFrom int64
	RelaunchedTo   int64
}

// HasDriver reports whether a driver has been assigned.
func (r *Ride) HasDriver() bool {
	return r.DriverName != ""
}
