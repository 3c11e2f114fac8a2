package domain

import "time"

// RideView is the JSON representation of a tracked ride shown to the
// operator.
type RideView struct {
	ID                 int64     `json:"id"`
	Origin             string    `json:"origin"`
	Destination        string    `json:"destination"`
	Note               string    `json:"note,omitempty"`
	Fare               *float64  `json:"fare,omitempty"`
	State              RideState `json:"state"`
	StatusText         string    `json:"lastStatusText"`
	StageLabel         string    `json:"stage,omitempty"`
	LastError          string    `json:"lastError,omitempty"`
	DriverName         string    `json:"driverName,omitempty"`
	Vehicle            string    `json:"vehicle,omitempty"`
	Plate              string    `json:"plate,omitempty"`
	FinalFare          *float64  `json:"finalFare,omitempty"`
	Alerted            bool      `json:"alerted"`
	NotifiedAcceptance bool      `json:"notifiedAcceptance"`
	Relaunching        bool      `json:"relaunching,omitempty"`
	RelaunchOf         int64     `json:"relaunchOf,omitempty"`
	RelaunchedTo       int64     `json:"relaunchedTo,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// View converts a ride to its JSON representation.
func (r Ride) View() RideView {
	return RideView{
		ID:                 r.ID,
		Origin:             r.Origin,
		Destination:        r.Destination,
		Note:               r.Note,
		Fare:               r.DeclaredFare,
		State:              r.State,
		StatusText:         r.StatusText,
		StageLabel:         r.StageLabel,
		LastError:          r.LastError,
		DriverName:         r.DriverName,
		Vehicle:            r.Vehicle,
		Plate:              r.Plate,
		FinalFare:          r.FinalFare,
		Alerted:            r.Alerted,
		NotifiedAcceptance: r.NotifiedAcceptance,
		Relaunching:        r.Relaunching,
		RelaunchOf:         r.RelaunchedFrom,
		RelaunchedTo:       r.RelaunchedTo,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// Views converts rides to their JSON representation, keeping order.
func Views(rides []Ride) []RideView {
	views := make([]RideView, 0, len(rides))
	for _, r := range rides {
		views = append(views, r.View())
	}
	return views
}
