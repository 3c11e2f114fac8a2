package service

import (
	"strings"
	"time"

	"ridewatch/internal/domain"
	"ridewatch/internal/extract"
)

// StatusClass is the lifecycle meaning of an upstream status text.
type StatusClass int

const (
	StatusInProgress StatusClass = iota
	StatusFinished
	StatusFrozen
)

// Status vocabulary of the dispatch API, matched as lowercase substrings.
// Finished markers win over frozen ones.
var (
	finishedMarkers = []string{"finalizada", "finalizado", "concluída", "concluido"}
	frozenMarkers   = []string{
		"excedeu",
		"nenhum motorista",
		"sem motorista",
		"não foi possível",
		"nao foi possivel",
		"cancelada",
		"cancelado",
	}
)

// Status texts set locally rather than read from upstream.
const (
	statusCreated   = "Pedido criado"
	statusCancelled = "Cancelada"
)

// ClassifyStatus maps a free-text upstream status to its lifecycle meaning.
func ClassifyStatus(text string) StatusClass {
	t := strings.ToLower(text)
	if containsAny(t, finishedMarkers) {
		return StatusFinished
	}
	if containsAny(t, frozenMarkers) {
		return StatusFrozen
	}
	return StatusInProgress
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// pickStatusText prefers the stage status, then the general status
// description, then the previous text.
func pickStatusText(stage, status any, previous string) string {
	if s := extract.StageStatus.String(stage); s != "" {
		return s
	}
	if s := extract.StatusDescription.String(status); s != "" {
		return s
	}
	return previous
}

// stageOutcome describes what one applied poll result did to a ride.
type stageOutcome struct {
	changed bool
	alert   bool             // play the audible cue
	notify  bool             // send the acceptance push
	entered domain.RideState // state entered on this tick, empty when unchanged
}

// applyStage merges a stage snapshot into ride and advances its state.
// Driver fields only ever get filled in, never cleared.
func applyStage(ride *domain.Ride, stage, status any, now time.Time) stageOutcome {
	before := *ride
	hadDriver := ride.HasDriver()

	if v := extract.DriverName.String(stage); v != "" {
		ride.DriverName = v
	}
	if v := extract.Vehicle.String(stage); v != "" {
		ride.Vehicle = v
	}
	if v := extract.Plate.String(stage); v != "" {
		ride.Plate = v
	}
	if v := extract.StageLabel.String(stage); v != "" {
		ride.StageLabel = v
	}
	ride.StatusText = pickStatusText(stage, status, ride.StatusText)
	ride.LastError = ""

	var out stageOutcome
	if !hadDriver && ride.HasDriver() {
		if !ride.Alerted {
			ride.Alerted = true
			out.alert = true
		}
		if !ride.NotifiedAcceptance {
			ride.NotifiedAcceptance = true
			out.notify = true
		}
	}

	next := ride.State
	switch ClassifyStatus(ride.StatusText) {
	case StatusFinished:
		next = domain.RideStateFinished
	case StatusFrozen:
		next = domain.RideStateFrozen
	default:
		if ride.HasDriver() {
			next = domain.RideStateAccepted
		}
	}
	if next != ride.State {
		ride.State = next
		out.entered = next
	}

	out.changed = rideChanged(&before, ride)
	if out.changed {
		ride.UpdatedAt = now
	}
	return out
}

func rideChanged(a, b *domain.Ride) bool {
	return a.State != b.State ||
		a.StatusText != b.StatusText ||
		a.StageLabel != b.StageLabel ||
		a.LastError != b.LastError ||
		a.DriverName != b.DriverName ||
		a.Vehicle != b.Vehicle ||
		a.Plate != b.Plate ||
		a.Alerted != b.Alerted ||
		a.NotifiedAcceptance != b.NotifiedAcceptance
}
