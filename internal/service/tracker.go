package service

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"ridewatch/internal/dispatch"
	"ridewatch/internal/domain"
	"ridewatch/internal/extract"
	"ridewatch/internal/repository"
)

// RideAPI is the dispatch API surface the tracker drives.
type RideAPI interface {
	CreateRide(ctx context.Context, in dispatch.CreateRideInput) (any, error)
	QueryStage(ctx context.Context, rideID int64) (any, error)
	QueryStatus(ctx context.Context, rideID int64) (any, error)
	QueryRecord(ctx context.Context, rideID int64) (any, error)
	Cancel(ctx context.Context, rideID int64) (any, error)
}

// Ensure the dispatch client implements RideAPI.
var _ RideAPI = (*dispatch.Client)(nil)

// Renderer receives a read-only snapshot of the tracked rides after every
// observable change.
type Renderer interface {
	RenderRides(rides []domain.Ride)
}

// RecordCache keeps the final record of finished rides.
type RecordCache interface {
	GetRecord(ctx context.Context, rideID int64) ([]byte, error)
	SetRecord(ctx context.Context, rideID int64, record []byte) error
	InvalidateRecord(ctx context.Context, rideID int64) error
}

// TrackerOptions tunes the tracker.
type TrackerOptions struct {
	PollInterval  time.Duration
	HistoryLimit  int
	NotifyTimeout time.Duration
}

// TrackerDeps contains the tracker's collaborators. Only API and Notifier are
// required.
type TrackerDeps struct {
	API         RideAPI
	Notifier    Notifier
	Rides       repository.RideRepository
	Renderer    Renderer
	Records     RecordCache
	NewRelicApp *newrelic.Application
	Options     TrackerOptions
	Now         func() time.Time
}

// trackedRide is the tracker's ownership record for one ride.
type trackedRide struct {
	ride domain.Ride
	stop context.CancelFunc // cancels the poll loop; nil when not polling
}

// Tracker owns the set of in-flight rides and runs one poll loop per ride.
// Each poll loop is the only writer of its ride's stage fields; cancel,
// relaunch and remove take the same lock and every poll result is re-checked
// against the current state before it is applied.
type Tracker struct {
	api      RideAPI
	notifier Notifier
	rides    repository.RideRepository
	renderer Renderer
	records  RecordCache
	nrApp    *newrelic.Application
	opts     TrackerOptions
	now      func() time.Time

	mu            sync.Mutex
	tracked       map[int64]*trackedRide
	finished      map[int64]struct{}
	finishedOrder []int64

	persistMu sync.Mutex
	renderMu  sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTracker creates a new Tracker. Call Close to stop every poll loop.
func NewTracker(deps TrackerDeps) *Tracker {
	opts := deps.Options
	if opts.PollInterval <= 0 {
		opts.PollInterval = 16 * time.Second
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 120
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		api:      deps.API,
		notifier: deps.Notifier,
		rides:    deps.Rides,
		renderer: deps.Renderer,
		records:  deps.Records,
		nrApp:    deps.NewRelicApp,
		opts:     opts,
		now:      now,
		tracked:  make(map[int64]*trackedRide),
		finished: make(map[int64]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// CreateRideRequest contains the parameters for creating a ride.
type CreateRideRequest struct {
	Origin      string
	Destination string
	Note        string
	Fare        *float64 // Optional: nil lets the dispatch API compute it
}

// CreateRideResult contains the tracked ride and the raw dispatch answer.
type CreateRideResult struct {
	Ride   domain.Ride
	Result any
}

// CreateRide creates a ride upstream, locates its id and starts tracking it.
func (t *Tracker) CreateRide(ctx context.Context, req CreateRideRequest) (*CreateRideResult, error) {
	req.Origin = strings.TrimSpace(req.Origin)
	req.Destination = strings.TrimSpace(req.Destination)
	req.Note = strings.TrimSpace(req.Note)

	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	ride, raw, err := t.launch(ctx, req, 0)
	if err != nil {
		return nil, err
	}

	t.notifier.NotifyRideCreated(ctx, ride)
	return &CreateRideResult{Ride: ride, Result: raw}, nil
}

func validateCreateRequest(req CreateRideRequest) error {
	if req.Origin == "" {
		return ErrMissingOrigin
	}
	if req.Destination == "" {
		return ErrMissingDestination
	}
	if req.Fare != nil && *req.Fare < 0 {
		return ErrInvalidFare
	}
	return nil
}

// launch creates the ride upstream and registers it.
func (t *Tracker) launch(ctx context.Context, req CreateRideRequest, relaunchedFrom int64) (domain.Ride, any, error) {
	raw, err := t.api.CreateRide(ctx, dispatch.CreateRideInput{
		Origin:      req.Origin,
		Destination: req.Destination,
		Note:        req.Note,
		Fare:        req.Fare,
	})
	if err != nil {
		return domain.Ride{}, nil, err
	}

	id, ok := extract.FindID(raw, extract.RideIDKeys)
	if !ok {
		return domain.Ride{}, nil, &IDNotFoundError{Payload: raw}
	}

	now := t.now()
	ride := domain.Ride{
		ID:             id,
		Origin:         req.Origin,
		Destination:    req.Destination,
		Note:           req.Note,
		DeclaredFare:   req.Fare,
		CreatedAt:      now,
		UpdatedAt:      now,
		State:          domain.RideStateActive,
		StatusText:     statusCreated,
		RelaunchedFrom: relaunchedFrom,
	}
	if err := t.Track(ride); err != nil {
		return domain.Ride{}, nil, err
	}
	return ride, raw, nil
}

// Track registers a ride and starts polling it immediately when its state is
// pollable.
func (t *Tracker) Track(ride domain.Ride) error {
	if ride.ID <= 0 {
		return ErrInvalidRideID
	}
	ride.Relaunching = false

	t.mu.Lock()
	if _, exists := t.tracked[ride.ID]; exists {
		t.mu.Unlock()
		return ErrRideAlreadyTracked
	}
	tr := &trackedRide{ride: ride}
	t.tracked[ride.ID] = tr
	if ride.State.Pollable() {
		t.startPolling(tr)
	}
	t.mu.Unlock()

	log.Printf("[TRACKER] tracking ride %d (%s)", ride.ID, ride.State)
	t.persist(ride.ID)
	t.render()
	return nil
}

// startPolling must be called with t.mu held.
func (t *Tracker) startPolling(tr *trackedRide) {
	ctx, cancel := context.WithCancel(t.ctx)
	tr.stop = cancel
	id := tr.ride.ID

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		t.poll(ctx, id)

		ticker := time.NewTicker(t.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.poll(ctx, id)
			}
		}
	}()
}

// stopPolling must be called with t.mu held.
func (t *Tracker) stopPolling(tr *trackedRide) {
	if tr.stop != nil {
		tr.stop()
		tr.stop = nil
	}
}

// current returns the tracked record for id when it is still tr and still
// pollable. Must be called with t.mu held.
func (t *Tracker) current(id int64, tr *trackedRide) bool {
	cur, ok := t.tracked[id]
	return ok && cur == tr && cur.ride.State.Pollable()
}

// poll runs one tick for a ride.
func (t *Tracker) poll(ctx context.Context, id int64) {
	if ctx.Err() != nil {
		return
	}

	txn := t.nrApp.StartTransaction("tracker/poll")
	defer txn.End()
	txn.AddAttribute("rideId", id)
	ctx = newrelic.NewContext(ctx, txn)

	t.mu.Lock()
	tr, ok := t.tracked[id]
	if !ok || !tr.ride.State.Pollable() {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	stage, err := t.api.QueryStage(ctx, id)
	if err != nil {
		txn.NoticeError(err)
		t.recordPollError(ctx, id, tr, err)
		return
	}

	// The general status is a secondary source; its failure is not an error.
	var status any
	if s, err := t.api.QueryStatus(ctx, id); err == nil {
		status = s
	}

	t.mu.Lock()
	if ctx.Err() != nil || !t.current(id, tr) {
		t.mu.Unlock()
		log.Printf("[TRACKER] discarding late stage response for ride %d", id)
		return
	}
	out := applyStage(&tr.ride, stage, status, t.now())
	switch out.entered {
	case domain.RideStateFinished:
		t.stopPolling(tr)
		delete(t.tracked, id)
		t.markFinished(id)
	case domain.RideStateFrozen:
		t.stopPolling(tr)
	}
	snapshot := tr.ride
	t.mu.Unlock()

	sctx, cancel := t.sideEffectContext(txn)
	defer cancel()

	if out.alert {
		t.notifier.PlayAlert(sctx, snapshot)
	}
	if out.notify {
		if err := t.notifier.NotifyDriverAccepted(sctx, snapshot); err != nil {
			log.Printf("[TRACKER] acceptance push for ride %d failed: %v", id, err)
		}
	}

	switch out.entered {
	case domain.RideStateFinished:
		log.Printf("[TRACKER] ride %d finished", id)
		t.forget(sctx, id)
		t.render()
		t.finish(sctx, snapshot)
		return
	case domain.RideStateFrozen:
		log.Printf("[TRACKER] ride %d frozen: %s", id, snapshot.StatusText)
		t.notifier.NotifyRideFrozen(sctx, snapshot)
	case domain.RideStateAccepted:
		log.Printf("[TRACKER] ride %d accepted by %s", id, snapshot.DriverName)
	}

	if out.changed {
		t.persist(id)
		t.render()
	}
}

// recordPollError annotates the ride with a transient error without touching
// its state.
func (t *Tracker) recordPollError(ctx context.Context, id int64, tr *trackedRide, err error) {
	log.Printf("[TRACKER] poll of ride %d failed: %v", id, err)

	t.mu.Lock()
	if ctx.Err() != nil || !t.current(id, tr) {
		t.mu.Unlock()
		return
	}
	tr.ride.LastError = "Erro ao atualizar"
	t.mu.Unlock()

	t.persist(id)
	t.render()
}

// finish fetches the final record of a finished ride, caches it and
// announces the final fare.
func (t *Tracker) finish(ctx context.Context, ride domain.Ride) {
	record, err := t.api.QueryRecord(ctx, ride.ID)
	if err != nil {
		log.Printf("[TRACKER] final record of ride %d unavailable: %v", ride.ID, err)
		t.notifier.NotifyRideFinished(ctx, ride)
		return
	}

	if fare, ok := extract.FindAmount(record, extract.FareKeys); ok {
		ride.FinalFare = &fare
	}

	if t.records != nil {
		if data, err := json.Marshal(record); err == nil {
			if err := t.records.SetRecord(ctx, ride.ID, data); err != nil {
				log.Printf("[TRACKER] failed to cache record of ride %d: %v", ride.ID, err)
			}
		}
	}

	t.notifier.NotifyRideFinished(ctx, ride)
}

// markFinished remembers a finished ride id, bounded by the history limit.
// Must be called with t.mu held.
func (t *Tracker) markFinished(id int64) {
	if _, ok := t.finished[id]; ok {
		return
	}
	t.finished[id] = struct{}{}
	t.finishedOrder = append(t.finishedOrder, id)
	if len(t.finishedOrder) > t.opts.HistoryLimit {
		oldest := t.finishedOrder[0]
		t.finishedOrder = t.finishedOrder[1:]
		delete(t.finished, oldest)
	}
}

// CancelRide cancels a ride upstream. A tracked ride is then moved to
// CANCELED and its poll loop stopped; on failure nothing changes.
func (t *Tracker) CancelRide(ctx context.Context, id int64) (any, error) {
	if id <= 0 {
		return nil, ErrInvalidRideID
	}

	t.mu.Lock()
	if _, done := t.finished[id]; done {
		t.mu.Unlock()
		return nil, ErrRideAlreadyFinished
	}
	tr, tracked := t.tracked[id]
	if tracked && tr.ride.State == domain.RideStateCanceled {
		t.mu.Unlock()
		return nil, ErrRideAlreadyCancelled
	}
	t.mu.Unlock()

	result, err := t.api.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tracked {
		return result, nil
	}

	t.mu.Lock()
	cur, ok := t.tracked[id]
	if !ok {
		t.mu.Unlock()
		return result, nil
	}
	t.stopPolling(cur)
	cur.ride.State = domain.RideStateCanceled
	cur.ride.StatusText = statusCancelled
	cur.ride.LastError = ""
	cur.ride.UpdatedAt = t.now()
	snapshot := cur.ride
	t.mu.Unlock()

	log.Printf("[TRACKER] ride %d cancelled", id)
	t.persist(id)
	t.render()
	t.notifier.NotifyRideCancelled(ctx, snapshot)

	return result, nil
}

// RelaunchRide creates a replacement for a frozen or cancelled ride with the
// same addresses, note and declared fare. The old ride stays as it was apart
// from the link to its replacement.
func (t *Tracker) RelaunchRide(ctx context.Context, id int64) (*CreateRideResult, error) {
	if id <= 0 {
		return nil, ErrInvalidRideID
	}

	t.mu.Lock()
	tr, ok := t.tracked[id]
	switch {
	case !ok:
		t.mu.Unlock()
		return nil, ErrRideNotTracked
	case !tr.ride.State.Relaunchable():
		t.mu.Unlock()
		return nil, ErrRideNotRelaunchable
	case tr.ride.Relaunching:
		t.mu.Unlock()
		return nil, ErrRelaunchInProgress
	}
	tr.ride.Relaunching = true
	old := tr.ride
	t.mu.Unlock()
	t.render()

	ride, raw, err := t.launch(ctx, CreateRideRequest{
		Origin:      old.Origin,
		Destination: old.Destination,
		Note:        old.Note,
		Fare:        old.DeclaredFare,
	}, id)

	t.mu.Lock()
	cur, still := t.tracked[id]
	if still && cur == tr {
		cur.ride.Relaunching = false
		if err == nil {
			cur.ride.RelaunchedTo = ride.ID
			cur.ride.UpdatedAt = t.now()
		}
	}
	t.mu.Unlock()

	if err != nil {
		t.render()
		return nil, err
	}

	log.Printf("[TRACKER] ride %d relaunched as %d", id, ride.ID)
	t.persist(id)
	t.render()
	t.notifier.NotifyRideRelaunched(ctx, old, ride)

	return &CreateRideResult{Ride: ride, Result: raw}, nil
}

// RemoveRide stops tracking a ride and drops it from the persisted list.
func (t *Tracker) RemoveRide(ctx context.Context, id int64) error {
	t.mu.Lock()
	tr, ok := t.tracked[id]
	if !ok {
		t.mu.Unlock()
		return ErrRideNotTracked
	}
	t.stopPolling(tr)
	delete(t.tracked, id)
	t.mu.Unlock()

	t.forget(ctx, id)
	if t.records != nil {
		if err := t.records.InvalidateRecord(context.WithoutCancel(ctx), id); err != nil {
			log.Printf("[TRACKER] failed to drop cached record of ride %d: %v", id, err)
		}
	}
	t.render()
	return nil
}

// Ride returns a copy of one tracked ride.
func (t *Tracker) Ride(id int64) (domain.Ride, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.tracked[id]
	if !ok {
		return domain.Ride{}, false
	}
	return tr.ride, true
}

// Rides returns copies of all tracked rides, most recently created first.
func (t *Tracker) Rides() []domain.Ride {
	t.mu.Lock()
	rides := make([]domain.Ride, 0, len(t.tracked))
	for _, tr := range t.tracked {
		rides = append(rides, tr.ride)
	}
	t.mu.Unlock()

	sort.Slice(rides, func(i, j int) bool {
		if rides[i].CreatedAt.Equal(rides[j].CreatedAt) {
			return rides[i].ID > rides[j].ID
		}
		return rides[i].CreatedAt.After(rides[j].CreatedAt)
	})
	return rides
}

// Record returns the final record of a ride, from cache when available.
func (t *Tracker) Record(ctx context.Context, id int64) (any, error) {
	if id <= 0 {
		return nil, ErrInvalidRideID
	}

	if t.records != nil {
		data, err := t.records.GetRecord(ctx, id)
		if err != nil {
			log.Printf("[TRACKER] record cache read for ride %d failed: %v", id, err)
		} else if data != nil {
			if record, err := extract.Decode(data); err == nil {
				return record, nil
			}
		}
	}

	return t.api.QueryRecord(ctx, id)
}

// Restore reloads persisted rides. Pollable rides resume polling; the rest
// stay visible until removed.
func (t *Tracker) Restore(ctx context.Context) error {
	if t.rides == nil {
		return nil
	}

	saved, err := t.rides.ListRecent(ctx, t.opts.HistoryLimit)
	if err != nil {
		return err
	}

	restored := 0
	for _, ride := range saved {
		if ride.State == domain.RideStateFinished || ride.Origin == "" || ride.Destination == "" {
			continue
		}
		if err := t.Track(*ride); err != nil {
			continue
		}
		restored++
	}
	log.Printf("[TRACKER] restored %d rides", restored)
	return nil
}

// Close stops every poll loop and waits for in-flight ticks to return.
func (t *Tracker) Close() {
	t.cancel()
	t.wg.Wait()
}

func (t *Tracker) sideEffectContext(txn *newrelic.Transaction) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(t.ctx, t.opts.NotifyTimeout)
	return newrelic.NewContext(ctx, txn), cancel
}

// persist writes the current state of a tracked ride. Writes are serialized
// so an older snapshot can never overwrite a newer one.
func (t *Tracker) persist(id int64) {
	if t.rides == nil {
		return
	}

	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	t.mu.Lock()
	tr, ok := t.tracked[id]
	var ride domain.Ride
	if ok {
		ride = tr.ride
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(t.ctx, t.opts.NotifyTimeout)
	defer cancel()

	if err := t.rides.Save(ctx, &ride); err != nil {
		log.Printf("[TRACKER] failed to persist ride %d: %v", id, err)
		return
	}
	if err := t.rides.Trim(ctx, t.opts.HistoryLimit); err != nil {
		log.Printf("[TRACKER] failed to trim ride history: %v", err)
	}
}

func (t *Tracker) forget(ctx context.Context, id int64) {
	if t.rides == nil {
		return
	}

	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	if err := t.rides.Delete(context.WithoutCancel(ctx), id); err != nil {
		log.Printf("[TRACKER] failed to delete ride %d: %v", id, err)
	}
}

// render pushes a fresh snapshot to the renderer. The snapshot is taken
// under renderMu so renders are delivered in the order they were taken.
func (t *Tracker) render() {
	if t.renderer == nil {
		return
	}

	t.renderMu.Lock()
	defer t.renderMu.Unlock()
	t.renderer.RenderRides(t.Rides())
}
