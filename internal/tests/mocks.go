package tests

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ridewatch/internal/dispatch"
	"ridewatch/internal/domain"
	"ridewatch/internal/extract"
	"ridewatch/internal/service"
)

// ──────────────────────────────────────────────
// HELPERS
// ──────────────────────────────────────────────

// mustDecode parses a JSON literal the same way the dispatch client does.
func mustDecode(t *testing.T, s string) any {
	t.Helper()
	v, err := extract.Decode([]byte(s))
	if err != nil {
		t.Fatalf("decode %s: %v", s, err)
	}
	return v
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ──────────────────────────────────────────────
// MOCK RIDE API
// ──────────────────────────────────────────────

// MockRideAPI is a scripted implementation of service.RideAPI. Stage answers
// are consumed in order per ride; the last one repeats forever.
type MockRideAPI struct {
	mu            sync.Mutex
	createResults []any
	stages        map[int64][]any
	statuses      map[int64]any
	records       map[int64]any
	lastCreate    dispatch.CreateRideInput

	// StageGate, when set, blocks every stage query until it is closed.
	StageGate chan struct{}

	// Counters for verification
	CreateCallCount int32
	StageCallCount  int32
	StatusCallCount int32
	RecordCallCount int32
	CancelCallCount int32

	// Error injection
	CreateError error
	StageError  error
	RecordError error
	CancelError error
}

// Ensure MockRideAPI implements service.RideAPI.
var _ service.RideAPI = (*MockRideAPI)(nil)

// NewMockRideAPI creates a new mock ride API.
func NewMockRideAPI() *MockRideAPI {
	return &MockRideAPI{
		stages:   make(map[int64][]any),
		statuses: make(map[int64]any),
		records:  make(map[int64]any),
	}
}

// QueueCreate appends the answer of the next create call.
func (m *MockRideAPI) QueueCreate(result any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createResults = append(m.createResults, result)
}

// SetStages scripts the stage answers of a ride.
func (m *MockRideAPI) SetStages(rideID int64, stages ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[rideID] = stages
}

// SetStatus scripts the general status answer of a ride.
func (m *MockRideAPI) SetStatus(rideID int64, status any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[rideID] = status
}

// SetRecord scripts the final record of a ride.
func (m *MockRideAPI) SetRecord(rideID int64, record any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rideID] = record
}

// SetStageError changes the injected stage error while polls are running.
func (m *MockRideAPI) SetStageError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StageError = err
}

// LastCreate returns the input of the latest create call.
func (m *MockRideAPI) LastCreate() dispatch.CreateRideInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCreate
}

func (m *MockRideAPI) CreateRide(ctx context.Context, in dispatch.CreateRideInput) (any, error) {
	atomic.AddInt32(&m.CreateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCreate = in
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	if len(m.createResults) == 0 {
		return extract.NewObject(), nil
	}
	result := m.createResults[0]
	m.createResults = m.createResults[1:]
	return result, nil
}

func (m *MockRideAPI) QueryStage(ctx context.Context, rideID int64) (any, error) {
	atomic.AddInt32(&m.StageCallCount, 1)
	if m.StageGate != nil {
		<-m.StageGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StageError != nil {
		return nil, m.StageError
	}
	stages := m.stages[rideID]
	if len(stages) == 0 {
		return extract.NewObject(), nil
	}
	stage := stages[0]
	if len(stages) > 1 {
		m.stages[rideID] = stages[1:]
	}
	return stage, nil
}

func (m *MockRideAPI) QueryStatus(ctx context.Context, rideID int64) (any, error) {
	atomic.AddInt32(&m.StatusCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if status, ok := m.statuses[rideID]; ok {
		return status, nil
	}
	return extract.NewObject(), nil
}

func (m *MockRideAPI) QueryRecord(ctx context.Context, rideID int64) (any, error) {
	atomic.AddInt32(&m.RecordCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordError != nil {
		return nil, m.RecordError
	}
	if record, ok := m.records[rideID]; ok {
		return record, nil
	}
	return extract.NewObject(), nil
}

func (m *MockRideAPI) Cancel(ctx context.Context, rideID int64) (any, error) {
	atomic.AddInt32(&m.CancelCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CancelError != nil {
		return nil, m.CancelError
	}
	result := extract.NewObject()
	result.Set("ok", true)
	return result, nil
}

// ──────────────────────────────────────────────
// MOCK NOTIFIER
// ──────────────────────────────────────────────

// MockNotifier records every notification the tracker asks for.
type MockNotifier struct {
	mu         sync.Mutex
	accepted   []domain.Ride
	finished   []domain.Ride
	frozen     []domain.Ride
	cancelled  []domain.Ride
	relaunched [][2]domain.Ride

	AlertCount   int32
	CreatedCount int32

	// Error injection
	AcceptError error
}

// Ensure MockNotifier implements service.Notifier.
var _ service.Notifier = (*MockNotifier)(nil)

// NewMockNotifier creates a new mock notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) PlayAlert(ctx context.Context, ride domain.Ride) {
	atomic.AddInt32(&m.AlertCount, 1)
}

func (m *MockNotifier) NotifyRideCreated(ctx context.Context, ride domain.Ride) {
	atomic.AddInt32(&m.CreatedCount, 1)
}

func (m *MockNotifier) NotifyDriverAccepted(ctx context.Context, ride domain.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepted = append(m.accepted, ride)
	return m.AcceptError
}

func (m *MockNotifier) NotifyRideFrozen(ctx context.Context, ride domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = append(m.frozen, ride)
}

func (m *MockNotifier) NotifyRideFinished(ctx context.Context, ride domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, ride)
}

func (m *MockNotifier) NotifyRideCancelled(ctx context.Context, ride domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, ride)
}

func (m *MockNotifier) NotifyRideRelaunched(ctx context.Context, from domain.Ride, to domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relaunched = append(m.relaunched, [2]domain.Ride{from, to})
}

// Accepted returns the rides an acceptance push was requested for.
func (m *MockNotifier) Accepted() []domain.Ride {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Ride(nil), m.accepted...)
}

// Finished returns the rides reported finished.
func (m *MockNotifier) Finished() []domain.Ride {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Ride(nil), m.finished...)
}

// Frozen returns the rides reported frozen.
func (m *MockNotifier) Frozen() []domain.Ride {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Ride(nil), m.frozen...)
}

// Cancelled returns the rides reported cancelled.
func (m *MockNotifier) Cancelled() []domain.Ride {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Ride(nil), m.cancelled...)
}

// Relaunched returns the (from, to) pairs reported relaunched.
func (m *MockNotifier) Relaunched() [][2]domain.Ride {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][2]domain.Ride(nil), m.relaunched...)
}

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

// MockRideRepository is a mock implementation of RideRepository.
type MockRideRepository struct {
	mu    sync.RWMutex
	rides map[int64]*domain.Ride

	// Counters for verification
	SaveCallCount   int32
	DeleteCallCount int32

	// Error injection
	SaveError error
	ListError error
}

// NewMockRideRepository creates a new mock ride repository.
func NewMockRideRepository() *MockRideRepository {
	return &MockRideRepository{
		rides: make(map[int64]*domain.Ride),
	}
}

// AddRide adds a ride to the mock repository.
func (m *MockRideRepository) AddRide(ride *domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[ride.ID] = ride
}

func (m *MockRideRepository) Save(ctx context.Context, ride *domain.Ride) error {
	atomic.AddInt32(&m.SaveCallCount, 1)
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *ride
	m.rides[ride.ID] = &copy
	return nil
}

func (m *MockRideRepository) Delete(ctx context.Context, id int64) error {
	atomic.AddInt32(&m.DeleteCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rides, id)
	return nil
}

func (m *MockRideRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Ride, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Ride, 0, len(m.rides))
	for _, r := range m.rides {
		copy := *r
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockRideRepository) Trim(ctx context.Context, keep int) error {
	return nil
}

// GetRide returns the stored ride by ID (for test assertions).
func (m *MockRideRepository) GetRide(id int64) *domain.Ride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rides[id]
}

// ──────────────────────────────────────────────
// MOCK RENDERER
// ──────────────────────────────────────────────

// MockRenderer keeps every snapshot the tracker renders.
type MockRenderer struct {
	mu        sync.Mutex
	snapshots [][]domain.Ride
	slowFor   int64
	delay     time.Duration
}

// SlowDown delays every snapshot containing rideID by delay before it is
// recorded, like a dashboard busy encoding a large list.
func (m *MockRenderer) SlowDown(rideID int64, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slowFor = rideID
	m.delay = delay
}

// RenderRides records a snapshot.
func (m *MockRenderer) RenderRides(rides []domain.Ride) {
	m.mu.Lock()
	slowFor, delay := m.slowFor, m.delay
	m.mu.Unlock()

	if delay > 0 {
		for _, r := range rides {
			if r.ID == slowFor {
				time.Sleep(delay)
				break
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, rides)
}

// Last returns the most recently recorded snapshot.
func (m *MockRenderer) Last() []domain.Ride {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snapshots) == 0 {
		return nil
	}
	return m.snapshots[len(m.snapshots)-1]
}

// SawState reports whether any snapshot showed the ride in the given state.
func (m *MockRenderer) SawState(id int64, state domain.RideState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, snapshot := range m.snapshots {
		for _, r := range snapshot {
			if r.ID == id && r.State == state {
				return true
			}
		}
	}
	return false
}

// ──────────────────────────────────────────────
// MOCK RECORD CACHE
// ──────────────────────────────────────────────

// MockRecordCache is an in-memory service.RecordCache.
type MockRecordCache struct {
	mu      sync.Mutex
	records map[int64][]byte
}

// NewMockRecordCache creates a new mock record cache.
func NewMockRecordCache() *MockRecordCache {
	return &MockRecordCache{records: make(map[int64][]byte)}
}

func (m *MockRecordCache) GetRecord(ctx context.Context, rideID int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[rideID], nil
}

func (m *MockRecordCache) SetRecord(ctx context.Context, rideID int64, record []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rideID] = record
	return nil
}

func (m *MockRecordCache) InvalidateRecord(ctx context.Context, rideID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, rideID)
	return nil
}

// Has reports whether a record is cached for the ride.
func (m *MockRecordCache) Has(rideID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[rideID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK PUSH
// ──────────────────────────────────────────────

// MockSubscriptionStore is an in-memory service.SubscriptionStore.
type MockSubscriptionStore struct {
	mu   sync.Mutex
	subs map[string]domain.PushSubscription

	DeleteCallCount int32
}

// NewMockSubscriptionStore creates a new mock subscription store.
func NewMockSubscriptionStore() *MockSubscriptionStore {
	return &MockSubscriptionStore{subs: make(map[string]domain.PushSubscription)}
}

func (m *MockSubscriptionStore) Save(ctx context.Context, sub domain.PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.Endpoint] = sub
	return nil
}

func (m *MockSubscriptionStore) List(ctx context.Context) ([]domain.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.PushSubscription, 0, len(m.subs))
	for _, s := range m.subs {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Endpoint < result[j].Endpoint })
	return result, nil
}

func (m *MockSubscriptionStore) Delete(ctx context.Context, endpoint string) error {
	atomic.AddInt32(&m.DeleteCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, endpoint)
	return nil
}

// Count returns the number of stored subscriptions.
func (m *MockSubscriptionStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// MockPushSender records payloads and fails per endpoint on demand.
type MockPushSender struct {
	mu       sync.Mutex
	sent     map[string][]byte
	failures map[string]error
}

// NewMockPushSender creates a new mock push sender.
func NewMockPushSender() *MockPushSender {
	return &MockPushSender{
		sent:     make(map[string][]byte),
		failures: make(map[string]error),
	}
}

// FailFor makes delivery to endpoint return err.
func (m *MockPushSender) FailFor(endpoint string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[endpoint] = err
}

func (m *MockPushSender) Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failures[sub.Endpoint]; ok {
		return err
	}
	m.sent[sub.Endpoint] = payload
	return nil
}

// Payload returns what was delivered to endpoint.
func (m *MockPushSender) Payload(endpoint string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.sent[endpoint]
	return p, ok
}

// MockEventPublisher records published events by routing key.
type MockEventPublisher struct {
	mu     sync.Mutex
	events map[string][][]byte
}

// NewMockEventPublisher creates a new mock event publisher.
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{events: make(map[string][][]byte)}
}

func (m *MockEventPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[routingKey] = append(m.events[routingKey], body)
	return nil
}

// Events returns the bodies published with routingKey.
func (m *MockEventPublisher) Events(routingKey string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[routingKey]
}

// MockAlertSink counts audible cues.
type MockAlertSink struct {
	Count int32
	Panic bool
}

func (m *MockAlertSink) Alert(rideID int64) {
	atomic.AddInt32(&m.Count, 1)
	if m.Panic {
		panic("audio device unavailable")
	}
}
