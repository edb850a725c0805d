package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
	"github.com/ecodeli/delivery-tracking-system/pkg/logger"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

/* ======================= fakes ======================= */

type fakeLedger struct {
	deliveries map[uuid.UUID]*models.Delivery
	appended   []models.PositionSample
	window     []models.PositionSample
}

func newLedger(ds ...*models.Delivery) *fakeLedger {
	l := &fakeLedger{deliveries: make(map[uuid.UUID]*models.Delivery)}
	for _, d := range ds {
		l.deliveries[d.ID] = d
	}
	return l
}

func (l *fakeLedger) Get(_ context.Context, id uuid.UUID) (*models.Delivery, error) {
	d, ok := l.deliveries[id]
	if !ok {
		return nil, types.ErrDeliveryNotFound
	}
	cp := *d
	return &cp, nil
}

func (l *fakeLedger) AppendPositionSample(_ context.Context, sample models.PositionSample, _ int) error {
	l.appended = append(l.appended, sample)
	return nil
}

func (l *fakeLedger) RecentPositions(_ context.Context, _ uuid.UUID, _ int) ([]models.PositionSample, error) {
	return l.window, nil
}

type fakeMachine struct {
	ledger *fakeLedger
	err    error
	calls  int
}

func (m *fakeMachine) Transition(_ context.Context, deliveryID uuid.UUID, to types.DeliveryStatus, _ *models.User, _ string) (*models.Delivery, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	d := m.ledger.deliveries[deliveryID]
	d.Status = to
	cp := *d
	return &cp, nil
}

type fakeHub struct {
	sent map[uuid.UUID][]models.TrackingMessage
	dead map[uuid.UUID]bool
}

func newHub() *fakeHub {
	return &fakeHub{
		sent: make(map[uuid.UUID][]models.TrackingMessage),
		dead: make(map[uuid.UUID]bool),
	}
}

func (h *fakeHub) SendTo(connID uuid.UUID, msg any) error {
	if h.dead[connID] {
		return errors.New("send failed: connection closed")
	}
	h.sent[connID] = append(h.sent[connID], msg.(models.TrackingMessage))
	return nil
}

func (h *fakeHub) events(connID uuid.UUID, event types.TrackingEvent) []models.TrackingMessage {
	var out []models.TrackingMessage
	for _, msg := range h.sent[connID] {
		if msg.EventType == event {
			out = append(out, msg)
		}
	}
	return out
}

/* ======================= helpers ======================= */

type fixture struct {
	ch      *Channel
	ledger  *fakeLedger
	machine *fakeMachine
	hub     *fakeHub

	delivery *models.Delivery
	courier  *models.User
}

func newFixture(t *testing.T, status types.DeliveryStatus) *fixture {
	t.Helper()

	courierID := uuid.MustNew()
	d := &models.Delivery{
		ID:           uuid.MustNew(),
		TrackingCode: "ECO-2024-0042",
		Status:       status,
		ClientID:     uuid.MustNew(),
		CourierID:    &courierID,
		PaymentID:    uuid.MustNew(),
		Dropoff:      models.Location{Latitude: 0, Longitude: 0},
	}

	ledger := newLedger(d)
	machine := &fakeMachine{ledger: ledger}
	hub := newHub()
	log := logger.InitLogger("test", logger.LevelError)

	return &fixture{
		ch:       NewChannel(ledger, machine, hub, Config{}, log),
		ledger:   ledger,
		machine:  machine,
		hub:      hub,
		delivery: d,
		courier:  &models.User{ID: courierID, Role: types.RoleCourier},
	}
}

func (f *fixture) observe(t *testing.T) uuid.UUID {
	t.Helper()
	connID := uuid.MustNew()
	if err := f.ch.Subscribe(context.Background(), connID, f.delivery.ID, types.RoleObserver); err != nil {
		t.Fatalf("subscribe observer: %v", err)
	}
	return connID
}

// publisherConn claims the delivery's courier publisher slot and returns the
// connection id positions must be published on.
func (f *fixture) publisherConn(t *testing.T) uuid.UUID {
	t.Helper()
	connID := uuid.MustNew()
	if err := f.ch.Subscribe(context.Background(), connID, f.delivery.ID, types.RoleCourierPublisher); err != nil {
		t.Fatalf("subscribe publisher: %v", err)
	}
	return connID
}

// sampleAt places the courier latDeg north of the dropoff with the given
// explicit speed reading.
func (f *fixture) sampleAt(latDeg, speedKmh float64) models.PositionSample {
	return models.PositionSample{
		DeliveryID: f.delivery.ID,
		Latitude:   latDeg,
		Longitude:  0,
		Timestamp:  time.Now(),
		SpeedKmh:   speedKmh,
	}
}

/* ======================= subscription tests ======================= */

func TestSubscribe_Idempotent(t *testing.T) {
	f := newFixture(t, types.StatusInTransit)
	connID := uuid.MustNew()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := f.ch.Subscribe(ctx, connID, f.delivery.ID, types.RoleObserver); err != nil {
			t.Fatalf("subscribe #%d: %v", i+1, err)
		}
	}
	if !f.ch.IsSubscribed(connID, f.delivery.ID) {
		t.Fatal("connection should be subscribed")
	}

	subs := f.ch.reg.subscribersOf(f.delivery.ID)
	if len(subs) != 1 {
		t.Fatalf("registry holds %d entries for one connection, want 1", len(subs))
	}
}

func TestSubscribe_SinglePublisherPerDelivery(t *testing.T) {
	f := newFixture(t, types.StatusInTransit)
	ctx := context.Background()

	first := uuid.MustNew()
	if err := f.ch.Subscribe(ctx, first, f.delivery.ID, types.RoleCourierPublisher); err != nil {
		t.Fatalf("first publisher: %v", err)
	}
	// Same connection again is fine.
	if err := f.ch.Subscribe(ctx, first, f.delivery.ID, types.RoleCourierPublisher); err != nil {
		t.Fatalf("re-subscribe same publisher: %v", err)
	}

	second := uuid.MustNew()
	err := f.ch.Subscribe(ctx, second, f.delivery.ID, types.RoleCourierPublisher)
	if !errors.Is(err, types.ErrPublisherConflict) {
		t.Fatalf("second publisher: got %v, want ErrPublisherConflict", err)
	}

	// The slot frees up when the first connection goes away.
	f.ch.DropConnection(first)
	if err := f.ch.Subscribe(ctx, second, f.delivery.ID, types.RoleCourierPublisher); err != nil {
		t.Fatalf("publisher after slot freed: %v", err)
	}
}

func TestSubscribe_UnknownDelivery(t *testing.T) {
	f := newFixture(t, types.StatusInTransit)

	err := f.ch.Subscribe(context.Background(), uuid.MustNew(), uuid.MustNew(), types.RoleObserver)
	if !errors.Is(err, types.ErrDeliveryNotFound) {
		t.Fatalf("got %v, want ErrDeliveryNotFound", err)
	}
}

func TestUnsubscribe_UnknownPairIsNoop(t *testing.T) {
	f := newFixture(t, types.StatusInTransit)
	f.ch.Unsubscribe(uuid.MustNew(), f.delivery.ID)
}

func TestDropConnection_TearsDownEverything(t *testing.T) {
	f := newFixture(t, types.StatusInTransit)
	ctx := context.Background()

	other := &models.Delivery{
		ID:       uuid.MustNew(),
		Status:   types.StatusAccepted,
		ClientID: uuid.MustNew(),
	}
	f.ledger.deliveries[other.ID] = other

	connID := uuid.MustNew()
	if err := f.ch.Subscribe(ctx, connID, f.delivery.ID, types.RoleObserver); err != nil {
		t.Fatal(err)
	}
	if err := f.ch.Subscribe(ctx, connID, other.ID, types.RoleObserver); err != nil {
		t.Fatal(err)
	}

	f.ch.DropConnection(connID)

	if f.ch.IsSubscribed(connID, f.delivery.ID) || f.ch.IsSubscribed(connID, other.ID) {
		t.Fatal("drop must remove every subscription held by the connection")
	}
}

/* ======================= position tests ======================= */

func TestPublishPosition_FansOutLocation(t *testing.T) {
	f := newFixture(t, types.StatusInTransit)
	obs := f.observe(t)
	pub := f.publisherConn(t)

	sample := f.sampleAt(0.5, 45)
	if err := f.ch.PublishPosition(context.Background(), pub, f.courier, sample); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(f.ledger.appended) != 1 {
		t.Fatalf("sample not persisted, appended = %d", len(f.ledger.appended))
	}

	locs := f.hub.events(obs, types.EventLocationUpdate)
	if len(locs) != 1 {
		t.Fatalf("LOCATION_UPDATE count = %d, want 1", len(locs))
	}
	upd := locs[0].Data.(models.LocationUpdate)
	if upd.Coordinates.Latitude != 0.5 || upd.SpeedKmh != 45 {
		t.Fatalf("unexpected payload: %+v", upd)
	}
}

func TestPublishPosition_Authorization(t *testing.T) {
	f := newFixture(t, types.StatusInTransit)
	pub := f.publisherConn(t)

	stranger := &models.User{ID: uuid.MustNew(), Role: types.RoleCourier}
	err := f.ch.PublishPosition(context.Background(), pub, stranger, f.sampleAt(0.5, 45))
	if !errors.Is(err, types.ErrNotAuthorized) {
		t.Fatalf("non-assigned courier: got %v, want ErrNotAuthorized", err)
	}

	client := &models.User{ID: f.delivery.ClientID, Role: types.RoleClient}
	err = f.ch.PublishPosition(context.Background(), pub, client, f.sampleAt(0.5, 45))
	if !errors.Is(err, types.ErrNotAuthorized) {
		t.Fatalf("client publishing: got %v, want ErrNotAuthorized", err)
	}
}

func TestPublishPosition_RequiresPublisherConnection(t *testing.T) {
	f := newFixture(t, types.StatusInTransit)
	ctx := context.Background()

	// No publisher slot claimed yet: even the assigned courier is rejected.
	err := f.ch.PublishPosition(ctx, uuid.MustNew(), f.courier, f.sampleAt(0.5, 45))
	if !errors.Is(err, types.ErrNotPublisher) {
		t.Fatalf("unregistered connection: got %v, want ErrNotPublisher", err)
	}

	pub := f.publisherConn(t)
	if err := f.ch.PublishPosition(ctx, pub, f.courier, f.sampleAt(0.5, 45)); err != nil {
		t.Fatalf("registered publisher: %v", err)
	}

	// A second socket of the same courier cannot interleave positions while
	// the first one holds the slot.
	second := uuid.MustNew()
	err = f.ch.PublishPosition(ctx, second, f.courier, f.sampleAt(0.6, 45))
	if !errors.Is(err, types.ErrNotPublisher) {
		t.Fatalf("second connection: got %v, want ErrNotPublisher", err)
	}
	if len(f.ledger.appended) != 1 {
		t.Fatalf("appended = %d, want only the registered publisher's sample", len(f.ledger.appended))
	}
}

func TestPublishPosition_RejectsBadInput(t *testing.T) {
	f := newFixture(t, types.StatusInTransit)
	pub := f.publisherConn(t)
	ctx := context.Background()

	bad := f.sampleAt(91, 45)
	if err := f.ch.PublishPosition(ctx, pub, f.courier, bad); !errors.Is(err, types.ErrInvalidCoordinates) {
		t.Fatalf("latitude 91: got %v, want ErrInvalidCoordinates", err)
	}

	f.delivery.Status = types.StatusDelivered
	if err := f.ch.PublishPosition(ctx, pub, f.courier, f.sampleAt(0.5, 45)); !errors.Is(err, types.ErrDeliveryImmutable) {
		t.Fatalf("terminal delivery: got %v, want ErrDeliveryImmutable", err)
	}
}

func TestPublishPosition_NoObserversSucceeds(t *testing.T) {
	f := newFixture(t, types.StatusInTransit)
	pub := f.publisherConn(t)

	if err := f.ch.PublishPosition(context.Background(), pub, f.courier, f.sampleAt(0.5, 45)); err != nil {
		t.Fatalf("publish with zero observers: %v", err)
	}
}

func TestPublishPosition_PrunesDeadSubscribers(t *testing.T) {
	f := newFixture(t, types.StatusInTransit)
	obs := f.observe(t)
	pub := f.publisherConn(t)
	f.hub.dead[obs] = true

	if err := f.ch.PublishPosition(context.Background(), pub, f.courier, f.sampleAt(0.5, 45)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if f.ch.IsSubscribed(obs, f.delivery.ID) {
		t.Fatal("dead connection should have been unsubscribed")
	}
}

/* ======================= ETA tests ======================= */

func TestPublishPosition_ETADamping(t *testing.T) {
	f := newFixture(t, types.StatusInTransit)
	obs := f.observe(t)
	pub := f.publisherConn(t)
	ctx := context.Background()

	// ~10 km from dropoff at 60 km/h: first ETA always publishes.
	f.ledger.window = []models.PositionSample{f.sampleAt(0.09, 60), f.sampleAt(0.09, 60)}
	if err := f.ch.PublishPosition(ctx, pub, f.courier, f.sampleAt(0.09, 60)); err != nil {
		t.Fatal(err)
	}
	etas := f.hub.events(obs, types.EventETAUpdate)
	if len(etas) != 1 {
		t.Fatalf("first position: ETA_UPDATE count = %d, want 1", len(etas))
	}
	first := etas[0].Data.(models.ETAUpdate)
	if first.EstimatedMinutes != 11 {
		t.Fatalf("ETA = %d min, want 11", first.EstimatedMinutes)
	}
	if first.Traffic != types.TrafficLight {
		t.Fatalf("traffic = %s, want LIGHT at 60 km/h", first.Traffic)
	}

	// Same place, same speed: delta is zero, damped.
	if err := f.ch.PublishPosition(ctx, pub, f.courier, f.sampleAt(0.09, 60)); err != nil {
		t.Fatal(err)
	}
	if n := len(f.hub.events(obs, types.EventETAUpdate)); n != 1 {
		t.Fatalf("unchanged ETA republished, count = %d", n)
	}

	// Speed halves: ETA roughly doubles, well past the threshold.
	f.ledger.window = []models.PositionSample{f.sampleAt(0.09, 30), f.sampleAt(0.09, 30)}
	if err := f.ch.PublishPosition(ctx, pub, f.courier, f.sampleAt(0.09, 30)); err != nil {
		t.Fatal(err)
	}
	etas = f.hub.events(obs, types.EventETAUpdate)
	if len(etas) != 2 {
		t.Fatalf("large ETA shift not republished, count = %d", len(etas))
	}
	second := etas[1].Data.(models.ETAUpdate)
	if second.EstimatedMinutes != 21 {
		t.Fatalf("ETA = %d min, want 21", second.EstimatedMinutes)
	}
}

/* ======================= checkpoint tests ======================= */

func TestPublishPosition_NearDropoffCheckpoint(t *testing.T) {
	f := newFixture(t, types.StatusInTransit)
	obs := f.observe(t)
	pub := f.publisherConn(t)
	ctx := context.Background()

	// ~222 m north of the dropoff, inside the 300 m radius.
	near := f.sampleAt(0.002, 20)
	if err := f.ch.PublishPosition(ctx, pub, f.courier, near); err != nil {
		t.Fatal(err)
	}

	cps := f.hub.events(obs, types.EventCheckpointReached)
	if len(cps) != 1 {
		t.Fatalf("CHECKPOINT_REACHED count = %d, want 1", len(cps))
	}
	if name := cps[0].Data.(models.CheckpointReached).CheckpointName; name != "near_dropoff" {
		t.Fatalf("checkpoint name = %q", name)
	}

	// Lingering in the zone does not re-fire.
	if err := f.ch.PublishPosition(ctx, pub, f.courier, near); err != nil {
		t.Fatal(err)
	}
	if n := len(f.hub.events(obs, types.EventCheckpointReached)); n != 1 {
		t.Fatalf("checkpoint fired again, count = %d", n)
	}
}

func TestPublishPosition_CheckpointOnlyInTransit(t *testing.T) {
	f := newFixture(t, types.StatusPickedUp)
	obs := f.observe(t)
	pub := f.publisherConn(t)

	if err := f.ch.PublishPosition(context.Background(), pub, f.courier, f.sampleAt(0.002, 20)); err != nil {
		t.Fatal(err)
	}
	if n := len(f.hub.events(obs, types.EventCheckpointReached)); n != 0 {
		t.Fatalf("checkpoint fired before IN_TRANSIT, count = %d", n)
	}
}

/* ======================= status tests ======================= */

func TestPublishStatus_FansOut(t *testing.T) {
	f := newFixture(t, types.StatusPickedUp)
	obs := f.observe(t)

	err := f.ch.PublishStatus(context.Background(), f.courier, f.delivery.ID, types.StatusInTransit, "")
	if err != nil {
		t.Fatalf("publish status: %v", err)
	}
	if f.machine.calls != 1 {
		t.Fatalf("state machine calls = %d, want 1", f.machine.calls)
	}

	sts := f.hub.events(obs, types.EventStatusUpdate)
	if len(sts) != 1 {
		t.Fatalf("STATUS_UPDATE count = %d, want 1", len(sts))
	}
	upd := sts[0].Data.(models.StatusUpdate)
	if upd.FromStatus != types.StatusPickedUp || upd.ToStatus != types.StatusInTransit {
		t.Fatalf("unexpected payload: %+v", upd)
	}

	// IN_TRANSIT is a checkpoint status.
	cps := f.hub.events(obs, types.EventCheckpointReached)
	if len(cps) != 1 || cps[0].Data.(models.CheckpointReached).CheckpointName != "IN_TRANSIT" {
		t.Fatalf("checkpoint events = %+v", cps)
	}
}

func TestPublishStatus_MachineErrorNotFannedOut(t *testing.T) {
	f := newFixture(t, types.StatusPending)
	obs := f.observe(t)
	f.machine.err = types.ErrInvalidTransition

	err := f.ch.PublishStatus(context.Background(), f.courier, f.delivery.ID, types.StatusDelivered, "")
	if !errors.Is(err, types.ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
	if len(f.hub.sent[obs]) != 0 {
		t.Fatalf("rejected transition must not be fanned out, got %d events", len(f.hub.sent[obs]))
	}
}

/* ======================= issue tests ======================= */

func TestIssueRoundTrip(t *testing.T) {
	f := newFixture(t, types.StatusInTransit)
	obs := f.observe(t)
	ctx := context.Background()

	if err := f.ch.ReportIssue(ctx, f.courier, f.delivery.ID, "address unreachable"); err != nil {
		t.Fatalf("report: %v", err)
	}
	if err := f.ch.ResolveIssue(ctx, f.courier, f.delivery.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	reported := f.hub.events(obs, types.EventIssueReported)
	if len(reported) != 1 || reported[0].Data.(models.IssueReported).Description != "address unreachable" {
		t.Fatalf("issue events = %+v", reported)
	}
	if n := len(f.hub.events(obs, types.EventIssueResolved)); n != 1 {
		t.Fatalf("ISSUE_RESOLVED count = %d, want 1", n)
	}

	stranger := &models.User{ID: uuid.MustNew(), Role: types.RoleCourier}
	if err := f.ch.ReportIssue(ctx, stranger, f.delivery.ID, "x"); !errors.Is(err, types.ErrNotAuthorized) {
		t.Fatalf("stranger reporting: got %v, want ErrNotAuthorized", err)
	}
}
