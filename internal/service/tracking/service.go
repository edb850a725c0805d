package tracking

import (
	"context"
	"fmt"
	"sync"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
	"github.com/ecodeli/delivery-tracking-system/internal/service/geo"
	"github.com/ecodeli/delivery-tracking-system/pkg/logger"
	wrap "github.com/ecodeli/delivery-tracking-system/pkg/logger/wrapper"
	"github.com/ecodeli/delivery-tracking-system/pkg/metrics"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

const serviceName = "tracking-service"

const (
	// DefaultWindowSize is how many recent position samples are retained per
	// delivery, enough for a trailing average speed.
	DefaultWindowSize = 20

	// DefaultETAThresholdMinutes damps ETA_UPDATE noise: a recomputed ETA is
	// published only when it moved by more than this many minutes.
	DefaultETAThresholdMinutes = 1

	// DefaultCheckpointRadiusM is the arrival proximity: a position within
	// this distance of the dropoff while IN_TRANSIT fires the near-dropoff
	// checkpoint.
	DefaultCheckpointRadiusM = 300.0
)

const checkpointNearDropoff = "near_dropoff"

// Config tunes the channel. Zero values fall back to the defaults above.
type Config struct {
	WindowSize          int
	ETAThresholdMinutes int
	CheckpointRadiusM   float64
}

func (c Config) withDefaults() Config {
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.ETAThresholdMinutes <= 0 {
		c.ETAThresholdMinutes = DefaultETAThresholdMinutes
	}
	if c.CheckpointRadiusM <= 0 {
		c.CheckpointRadiusM = DefaultCheckpointRadiusM
	}
	return c
}

// Channel is the real-time tracking fan-out. A courier connection publishes
// positions and statuses for its delivery; observer connections receive the
// event stream. Per-delivery event order follows from the single publisher;
// slow observers are isolated by the per-connection bounded queues behind
// Broadcaster.
type Channel struct {
	repo     Ledger
	statuses StatusMachine
	hub      Broadcaster
	reg      *registry
	cfg      Config
	log      logger.Logger

	mu sync.Mutex
	// last ETA published per delivery, for damping
	lastETA map[uuid.UUID]int
	// deliveries whose near-dropoff checkpoint already fired
	checkpointFired map[uuid.UUID]struct{}
}

func NewChannel(repo Ledger, statuses StatusMachine, hub Broadcaster, cfg Config, log logger.Logger) *Channel {
	return &Channel{
		repo:            repo,
		statuses:        statuses,
		hub:             hub,
		reg:             newRegistry(),
		cfg:             cfg.withDefaults(),
		log:             log,
		lastETA:         make(map[uuid.UUID]int),
		checkpointFired: make(map[uuid.UUID]struct{}),
	}
}

/* ======================= subscriptions ======================= */

// Subscribe attaches a connection to a delivery's event stream. Subscribing
// twice with the same pair is a no-op. Couriers subscribe as the publisher;
// at most one publisher per delivery is allowed.
func (c *Channel) Subscribe(ctx context.Context, connID, deliveryID uuid.UUID, role types.SubscriptionRole) error {
	ctx = wrap.WithAction(ctx, "tracking_subscribe")
	ctx = wrap.WithDeliveryID(ctx, deliveryID.String())

	if _, err := c.repo.Get(ctx, deliveryID); err != nil {
		return wrap.Error(ctx, err)
	}

	if err := c.reg.subscribe(connID, deliveryID, role); err != nil {
		return wrap.Error(ctx, err)
	}

	c.log.Debug(ctx, "subscribed",
		"connection_id", connID.String(),
		"role", string(role),
	)
	return nil
}

// Unsubscribe detaches one connection from one delivery. Unknown pairs are a
// no-op.
func (c *Channel) Unsubscribe(connID, deliveryID uuid.UUID) {
	c.reg.unsubscribe(connID, deliveryID)
}

// DropConnection tears down every subscription held by a lost connection.
// Called from the read-pump's defer, so it must never block or fail.
func (c *Channel) DropConnection(connID uuid.UUID) {
	deliveries := c.reg.dropConn(connID)
	if len(deliveries) == 0 {
		return
	}

	ctx := wrap.WithAction(context.Background(), "tracking_drop_connection")
	c.log.Debug(ctx, "connection dropped",
		"connection_id", connID.String(),
		"deliveries", len(deliveries),
	)
}

// IsSubscribed reports whether the connection currently watches the delivery.
func (c *Channel) IsSubscribed(connID, deliveryID uuid.UUID) bool {
	return c.reg.isSubscribed(connID, deliveryID)
}

/* ======================= publishing ======================= */

// PublishPosition ingests one courier GPS fix: persist it, fan out the
// location, recompute the ETA and fire the arrival checkpoint when the
// courier gets close to the dropoff. Only the connection holding the
// delivery's publisher slot may publish, so per-delivery position order is
// the order of one socket's read pump.
func (c *Channel) PublishPosition(ctx context.Context, connID uuid.UUID, actor *models.User, sample models.PositionSample) error {
	ctx = wrap.WithAction(ctx, "publish_position")
	ctx = wrap.WithDeliveryID(ctx, sample.DeliveryID.String())

	if !validCoordinates(sample.Latitude, sample.Longitude) {
		return wrap.Error(ctx, types.ErrInvalidCoordinates)
	}

	d, err := c.repo.Get(ctx, sample.DeliveryID)
	if err != nil {
		return wrap.Error(ctx, err)
	}

	if err := authorizePublisher(d, actor); err != nil {
		return wrap.Error(ctx, err)
	}
	if pub, ok := c.reg.publisherOf(d.ID); !ok || pub != connID {
		return wrap.Error(ctx, types.ErrNotPublisher)
	}
	if d.Status.IsTerminal() {
		return wrap.Error(ctx, types.ErrDeliveryImmutable)
	}

	if err := c.repo.AppendPositionSample(ctx, sample, c.cfg.WindowSize); err != nil {
		return wrap.Error(ctx, fmt.Errorf("could not append position sample: %w", err))
	}
	metrics.PositionSamplesTotal.WithLabelValues(serviceName).Inc()

	c.fanOut(ctx, d.ID, types.EventLocationUpdate, models.LocationUpdate{
		Coordinates:    sample.Location(),
		SpeedKmh:       sample.SpeedKmh,
		HeadingDegrees: sample.HeadingDegrees,
		Timestamp:      sample.Timestamp,
	})

	c.maybePublishETA(ctx, d, sample)
	c.maybeFireArrivalCheckpoint(ctx, d, sample)

	return nil
}

// PublishStatus forwards a status change to the state machine and fans out
// the outcome. Checkpoint statuses additionally emit CHECKPOINT_REACHED.
func (c *Channel) PublishStatus(ctx context.Context, actor *models.User, deliveryID uuid.UUID, to types.DeliveryStatus, notes string) error {
	ctx = wrap.WithAction(ctx, "publish_status")
	ctx = wrap.WithDeliveryID(ctx, deliveryID.String())

	d, err := c.repo.Get(ctx, deliveryID)
	if err != nil {
		return wrap.Error(ctx, err)
	}
	from := d.Status

	updated, err := c.statuses.Transition(ctx, deliveryID, to, actor, notes)
	if err != nil {
		return err
	}

	c.fanOut(ctx, deliveryID, types.EventStatusUpdate, models.StatusUpdate{
		FromStatus: from,
		ToStatus:   updated.Status,
		Notes:      notes,
	})

	if updated.Status.IsCheckpoint() {
		c.fanOut(ctx, deliveryID, types.EventCheckpointReached, models.CheckpointReached{
			CheckpointName: updated.Status.String(),
		})
	}

	return nil
}

// ReportIssue relays a courier-reported problem to every watcher, verbatim.
func (c *Channel) ReportIssue(ctx context.Context, actor *models.User, deliveryID uuid.UUID, description string) error {
	ctx = wrap.WithAction(ctx, "report_issue")
	ctx = wrap.WithDeliveryID(ctx, deliveryID.String())

	d, err := c.repo.Get(ctx, deliveryID)
	if err != nil {
		return wrap.Error(ctx, err)
	}
	if err := authorizePublisher(d, actor); err != nil {
		return wrap.Error(ctx, err)
	}

	c.fanOut(ctx, deliveryID, types.EventIssueReported, models.IssueReported{
		Description: description,
	})
	return nil
}

// ResolveIssue relays the all-clear for a previously reported issue.
func (c *Channel) ResolveIssue(ctx context.Context, actor *models.User, deliveryID uuid.UUID) error {
	ctx = wrap.WithAction(ctx, "resolve_issue")
	ctx = wrap.WithDeliveryID(ctx, deliveryID.String())

	d, err := c.repo.Get(ctx, deliveryID)
	if err != nil {
		return wrap.Error(ctx, err)
	}
	if err := authorizePublisher(d, actor); err != nil {
		return wrap.Error(ctx, err)
	}

	c.fanOut(ctx, deliveryID, types.EventIssueResolved, models.IssueResolved{})
	return nil
}

/* ======================= internals ======================= */

// maybePublishETA recomputes the ETA from the trailing speed window and the
// remaining distance to dropoff, and publishes only when the estimate moved
// past the damping threshold.
func (c *Channel) maybePublishETA(ctx context.Context, d *models.Delivery, sample models.PositionSample) {
	window, err := c.repo.RecentPositions(ctx, d.ID, c.cfg.WindowSize)
	if err != nil {
		c.log.Warn(ctx, "could not load position window", "err", err.Error())
		return
	}

	speed := geo.AverageSpeed(window)
	remaining := geo.Distance(sample.Location(), d.Dropoff)

	eta := geo.ETAMinutes(remaining, speed)
	if eta == geo.UnknownETA {
		return
	}

	c.mu.Lock()
	last, seen := c.lastETA[d.ID]
	publish := !seen || abs(eta-last) > c.cfg.ETAThresholdMinutes
	if publish {
		c.lastETA[d.ID] = eta
	}
	c.mu.Unlock()

	if !publish {
		return
	}

	c.fanOut(ctx, d.ID, types.EventETAUpdate, models.ETAUpdate{
		EstimatedMinutes:        eta,
		DistanceRemainingMeters: remaining,
		Traffic:                 geo.ClassifyTraffic(speed),
	})
}

// maybeFireArrivalCheckpoint emits near_dropoff once per delivery when an
// IN_TRANSIT courier comes within the checkpoint radius of the dropoff. The
// status itself is untouched.
func (c *Channel) maybeFireArrivalCheckpoint(ctx context.Context, d *models.Delivery, sample models.PositionSample) {
	if d.Status != types.StatusInTransit {
		return
	}
	if !geo.WithinRadius(d.Dropoff, sample.Location(), c.cfg.CheckpointRadiusM) {
		return
	}

	c.mu.Lock()
	_, fired := c.checkpointFired[d.ID]
	if !fired {
		c.checkpointFired[d.ID] = struct{}{}
	}
	c.mu.Unlock()

	if fired {
		return
	}

	c.fanOut(ctx, d.ID, types.EventCheckpointReached, models.CheckpointReached{
		CheckpointName: checkpointNearDropoff,
	})
}

// fanOut pushes one event to every subscriber of the delivery. Connections
// that reject the send (already closed) are pruned. Zero subscribers is fine.
func (c *Channel) fanOut(ctx context.Context, deliveryID uuid.UUID, event types.TrackingEvent, data any) {
	msg := models.TrackingMessage{
		EventType:  event,
		DeliveryID: deliveryID,
		Data:       data,
	}

	for _, connID := range c.reg.subscribersOf(deliveryID) {
		if err := c.hub.SendTo(connID, msg); err != nil {
			c.reg.unsubscribe(connID, deliveryID)
			c.log.Debug(ctx, "pruned dead subscriber",
				"connection_id", connID.String(),
				"err", err.Error(),
			)
			continue
		}
		metrics.TrackingEventsFannedOut.WithLabelValues(serviceName, event.String()).Inc()
	}
}

// authorizePublisher allows the assigned courier (or an admin) to publish
// into the delivery's stream.
func authorizePublisher(d *models.Delivery, actor *models.User) error {
	if actor == nil || actor.IsAnonymous() {
		return types.ErrNotAuthorized
	}
	if actor.Role == types.RoleAdmin {
		return nil
	}
	if actor.Role == types.RoleCourier && d.CourierID != nil && *d.CourierID == actor.ID {
		return nil
	}
	return types.ErrNotAuthorized
}

func validCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
