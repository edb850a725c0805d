package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
	"github.com/ecodeli/delivery-tracking-system/pkg/kmutex"
	"github.com/ecodeli/delivery-tracking-system/pkg/logger"
	wrap "github.com/ecodeli/delivery-tracking-system/pkg/logger/wrapper"
	"github.com/ecodeli/delivery-tracking-system/pkg/metrics"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

const serviceName = "reconciliation-service"

const (
	// DefaultSweepInterval spaces out the periodic full sweeps.
	DefaultSweepInterval = 5 * time.Minute

	// DefaultSweepLimit caps how many in-doubt deliveries one sweep handles.
	DefaultSweepLimit = 100

	// queueCapacity bounds the repair queue. Enqueue never blocks; beyond
	// capacity the delivery is picked up by the next sweep instead.
	queueCapacity = 256
)

// Outcome names what one reconciliation run did, for logs and metrics.
type Outcome string

const (
	OutcomeConsistent  Outcome = "consistent"
	OutcomeReleased    Outcome = "released"
	OutcomeFlagged     Outcome = "flagged"
	OutcomeUnknownPair Outcome = "unknown_pair"
	OutcomeError       Outcome = "error"
)

// Config tunes the background behavior. Zero values use the defaults.
type Config struct {
	SweepInterval time.Duration
	SweepLimit    int
}

func (c Config) withDefaults() Config {
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.SweepLimit <= 0 {
		c.SweepLimit = DefaultSweepLimit
	}
	return c
}

// Service detects and repairs drift between delivery statuses and payment
// statuses. Repairs take the same per-delivery lock as lifecycle transitions,
// so a repair never races a concurrent status change.
type Service struct {
	repo     Ledger
	payments PaymentLedger
	notifier NotificationSink
	locks    *kmutex.KMutex
	cfg      Config
	log      logger.Logger

	queue chan uuid.UUID

	// flagged remembers which drifted pair was already escalated per
	// delivery, so repeated checks over unchanged drift do not re-issue the
	// flag command. Cleared as soon as the pair changes.
	mu      sync.Mutex
	flagged map[uuid.UUID]statusPair
}

func NewService(repo Ledger, payments PaymentLedger, notifier NotificationSink, locks *kmutex.KMutex, cfg Config, log logger.Logger) *Service {
	return &Service{
		repo:     repo,
		payments: payments,
		notifier: notifier,
		locks:    locks,
		cfg:      cfg.withDefaults(),
		log:      log,
		queue:    make(chan uuid.UUID, queueCapacity),
		flagged:  make(map[uuid.UUID]statusPair),
	}
}

// Enqueue schedules a delivery for a reconciliation check. Never blocks: when
// the queue is full the delivery is left for the periodic sweep.
func (s *Service) Enqueue(deliveryID uuid.UUID) {
	select {
	case s.queue <- deliveryID:
	default:
		ctx := wrap.WithAction(context.Background(), types.ActionReconcileRepair)
		s.log.Warn(ctx, "repair queue full, deferring to sweep",
			"delivery_id", deliveryID.String(),
		)
	}
}

// CheckAsync runs a reconciliation check detached from the caller. Used on
// read paths: the check must never block or fail the read it piggybacks on.
func (s *Service) CheckAsync(ctx context.Context, deliveryID uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if _, err := s.Reconcile(ctx, deliveryID); err != nil {
			s.log.Warn(ctx, "opportunistic reconcile failed",
				"delivery_id", deliveryID.String(),
				"err", err.Error(),
			)
		}
	}()
}

// Reconcile checks one delivery against its payment and repairs known drift.
// Idempotent: the state is re-read under the per-delivery lock, so a second
// run over an already repaired pair lands on consistent and does nothing.
// Flag escalations leave the pair unchanged, so those are deduplicated by the
// per-delivery markers instead.
func (s *Service) Reconcile(ctx context.Context, deliveryID uuid.UUID) (Outcome, error) {
	ctx = wrap.WithAction(ctx, types.ActionReconcileRepair)
	ctx = wrap.WithDeliveryID(ctx, deliveryID.String())

	s.locks.Lock(deliveryID.String())
	defer s.locks.Unlock(deliveryID.String())

	outcome, err := s.reconcileLocked(ctx, deliveryID)
	metrics.ReconciliationRunsTotal.WithLabelValues(serviceName, string(outcome)).Inc()
	return outcome, err
}

func (s *Service) reconcileLocked(ctx context.Context, deliveryID uuid.UUID) (Outcome, error) {
	d, err := s.repo.Get(ctx, deliveryID)
	if err != nil {
		return OutcomeError, wrap.Error(ctx, err)
	}

	p, err := s.payments.GetPayment(ctx, deliveryID)
	if err != nil {
		return OutcomeError, wrap.Error(ctx, err)
	}

	pair := statusPair{delivery: d.Status, payment: p.Status}
	s.clearStaleFlag(deliveryID, pair)

	switch v := assess(d.Status, p.Status); v {
	case verdictConsistent:
		return OutcomeConsistent, nil

	case verdictRetryRelease:
		if err := s.payments.ReleaseHeldFunds(ctx, deliveryID); err != nil {
			return OutcomeError, wrap.Error(ctx, fmt.Errorf("release retry failed: %w", err))
		}
		s.log.Info(ctx, "released stuck escrow",
			"payment_id", p.ID.String(),
			"payment_status", p.Status.String(),
		)
		s.notifyRepaired(ctx, d)
		return OutcomeReleased, nil

	case verdictFlagReview:
		if s.alreadyFlagged(deliveryID, pair) {
			s.log.Debug(ctx, "pair already flagged for review",
				"delivery_status", d.Status.String(),
				"payment_status", p.Status.String(),
			)
			return OutcomeConsistent, nil
		}
		reason := fmt.Sprintf("delivery %s with payment %s", d.Status, p.Status)
		if err := s.payments.FlagForReview(ctx, deliveryID, reason); err != nil {
			return OutcomeError, wrap.Error(ctx, fmt.Errorf("flag for review failed: %w", err))
		}
		s.markFlagged(deliveryID, pair)
		s.log.Warn(ctx, "flagged payment for review",
			"payment_id", p.ID.String(),
			"reason", reason,
		)
		return OutcomeFlagged, nil

	default:
		s.log.Warn(ctx, "unknown delivery/payment combination",
			"delivery_status", d.Status.String(),
			"payment_status", p.Status.String(),
		)
		return OutcomeUnknownPair, nil
	}
}

func (s *Service) alreadyFlagged(id uuid.UUID, pair statusPair) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.flagged[id]
	return ok && rec == pair
}

func (s *Service) markFlagged(id uuid.UUID, pair statusPair) {
	s.mu.Lock()
	s.flagged[id] = pair
	s.mu.Unlock()
}

// clearStaleFlag drops the marker once the pair moved on, so a delivery that
// drifts again later is escalated again.
func (s *Service) clearStaleFlag(id uuid.UUID, pair statusPair) {
	s.mu.Lock()
	if rec, ok := s.flagged[id]; ok && rec != pair {
		delete(s.flagged, id)
	}
	s.mu.Unlock()
}

// notifyRepaired tells the client their payment went through after the
// automatic retry. Best effort.
func (s *Service) notifyRepaired(ctx context.Context, d *models.Delivery) {
	n := models.Notification{
		UserID:  d.ClientID,
		Kind:    types.NotifyPaymentCorrected,
		Title:   "Payment completed",
		Message: "The payment for your delivery has been processed",
		Payload: map[string]any{
			"delivery_id":   d.ID.String(),
			"tracking_code": d.TrackingCode,
		},
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn(ctx, "notification sink failed", "err", err.Error())
	}
}

// Sweep runs one pass over the deliveries the ledger considers in doubt.
func (s *Service) Sweep(ctx context.Context) {
	ctx = wrap.WithAction(ctx, types.ActionReconcileSweep)

	ids, err := s.repo.ListInDoubt(ctx, s.cfg.SweepLimit)
	if err != nil {
		s.log.Error(ctx, "sweep candidate query failed", err)
		return
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Reconcile(ctx, id); err != nil {
			s.log.Warn(ctx, "sweep reconcile failed",
				"delivery_id", id.String(),
				"err", err.Error(),
			)
		}
	}

	if len(ids) > 0 {
		s.log.Info(ctx, "sweep finished", "checked", len(ids))
	}
}

// Run drains the repair queue and fires periodic sweeps until the context is
// cancelled. Intended to run as one goroutine owned by the application.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case id := <-s.queue:
			if _, err := s.Reconcile(ctx, id); err != nil {
				s.log.Warn(ctx, "queued reconcile failed",
					"delivery_id", id.String(),
					"err", err.Error(),
				)
			}

		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
