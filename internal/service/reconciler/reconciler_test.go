package reconciler

import (
	"context"
	"errors"
	"testing"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
	"github.com/ecodeli/delivery-tracking-system/pkg/kmutex"
	"github.com/ecodeli/delivery-tracking-system/pkg/logger"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

/* ======================= fakes ======================= */

type fakeLedger struct {
	deliveries map[uuid.UUID]*models.Delivery
	inDoubt    []uuid.UUID
}

func (l *fakeLedger) Get(_ context.Context, id uuid.UUID) (*models.Delivery, error) {
	d, ok := l.deliveries[id]
	if !ok {
		return nil, types.ErrDeliveryNotFound
	}
	cp := *d
	return &cp, nil
}

func (l *fakeLedger) ListInDoubt(_ context.Context, limit int) ([]uuid.UUID, error) {
	if len(l.inDoubt) > limit {
		return l.inDoubt[:limit], nil
	}
	return l.inDoubt, nil
}

type fakePayments struct {
	payments map[uuid.UUID]*models.Payment // keyed by delivery id

	releaseErr   error
	releaseCalls int
	flagCalls    int
	flagReasons  []string
}

func (p *fakePayments) GetPayment(_ context.Context, deliveryID uuid.UUID) (*models.Payment, error) {
	pay, ok := p.payments[deliveryID]
	if !ok {
		return nil, types.ErrPaymentNotFound
	}
	cp := *pay
	return &cp, nil
}

func (p *fakePayments) ReleaseHeldFunds(_ context.Context, deliveryID uuid.UUID) error {
	p.releaseCalls++
	if p.releaseErr != nil {
		return p.releaseErr
	}
	p.payments[deliveryID].Status = types.PaymentCompleted
	return nil
}

func (p *fakePayments) FlagForReview(_ context.Context, _ uuid.UUID, reason string) error {
	p.flagCalls++
	p.flagReasons = append(p.flagReasons, reason)
	return nil
}

type fakeNotifier struct {
	sent []models.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, msg models.Notification) error {
	n.sent = append(n.sent, msg)
	return nil
}

/* ======================= helpers ======================= */

type fixture struct {
	svc      *Service
	ledger   *fakeLedger
	payments *fakePayments
	notifier *fakeNotifier
	delivery *models.Delivery
}

func newFixture(t *testing.T, ds types.DeliveryStatus, ps types.PaymentStatus) *fixture {
	t.Helper()

	d := &models.Delivery{
		ID:           uuid.MustNew(),
		TrackingCode: "ECO-2024-0099",
		Status:       ds,
		ClientID:     uuid.MustNew(),
		PaymentID:    uuid.MustNew(),
	}

	ledger := &fakeLedger{deliveries: map[uuid.UUID]*models.Delivery{d.ID: d}}
	payments := &fakePayments{payments: map[uuid.UUID]*models.Payment{
		d.ID: {ID: d.PaymentID, DeliveryID: d.ID, Status: ps},
	}}
	notifier := &fakeNotifier{}
	log := logger.InitLogger("test", logger.LevelError)

	return &fixture{
		svc:      NewService(ledger, payments, notifier, kmutex.New(), Config{}, log),
		ledger:   ledger,
		payments: payments,
		notifier: notifier,
		delivery: d,
	}
}

/* ======================= detector tests ======================= */

func TestAssess_Table(t *testing.T) {
	tests := []struct {
		delivery types.DeliveryStatus
		payment  types.PaymentStatus
		want     verdict
	}{
		{types.StatusPending, types.PaymentCompleted, verdictFlagReview},
		{types.StatusDelivered, types.PaymentPending, verdictRetryRelease},
		{types.StatusDelivered, types.PaymentProcessing, verdictRetryRelease},
		{types.StatusAccepted, types.PaymentFailed, verdictFlagReview},
		{types.StatusInTransit, types.PaymentFailed, verdictFlagReview},

		{types.StatusPending, types.PaymentPending, verdictConsistent},
		{types.StatusInTransit, types.PaymentProcessing, verdictConsistent},
		{types.StatusDelivered, types.PaymentCompleted, verdictConsistent},
		{types.StatusCancelled, types.PaymentRefunded, verdictConsistent},

		// Outside both tables: surfaced, never auto-repaired.
		{types.StatusCancelled, types.PaymentCompleted, verdictUnknown},
		{types.StatusPickedUp, types.PaymentFailed, verdictUnknown},
		{types.StatusPending, types.PaymentRefunded, verdictUnknown},
	}

	for _, tc := range tests {
		if got := assess(tc.delivery, tc.payment); got != tc.want {
			t.Errorf("assess(%s, %s) = %s, want %s", tc.delivery, tc.payment, got, tc.want)
		}
	}
}

/* ======================= reconcile tests ======================= */

func TestReconcile_ReleasesStuckEscrow(t *testing.T) {
	f := newFixture(t, types.StatusDelivered, types.PaymentPending)

	outcome, err := f.svc.Reconcile(context.Background(), f.delivery.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if outcome != OutcomeReleased {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeReleased)
	}
	if f.payments.releaseCalls != 1 {
		t.Fatalf("release calls = %d, want 1", f.payments.releaseCalls)
	}

	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Kind != types.NotifyPaymentCorrected {
		t.Fatalf("expected one PAYMENT_CORRECTED notification, got %+v", f.notifier.sent)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newFixture(t, types.StatusDelivered, types.PaymentProcessing)
	ctx := context.Background()

	if outcome, _ := f.svc.Reconcile(ctx, f.delivery.ID); outcome != OutcomeReleased {
		t.Fatalf("first run outcome = %s, want %s", outcome, OutcomeReleased)
	}

	// The repair settled the payment; a second run must find nothing to do.
	outcome, err := f.svc.Reconcile(ctx, f.delivery.ID)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if outcome != OutcomeConsistent {
		t.Fatalf("second run outcome = %s, want %s", outcome, OutcomeConsistent)
	}
	if f.payments.releaseCalls != 1 {
		t.Fatalf("release retried on consistent state, calls = %d", f.payments.releaseCalls)
	}
}

func TestReconcile_FlagsFailedPayment(t *testing.T) {
	f := newFixture(t, types.StatusInTransit, types.PaymentFailed)

	outcome, err := f.svc.Reconcile(context.Background(), f.delivery.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if outcome != OutcomeFlagged {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeFlagged)
	}
	if f.payments.flagCalls != 1 {
		t.Fatalf("flag calls = %d, want 1", f.payments.flagCalls)
	}
	if f.payments.flagReasons[0] != "delivery IN_TRANSIT with payment FAILED" {
		t.Fatalf("reason = %q", f.payments.flagReasons[0])
	}
	if len(f.notifier.sent) != 0 {
		t.Fatalf("flagging must not notify the client, got %+v", f.notifier.sent)
	}
}

func TestReconcile_FlagIsIssuedOnce(t *testing.T) {
	f := newFixture(t, types.StatusInTransit, types.PaymentFailed)
	ctx := context.Background()

	if outcome, err := f.svc.Reconcile(ctx, f.delivery.ID); err != nil || outcome != OutcomeFlagged {
		t.Fatalf("first run: outcome = %s, err = %v", outcome, err)
	}

	// Flagging changes no local state, so the pair is still drifted on the
	// next check. The repeat must land on a no-op, not a duplicate flag.
	outcome, err := f.svc.Reconcile(ctx, f.delivery.ID)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if outcome != OutcomeConsistent {
		t.Fatalf("second run outcome = %s, want %s", outcome, OutcomeConsistent)
	}
	if f.payments.flagCalls != 1 {
		t.Fatalf("flag calls = %d, want 1", f.payments.flagCalls)
	}
}

func TestReconcile_FlagReissuedAfterPaymentMovesOn(t *testing.T) {
	f := newFixture(t, types.StatusInTransit, types.PaymentFailed)
	ctx := context.Background()

	if outcome, _ := f.svc.Reconcile(ctx, f.delivery.ID); outcome != OutcomeFlagged {
		t.Fatalf("initial outcome = %s, want %s", outcome, OutcomeFlagged)
	}

	// The payment recovers, then fails a second time: that is fresh drift
	// and deserves its own escalation.
	f.payments.payments[f.delivery.ID].Status = types.PaymentProcessing
	if outcome, _ := f.svc.Reconcile(ctx, f.delivery.ID); outcome != OutcomeConsistent {
		t.Fatalf("recovered outcome = %s, want %s", outcome, OutcomeConsistent)
	}

	f.payments.payments[f.delivery.ID].Status = types.PaymentFailed
	if outcome, _ := f.svc.Reconcile(ctx, f.delivery.ID); outcome != OutcomeFlagged {
		t.Fatalf("re-drifted outcome = %s, want %s", outcome, OutcomeFlagged)
	}
	if f.payments.flagCalls != 2 {
		t.Fatalf("flag calls = %d, want 2", f.payments.flagCalls)
	}
}

func TestReconcile_UnknownPairIsLeftAlone(t *testing.T) {
	f := newFixture(t, types.StatusCancelled, types.PaymentCompleted)

	outcome, err := f.svc.Reconcile(context.Background(), f.delivery.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if outcome != OutcomeUnknownPair {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeUnknownPair)
	}
	if f.payments.releaseCalls != 0 || f.payments.flagCalls != 0 {
		t.Fatal("unknown pairs must not trigger repairs")
	}
}

func TestReconcile_ReleaseFailureReported(t *testing.T) {
	f := newFixture(t, types.StatusDelivered, types.PaymentPending)
	f.payments.releaseErr = errors.New("provider still down")

	outcome, err := f.svc.Reconcile(context.Background(), f.delivery.ID)
	if err == nil {
		t.Fatal("expected error when the retry fails")
	}
	if outcome != OutcomeError {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeError)
	}
	// The pair stays in doubt for the next sweep.
	if f.payments.payments[f.delivery.ID].Status != types.PaymentPending {
		t.Fatal("payment status must be unchanged after a failed retry")
	}
}

func TestReconcile_UnknownDelivery(t *testing.T) {
	f := newFixture(t, types.StatusPending, types.PaymentPending)

	outcome, err := f.svc.Reconcile(context.Background(), uuid.MustNew())
	if !errors.Is(err, types.ErrDeliveryNotFound) {
		t.Fatalf("got %v, want ErrDeliveryNotFound", err)
	}
	if outcome != OutcomeError {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeError)
	}
}

/* ======================= sweep tests ======================= */

func TestSweep_RepairsEveryCandidate(t *testing.T) {
	f := newFixture(t, types.StatusDelivered, types.PaymentPending)

	second := &models.Delivery{
		ID:        uuid.MustNew(),
		Status:    types.StatusDelivered,
		ClientID:  uuid.MustNew(),
		PaymentID: uuid.MustNew(),
	}
	f.ledger.deliveries[second.ID] = second
	f.payments.payments[second.ID] = &models.Payment{
		ID:         second.PaymentID,
		DeliveryID: second.ID,
		Status:     types.PaymentProcessing,
	}
	f.ledger.inDoubt = []uuid.UUID{f.delivery.ID, second.ID}

	f.svc.Sweep(context.Background())

	if f.payments.releaseCalls != 2 {
		t.Fatalf("release calls = %d, want 2", f.payments.releaseCalls)
	}
	for id, p := range f.payments.payments {
		if p.Status != types.PaymentCompleted {
			t.Errorf("payment for %s not settled: %s", id, p.Status)
		}
	}
}

func TestEnqueue_NeverBlocks(t *testing.T) {
	f := newFixture(t, types.StatusPending, types.PaymentPending)

	for i := 0; i < queueCapacity+10; i++ {
		f.svc.Enqueue(uuid.MustNew())
	}
}
