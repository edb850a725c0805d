package handler

import (
	"context"
	"net/http"

	"github.com/ecodeli/delivery-tracking-system/internal/adapter/http/handler/dto"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
	"github.com/ecodeli/delivery-tracking-system/internal/service/reconciler"
	"github.com/ecodeli/delivery-tracking-system/pkg/logger"
	wrap "github.com/ecodeli/delivery-tracking-system/pkg/logger/wrapper"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

type (
	DeliveryService interface {
		Get(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
		GetByTrackingCode(ctx context.Context, code string) (*models.Delivery, error)
	}

	Reconciler interface {
		Reconcile(ctx context.Context, deliveryID uuid.UUID) (reconciler.Outcome, error)
		CheckAsync(ctx context.Context, deliveryID uuid.UUID)
	}
)

type Delivery struct {
	deliveries DeliveryService
	reconciles Reconciler
	log        logger.Logger
}

func NewDelivery(deliveries DeliveryService, reconciles Reconciler, log logger.Logger) *Delivery {
	return &Delivery{
		deliveries: deliveries,
		reconciles: reconciles,
		log:        log,
	}
}

// GetDelivery godoc
// @Summary      Get delivery
// @Description  Returns one delivery with its lifecycle timestamps
// @Tags         Deliveries
// @Produce      json
// @Param        delivery_id  path  string  true  "Delivery ID"
// @Security     BearerAuth
// @Success      200  {object}  dto.DeliveryResponse
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /deliveries/{delivery_id} [get]
func (h *Delivery) GetDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_delivery")

	id, err := uuid.Parse(r.PathValue("delivery_id"))
	if err != nil {
		badRequestResponse(w, "invalid delivery id")
		return
	}
	ctx = wrap.WithDeliveryID(ctx, id.String())

	d, err := h.deliveries.Get(ctx, id)
	if err != nil {
		h.log.Error(wrap.ErrorCtx(ctx, err), "failed to get delivery", err)
		errorResponse(w, GetCode(err), "failed to get delivery")
		return
	}

	if !mayViewDelivery(models.UserFromContext(ctx), d) {
		errorResponse(w, http.StatusForbidden, "forbidden")
		return
	}

	// A read is a cheap moment to notice payment drift. Detached; the
	// response never waits for it.
	h.reconciles.CheckAsync(ctx, d.ID)

	if err := writeJSON(w, http.StatusOK, envelope{"delivery": dto.ToDeliveryResponse(d)}, nil); err != nil {
		internalErrorResponse(w, "the server encountered a problem")
	}
}

// TrackByCode godoc
// @Summary      Track delivery by code
// @Description  Public progress view behind the tracking code
// @Tags         Deliveries
// @Produce      json
// @Param        tracking_code  path  string  true  "Tracking code"
// @Success      200  {object}  dto.TrackingResponse
// @Failure      404  {object}  map[string]string
// @Router       /track/{tracking_code} [get]
func (h *Delivery) TrackByCode(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "track_by_code")

	code := r.PathValue("tracking_code")
	if code == "" {
		badRequestResponse(w, "missing tracking code")
		return
	}

	d, err := h.deliveries.GetByTrackingCode(ctx, code)
	if err != nil {
		if IsOneOf(err, types.ErrDeliveryNotFound) {
			notFoundResponse(w)
			return
		}
		h.log.Error(wrap.ErrorCtx(ctx, err), "failed to track delivery", err)
		internalErrorResponse(w, "the server encountered a problem")
		return
	}

	h.reconciles.CheckAsync(ctx, d.ID)

	if err := writeJSON(w, http.StatusOK, envelope{"tracking": dto.ToTrackingResponse(d)}, nil); err != nil {
		internalErrorResponse(w, "the server encountered a problem")
	}
}

// ForceReconcile godoc
// @Summary      Reconcile delivery
// @Description  Runs a payment consistency check for one delivery
// @Tags         Admin
// @Produce      json
// @Param        delivery_id  path  string  true  "Delivery ID"
// @Security     BearerAuth
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /deliveries/{delivery_id}/reconcile [post]
func (h *Delivery) ForceReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "force_reconcile")

	id, err := uuid.Parse(r.PathValue("delivery_id"))
	if err != nil {
		badRequestResponse(w, "invalid delivery id")
		return
	}
	ctx = wrap.WithDeliveryID(ctx, id.String())

	outcome, err := h.reconciles.Reconcile(ctx, id)
	if err != nil {
		h.log.Error(wrap.ErrorCtx(ctx, err), "reconcile failed", err)
		errorResponse(w, GetCode(err), "reconcile failed")
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"outcome": string(outcome)}, nil); err != nil {
		internalErrorResponse(w, "the server encountered a problem")
	}
}

// mayViewDelivery allows the delivery's client, its assigned courier, and
// admins.
func mayViewDelivery(u *models.User, d *models.Delivery) bool {
	if u == nil || u.IsAnonymous() {
		return false
	}
	switch {
	case u.Role == types.RoleAdmin:
		return true
	case u.ID == d.ClientID:
		return true
	case d.CourierID != nil && *d.CourierID == u.ID:
		return true
	}
	return false
}
