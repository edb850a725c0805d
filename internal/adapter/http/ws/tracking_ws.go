package wshandler

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ecodeli/delivery-tracking-system/internal/adapter/http/ws/dto"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
	"github.com/ecodeli/delivery-tracking-system/pkg/logger"
	wrap "github.com/ecodeli/delivery-tracking-system/pkg/logger/wrapper"
	"github.com/ecodeli/delivery-tracking-system/pkg/metrics"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
	"github.com/ecodeli/delivery-tracking-system/pkg/validator"
	ws "github.com/ecodeli/delivery-tracking-system/pkg/wsHub"
)

const serviceName = "tracking-service"

// TrackingChannel is the tracking core as the socket layer sees it.
type TrackingChannel interface {
	Subscribe(ctx context.Context, connID, deliveryID uuid.UUID, role types.SubscriptionRole) error
	Unsubscribe(connID, deliveryID uuid.UUID)
	DropConnection(connID uuid.UUID)
	PublishPosition(ctx context.Context, connID uuid.UUID, actor *models.User, sample models.PositionSample) error
	PublishStatus(ctx context.Context, actor *models.User, deliveryID uuid.UUID, to types.DeliveryStatus, notes string) error
	ReportIssue(ctx context.Context, actor *models.User, deliveryID uuid.UUID, description string) error
	ResolveIssue(ctx context.Context, actor *models.User, deliveryID uuid.UUID) error
}

// TrackingWsHandler upgrades HTTP requests into tracking sockets and pumps
// inbound commands into the channel. One goroutine per connection (the read
// pump); the write side lives in pkg/wsHub.
type TrackingWsHandler struct {
	channel     TrackingChannel
	connections *ws.ConnectionHub
	queueSize   int
	log         logger.Logger

	upgrader websocket.Upgrader
}

func NewTrackingWsHandler(channel TrackingChannel, connections *ws.ConnectionHub, queueSize int, log logger.Logger) *TrackingWsHandler {
	return &TrackingWsHandler{
		channel:     channel,
		connections: connections,
		queueSize:   queueSize,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleCourier godoc
// @Summary      Courier tracking socket
// @Description  WebSocket endpoint couriers publish positions and statuses on
// @Tags         Tracking
// @Security     BearerAuth
// @Router       /ws/couriers [get]
func (h *TrackingWsHandler) HandleCourier(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, types.RoleCourierPublisher)
}

// HandleObserver godoc
// @Summary      Observer tracking socket
// @Description  WebSocket endpoint for watching delivery event streams
// @Tags         Tracking
// @Security     BearerAuth
// @Router       /ws/deliveries [get]
func (h *TrackingWsHandler) HandleObserver(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, types.RoleObserver)
}

func (h *TrackingWsHandler) handle(w http.ResponseWriter, r *http.Request, role types.SubscriptionRole) {
	ctx := wrap.WithAction(r.Context(), "ws_connect")

	actor := models.UserFromContext(ctx)
	if actor == nil || actor.IsAnonymous() {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}
	if role == types.RoleCourierPublisher && actor.Role == types.RoleClient {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error(ctx, "websocket upgrade failed", err)
		return
	}

	connID := uuid.MustNew()
	conn := ws.NewConn(context.WithoutCancel(ctx), connID, socket, h.queueSize)
	conn.OnDrop(func() {
		metrics.TrackingEventsDropped.WithLabelValues(serviceName).Inc()
	})

	if err := h.connections.Add(conn); err != nil {
		h.log.Error(ctx, "failed to register connection", err)
		conn.Close()
		return
	}

	metrics.WebSocketConnectionsGauge.WithLabelValues(serviceName).Inc()
	h.log.Info(ctx, "websocket connected",
		"connection_id", connID.String(),
		"user_id", actor.ID.String(),
		"role", string(role),
	)

	defer func() {
		h.channel.DropConnection(connID)
		_ = h.connections.Delete(connID)
		metrics.WebSocketConnectionsGauge.WithLabelValues(serviceName).Dec()
		h.log.Info(ctx, "websocket disconnected", "connection_id", connID.String())
	}()

	// Read pump. Returning tears the connection down via the defer above.
	_ = conn.Listen(func(msg map[string]any) error {
		h.dispatch(ctx, conn, actor, role, msg)
		return nil
	})
}

// dispatch routes one inbound command. Command failures are reported back on
// the socket and never kill the connection.
func (h *TrackingWsHandler) dispatch(ctx context.Context, conn *ws.Conn, actor *models.User, role types.SubscriptionRole, msg map[string]any) {
	var base dto.BaseCommand
	if err := decode(msg, &base); err != nil {
		_ = errorResponse(conn, "malformed command")
		return
	}

	switch base.Type {
	case dto.CmdSubscribe:
		if err := h.channel.Subscribe(ctx, conn.ID(), base.DeliveryID, role); err != nil {
			_ = errorResponse(conn, err.Error())
		}

	case dto.CmdUnsubscribe:
		h.channel.Unsubscribe(conn.ID(), base.DeliveryID)

	case dto.CmdUpdatePosition:
		if role != types.RoleCourierPublisher {
			_ = errorResponse(conn, "observers cannot publish")
			return
		}
		var cmd dto.PositionCommand
		if err := decode(msg, &cmd); err != nil {
			_ = errorResponse(conn, "malformed command")
			return
		}
		v := validator.New()
		if cmd.Validate(v); !v.Valid() {
			_ = failedValidationResponse(conn, v.Errors)
			return
		}
		if err := h.channel.PublishPosition(ctx, conn.ID(), actor, cmd.ToSample()); err != nil {
			_ = errorResponse(conn, err.Error())
		}

	case dto.CmdUpdateStatus:
		if role != types.RoleCourierPublisher {
			_ = errorResponse(conn, "observers cannot publish")
			return
		}
		var cmd dto.StatusCommand
		if err := decode(msg, &cmd); err != nil {
			_ = errorResponse(conn, "malformed command")
			return
		}
		v := validator.New()
		if cmd.Validate(v); !v.Valid() {
			_ = failedValidationResponse(conn, v.Errors)
			return
		}
		if err := h.channel.PublishStatus(ctx, actor, cmd.DeliveryID, cmd.Status, cmd.Notes); err != nil {
			_ = errorResponse(conn, err.Error())
		}

	case dto.CmdReportIssue:
		if role != types.RoleCourierPublisher {
			_ = errorResponse(conn, "observers cannot publish")
			return
		}
		var cmd dto.IssueCommand
		if err := decode(msg, &cmd); err != nil {
			_ = errorResponse(conn, "malformed command")
			return
		}
		v := validator.New()
		if cmd.Validate(v); !v.Valid() {
			_ = failedValidationResponse(conn, v.Errors)
			return
		}
		if err := h.channel.ReportIssue(ctx, actor, cmd.DeliveryID, cmd.Description); err != nil {
			_ = errorResponse(conn, err.Error())
		}

	case dto.CmdResolveIssue:
		if role != types.RoleCourierPublisher {
			_ = errorResponse(conn, "observers cannot publish")
			return
		}
		if err := h.channel.ResolveIssue(ctx, actor, base.DeliveryID); err != nil {
			_ = errorResponse(conn, err.Error())
		}

	default:
		_ = errorResponse(conn, "unknown command type")
	}
}
