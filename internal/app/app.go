package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ecodeli/delivery-tracking-system/config"
	"github.com/ecodeli/delivery-tracking-system/internal/adapter/http/server"
	wshandler "github.com/ecodeli/delivery-tracking-system/internal/adapter/http/ws"
	postgresrepo "github.com/ecodeli/delivery-tracking-system/internal/adapter/postgres"
	rabbitadapter "github.com/ecodeli/delivery-tracking-system/internal/adapter/rabbit"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/internal/service/auth"
	"github.com/ecodeli/delivery-tracking-system/internal/service/delivery"
	"github.com/ecodeli/delivery-tracking-system/internal/service/reconciler"
	"github.com/ecodeli/delivery-tracking-system/internal/service/tracking"
	"github.com/ecodeli/delivery-tracking-system/pkg/kmutex"
	"github.com/ecodeli/delivery-tracking-system/pkg/logger"
	wrap "github.com/ecodeli/delivery-tracking-system/pkg/logger/wrapper"
	"github.com/ecodeli/delivery-tracking-system/pkg/postgres"
	"github.com/ecodeli/delivery-tracking-system/pkg/rabbit"
	"github.com/ecodeli/delivery-tracking-system/pkg/trm"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
	ws "github.com/ecodeli/delivery-tracking-system/pkg/wsHub"
)

// deliveryLedger stitches the per-table repos into the single ledger the
// services depend on.
type deliveryLedger struct {
	*postgresrepo.DeliveryRepo
	events    *postgresrepo.StatusEventRepo
	positions *postgresrepo.PositionRepo
}

func (l *deliveryLedger) AppendStatusEvent(ctx context.Context, event models.StatusEvent) error {
	return l.events.Append(ctx, event)
}

func (l *deliveryLedger) AppendPositionSample(ctx context.Context, sample models.PositionSample, windowSize int) error {
	return l.positions.Append(ctx, sample, windowSize)
}

func (l *deliveryLedger) RecentPositions(ctx context.Context, deliveryID uuid.UUID, limit int) ([]models.PositionSample, error) {
	return l.positions.Recent(ctx, deliveryID, limit)
}

// App owns every long-lived component of the tracking service and their
// startup/shutdown order.
type App struct {
	cfg config.Config
	log logger.Logger

	db     *postgres.PostgreDB
	broker *rabbit.RabbitMQ
	hub    *ws.ConnectionHub

	api        *server.API
	reconciler *reconciler.Service
	consumer   *rabbitadapter.PaymentStatusConsumer
	payments   *postgresrepo.PaymentRepo
}

func NewApplication(ctx context.Context, cfg config.Config, log logger.Logger) (*App, error) {
	db, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	broker, err := rabbit.New(ctx, cfg.RabbitMQ.GetDSN(), log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	// Repositories
	ledger := &deliveryLedger{
		DeliveryRepo: postgresrepo.NewDeliveryRepo(db.Pool),
		events:       postgresrepo.NewStatusEventRepo(db.Pool),
		positions:    postgresrepo.NewPositionRepo(db.Pool),
	}
	paymentRepo := postgresrepo.NewPaymentRepo(db.Pool)

	// Outbound messaging
	notifier := rabbitadapter.NewNotificationBroker(broker, log)
	paymentGW := rabbitadapter.NewPaymentGateway(broker, paymentRepo, log)

	// Core services. Lifecycle writes and reconciliation repairs share one
	// per-delivery lock set.
	locks := kmutex.New()
	txm := trm.New(db.Pool)

	deliverySvc := delivery.NewService(ledger, paymentGW, notifier, txm, locks, log)

	recon := reconciler.NewService(ledger, paymentGW, notifier, locks, reconciler.Config{
		SweepInterval: cfg.Tracking.SweepInterval,
		SweepLimit:    cfg.Tracking.SweepLimit,
	}, log)
	deliverySvc.SetRepairQueue(recon)

	// Real-time channel
	hub := ws.NewConnHub(log)
	channel := tracking.NewChannel(ledger, deliverySvc, hub, tracking.Config{
		WindowSize:          cfg.Tracking.PositionWindowSize,
		ETAThresholdMinutes: cfg.Tracking.ETAThresholdMinutes,
		CheckpointRadiusM:   cfg.Tracking.CheckpointRadiusMeters,
	}, log)

	wsHandler := wshandler.NewTrackingWsHandler(channel, hub, cfg.Tracking.OutboundQueueSize, log)
	tokenSvc := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	api, err := server.New(cfg, deliverySvc, recon, wsHandler, tokenSvc, log)
	if err != nil {
		broker.Close(ctx)
		db.Close()
		return nil, fmt.Errorf("failed to build http server: %w", err)
	}

	return &App{
		cfg:        cfg,
		log:        log,
		db:         db,
		broker:     broker,
		hub:        hub,
		api:        api,
		reconciler: recon,
		consumer:   rabbitadapter.NewPaymentStatusConsumer(broker, log),
		payments:   paymentRepo,
	}, nil
}

// Run starts every component and blocks until a shutdown signal or a fatal
// error.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)

	a.api.Run(ctx, errCh)

	// Repair queue drain + periodic sweeps
	go a.reconciler.Run(ctx)

	// Payment provider callbacks refresh the read model and trigger checks.
	go func() {
		err := a.consumer.Consume(ctx, func(ctx context.Context, msg models.PaymentStatusMessage) error {
			payment := models.Payment{
				ID:         msg.PaymentID,
				DeliveryID: msg.DeliveryID,
				Status:     msg.Status,
				UpdatedAt:  msg.Timestamp,
			}
			if err := a.payments.UpsertStatus(ctx, payment); err != nil {
				return err
			}
			a.reconciler.Enqueue(msg.DeliveryID)
			return nil
		})
		if err != nil {
			errCh <- fmt.Errorf("payment status consumer: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info(ctx, "shutdown signal received")
	case err := <-errCh:
		a.log.Error(ctx, "fatal error, shutting down", err)
		return a.shutdown(err)
	}

	return a.shutdown(nil)
}

func (a *App) shutdown(cause error) error {
	ctx := wrap.WithAction(context.Background(), "app_shutdown")

	if err := a.api.Stop(ctx); err != nil {
		a.log.Error(ctx, "http server shutdown failed", err)
	}

	a.hub.Close()

	if err := a.broker.Close(ctx); err != nil {
		a.log.Error(ctx, "rabbitmq close failed", err)
	}

	a.db.Close()

	a.log.Info(ctx, "shutdown complete")
	return cause
}
