package worker

import (
	"context"
	"log"

	"stepwells-backend/internal/broker"
	"stepwells-backend/internal/models"
	"stepwells-backend/internal/util"

	"go.uber.org/zap"
)

// EventDeduper records processed broker events so redelivered messages
// are skipped.
type EventDeduper interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// AuditWorker consumes domain events and writes the audit log. Orders
// and donations themselves are settled synchronously; this worker only
// observes.
type AuditWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	deduper      EventDeduper
	logger       *zap.Logger
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(consumer *broker.Consumer, deduper EventDeduper) *AuditWorker {
	w := &AuditWorker{
		consumer: consumer,
		deduper:  deduper,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(w.handleOrderCreated)
	eventHandler.OnOrderStatusChanged(w.handleOrderStatusChanged)
	eventHandler.OnOrderCancelled(w.handleOrderCancelled)
	eventHandler.OnDonationCompleted(w.handleDonationCompleted)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *AuditWorker) Start(ctx context.Context) error {
	log.Println("Starting audit worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AuditWorker) Stop() error {
	log.Println("Stopping audit worker...")
	return w.consumer.Close()
}

// seen reports whether the event was already processed and records it
// otherwise.
func (w *AuditWorker) seen(ctx context.Context, base models.BaseEvent) bool {
	processed, err := w.deduper.IsEventProcessed(ctx, base.EventID)
	if err != nil {
		w.logger.Error("Failed to check processed event", zap.Error(err))
		return false
	}
	if processed {
		return true
	}
	if err := w.deduper.MarkEventProcessed(ctx, base.EventID, base.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return false
}

func (w *AuditWorker) handleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	if w.seen(ctx, event.BaseEvent) {
		return nil
	}
	w.logger.Info("audit: order created",
		zap.String("order_id", event.OrderID),
		zap.String("order_ref", event.OrderRef),
		zap.String("user_id", event.UserID),
		zap.Int64("total_amount", event.TotalAmount),
		zap.Int("item_count", len(event.Items)))
	return nil
}

func (w *AuditWorker) handleOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	if w.seen(ctx, event.BaseEvent) {
		return nil
	}
	w.logger.Info("audit: order status changed",
		zap.String("order_id", event.OrderID),
		zap.String("to_status", event.ToStatus),
		zap.String("actor_uid", event.ActorUID))
	return nil
}

func (w *AuditWorker) handleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	if w.seen(ctx, event.BaseEvent) {
		return nil
	}
	w.logger.Info("audit: order cancelled, stock restored",
		zap.String("order_id", event.OrderID),
		zap.Int("item_count", len(event.Items)))
	return nil
}

func (w *AuditWorker) handleDonationCompleted(ctx context.Context, event *models.DonationCompletedEvent) error {
	if w.seen(ctx, event.BaseEvent) {
		return nil
	}
	w.logger.Info("audit: donation completed",
		zap.String("donation_id", event.DonationID),
		zap.String("gateway_payment_id", event.GatewayPaymentID),
		zap.Int64("amount", event.Amount),
		zap.String("source", event.Source))
	return nil
}
