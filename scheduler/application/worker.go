package application

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/yedidyatob/WhatsAppAssistant/scheduler/domain"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultBatchSize    = 10
)

// DeliveryWorker polls for due messages and pushes each through the service
// dispatch path. Safe to run several instances against one database; the
// repository lock guarantees single delivery per lease.
type DeliveryWorker struct {
	service      *TimedMessageService
	transport    domain.ITransport
	pollInterval time.Duration
	batchSize    int
}

func NewDeliveryWorker(service *TimedMessageService, transport domain.ITransport, pollInterval time.Duration, batchSize int) *DeliveryWorker {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &DeliveryWorker{
		service:      service,
		transport:    transport,
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

// Run loops until ctx is cancelled. Panics inside one iteration are caught
// so a single poisoned record cannot kill the loop.
func (w *DeliveryWorker) Run(ctx context.Context) {
	logrus.Info("[WORKER] Delivery worker started")
	for {
		select {
		case <-ctx.Done():
			logrus.Info("[WORKER] Delivery worker stopped")
			return
		default:
		}
		w.runOnce(ctx)
	}
}

func (w *DeliveryWorker) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[WORKER] Loop panic recovered: %v", r)
			w.sleep(ctx)
		}
	}()

	due, err := w.service.ListDueMessages(ctx, w.batchSize)
	if err != nil {
		logrus.WithError(err).Error("[WORKER] Failed to list due messages")
		w.sleep(ctx)
		return
	}

	if len(due) == 0 {
		logrus.Debug("[WORKER] No due messages")
		w.sleep(ctx)
		return
	}

	logrus.Infof("[WORKER] Found %d due message(s)", len(due))
	for _, msg := range due {
		logrus.Infof("[WORKER] Sending message %s to %s (due %s)",
			msg.ShortID(), msg.ChatID, humanize.Time(msg.SendAt))
		if err := w.service.SendMessageIfDue(ctx, msg.ID, w.transport, ""); err != nil {
			// already recorded as FAILED by the service
			logrus.WithError(err).Errorf("[WORKER] Failed sending message %s", msg.ShortID())
			continue
		}
		logrus.Infof("[WORKER] Processed message %s", msg.ShortID())
	}
}

func (w *DeliveryWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}
