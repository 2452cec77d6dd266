package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/uni-helpdesk/internal/service"
)

// StartNotificationWorker subscribes student mail delivery to the queue's
// events. Delivery then runs on the queue's workers, after the publishing
// request has returned.
func StartNotificationWorker(queue *Queue, notificationService *service.NotificationService) {
	if queue == nil || notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
	queue.logger.Info("notification worker started", zap.Int("workers", queue.workers))
}
