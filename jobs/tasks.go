package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskQuotationNotify mails a submitted quotation to the operator.
	TaskQuotationNotify = "quotation:notify"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"

	// NotifyMaxRetry bounds delivery attempts for one quotation.
	NotifyMaxRetry = 5
	// NotifyTimeout bounds one delivery attempt. A claim older than this was
	// left behind by a worker that died mid-delivery.
	NotifyTimeout = 2 * time.Minute
)

// QuotationNotifyPayload identifies the quotation to deliver.
type QuotationNotifyPayload struct {
	QuotationID int64 `json:"quotation_id"`
	ProductID   int64 `json:"product_id"`
}

// NotifyTaskID is the unique asynq task id for a quotation notification.
func NotifyTaskID(quotationID int64) string {
	return fmt.Sprintf("quotation-notify-%d", quotationID)
}

// NewQuotationNotifyTask constructs the notification task with bounded
// retries and one task id per quotation.
func NewQuotationNotifyTask(payload QuotationNotifyPayload) (*asynq.Task, error) {
	if payload.QuotationID <= 0 {
		return nil, fmt.Errorf("jobs: quotation id required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuotationNotify, data,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(NotifyMaxRetry),
		asynq.TaskID(NotifyTaskID(payload.QuotationID)),
		asynq.Timeout(NotifyTimeout),
	), nil
}

// IdempotencyCleanupPayload configures key retention.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the periodic cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
