package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sisl-bd/eshop/internal/catalog"
	"github.com/sisl-bd/eshop/internal/documents"
	jobmetrics "github.com/sisl-bd/eshop/internal/jobs"
	"github.com/sisl-bd/eshop/internal/quotations"
	"github.com/sisl-bd/eshop/internal/shared"
)

const notifyModule = "quotation.notify"

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// QuotationStore loads quotations and records delivery.
type QuotationStore interface {
	Get(ctx context.Context, id int64) (*quotations.Quotation, error)
	MarkNotified(ctx context.Context, id int64) error
}

// DocumentEnsurer returns an existing quotation document or regenerates it.
type DocumentEnsurer interface {
	Ensure(ctx context.Context, id int64) (*quotations.Quotation, documents.Document, error)
}

// ProductReader resolves the product named in the mail subject.
type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
}

// Notifier delivers the operator mail.
type Notifier interface {
	Notify(ctx context.Context, q *quotations.Quotation, product catalog.Product, documentPath string) error
}

// KeyClaimer guards a delivery against concurrent duplicates.
type KeyClaimer interface {
	CheckAndInsert(ctx context.Context, key, module string, staleAfter time.Duration) error
	Delete(ctx context.Context, key string) error
}

// QuotationNotifyJob mails a submitted quotation with its PDF to the operator.
type QuotationNotifyJob struct {
	Quotations QuotationStore
	Documents  DocumentEnsurer
	Products   ProductReader
	Notifier   Notifier
	Keys       KeyClaimer
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// Handle processes TaskQuotationNotify tasks. A delivered quotation is
// skipped; failed sends release the claim so asynq can retry.
func (j *QuotationNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Quotations == nil || j.Documents == nil || j.Notifier == nil {
		return errors.New("quotation notify: handler not configured")
	}
	var payload QuotationNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.QuotationID <= 0 {
		return fmt.Errorf("quotation notify: bad payload: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskQuotationNotify)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger().With(slog.Int64("quotation_id", payload.QuotationID))

	q, err := j.Quotations.Get(ctx, payload.QuotationID)
	if errors.Is(err, shared.ErrNotFound) {
		logger.Warn("quotation gone, dropping notification")
		resultErr = fmt.Errorf("quotation %d: %v: %w", payload.QuotationID, err, asynq.SkipRetry)
		return resultErr
	}
	if err != nil {
		resultErr = err
		return resultErr
	}
	if q.Notified() {
		logger.Info("quotation already notified")
		j.metrics().AddNotification(jobmetrics.OutcomeSkipped)
		return nil
	}

	key := notifyModule + ":" + strconv.FormatInt(q.ID, 10)
	if j.Keys != nil {
		if err := j.Keys.CheckAndInsert(ctx, key, notifyModule, NotifyTimeout); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				logger.Info("notification in flight elsewhere")
			}
			resultErr = fmt.Errorf("claim %s: %w", key, err)
			return resultErr
		}
	}

	if err := j.deliver(ctx, payload, logger); err != nil {
		if j.Keys != nil {
			if derr := j.Keys.Delete(context.WithoutCancel(ctx), key); derr != nil {
				logger.Error("release notification claim", slog.Any("error", derr))
			}
		}
		j.metrics().AddNotification(jobmetrics.OutcomeFailed)
		logger.Error("quotation notification failed", slog.Any("error", err))
		resultErr = err
		return resultErr
	}
	j.metrics().AddNotification(jobmetrics.OutcomeSent)

	if err := j.Quotations.MarkNotified(ctx, q.ID); err != nil {
		// The mail went out and the claim stays, so retrying would only stall.
		logger.Error("mark quotation notified", slog.Any("error", err))
		resultErr = fmt.Errorf("mark quotation %d notified: %v: %w", q.ID, err, asynq.SkipRetry)
		return resultErr
	}
	return nil
}

func (j *QuotationNotifyJob) deliver(ctx context.Context, payload QuotationNotifyPayload, logger *slog.Logger) error {
	q, doc, err := j.Documents.Ensure(ctx, payload.QuotationID)
	if err != nil {
		return fmt.Errorf("ensure document: %w", err)
	}
	productID := payload.ProductID
	if productID <= 0 {
		productID = q.FirstProductID()
	}
	var product catalog.Product
	if j.Products != nil && productID > 0 {
		product, err = j.Products.GetProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("load product %d: %w", productID, err)
		}
	}
	if product.Name == "" && len(q.Lines) > 0 {
		product.Name = q.Lines[0].ProductName
	}
	if err := j.Notifier.Notify(ctx, q, product, doc.Path); err != nil {
		return err
	}
	logger.Info("quotation notification delivered", slog.String("document", doc.Name))
	return nil
}

func (j *QuotationNotifyJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *QuotationNotifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// Cleaner prunes idempotency keys older than a retention window.
type Cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob removes stale delivery claims.
type IdempotencyCleanupJob struct {
	Keys    Cleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("idempotency cleanup: bad payload: %w", asynq.SkipRetry)
	}
	retention := time.Duration(payload.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskIdempotencyCleanup)
	err := j.Keys.Cleanup(ctx, retention)
	if err == nil && j.Logger != nil {
		j.Logger.Info("idempotency keys pruned", slog.Duration("retention", retention))
	}
	return tracker.End(err)
}
