package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisl-bd/eshop/internal/catalog"
	"github.com/sisl-bd/eshop/internal/documents"
	jobmetrics "github.com/sisl-bd/eshop/internal/jobs"
	"github.com/sisl-bd/eshop/internal/quotations"
	"github.com/sisl-bd/eshop/internal/shared"
)

// ============================================================================
// FAKES
// ============================================================================

type fakeQuotations struct {
	mu       sync.Mutex
	items    map[int64]*quotations.Quotation
	markErr  error
	marked   []int64
	getCalls int
}

func (f *fakeQuotations) Get(_ context.Context, id int64) (*quotations.Quotation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	q, ok := f.items[id]
	if !ok {
		return nil, quotations.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (f *fakeQuotations) MarkNotified(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	now := time.Now()
	f.items[id].NotifiedAt = &now
	f.marked = append(f.marked, id)
	return nil
}

type fakeDocuments struct {
	quotations *fakeQuotations
	err        error
}

func (f *fakeDocuments) Ensure(ctx context.Context, id int64) (*quotations.Quotation, documents.Document, error) {
	if f.err != nil {
		return nil, documents.Document{}, f.err
	}
	q, err := f.quotations.Get(ctx, id)
	if err != nil {
		return nil, documents.Document{}, err
	}
	return q, documents.Document{Name: "quotation.pdf", Path: "/media/quotations/quotation.pdf"}, nil
}

type fakeProducts map[int64]catalog.Product

func (f fakeProducts) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	p, ok := f[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

type fakeNotifier struct {
	err   error
	sent  []int64
	paths []string
	names []string
}

func (f *fakeNotifier) Notify(_ context.Context, q *quotations.Quotation, product catalog.Product, path string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, q.ID)
	f.paths = append(f.paths, path)
	f.names = append(f.names, product.Name)
	return nil
}

type fakeKeys struct {
	claimed map[string]bool
	stale   map[string]bool
	leases  []time.Duration
	deleted []string
	cleaned time.Duration
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{claimed: map[string]bool{}, stale: map[string]bool{}}
}

func (f *fakeKeys) CheckAndInsert(_ context.Context, key, _ string, staleAfter time.Duration) error {
	f.leases = append(f.leases, staleAfter)
	if f.claimed[key] && !(staleAfter > 0 && f.stale[key]) {
		return shared.ErrIdempotencyConflict
	}
	f.claimed[key] = true
	delete(f.stale, key)
	return nil
}

func (f *fakeKeys) Delete(_ context.Context, key string) error {
	delete(f.claimed, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeKeys) Cleanup(_ context.Context, olderThan time.Duration) error {
	f.cleaned = olderThan
	return nil
}

type fixture struct {
	job      *QuotationNotifyJob
	store    *fakeQuotations
	docs     *fakeDocuments
	notifier *fakeNotifier
	keys     *fakeKeys
}

func newFixture() *fixture {
	store := &fakeQuotations{items: map[int64]*quotations.Quotation{
		7: {ID: 7, CustomerName: "rahim", Lines: []quotations.Line{{ProductID: 3, ProductName: "FR-E820"}}},
	}}
	docs := &fakeDocuments{quotations: store}
	notifier := &fakeNotifier{}
	keys := newFakeKeys()
	job := &QuotationNotifyJob{
		Quotations: store,
		Documents:  docs,
		Products:   fakeProducts{3: {ID: 3, Name: "FR-E820-0.4K"}},
		Notifier:   notifier,
		Keys:       keys,
		Metrics:    jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}
	return &fixture{job: job, store: store, docs: docs, notifier: notifier, keys: keys}
}

func notifyTask(t *testing.T, payload QuotationNotifyPayload) *asynq.Task {
	t.Helper()
	task, err := NewQuotationNotifyTask(payload)
	require.NoError(t, err)
	return task
}

// ============================================================================
// NOTIFY JOB
// ============================================================================

func TestNotifyJobDeliversAndMarks(t *testing.T) {
	f := newFixture()

	err := f.job.Handle(context.Background(), notifyTask(t, QuotationNotifyPayload{QuotationID: 7, ProductID: 3}))
	require.NoError(t, err)

	assert.Equal(t, []int64{7}, f.notifier.sent)
	assert.Equal(t, []string{"/media/quotations/quotation.pdf"}, f.notifier.paths)
	assert.Equal(t, []string{"FR-E820-0.4K"}, f.notifier.names)
	assert.Equal(t, []int64{7}, f.store.marked)
	assert.True(t, f.keys.claimed["quotation.notify:7"])
}

func TestNotifyJobFallsBackToFirstLineProduct(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.job.Handle(context.Background(), notifyTask(t, QuotationNotifyPayload{QuotationID: 7})))
	assert.Equal(t, []string{"FR-E820-0.4K"}, f.notifier.names)
}

func TestNotifyJobSkipsNotifiedQuotation(t *testing.T) {
	f := newFixture()
	now := time.Now()
	f.store.items[7].NotifiedAt = &now

	require.NoError(t, f.job.Handle(context.Background(), notifyTask(t, QuotationNotifyPayload{QuotationID: 7})))
	assert.Empty(t, f.notifier.sent)
}

func TestNotifyJobRunsOnceAcrossRedelivery(t *testing.T) {
	f := newFixture()
	task := notifyTask(t, QuotationNotifyPayload{QuotationID: 7})

	require.NoError(t, f.job.Handle(context.Background(), task))
	require.NoError(t, f.job.Handle(context.Background(), task))
	assert.Len(t, f.notifier.sent, 1)
}

func TestNotifyJobReleasesClaimOnTransportError(t *testing.T) {
	f := newFixture()
	f.notifier.err = errors.New("smtp: connection refused")

	err := f.job.Handle(context.Background(), notifyTask(t, QuotationNotifyPayload{QuotationID: 7}))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "transport errors are retried")
	assert.Equal(t, []string{"quotation.notify:7"}, f.keys.deleted)
	assert.Empty(t, f.store.marked)

	f.notifier.err = nil
	require.NoError(t, f.job.Handle(context.Background(), notifyTask(t, QuotationNotifyPayload{QuotationID: 7})))
	assert.Equal(t, []int64{7}, f.notifier.sent)
}

func TestNotifyJobReleasesClaimOnDocumentError(t *testing.T) {
	f := newFixture()
	f.docs.err = errors.New("gotenberg unavailable")

	err := f.job.Handle(context.Background(), notifyTask(t, QuotationNotifyPayload{QuotationID: 7}))
	require.Error(t, err)
	assert.Empty(t, f.notifier.sent)
	assert.NotContains(t, f.keys.claimed, "quotation.notify:7")
}

func TestNotifyJobConflictRetriesLater(t *testing.T) {
	f := newFixture()
	f.keys.claimed["quotation.notify:7"] = true

	err := f.job.Handle(context.Background(), notifyTask(t, QuotationNotifyPayload{QuotationID: 7}))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	assert.Empty(t, f.notifier.sent)
}

func TestNotifyJobTakesOverClaimLeftByDeadWorker(t *testing.T) {
	f := newFixture()
	f.keys.claimed["quotation.notify:7"] = true
	f.keys.stale["quotation.notify:7"] = true

	err := f.job.Handle(context.Background(), notifyTask(t, QuotationNotifyPayload{QuotationID: 7}))
	require.NoError(t, err)
	assert.Len(t, f.notifier.sent, 1)
	assert.Equal(t, []time.Duration{NotifyTimeout}, f.keys.leases)
	assert.True(t, f.keys.claimed["quotation.notify:7"])
}

func TestNotifyJobSkipsRetryForUnknownQuotation(t *testing.T) {
	f := newFixture()

	err := f.job.Handle(context.Background(), notifyTask(t, QuotationNotifyPayload{QuotationID: 99}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNotifyJobSkipsRetryForBadPayload(t *testing.T) {
	f := newFixture()

	err := f.job.Handle(context.Background(), asynq.NewTask(TaskQuotationNotify, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNotifyJobDoesNotResendWhenMarkFails(t *testing.T) {
	f := newFixture()
	f.store.markErr = errors.New("db down")

	err := f.job.Handle(context.Background(), notifyTask(t, QuotationNotifyPayload{QuotationID: 7}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Len(t, f.notifier.sent, 1)
	assert.True(t, f.keys.claimed["quotation.notify:7"])
}

func TestIdempotencyCleanupJob(t *testing.T) {
	keys := newFakeKeys()
	job := &IdempotencyCleanupJob{Keys: keys, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}
	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 48*time.Hour, keys.cleaned)
}

// ============================================================================
// CLIENT & HEALTH
// ============================================================================

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: NotifyTaskID(7), Queue: QueueDefault}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func TestEnqueueQuotationNotify(t *testing.T) {
	enq := &fakeEnqueuer{}
	client := NewClientWith(enq)

	require.NoError(t, client.EnqueueQuotationNotify(context.Background(), QuotationNotifyPayload{QuotationID: 7, ProductID: 3}))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskQuotationNotify, enq.tasks[0].Type())

	var payload QuotationNotifyPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, QuotationNotifyPayload{QuotationID: 7, ProductID: 3}, payload)
}

func TestEnqueueDuplicateTaskIsNotAnError(t *testing.T) {
	client := NewClientWith(&fakeEnqueuer{err: asynq.ErrTaskIDConflict})
	assert.NoError(t, client.EnqueueQuotationNotify(context.Background(), QuotationNotifyPayload{QuotationID: 7}))
}

func TestEnqueueSurfacesQueueErrors(t *testing.T) {
	client := NewClientWith(&fakeEnqueuer{err: errors.New("redis down")})
	assert.Error(t, client.EnqueueQuotationNotify(context.Background(), QuotationNotifyPayload{QuotationID: 7}))
}

func TestEnqueueRequiresQuotation(t *testing.T) {
	client := NewClientWith(&fakeEnqueuer{})
	assert.Error(t, client.EnqueueQuotationNotify(context.Background(), QuotationNotifyPayload{}))
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func TestHealthHandler(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 2, Retry: 1}}, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Pending)
	assert.Equal(t, 1, body.Retry)
}

func TestHealthHandlerUnavailable(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(fakeInspector{err: errors.New("redis down")}, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
