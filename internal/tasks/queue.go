package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"promoter/internal/metrics"
)

const (
	DefaultWorkers    = 4
	DefaultBaseDelay  = time.Minute
	DefaultMaxRetries = 3
	DefaultRetention  = 24 * time.Hour

	backlog = 256
)

var (
	ErrStopped     = errors.New("task queue is stopped")
	ErrUnknownTask = errors.New("unknown task")
)

type State string

const (
	StatePending State = "PENDING"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

// Func is a unit of work. taskID stays the same across retries.
type Func func(ctx context.Context, taskID string) Outcome

// Info is a snapshot of a task.
type Info struct {
	ID        string
	Name      string
	State     State
	Result    any
	Error     string
	Retries   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Reporter receives tasks that failed for good.
type Reporter interface {
	Report(ctx context.Context, info Info, err error)
}

type Config struct {
	Workers    int
	BaseDelay  time.Duration
	MaxRetries int
	// Retention is how long finished tasks stay visible to Status and Wait.
	Retention time.Duration
}

type task struct {
	info    Info
	fn      Func
	settled bool
	done    chan struct{}
}

// Queue runs submitted functions on a fixed worker pool and retries those
// that ask for it with exponential backoff.
type Queue struct {
	cfg      Config
	jobs     chan *task
	stop     chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	tasks    map[string]*task
	timers   map[string]*time.Timer
	stopped  bool
	metrics  *metrics.Metrics
	reporter Reporter
	now      func() time.Time
	log      *slog.Logger
}

func New(cfg Config, m *metrics.Metrics, reporter Reporter, log *slog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}

	return &Queue{
		cfg:      cfg,
		jobs:     make(chan *task, backlog),
		stop:     make(chan struct{}),
		tasks:    make(map[string]*task),
		timers:   make(map[string]*time.Timer),
		metrics:  m,
		reporter: reporter,
		now:      time.Now,
		log:      log,
	}
}

// Start launches the workers. They exit when ctx is done or Stop is called.
func (q *Queue) Start(ctx context.Context) {
	for range q.cfg.Workers {
		q.wg.Go(func() {
			q.work(ctx)
		})
	}
}

// Stop cancels pending retries and waits for running tasks to return.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.stop)

	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)

		if t, ok := q.tasks[id]; ok {
			q.finishLocked(t, nil, ErrStopped)
		}
	}
	q.mu.Unlock()

	q.wg.Wait()

	for {
		select {
		case t := <-q.jobs:
			q.fail(t, ErrStopped)
		default:
			return
		}
	}
}

// Submit queues fn and returns its task id.
func (q *Queue) Submit(ctx context.Context, name string, fn Func) (string, error) {
	t := q.newTask(name, fn)

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return "", ErrStopped
	}
	q.pruneLocked(t.info.CreatedAt)
	q.tasks[t.info.ID] = t
	q.mu.Unlock()

	select {
	case q.jobs <- t:
	case <-q.stop:
		q.fail(t, ErrStopped)
		return "", ErrStopped
	case <-ctx.Done():
		q.fail(t, ctx.Err())
		return "", fmt.Errorf("submit %s: %w", name, ctx.Err())
	}

	q.log.DebugContext(ctx, "Task is submitted",
		"taskID", t.info.ID,
		"task", name)

	return t.info.ID, nil
}

// SubmitAfter registers fn as pending and hands it to the workers once delay
// has passed. Stop fails it like a pending retry.
func (q *Queue) SubmitAfter(ctx context.Context, name string, delay time.Duration, fn Func) (string, error) {
	t := q.newTask(name, fn)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return "", ErrStopped
	}
	q.pruneLocked(t.info.CreatedAt)
	q.tasks[t.info.ID] = t
	q.timers[t.info.ID] = time.AfterFunc(delay, func() {
		q.requeue(t)
	})

	q.log.DebugContext(ctx, "Task is scheduled",
		"taskID", t.info.ID,
		"task", name,
		"delay", delay)

	return t.info.ID, nil
}

// BaseDelay is the wait before the first retry.
func (q *Queue) BaseDelay() time.Duration {
	return q.cfg.BaseDelay
}

func (q *Queue) newTask(name string, fn Func) *task {
	now := q.now()

	return &task{
		info: Info{
			ID:        uuid.NewString(),
			Name:      name,
			State:     StatePending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		fn:   fn,
		done: make(chan struct{}),
	}
}

func (q *Queue) Status(id string) (Info, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	t, ok := q.tasks[id]
	if !ok {
		return Info{}, false
	}

	return t.info, true
}

// Wait blocks until the task finishes or ctx is done.
func (q *Queue) Wait(ctx context.Context, id string) (Info, error) {
	q.mu.RLock()
	t, ok := q.tasks[id]
	q.mu.RUnlock()

	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}

	select {
	case <-t.done:
		return q.snapshot(t), nil
	case <-ctx.Done():
		return q.snapshot(t), ctx.Err()
	}
}

func (q *Queue) snapshot(t *task) Info {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return t.info
}

// pruneLocked forgets tasks that finished more than Retention ago.
func (q *Queue) pruneLocked(now time.Time) {
	for id, t := range q.tasks {
		if t.settled && now.Sub(t.info.UpdatedAt) > q.cfg.Retention {
			delete(q.tasks, id)
		}
	}
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		case t := <-q.jobs:
			q.run(ctx, t)
		}
	}
}

func (q *Queue) run(ctx context.Context, t *task) {
	outcome := q.call(ctx, t)

	if outcome.Retryable() {
		if q.scheduleRetry(ctx, t, outcome.Err()) {
			return
		}
	}

	q.mu.Lock()
	settled := q.settleLocked(t, outcome.Value(), outcome.Err())
	info := t.info
	q.mu.Unlock()

	if !settled {
		return
	}

	defer close(t.done)

	if outcome.Err() == nil {
		q.log.InfoContext(ctx, "Task is finished",
			"taskID", info.ID,
			"task", info.Name,
			"retries", info.Retries)

		return
	}

	q.log.ErrorContext(ctx, "Task failed",
		"error", outcome.Err(),
		"taskID", info.ID,
		"task", info.Name,
		"retries", info.Retries)

	if q.reporter != nil {
		q.reporter.Report(ctx, info, outcome.Err())
	}
}

func (q *Queue) call(ctx context.Context, t *task) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Fatal(fmt.Errorf("task panicked: %v", r))
		}
	}()

	return t.fn(ctx, t.info.ID)
}

// scheduleRetry reports false when the retry budget is spent.
func (q *Queue) scheduleRetry(ctx context.Context, t *task, err error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || t.info.Retries >= q.cfg.MaxRetries {
		return false
	}

	delay := q.cfg.BaseDelay << t.info.Retries
	t.info.Retries++
	t.info.Error = err.Error()
	t.info.UpdatedAt = q.now()

	q.metrics.TaskRetried(t.info.Name)

	q.log.WarnContext(ctx, "Task will be retried",
		"error", err,
		"taskID", t.info.ID,
		"task", t.info.Name,
		"retry", t.info.Retries,
		"delay", delay)

	q.timers[t.info.ID] = time.AfterFunc(delay, func() {
		q.requeue(t)
	})

	return true
}

// requeue sends a retried task back to the workers. The send happens under
// the lock when the backlog has room, so Stop either drains it or never sees it.
func (q *Queue) requeue(t *task) {
	q.mu.Lock()
	delete(q.timers, t.info.ID)

	if q.stopped {
		q.finishLocked(t, nil, ErrStopped)
		q.mu.Unlock()

		return
	}

	select {
	case q.jobs <- t:
		q.mu.Unlock()

		return
	default:
	}
	q.mu.Unlock()

	select {
	case q.jobs <- t:
	case <-q.stop:
		q.fail(t, ErrStopped)
	}
}

func (q *Queue) fail(t *task, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.finishLocked(t, nil, err)
}

func (q *Queue) finishLocked(t *task, value any, err error) {
	if q.settleLocked(t, value, err) {
		close(t.done)
	}
}

// settleLocked records the final state once. Waiters are released when
// t.done is closed.
func (q *Queue) settleLocked(t *task, value any, err error) bool {
	if t.settled {
		return false
	}
	t.settled = true

	t.info.UpdatedAt = q.now()
	t.info.Result = value

	if err != nil {
		t.info.State = StateFailure
		t.info.Error = err.Error()
	} else {
		t.info.State = StateSuccess
		t.info.Error = ""
	}

	q.metrics.TaskFinished(t.info.Name, string(t.info.State))

	return true
}
