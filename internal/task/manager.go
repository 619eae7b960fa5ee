package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/piwi3910/CrateFit/internal/engine"
	"github.com/piwi3910/CrateFit/internal/logging"
	"github.com/piwi3910/CrateFit/internal/model"
	"github.com/piwi3910/CrateFit/internal/observability"
)

// ErrClosed is returned by Submit after Shutdown.
var ErrClosed = errors.New("task manager is shut down")

const tracerName = "github.com/piwi3910/CrateFit/internal/task"

// Packer runs one packing search. *engine.Optimizer satisfies it.
type Packer interface {
	Optimize(ctx context.Context, size model.Dimensions, items []model.Item, onProgress engine.ProgressFunc) (model.PackResult, error)
}

// Config wires the manager's collaborators. Every field is optional.
type Config struct {
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  trace.Tracer
	Archive Archive
	// NewPacker builds the search for a task's settings. Defaults to engine.New.
	NewPacker func(model.PackSettings) Packer
	// MaxConcurrent caps the number of running tasks; further tasks stay
	// pending until a slot frees. 0 means no cap.
	MaxConcurrent int
}

// Manager submits, tracks and cancels packing tasks. Each task runs on its
// own goroutine; readers get copies of task state and never block a worker
// for longer than a field copy.
type Manager struct {
	registry  *Registry
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer
	archive   Archive
	newPacker func(model.PackSettings) Packer
	slots     *semaphore.Weighted // nil without a cap

	mu      sync.Mutex // guards closed and wg.Add
	closed  bool
	wg      sync.WaitGroup
	baseCtx context.Context
	stop    context.CancelFunc
}

func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	if cfg.NewPacker == nil {
		cfg.NewPacker = func(s model.PackSettings) Packer { return engine.New(s) }
	}
	var slots *semaphore.Weighted
	if cfg.MaxConcurrent > 0 {
		slots = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		registry:  NewRegistry(),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		archive:   cfg.Archive,
		newPacker: cfg.NewPacker,
		slots:     slots,
		baseCtx:   ctx,
		stop:      stop,
	}
}

// Submit validates req, registers a pending task and starts it in the
// background. It returns the new task's id.
func (m *Manager) Submit(req Request) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	e := &entry{
		snap: Snapshot{
			ID:        uuid.NewString(),
			Status:    StatusPending,
			StartTime: time.Now(),
			ItemCount: len(req.Items),
			Container: req.Container,
			Algorithm: req.Settings.Algorithm,
		},
		cancel:  cancel,
		request: req,
		done:    make(chan struct{}),
	}
	m.registry.add(e)
	m.metrics.TaskSubmitted()
	m.logger.Info("task submitted",
		"task_id", e.snap.ID,
		"items", len(req.Items),
		"container", req.Container.String(),
		"algorithm", req.Settings.Algorithm,
	)

	m.wg.Add(1)
	go m.run(ctx, e)
	return e.snap.ID, nil
}

func validateRequest(req Request) error {
	if err := req.Container.ValidateGrid(); err != nil {
		return fmt.Errorf("%w: container: %v", ErrInvalidRequest, err)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidRequest)
	}
	for i, item := range req.Items {
		if err := item.Size.Validate(); err != nil {
			return fmt.Errorf("%w: item %d (%s): %v", ErrInvalidRequest, i, item.ID, err)
		}
		if len(item.Orientations) == 0 {
			return fmt.Errorf("%w: item %d (%s) has no orientations", ErrInvalidRequest, i, item.ID)
		}
	}
	return nil
}

// run is the worker for one task.
func (m *Manager) run(ctx context.Context, e *entry) {
	defer m.wg.Done()
	defer e.cancel()

	id := e.snap.ID // immutable after submit
	ctx, span := m.tracer.Start(ctx, "task.run", trace.WithAttributes(
		attribute.String("task.id", id),
		attribute.Int("task.items", len(e.request.Items)),
		attribute.String("task.algorithm", string(e.request.Settings.Algorithm)),
	))

	if m.slots != nil {
		// Fails only when the task is cancelled while still pending.
		if err := m.slots.Acquire(ctx, 1); err != nil {
			m.finish(ctx, span, e, time.Now(), model.PackResult{}, context.Canceled)
			return
		}
		defer m.slots.Release(1)
	}

	e.mu.Lock()
	if e.snap.CancelRequested {
		e.mu.Unlock()
		m.finish(ctx, span, e, time.Now(), model.PackResult{}, context.Canceled)
		return
	}
	e.snap.Status = StatusRunning
	e.started = time.Now()
	started := e.started
	e.mu.Unlock()
	m.logger.Debug("task running", "task_id", id)

	result, err := m.optimize(ctx, e)
	m.finish(ctx, span, e, started, result, err)
}

// optimize runs the task's packer and reports a panic as an error.
func (m *Manager) optimize(ctx context.Context, e *entry) (result model.PackResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("packer panic", "task_id", e.snap.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("packer panic: %v", r)
		}
	}()
	packer := m.newPacker(e.request.Settings)
	return packer.Optimize(ctx, e.request.Container, e.request.Items, func(p engine.Progress) {
		m.publish(e, p)
	})
}

// publish records one generation's progress. A new best becomes the
// intermediate result. Nothing is published once cancellation was requested.
func (m *Manager) publish(e *entry, p engine.Progress) {
	m.metrics.GenerationEvaluated()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snap.CancelRequested || e.snap.Status != StatusRunning {
		return
	}
	if p.Generations > 0 {
		e.snap.Progress = float64(p.Generation) / float64(p.Generations) * 100
	}
	if p.Improved && p.Best > 0 {
		e.snap.IntermediateResult = &model.PackResult{
			Status:        model.ResultInProgress,
			Container:     e.snap.Container,
			Placements:    append([]model.Placement(nil), p.Placements...),
			Utilization:   p.Best,
			ExecutionTime: time.Since(e.started).Seconds(),
			Generation:    p.Generation,
		}
	}
	m.logger.Debug("generation evaluated",
		"task_id", e.snap.ID,
		"generation", p.Generation,
		"utilization", p.Best,
		"mean", p.Mean,
		"stddev", p.StdDev,
	)
}

// finish moves the task to its terminal status, archives it and signals
// waiters. A requested cancellation always wins over the search outcome.
func (m *Manager) finish(ctx context.Context, span trace.Span, e *entry, started time.Time, result model.PackResult, err error) {
	now := time.Now()
	elapsed := now.Sub(started).Seconds()

	e.mu.Lock()
	var status Status
	switch {
	case e.snap.CancelRequested || errors.Is(err, context.Canceled):
		status = StatusCancelled
	case err != nil:
		status = StatusFailed
		result = model.PackResult{
			Status:        model.ResultFailed,
			Container:     e.snap.Container,
			ExecutionTime: elapsed,
			Message:       err.Error(),
		}
	case result.Succeeded():
		status = StatusCompleted
	default:
		status = StatusFailed
	}

	e.snap.Status = status
	e.snap.EndTime = &now
	e.snap.ExecutionTime = &elapsed
	if status != StatusCancelled {
		e.snap.Progress = 100
		final := result
		e.snap.Result = &final
	}
	snap := e.snap
	e.mu.Unlock()

	span.SetAttributes(
		attribute.String("task.status", string(status)),
		attribute.Float64("task.utilization", result.Utilization),
	)
	if status == StatusFailed {
		span.SetStatus(codes.Error, result.Message)
	}
	if err != nil && status != StatusCancelled {
		span.RecordError(err)
	}
	span.End()

	if m.archive != nil {
		if aerr := m.archive.Save(context.WithoutCancel(ctx), snap); aerr != nil {
			m.logger.Error("archive task", "task_id", snap.ID, "error", aerr)
		}
	}

	m.metrics.TaskFinished(string(status), elapsed)
	if status == StatusCompleted {
		m.metrics.ObserveUtilization(result.Utilization)
	}
	m.logger.Info("task finished",
		"task_id", snap.ID,
		"status", status,
		"utilization", result.Utilization,
		"execution_time", elapsed,
	)

	close(e.done)
}

// Status returns a copy of the task's current state. Tasks from earlier
// runs are served from the archive.
func (m *Manager) Status(ctx context.Context, id string) (Snapshot, error) {
	if e, ok := m.registry.get(id); ok {
		return e.snapshot(), nil
	}
	if m.archive == nil {
		return Snapshot{}, ErrNotFound
	}
	return m.archive.Load(ctx, id)
}

// Cancel requests cancellation of a pending or running task. The worker
// performs the transition; once Cancel returns nil the task can only end
// cancelled. Repeated requests are accepted.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	e, ok := m.registry.get(id)
	if !ok {
		if m.archive != nil {
			if snap, err := m.archive.Load(ctx, id); err == nil {
				return fmt.Errorf("task is %s: %w", snap.Status, ErrTerminal)
			}
		}
		return ErrNotFound
	}

	e.mu.Lock()
	if e.snap.Status.IsTerminal() {
		status := e.snap.Status
		e.mu.Unlock()
		return fmt.Errorf("task is %s: %w", status, ErrTerminal)
	}
	e.snap.CancelRequested = true
	e.mu.Unlock()

	e.cancel()
	m.logger.Info("task cancellation requested", "task_id", id)
	return nil
}

// List returns summaries of archived tasks not held in memory, oldest
// first, followed by this process's tasks in submission order.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	live := m.registry.Snapshots()

	var out []Summary
	if m.archive != nil {
		archived, err := m.archive.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list archive: %w", err)
		}
		known := make(map[string]bool, len(live))
		for _, s := range live {
			known[s.ID] = true
		}
		sort.SliceStable(archived, func(i, j int) bool {
			return archived[i].StartTime.Before(archived[j].StartTime)
		})
		for _, s := range archived {
			if !known[s.ID] {
				out = append(out, s.Summary())
			}
		}
	}

	for _, s := range live {
		out = append(out, s.Summary())
	}
	return out, nil
}

// Wait blocks until the task is terminal or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (Snapshot, error) {
	e, ok := m.registry.get(id)
	if !ok {
		return m.Status(ctx, id)
	}
	select {
	case <-e.done:
		return e.snapshot(), nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Shutdown stops accepting tasks, cancels the running ones and waits for
// their workers to finish or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
