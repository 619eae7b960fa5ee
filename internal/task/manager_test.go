package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/piwi3910/CrateFit/internal/engine"
	"github.com/piwi3910/CrateFit/internal/model"
	"github.com/piwi3910/CrateFit/internal/observability"
)

// packerFunc adapts a function to the Packer interface.
type packerFunc func(ctx context.Context, size model.Dimensions, items []model.Item, onProgress engine.ProgressFunc) (model.PackResult, error)

func (f packerFunc) Optimize(ctx context.Context, size model.Dimensions, items []model.Item, onProgress engine.ProgressFunc) (model.PackResult, error) {
	return f(ctx, size, items, onProgress)
}

func withPacker(p Packer) func(model.PackSettings) Packer {
	return func(model.PackSettings) Packer { return p }
}

// blockingPacker reports one improvement, signals started and then waits
// for cancellation.
func blockingPacker(started chan<- struct{}) Packer {
	return packerFunc(func(ctx context.Context, size model.Dimensions, items []model.Item, onProgress engine.ProgressFunc) (model.PackResult, error) {
		onProgress(engine.Progress{
			Generation:  1,
			Generations: 10,
			Improved:    true,
			Best:        12.5,
			Placements:  []model.Placement{{ItemID: items[0].ID, Size: items[0].Size}},
		})
		close(started)
		<-ctx.Done()
		return model.PackResult{}, ctx.Err()
	})
}

// memArchive is an in-memory Archive.
type memArchive struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

func newMemArchive() *memArchive {
	return &memArchive{snaps: make(map[string]Snapshot)}
}

func (a *memArchive) Save(_ context.Context, snap Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snaps[snap.ID] = snap
	return nil
}

func (a *memArchive) Load(_ context.Context, id string) (Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap, ok := a.snaps[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func (a *memArchive) List(context.Context) ([]Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Snapshot, 0, len(a.snaps))
	for _, s := range a.snaps {
		out = append(out, s)
	}
	return out, nil
}

func testRequest(t *testing.T, container model.Dimensions, sizes ...model.Dimensions) Request {
	t.Helper()
	items := make([]model.Item, len(sizes))
	for i, s := range sizes {
		item, err := model.NewItem(string(rune('a'+i)), "", s)
		require.NoError(t, err)
		items[i] = item
	}
	settings := model.DefaultSettings()
	settings.Seed = 7
	settings.Workers = 2
	return Request{Container: container, Items: items, Settings: settings}
}

func waitTerminal(t *testing.T, m *Manager, id string) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := m.Wait(ctx, id)
	require.NoError(t, err)
	require.True(t, snap.Status.IsTerminal(), "status %s", snap.Status)
	return snap
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
}

func TestManager_SingleItemCompletes(t *testing.T) {
	m := NewManager(Config{})
	id, err := m.Submit(testRequest(t, model.Dimensions{Width: 10, Height: 10, Depth: 10},
		model.Dimensions{Width: 4, Height: 4, Depth: 4}))
	require.NoError(t, err)

	snap := waitTerminal(t, m, id)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 100.0, snap.Progress)
	require.NotNil(t, snap.Result)
	require.NotNil(t, snap.EndTime)
	require.NotNil(t, snap.ExecutionTime)
	assert.Equal(t, model.ResultSuccess, snap.Result.Status)
	assert.GreaterOrEqual(t, snap.Result.Utilization, 6.4)
	require.Len(t, snap.Result.Placements, 1)
	assert.True(t, snap.Result.Placements[0].Within(snap.Result.Container))
}

func TestManager_OversizedItemFails(t *testing.T) {
	m := NewManager(Config{})
	id, err := m.Submit(testRequest(t, model.Dimensions{Width: 5, Height: 5, Depth: 5},
		model.Dimensions{Width: 10, Height: 10, Depth: 10}))
	require.NoError(t, err)

	snap := waitTerminal(t, m, id)
	assert.Equal(t, StatusFailed, snap.Status)
	require.NotNil(t, snap.Result)
	assert.Equal(t, model.ResultFailed, snap.Result.Status)
	assert.Equal(t, model.MessageNoValidPacking, snap.Result.Message)
	assert.Nil(t, snap.IntermediateResult)
}

func TestManager_StackedCubesFillContainer(t *testing.T) {
	m := NewManager(Config{})
	cube := model.Dimensions{Width: 5, Height: 5, Depth: 5}
	id, err := m.Submit(testRequest(t, model.Dimensions{Width: 5, Height: 5, Depth: 10}, cube, cube))
	require.NoError(t, err)

	snap := waitTerminal(t, m, id)
	require.Equal(t, StatusCompleted, snap.Status)
	assert.InDelta(t, 100.0, snap.Result.Utilization, 1e-9)
	require.Len(t, snap.Result.Placements, 2)
	assert.False(t, snap.Result.Placements[0].Overlaps(snap.Result.Placements[1]))
}

func TestManager_SubmitRejectsInvalidRequest(t *testing.T) {
	m := NewManager(Config{})

	_, err := m.Submit(Request{Container: model.Dimensions{Width: 0, Height: 5, Depth: 5}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = m.Submit(Request{Container: model.Dimensions{Width: 5, Height: 5, Depth: 5}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = m.Submit(Request{
		Container: model.Dimensions{Width: 5, Height: 5, Depth: 5},
		Items:     []model.Item{{ID: "x", Size: model.Dimensions{Width: 1, Height: -1, Depth: 1}}},
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = m.Submit(testRequest(t, model.Dimensions{Width: 100000, Height: 100000, Depth: 100000},
		model.Dimensions{Width: 1, Height: 1, Depth: 1}))
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, model.ErrGridTooLarge)

	assert.Zero(t, m.registry.Len())
}

func TestManager_CancelRunningTask(t *testing.T) {
	started := make(chan struct{})
	m := NewManager(Config{NewPacker: withPacker(blockingPacker(started))})

	id, err := m.Submit(testRequest(t, model.Dimensions{Width: 4, Height: 4, Depth: 4},
		model.Dimensions{Width: 2, Height: 2, Depth: 2}))
	require.NoError(t, err)
	<-started

	running, err := m.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, running.Status)
	assert.Equal(t, 10.0, running.Progress)
	require.NotNil(t, running.IntermediateResult)
	assert.Equal(t, model.ResultInProgress, running.IntermediateResult.Status)
	assert.Equal(t, 1, running.IntermediateResult.Generation)

	require.NoError(t, m.Cancel(context.Background(), id))
	snap := waitTerminal(t, m, id)
	assert.Equal(t, StatusCancelled, snap.Status)
	assert.True(t, snap.CancelRequested)
	assert.Nil(t, snap.Result)
	assert.NotNil(t, snap.IntermediateResult)
	assert.NotNil(t, snap.EndTime)
}

func TestManager_CancelPendingTask(t *testing.T) {
	started := make(chan struct{})
	var calls atomic.Int32
	blocking := blockingPacker(started)
	m := NewManager(Config{
		MaxConcurrent: 1,
		NewPacker: func(model.PackSettings) Packer {
			calls.Add(1)
			return blocking
		},
	})

	first, err := m.Submit(testRequest(t, model.Dimensions{Width: 4, Height: 4, Depth: 4},
		model.Dimensions{Width: 2, Height: 2, Depth: 2}))
	require.NoError(t, err)
	<-started

	second, err := m.Submit(testRequest(t, model.Dimensions{Width: 4, Height: 4, Depth: 4},
		model.Dimensions{Width: 2, Height: 2, Depth: 2}))
	require.NoError(t, err)
	pending, err := m.Status(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, pending.Status)

	require.NoError(t, m.Cancel(context.Background(), second))
	snap := waitTerminal(t, m, second)
	assert.Equal(t, StatusCancelled, snap.Status)
	assert.True(t, snap.CancelRequested)
	assert.Nil(t, snap.Result)
	assert.Nil(t, snap.IntermediateResult)
	assert.NotNil(t, snap.EndTime)
	assert.Equal(t, int32(1), calls.Load(), "cancelled pending task must never reach the packer")

	running, err := m.Status(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, running.Status)
	require.NoError(t, m.Cancel(context.Background(), first))
	assert.Equal(t, StatusCancelled, waitTerminal(t, m, first).Status)
}

func TestManager_ShutdownCancelsPendingTasks(t *testing.T) {
	started := make(chan struct{})
	var calls atomic.Int32
	blocking := blockingPacker(started)
	m := NewManager(Config{
		MaxConcurrent: 1,
		NewPacker: func(model.PackSettings) Packer {
			calls.Add(1)
			return blocking
		},
	})

	first, err := m.Submit(testRequest(t, model.Dimensions{Width: 4, Height: 4, Depth: 4},
		model.Dimensions{Width: 2, Height: 2, Depth: 2}))
	require.NoError(t, err)
	<-started
	second, err := m.Submit(testRequest(t, model.Dimensions{Width: 4, Height: 4, Depth: 4},
		model.Dimensions{Width: 2, Height: 2, Depth: 2}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	for _, id := range []string{first, second} {
		snap, err := m.Status(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, snap.Status, "task %s", id)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestManager_CancelWinsOverLateSuccess(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var late int
	packer := packerFunc(func(ctx context.Context, size model.Dimensions, items []model.Item, onProgress engine.ProgressFunc) (model.PackResult, error) {
		close(started)
		<-release
		// Ignores ctx and keeps reporting.
		onProgress(engine.Progress{Generation: 2, Generations: 2, Improved: true, Best: 50})
		late++
		return model.PackResult{Status: model.ResultSuccess, Utilization: 50}, nil
	})
	m := NewManager(Config{NewPacker: withPacker(packer)})

	id, err := m.Submit(testRequest(t, model.Dimensions{Width: 4, Height: 4, Depth: 4},
		model.Dimensions{Width: 2, Height: 2, Depth: 2}))
	require.NoError(t, err)
	<-started
	require.NoError(t, m.Cancel(context.Background(), id))
	close(release)

	snap := waitTerminal(t, m, id)
	assert.Equal(t, 1, late)
	assert.Equal(t, StatusCancelled, snap.Status)
	assert.Nil(t, snap.Result)
	assert.Nil(t, snap.IntermediateResult, "publications after a cancel request are dropped")
}

func TestManager_CancelTerminalAndUnknown(t *testing.T) {
	m := NewManager(Config{})
	id, err := m.Submit(testRequest(t, model.Dimensions{Width: 4, Height: 4, Depth: 4},
		model.Dimensions{Width: 2, Height: 2, Depth: 2}))
	require.NoError(t, err)
	waitTerminal(t, m, id)

	err = m.Cancel(context.Background(), id)
	assert.ErrorIs(t, err, ErrTerminal)
	assert.ErrorIs(t, m.Cancel(context.Background(), "missing"), ErrNotFound)

	_, err = m.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_CancelIsRepeatable(t *testing.T) {
	started := make(chan struct{})
	m := NewManager(Config{NewPacker: withPacker(blockingPacker(started))})
	id, err := m.Submit(testRequest(t, model.Dimensions{Width: 4, Height: 4, Depth: 4},
		model.Dimensions{Width: 2, Height: 2, Depth: 2}))
	require.NoError(t, err)
	<-started

	require.NoError(t, m.Cancel(context.Background(), id))
	require.NoError(t, m.Cancel(context.Background(), id))
	assert.Equal(t, StatusCancelled, waitTerminal(t, m, id).Status)
}

func TestManager_IntermediateResultsNeverRegress(t *testing.T) {
	var (
		m    *Manager
		id   string
		seen []float64
	)
	ready := make(chan struct{})
	bests := []float64{10, 10, 30, 25, 40}
	packer := packerFunc(func(ctx context.Context, size model.Dimensions, items []model.Item, onProgress engine.ProgressFunc) (model.PackResult, error) {
		<-ready
		best := 0.0
		for i, b := range bests {
			improved := b > best
			if improved {
				best = b
			}
			onProgress(engine.Progress{Generation: i + 1, Generations: len(bests), Improved: improved, Best: best})
			snap, err := m.Status(ctx, id)
			if err != nil {
				return model.PackResult{}, err
			}
			seen = append(seen, snap.IntermediateResult.Utilization)
		}
		return model.PackResult{Status: model.ResultSuccess, Utilization: best}, nil
	})
	m = NewManager(Config{NewPacker: withPacker(packer)})

	var err error
	id, err = m.Submit(testRequest(t, model.Dimensions{Width: 4, Height: 4, Depth: 4},
		model.Dimensions{Width: 2, Height: 2, Depth: 2}))
	require.NoError(t, err)
	close(ready)

	snap := waitTerminal(t, m, id)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, []float64{10, 10, 30, 30, 40}, seen)
	assert.Equal(t, 40.0, snap.Result.Utilization)
}

func TestManager_PackerErrorFailsTask(t *testing.T) {
	packer := packerFunc(func(context.Context, model.Dimensions, []model.Item, engine.ProgressFunc) (model.PackResult, error) {
		return model.PackResult{}, errors.New("boom")
	})
	m := NewManager(Config{NewPacker: withPacker(packer)})
	id, err := m.Submit(testRequest(t, model.Dimensions{Width: 4, Height: 4, Depth: 4},
		model.Dimensions{Width: 2, Height: 2, Depth: 2}))
	require.NoError(t, err)

	snap := waitTerminal(t, m, id)
	assert.Equal(t, StatusFailed, snap.Status)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "boom", snap.Result.Message)
}

func TestManager_PackerPanicFailsTask(t *testing.T) {
	var calls atomic.Int32
	packer := packerFunc(func(ctx context.Context, size model.Dimensions, items []model.Item, onProgress engine.ProgressFunc) (model.PackResult, error) {
		if calls.Add(1) == 1 {
			panic("grid exhausted")
		}
		return engine.New(model.DefaultSettings()).Optimize(ctx, size, items, onProgress)
	})
	m := NewManager(Config{NewPacker: withPacker(packer)})

	id, err := m.Submit(testRequest(t, model.Dimensions{Width: 4, Height: 4, Depth: 4},
		model.Dimensions{Width: 2, Height: 2, Depth: 2}))
	require.NoError(t, err)
	snap := waitTerminal(t, m, id)
	assert.Equal(t, StatusFailed, snap.Status)
	require.NotNil(t, snap.Result)
	assert.Contains(t, snap.Result.Message, "packer panic")
	assert.Contains(t, snap.Result.Message, "grid exhausted")

	id, err = m.Submit(testRequest(t, model.Dimensions{Width: 4, Height: 4, Depth: 4},
		model.Dimensions{Width: 2, Height: 2, Depth: 2}))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, waitTerminal(t, m, id).Status)
}

func TestManager_TerminalStatusIsStable(t *testing.T) {
	m := NewManager(Config{})
	id, err := m.Submit(testRequest(t, model.Dimensions{Width: 6, Height: 6, Depth: 6},
		model.Dimensions{Width: 3, Height: 3, Depth: 3}, model.Dimensions{Width: 2, Height: 3, Depth: 3}))
	require.NoError(t, err)
	first := waitTerminal(t, m, id)

	for i := 0; i < 3; i++ {
		again, err := m.Status(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestManager_ListInSubmissionOrder(t *testing.T) {
	m := NewManager(Config{})
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := m.Submit(testRequest(t, model.Dimensions{Width: 4, Height: 4, Depth: 4},
			model.Dimensions{Width: 2, Height: 2, Depth: 2}))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitTerminal(t, m, id)
	}

	list, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, s := range list {
		assert.Equal(t, ids[i], s.ID)
		assert.Equal(t, 1, s.ItemCount)
		assert.Equal(t, StatusCompleted, s.Status)
	}
}

func TestManager_ArchiveServesEarlierTasks(t *testing.T) {
	archive := newMemArchive()
	first := NewManager(Config{Archive: archive})
	id, err := first.Submit(testRequest(t, model.Dimensions{Width: 4, Height: 4, Depth: 4},
		model.Dimensions{Width: 2, Height: 2, Depth: 2}))
	require.NoError(t, err)
	done := waitTerminal(t, first, id)

	// A fresh manager only knows the task through the archive.
	second := NewManager(Config{Archive: archive})
	snap, err := second.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, done.Status, snap.Status)
	assert.Equal(t, done.Result.Utilization, snap.Result.Utilization)

	list, err := second.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	assert.ErrorIs(t, second.Cancel(context.Background(), id), ErrTerminal)
}

func TestManager_RecordsMetricsAndSpans(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	m := NewManager(Config{Metrics: metrics, Tracer: tp.Tracer("test")})
	id, err := m.Submit(testRequest(t, model.Dimensions{Width: 10, Height: 10, Depth: 10},
		model.Dimensions{Width: 4, Height: 4, Depth: 4}))
	require.NoError(t, err)
	waitTerminal(t, m, id)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TasksSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TasksFinished.WithLabelValues("completed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.TasksActive))
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.Generations), 1.0)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "task.run", spans[0].Name())
}

func TestManager_ShutdownCancelsRunningTasks(t *testing.T) {
	started := make(chan struct{})
	m := NewManager(Config{NewPacker: withPacker(blockingPacker(started))})
	id, err := m.Submit(testRequest(t, model.Dimensions{Width: 4, Height: 4, Depth: 4},
		model.Dimensions{Width: 2, Height: 2, Depth: 2}))
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	snap, err := m.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, snap.Status)

	_, err = m.Submit(testRequest(t, model.Dimensions{Width: 4, Height: 4, Depth: 4},
		model.Dimensions{Width: 2, Height: 2, Depth: 2}))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManager_ConcurrentPollers(t *testing.T) {
	m := NewManager(Config{})
	id, err := m.Submit(testRequest(t, model.Dimensions{Width: 8, Height: 8, Depth: 8},
		model.Dimensions{Width: 4, Height: 4, Depth: 4},
		model.Dimensions{Width: 4, Height: 4, Depth: 2},
		model.Dimensions{Width: 2, Height: 2, Depth: 2}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0.0
			for {
				snap, err := m.Status(context.Background(), id)
				if !assert.NoError(t, err) {
					return
				}
				if snap.IntermediateResult != nil {
					assert.GreaterOrEqual(t, snap.IntermediateResult.Utilization, last)
					last = snap.IntermediateResult.Utilization
				}
				if snap.Status.IsTerminal() {
					return
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, StatusCompleted, waitTerminal(t, m, id).Status)
}
