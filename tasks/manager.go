package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Task is one traceable unit of background work, pollable by ID.
type Task struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Fn is the work a task runs. Its result is stored on the task when it
// returns.
type Fn func(ctx context.Context) (any, error)

// Manager runs background work with an explicit lifecycle instead of
// fire-and-forget goroutines. Runs are bounded by a worker semaphore.
type Manager struct {
	mu     sync.RWMutex
	tasks  map[string]*Task
	sem    chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

func NewManager(maxConcurrent int, logger *zap.Logger) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Manager{
		tasks:  make(map[string]*Task),
		sem:    make(chan struct{}, maxConcurrent),
		logger: logger,
	}
}

// Submit registers a task and starts it in the background. The returned
// snapshot is in the queued state; poll Get for progress. ctx bounds the
// task's whole run and should outlive the submitting request.
func (m *Manager) Submit(ctx context.Context, kind string, fn Fn) Task {
	task := &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	m.tasks[task.ID] = task
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx, task.ID, fn)
	return *task
}

func (m *Manager) run(ctx context.Context, id string, fn Fn) {
	defer m.wg.Done()

	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		m.finish(id, nil, ctx.Err())
		return
	}
	defer func() { <-m.sem }()

	now := time.Now().UTC()
	m.mu.Lock()
	task := m.tasks[id]
	task.Status = StatusRunning
	task.StartedAt = &now
	m.mu.Unlock()

	result, err := fn(ctx)
	m.finish(id, result, err)
}

func (m *Manager) finish(id string, result any, err error) {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	task := m.tasks[id]
	task.FinishedAt = &now
	if err != nil {
		task.Status = StatusFailed
		task.Error = err.Error()
		m.logger.Warn("task failed",
			zap.String("task_id", id), zap.String("kind", task.Kind), zap.Error(err))
		return
	}
	task.Status = StatusSucceeded
	task.Result = result
	m.logger.Info("task finished",
		zap.String("task_id", id), zap.String("kind", task.Kind))
}

// Get returns a snapshot of the task, or false if the ID is unknown.
func (m *Manager) Get(id string) (Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Wait blocks until every submitted task has finished. Used on shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}
