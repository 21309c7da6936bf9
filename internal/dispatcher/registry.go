package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Task runs one job. Returning an error of type timeout or unit_fault
// rejects the job; any other error becomes the job's error result.
type Task func(ctx context.Context, payload map[string]any) (any, error)

// Task names of the default registry.
const (
	TaskRender = "render"
	// taskRenderAlias is the name clients of the original service use.
	taskRenderAlias = "nunjucks"
)

// ErrUnknownTask is returned for task names nothing was registered under.
var ErrUnknownTask = errors.New("unknown task")

// Registry maps task names to tasks.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Task)}
}

// DefaultRegistry registers render under its own name and its alias.
func DefaultRegistry(render Task) *Registry {
	r := NewRegistry()
	r.Register(TaskRender, render)
	_ = r.Alias(taskRenderAlias, TaskRender)
	return r
}

// Register installs or replaces a task.
func (r *Registry) Register(name string, task Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = task
}

// Alias makes alias run the task registered as name.
func (r *Registry) Alias(alias, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	r.tasks[alias] = task
	return nil
}

func (r *Registry) Lookup(name string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return task, nil
}

func (r *Registry) Has(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
