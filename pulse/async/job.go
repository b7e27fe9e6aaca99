// Package async runs cancellable background jobs with progress tracking.
//
// A Job is a handle to one in-process operation: callers poll its progress,
// wait for it or cancel it. Cancellation is cooperative; the job function
// observes it through its context.
package async

import (
	"context"
	"sync"
	"time"

	"github.com/teranos/vanity-id"

	"github.com/teranos/termforge/errors"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Progress represents job progress information
type Progress struct {
	Current int `json:"current,omitempty"` // Completed operations
	Total   int `json:"total,omitempty"`   // Total operations
}

// Percentage calculates progress as a percentage (0-100)
func (p Progress) Percentage() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total) * 100
}

// Info is a point-in-time copy of a job's state.
type Info struct {
	ID          string     `json:"id"`
	HandlerName string     `json:"handler_name"`
	Source      string     `json:"source"`
	Status      JobStatus  `json:"status"`
	Progress    Progress   `json:"progress,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Func is the body of a job. It should return promptly once ctx is done.
type Func func(ctx context.Context, j *Job) error

// Job is a handle to a running operation.
type Job struct {
	ID          string
	HandlerName string // "kb.export", "kb.import"
	Source      string // destination or source path, for logs

	mu          sync.Mutex
	status      JobStatus
	progress    Progress
	err         error
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
	hooks       []func(Progress)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewJob creates a queued job. Job IDs are ASIDs generated from the handler
// name and source.
func NewJob(handlerName, source string) *Job {
	jobID, err := id.GenerateJobASID(handlerName, source, "termforge")
	if err != nil {
		jobID = id.GenerateASIDSimple("JB", handlerName, source)
	}
	return &Job{
		ID:          jobID,
		HandlerName: handlerName,
		Source:      source,
		status:      JobStatusQueued,
		createdAt:   time.Now(),
		done:        make(chan struct{}),
	}
}

// OnProgress registers a hook called synchronously on every progress update.
// Register hooks before Start.
func (j *Job) OnProgress(hook func(Progress)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.hooks = append(j.hooks, hook)
}

// Start runs fn in a new goroutine. The job context derives from ctx, so
// cancelling ctx cancels the job as Cancel does.
func (j *Job) Start(ctx context.Context, fn Func) {
	jobCtx, cancel := context.WithCancel(ctx)

	j.mu.Lock()
	if j.status != JobStatusQueued {
		j.mu.Unlock()
		cancel()
		return
	}
	now := time.Now()
	j.status = JobStatusRunning
	j.startedAt = &now
	j.cancel = cancel
	j.mu.Unlock()

	go func() {
		defer cancel()
		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = errors.AssertionFailedf("job %s panicked: %v", j.ID, r)
				}
			}()
			err = fn(jobCtx, j)
		}()
		j.finish(jobCtx, err)
	}()
}

// Run creates a job and starts it.
func Run(ctx context.Context, handlerName, source string, fn Func) *Job {
	j := NewJob(handlerName, source)
	j.Start(ctx, fn)
	return j
}

func (j *Job) finish(ctx context.Context, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	j.completedAt = &now
	j.err = err
	switch {
	case err == nil:
		j.status = JobStatusCompleted
	case ctx.Err() != nil:
		j.status = JobStatusCancelled
	default:
		j.status = JobStatusFailed
	}
	close(j.done)
}

// Cancel asks the job to stop. It does not wait; use Wait for that.
func (j *Job) Cancel() {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed when the job reaches a terminal status.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes or ctx is done, and returns the job's
// error.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the job's error once finished.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) Progress() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// SetTotal sets the number of operations the job expects to perform.
func (j *Job) SetTotal(total int) {
	j.mu.Lock()
	j.progress.Total = total
	j.mu.Unlock()
}

// UpdateProgress records current completed operations and calls the hooks.
func (j *Job) UpdateProgress(current int) {
	j.mu.Lock()
	j.progress.Current = current
	p := j.progress
	hooks := j.hooks
	j.mu.Unlock()

	for _, hook := range hooks {
		hook(p)
	}
}

// Info returns a snapshot of the job.
func (j *Job) Info() Info {
	j.mu.Lock()
	defer j.mu.Unlock()
	info := Info{
		ID:          j.ID,
		HandlerName: j.HandlerName,
		Source:      j.Source,
		Status:      j.status,
		Progress:    j.progress,
		CreatedAt:   j.createdAt,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
	}
	if j.err != nil {
		info.Error = j.err.Error()
	}
	return info
}
