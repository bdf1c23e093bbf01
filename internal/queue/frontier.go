package queue

import "sync"

// Frontier is a thread-safe FIFO of jobs. Insertion order is preserved.
type Frontier struct {
	mu     sync.RWMutex
	jobs   []Job
	head   int
	closed bool
}

var _ Queue = (*Frontier)(nil)

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{jobs: make([]Job, 0, 64)}
}

// Push appends a job.
func (f *Frontier) Push(job Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrQueueClosed
	}
	f.jobs = append(f.jobs, job)
	return nil
}

// Pop removes and returns the oldest job.
func (f *Frontier) Pop() (Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return Job{}, ErrQueueClosed
	}
	if f.head == len(f.jobs) {
		return Job{}, ErrQueueEmpty
	}

	job := f.jobs[f.head]
	f.jobs[f.head] = Job{}
	f.head++

	// Reclaim the consumed prefix once it dominates the slice.
	if f.head > 1024 && f.head*2 > len(f.jobs) {
		n := copy(f.jobs, f.jobs[f.head:])
		f.jobs = f.jobs[:n]
		f.head = 0
	}
	return job, nil
}

// Peek returns the oldest job without removing it.
func (f *Frontier) Peek() (Job, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return Job{}, ErrQueueClosed
	}
	if f.head == len(f.jobs) {
		return Job{}, ErrQueueEmpty
	}
	return f.jobs[f.head], nil
}

// Len returns the number of queued jobs.
func (f *Frontier) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.jobs) - f.head
}

// IsEmpty returns true if nothing is queued.
func (f *Frontier) IsEmpty() bool {
	return f.Len() == 0
}

// Clear removes all jobs and reopens a closed frontier.
func (f *Frontier) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.jobs = make([]Job, 0, 64)
	f.head = 0
	f.closed = false
	return nil
}

// Close rejects further pushes and pops.
func (f *Frontier) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

// Snapshot returns the queued jobs in order.
func (f *Frontier) Snapshot() []Job {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Job, len(f.jobs)-f.head)
	copy(out, f.jobs[f.head:])
	return out
}
