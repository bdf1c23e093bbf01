// Package queue provides the crawl frontier.
package queue

import "errors"

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

// Queue defines the interface for job queues.
type Queue interface {
	// Push appends a job
	Push(job Job) error

	// Pop removes and returns the oldest job
	Pop() (Job, error)

	// Peek returns the oldest job without removing it
	Peek() (Job, error)

	// Len returns the number of queued jobs
	Len() int

	// IsEmpty returns true if nothing is queued
	IsEmpty() bool

	// Clear removes all jobs
	Clear() error

	// Close rejects further pushes and pops
	Close() error
}
