// Package netpoll provides readiness selection over non-blocking TCP
// sockets using poll(2).
package netpoll

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

// Interest is the set of readiness conditions a descriptor waits for.
type Interest uint8

const (
	// Readable waits for data or end of stream.
	Readable Interest = 1 << iota
	// Writable waits for send buffer space or connect completion.
	Writable
)

// Event is one ready descriptor returned by Wait.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	// Hangup and Error report POLLHUP and POLLERR/POLLNVAL. Callers should
	// treat them as readiness and let the next syscall report the failure.
	Hangup bool
	Error  bool
}

// Poller waits for readiness on a set of registered descriptors.
type Poller interface {
	// Register adds fd or replaces its interest.
	Register(fd int, interest Interest) error
	// Unregister removes fd. Unknown descriptors are ignored.
	Unregister(fd int)
	// Wait blocks for at most timeout and returns the ready descriptors.
	// An interrupted wait returns no events and no error.
	Wait(timeout time.Duration) ([]Event, error)
	// Len returns the number of registered descriptors.
	Len() int
	Close() error
}

// ErrClosed is returned by a Poller used after Close.
var ErrClosed = errors.New("netpoll: poller closed")

// PollPoller is a Poller backed by poll(2). It is not safe for concurrent
// use; the I/O loop owns it.
type PollPoller struct {
	interest map[int]Interest
	pfds     []unix.PollFd
	closed   bool
}

// NewPoller creates a PollPoller.
func NewPoller() *PollPoller {
	return &PollPoller{interest: make(map[int]Interest)}
}

// Register adds fd or replaces its interest.
func (p *PollPoller) Register(fd int, interest Interest) error {
	if p.closed {
		return ErrClosed
	}
	if fd < 0 {
		return fmt.Errorf("netpoll: invalid descriptor %d", fd)
	}
	p.interest[fd] = interest
	return nil
}

// Unregister removes fd.
func (p *PollPoller) Unregister(fd int) {
	delete(p.interest, fd)
}

// Len returns the number of registered descriptors.
func (p *PollPoller) Len() int {
	return len(p.interest)
}

// Wait polls the registered descriptors. With nothing registered it sleeps
// for timeout.
func (p *PollPoller) Wait(timeout time.Duration) ([]Event, error) {
	if p.closed {
		return nil, ErrClosed
	}

	p.pfds = p.pfds[:0]
	for fd, interest := range p.interest {
		var events int16
		if interest&Readable != 0 {
			events |= unix.POLLIN
		}
		if interest&Writable != 0 {
			events |= unix.POLLOUT
		}
		p.pfds = append(p.pfds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	sort.Slice(p.pfds, func(i, j int) bool { return p.pfds[i].Fd < p.pfds[j].Fd })

	ms := int(timeout / time.Millisecond)
	if timeout < 0 {
		ms = -1
	}

	n, err := unix.Poll(p.pfds, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("netpoll: poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	events := make([]Event, 0, n)
	for _, pfd := range p.pfds {
		if pfd.Revents == 0 {
			continue
		}
		events = append(events, Event{
			Fd:       int(pfd.Fd),
			Readable: pfd.Revents&unix.POLLIN != 0,
			Writable: pfd.Revents&unix.POLLOUT != 0,
			Hangup:   pfd.Revents&unix.POLLHUP != 0,
			Error:    pfd.Revents&(unix.POLLERR|unix.POLLNVAL) != 0,
		})
	}
	return events, nil
}

// Close releases the poller. Registered descriptors are not closed.
func (p *PollPoller) Close() error {
	p.closed = true
	p.interest = nil
	return nil
}
