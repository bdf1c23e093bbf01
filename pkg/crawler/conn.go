package crawler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	rawhttp "github.com/PentesterFlow/OpenMirror/internal/http"
	"github.com/PentesterFlow/OpenMirror/internal/netpoll"
	"github.com/PentesterFlow/OpenMirror/internal/queue"
)

const readChunkSize = 8 * 1024

// errResponseTooLarge is returned once a response outgrows MaxResponseSize.
var errResponseTooLarge = errors.New("response exceeds size limit")

type connState int

const (
	stateConnecting connState = iota
	stateWriting
	stateReading
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connect"
	case stateWriting:
		return "write"
	case stateReading:
		return "read"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// connCtx is one in-flight fetch. Only the I/O goroutine touches it.
type connCtx struct {
	job   queue.Job
	conn  netpoll.Conn
	fd    int
	state connState

	userAgent string
	request   []byte
	written   int

	chunk       []byte
	received    bytes.Buffer
	maxResponse int64

	registered netpoll.Interest
	openedAt   time.Time
	deadline   time.Time
}

func newConnCtx(job queue.Job, conn netpoll.Conn, connected bool, userAgent string, now time.Time, timeout time.Duration, maxResponse int64) *connCtx {
	c := &connCtx{
		job:         job,
		conn:        conn,
		fd:          conn.Fd(),
		state:       stateConnecting,
		userAgent:   userAgent,
		maxResponse: maxResponse,
		openedAt:    now,
		deadline:    now.Add(timeout),
	}
	if connected {
		c.state = stateWriting
	}
	return c
}

// interest is the readiness the current state waits for.
func (c *connCtx) interest() netpoll.Interest {
	switch c.state {
	case stateConnecting, stateWriting:
		return netpoll.Writable
	case stateReading:
		return netpoll.Readable
	default:
		return 0
	}
}

// advance moves the state machine on a readiness event. It returns true once
// the peer has closed the stream and the response is complete.
func (c *connCtx) advance(ev netpoll.Event) (bool, error) {
	failed := ev.Hangup || ev.Error

	switch c.state {
	case stateConnecting:
		if !ev.Writable && !failed {
			return false, nil
		}
		if err := c.conn.FinishConnect(); err != nil {
			return false, fmt.Errorf("connect: %w", err)
		}
		c.state = stateWriting
		return false, c.flush()

	case stateWriting:
		if !ev.Writable && !failed {
			return false, nil
		}
		return false, c.flush()

	case stateReading:
		if !ev.Readable && !failed {
			return false, nil
		}
		return c.fill()
	}

	return false, nil
}

// flush writes as much of the request as the socket accepts.
func (c *connCtx) flush() error {
	if c.request == nil {
		c.request = rawhttp.BuildRequest(c.job.URL, c.userAgent)
	}

	for c.written < len(c.request) {
		n, err := c.conn.Write(c.request[c.written:])
		if n > 0 {
			c.written += n
		}
		if errors.Is(err, netpoll.ErrWouldBlock) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		if n == 0 {
			return nil
		}
	}

	c.state = stateReading
	return nil
}

// fill reads until the socket would block or the stream ends.
func (c *connCtx) fill() (bool, error) {
	if c.chunk == nil {
		c.chunk = make([]byte, readChunkSize)
	}

	for {
		n, err := c.conn.Read(c.chunk)
		if n > 0 {
			c.received.Write(c.chunk[:n])
			if c.maxResponse > 0 && int64(c.received.Len()) > c.maxResponse {
				return false, errResponseTooLarge
			}
		}
		switch {
		case err == nil:
			if n == 0 {
				return false, nil
			}
		case errors.Is(err, netpoll.ErrWouldBlock):
			return false, nil
		case errors.Is(err, io.EOF):
			return true, nil
		default:
			return false, fmt.Errorf("read: %w", err)
		}
	}
}

// expired reports whether the deadline passed before the fetch finished.
func (c *connCtx) expired(now time.Time) bool {
	return c.state != stateClosed && now.After(c.deadline)
}

// close releases the socket. Closing twice is a no-op.
func (c *connCtx) close() error {
	if c.state == stateClosed {
		return nil
	}
	c.state = stateClosed
	c.chunk = nil
	return c.conn.Close()
}
