package netpoll

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by Read and Write when the socket is not ready.
var ErrWouldBlock = errors.New("netpoll: operation would block")

// Conn is a non-blocking stream connection driven by readiness events.
type Conn interface {
	Fd() int
	// FinishConnect reports the result of an asynchronous connect.
	FinishConnect() error
	// Read returns ErrWouldBlock when no data is available and io.EOF at
	// end of stream.
	Read(p []byte) (int, error)
	// Write returns ErrWouldBlock when the send buffer is full.
	Write(p []byte) (int, error)
	Close() error
}

// Socket is a non-blocking TCP socket.
type Socket struct {
	fd     int
	closed bool
}

// DialTCP opens a non-blocking socket and starts connecting to addr. The
// returned bool is true when the connect completed synchronously.
func DialTCP(addr netip.AddrPort) (*Socket, bool, error) {
	family, sa := sockaddr(addr)

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, false, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, false, os.NewSyscallError("setnonblock", err)
	}

	s := &Socket{fd: fd}
	switch err := unix.Connect(fd, sa); err {
	case nil:
		return s, true, nil
	case unix.EINPROGRESS, unix.EINTR, unix.EALREADY:
		return s, false, nil
	default:
		s.Close()
		return nil, false, os.NewSyscallError("connect", err)
	}
}

func sockaddr(addr netip.AddrPort) (int, unix.Sockaddr) {
	ip := addr.Addr().Unmap()
	if ip.Is4() {
		return unix.AF_INET, &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.As4()}
	}
	return unix.AF_INET6, &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}
}

// Fd returns the socket descriptor.
func (s *Socket) Fd() int {
	return s.fd
}

// FinishConnect reads SO_ERROR after the socket became writable.
func (s *Socket) FinishConnect() error {
	v, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return os.NewSyscallError("getsockopt", err)
	}
	if v != 0 {
		return os.NewSyscallError("connect", syscall.Errno(v))
	}
	return nil
}

// Read reads available bytes without blocking.
func (s *Socket) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(s.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, os.NewSyscallError("read", err)
		case n == 0 && len(p) > 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write writes as much of p as the socket accepts.
func (s *Socket) Write(p []byte) (int, error) {
	for {
		n, err := unix.Write(s.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, os.NewSyscallError("write", err)
		}
		return n, nil
	}
}

// Close closes the descriptor once.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := unix.Close(s.fd); err != nil {
		return fmt.Errorf("netpoll: close fd %d: %w", s.fd, err)
	}
	return nil
}
