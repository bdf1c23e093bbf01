package netpoll

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (*Socket, *Socket) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatalf("setnonblock: %v", err)
		}
	}
	a, b := &Socket{fd: fds[0]}, &Socket{fd: fds[1]}
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

// =============================================================================
// Socket Tests
// =============================================================================

func TestSocket_ReadWouldBlock(t *testing.T) {
	a, _ := socketPair(t)

	buf := make([]byte, 16)
	if _, err := a.Read(buf); !errors.Is(err, ErrWouldBlock) {
		t.Errorf("Read() error = %v, want ErrWouldBlock", err)
	}
}

func TestSocket_ReadWriteEOF(t *testing.T) {
	a, b := socketPair(t)

	n, err := a.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write() = %d, %v", n, err)
	}

	buf := make([]byte, 16)
	n, err = b.Read(buf)
	if err != nil || string(buf[:n]) != "hello" {
		t.Fatalf("Read() = %q, %v", buf[:n], err)
	}

	a.Close()
	if _, err := b.Read(buf); err != io.EOF {
		t.Errorf("Read() after peer close error = %v, want io.EOF", err)
	}
}

func TestSocket_WriteWouldBlock(t *testing.T) {
	a, _ := socketPair(t)

	chunk := make([]byte, 64*1024)
	for i := 0; i < 1024; i++ {
		if _, err := a.Write(chunk); err != nil {
			if !errors.Is(err, ErrWouldBlock) {
				t.Fatalf("Write() error = %v, want ErrWouldBlock", err)
			}
			return
		}
	}
	t.Fatal("send buffer never filled")
}

func TestSocket_CloseTwice(t *testing.T) {
	a, _ := socketPair(t)
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

// =============================================================================
// Poller Tests
// =============================================================================

func TestPoller_EmptyWaitSleeps(t *testing.T) {
	p := NewPoller()
	defer p.Close()

	start := time.Now()
	events, err := p.Wait(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Wait() = %v, want no events", events)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Error("Wait() returned before the timeout")
	}
}

func TestPoller_Readiness(t *testing.T) {
	a, b := socketPair(t)
	p := NewPoller()
	defer p.Close()

	if err := p.Register(b.Fd(), Readable); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}

	events, _ := p.Wait(10 * time.Millisecond)
	if len(events) != 0 {
		t.Fatalf("idle socket reported ready: %v", events)
	}

	a.Write([]byte("x"))
	events, err := p.Wait(time.Second)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(events) != 1 || events[0].Fd != b.Fd() || !events[0].Readable {
		t.Errorf("Wait() = %+v, want readable fd %d", events, b.Fd())
	}

	p.Register(b.Fd(), Writable)
	events, _ = p.Wait(time.Second)
	if len(events) != 1 || !events[0].Writable {
		t.Errorf("Wait() = %+v, want writable", events)
	}

	p.Unregister(b.Fd())
	if p.Len() != 0 {
		t.Errorf("Len() after Unregister = %d", p.Len())
	}
}

func TestPoller_Closed(t *testing.T) {
	p := NewPoller()
	p.Close()

	if err := p.Register(3, Readable); !errors.Is(err, ErrClosed) {
		t.Errorf("Register() error = %v, want ErrClosed", err)
	}
	if _, err := p.Wait(0); !errors.Is(err, ErrClosed) {
		t.Errorf("Wait() error = %v, want ErrClosed", err)
	}
}

// =============================================================================
// Dial Tests
// =============================================================================

func TestDialTCP_Connects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	addr := netip.MustParseAddrPort(ln.Addr().String())
	sock, connected, err := DialTCP(addr)
	if err != nil {
		t.Fatalf("DialTCP() error = %v", err)
	}
	defer sock.Close()

	p := NewPoller()
	defer p.Close()
	if !connected {
		p.Register(sock.Fd(), Writable)
		events, err := p.Wait(2 * time.Second)
		if err != nil || len(events) != 1 {
			t.Fatalf("connect readiness: %v, %v", events, err)
		}
		if err := sock.FinishConnect(); err != nil {
			t.Fatalf("FinishConnect() error = %v", err)
		}
	}

	peer := <-accepted
	defer peer.Close()
	peer.Write([]byte("pong"))
	peer.Close()

	p.Register(sock.Fd(), Readable)
	var got []byte
	buf := make([]byte, 8)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p.Wait(100 * time.Millisecond)
		n, err := sock.Read(buf)
		if err == io.EOF {
			break
		}
		if err == nil {
			got = append(got, buf[:n]...)
		}
	}
	if string(got) != "pong" {
		t.Errorf("read %q, want pong", got)
	}
}

func TestDialTCP_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := netip.MustParseAddrPort(ln.Addr().String())
	ln.Close()

	sock, connected, err := DialTCP(addr)
	if err != nil {
		return
	}
	defer sock.Close()
	if connected {
		t.Fatal("connect to a closed port should not succeed")
	}

	p := NewPoller()
	defer p.Close()
	p.Register(sock.Fd(), Writable)
	if _, err := p.Wait(2 * time.Second); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if err := sock.FinishConnect(); !errors.Is(err, unix.ECONNREFUSED) {
		t.Errorf("FinishConnect() error = %v, want ECONNREFUSED", err)
	}
}

func TestDialer_Resolve(t *testing.T) {
	d := &Dialer{Timeout: time.Second}

	addr, err := d.resolve(context.Background(), "127.0.0.1:8080")
	if err != nil {
		t.Fatalf("resolve() error = %v", err)
	}
	if addr.String() != "127.0.0.1:8080" {
		t.Errorf("resolve() = %v", addr)
	}

	if _, err := d.resolve(context.Background(), "no-port"); err == nil {
		t.Error("resolve() should reject an address without port")
	}
	if _, err := d.resolve(context.Background(), "host.invalid:80"); err == nil {
		t.Error("resolve() should fail for an .invalid host")
	}
}
