package netpoll

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"
)

// Dialer resolves a host and starts a non-blocking connect.
type Dialer struct {
	Resolver *net.Resolver
	// Timeout bounds name resolution.
	Timeout time.Duration
}

// Dial resolves address ("host:port") and starts connecting. Resolution is
// blocking; the connect is not. The bool reports a synchronous connect.
func (d *Dialer) Dial(ctx context.Context, address string) (Conn, bool, error) {
	addr, err := d.resolve(ctx, address)
	if err != nil {
		return nil, false, err
	}
	sock, connected, err := DialTCP(addr)
	if err != nil {
		return nil, false, &net.OpError{Op: "dial", Net: "tcp", Addr: net.TCPAddrFromAddrPort(addr), Err: err}
	}
	return sock, connected, nil
}

func (d *Dialer) resolve(ctx context.Context, address string) (netip.AddrPort, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("netpoll: %w", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("netpoll: invalid port %q", portStr)
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		return netip.AddrPortFrom(ip, uint16(port)), nil
	}

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	resolver := d.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	ips, err := resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if len(ips) == 0 {
		return netip.AddrPort{}, &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
	}

	// Prefer IPv4.
	chosen := ips[0]
	for _, ip := range ips {
		if ip.Unmap().Is4() {
			chosen = ip
			break
		}
	}
	return netip.AddrPortFrom(chosen.Unmap(), uint16(port)), nil
}
