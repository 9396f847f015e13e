package netx

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

var (
	ErrNotListening = errors.New("netx: not listening")
	ErrUnreachable  = errors.New("netx: destination unreachable")
	ErrAddrInUse    = errors.New("netx: address in use")
)

// Addr is an IPv4 endpoint.
type Addr struct {
	IP   string
	Port uint16
}

func (a Addr) String() string {
	return net.JoinHostPort(a.IP, strconv.Itoa(int(a.Port)))
}

func (a Addr) IsZero() bool { return a.IP == "" && a.Port == 0 }

// ParseAddr parses "host:port". An empty host is allowed and means any address.
func ParseAddr(s string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Addr{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Addr{}, fmt.Errorf("bad port %q: %w", portStr, err)
	}
	return Addr{IP: host, Port: uint16(port)}, nil
}

// Datagram is one received message and where it came from.
type Datagram struct {
	Data []byte
	From Addr
}

// Network is an unreliable, unordered datagram transport bound to one local
// endpoint.
type Network interface {
	Listen(bindAddr string) (listenAddr Addr, err error)
	// Poll waits up to timeout for one datagram. ok is false on timeout.
	Poll(timeout time.Duration) (d Datagram, ok bool, err error)
	SendTo(to Addr, data []byte) error
	// Broadcast sends data to port on every reachable host of the local
	// broadcast domain.
	Broadcast(port uint16, data []byte) error
	LocalAddr() Addr
	Close() error
}
