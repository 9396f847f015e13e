package netx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
)

const (
	// MaxDatagramBytes bounds a single receive.
	MaxDatagramBytes = 64 * 1024

	// MaxUDPPayload is the largest payload one IPv4 UDP datagram can carry.
	MaxUDPPayload = 65507
)

type udpNetwork struct {
	mu   sync.Mutex
	conn *net.UDPConn
	buf  []byte
}

func NewUDPNetwork() Network {
	return &udpNetwork{buf: make([]byte, MaxDatagramBytes)}
}

func (u *udpNetwork) Listen(bindAddr string) (Addr, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var optErr error
			err := c.Control(func(fd uintptr) {
				_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
				optErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
			})
			if err != nil {
				return err
			}
			return optErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", bindAddr)
	if err != nil {
		return Addr{}, fmt.Errorf("udp listen %s: %w", bindAddr, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return Addr{}, fmt.Errorf("udp listen: not a UDPConn")
	}

	u.mu.Lock()
	if u.conn != nil {
		_ = u.conn.Close()
	}
	u.conn = conn
	u.mu.Unlock()
	return udpAddr(conn.LocalAddr().(*net.UDPAddr)), nil
}

func (u *udpNetwork) current() *net.UDPConn {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.conn
}

// Poll is meant to be called from a single goroutine; it reuses one buffer.
func (u *udpNetwork) Poll(timeout time.Duration) (Datagram, bool, error) {
	conn := u.current()
	if conn == nil {
		return Datagram{}, false, ErrNotListening
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Datagram{}, false, err
	}
	n, from, err := conn.ReadFromUDP(u.buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return Datagram{}, false, nil
		}
		return Datagram{}, false, err
	}
	data := make([]byte, n)
	copy(data, u.buf[:n])
	return Datagram{Data: data, From: udpAddr(from)}, true, nil
}

func (u *udpNetwork) SendTo(to Addr, data []byte) error {
	conn := u.current()
	if conn == nil {
		return ErrNotListening
	}
	ip := net.ParseIP(to.IP)
	if ip == nil || to.Port == 0 {
		return fmt.Errorf("%w: %s", ErrUnreachable, to)
	}
	n, err := conn.WriteToUDP(data, &net.UDPAddr{IP: ip, Port: int(to.Port)})
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("udp send %s: short write %d/%d", to, n, len(data))
	}
	return nil
}

// Broadcast sends to the limited broadcast address, each interface's directed
// broadcast address and loopback. It succeeds if any target accepted the bytes.
func (u *udpNetwork) Broadcast(port uint16, data []byte) error {
	var errs error
	sent := 0
	for _, dst := range BroadcastAddrs(port) {
		if err := u.SendTo(dst, data); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		sent++
	}
	if sent > 0 {
		return nil
	}
	if errs == nil {
		errs = ErrUnreachable
	}
	return fmt.Errorf("udp broadcast: %w", errs)
}

func (u *udpNetwork) LocalAddr() Addr {
	conn := u.current()
	if conn == nil {
		return Addr{}
	}
	return udpAddr(conn.LocalAddr().(*net.UDPAddr))
}

func (u *udpNetwork) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn != nil {
		err := u.conn.Close()
		u.conn = nil
		return err
	}
	return nil
}

func udpAddr(a *net.UDPAddr) Addr {
	ip := ""
	if a.IP != nil {
		if v4 := a.IP.To4(); v4 != nil {
			ip = v4.String()
		} else {
			ip = a.IP.String()
		}
	}
	return Addr{IP: ip, Port: uint16(a.Port)}
}
