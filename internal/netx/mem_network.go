package netx

import (
	"fmt"
	"net"
	"sync"
	"time"
)

const memInboxSize = 1024

// MemHub is an in-process broadcast domain. Every endpoint created from the
// same hub can reach every other one unless the link is blocked.
type MemHub struct {
	mu        sync.Mutex
	endpoints map[Addr]*memNetwork
	blocked   map[[2]Addr]struct{}
	nextPort  uint16
}

func NewMemHub() *MemHub {
	return &MemHub{
		endpoints: make(map[Addr]*memNetwork),
		blocked:   make(map[[2]Addr]struct{}),
		nextPort:  40000,
	}
}

// NewNetwork returns an unbound endpoint on host ip.
func (h *MemHub) NewNetwork(ip string) Network {
	return &memNetwork{hub: h, ip: ip}
}

// Block cuts the link between a and b in both directions.
func (h *MemHub) Block(a, b Addr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blocked[[2]Addr{a, b}] = struct{}{}
	h.blocked[[2]Addr{b, a}] = struct{}{}
}

func (h *MemHub) Unblock(a, b Addr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.blocked, [2]Addr{a, b})
	delete(h.blocked, [2]Addr{b, a})
}

func (h *MemHub) bind(m *memNetwork, want Addr) (Addr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if want.Port == 0 {
		for {
			h.nextPort++
			if h.nextPort == 0 {
				h.nextPort = 40001
			}
			cand := Addr{IP: want.IP, Port: h.nextPort}
			if _, taken := h.endpoints[cand]; !taken {
				want = cand
				break
			}
		}
	}
	if _, taken := h.endpoints[want]; taken {
		return Addr{}, fmt.Errorf("%w: %s", ErrAddrInUse, want)
	}
	h.endpoints[want] = m
	return want, nil
}

func (h *MemHub) unbind(a Addr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.endpoints, a)
}

func (h *MemHub) deliver(from, to Addr, data []byte) error {
	h.mu.Lock()
	dst, ok := h.endpoints[to]
	_, cut := h.blocked[[2]Addr{from, to}]
	h.mu.Unlock()
	if !ok || cut {
		return fmt.Errorf("%w: %s", ErrUnreachable, to)
	}
	dst.push(Datagram{Data: append([]byte(nil), data...), From: from})
	return nil
}

func (h *MemHub) broadcast(from Addr, port uint16, data []byte) {
	h.mu.Lock()
	targets := make([]*memNetwork, 0, len(h.endpoints))
	for a, ep := range h.endpoints {
		if a.Port != port || a == from {
			continue
		}
		if _, cut := h.blocked[[2]Addr{from, a}]; cut {
			continue
		}
		targets = append(targets, ep)
	}
	h.mu.Unlock()
	for _, ep := range targets {
		ep.push(Datagram{Data: append([]byte(nil), data...), From: from})
	}
}

type memNetwork struct {
	hub *MemHub
	ip  string

	mu     sync.Mutex
	addr   Addr
	inbox  chan Datagram
	closed chan struct{}
}

func (m *memNetwork) Listen(bindAddr string) (Addr, error) {
	want, err := ParseAddr(bindAddr)
	if err != nil {
		return Addr{}, err
	}
	if want.IP == "" || net.ParseIP(want.IP).IsUnspecified() {
		want.IP = m.ip
	}
	got, err := m.hub.bind(m, want)
	if err != nil {
		return Addr{}, err
	}
	m.mu.Lock()
	m.addr = got
	m.inbox = make(chan Datagram, memInboxSize)
	m.closed = make(chan struct{})
	m.mu.Unlock()
	return got, nil
}

func (m *memNetwork) state() (Addr, chan Datagram, chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr, m.inbox, m.closed
}

// push drops the datagram when the inbox is full, like a busy socket.
func (m *memNetwork) push(d Datagram) {
	_, inbox, closed := m.state()
	if inbox == nil {
		return
	}
	select {
	case <-closed:
	case inbox <- d:
	default:
	}
}

func (m *memNetwork) Poll(timeout time.Duration) (Datagram, bool, error) {
	_, inbox, closed := m.state()
	if inbox == nil {
		return Datagram{}, false, ErrNotListening
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case d := <-inbox:
		return d, true, nil
	case <-closed:
		return Datagram{}, false, net.ErrClosed
	case <-timer.C:
		return Datagram{}, false, nil
	}
}

func (m *memNetwork) SendTo(to Addr, data []byte) error {
	from, inbox, _ := m.state()
	if inbox == nil {
		return ErrNotListening
	}
	return m.hub.deliver(from, to, data)
}

func (m *memNetwork) Broadcast(port uint16, data []byte) error {
	from, inbox, _ := m.state()
	if inbox == nil {
		return ErrNotListening
	}
	m.hub.broadcast(from, port, data)
	return nil
}

func (m *memNetwork) LocalAddr() Addr {
	a, _, _ := m.state()
	return a
}

func (m *memNetwork) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inbox == nil {
		return nil
	}
	m.hub.unbind(m.addr)
	close(m.closed)
	m.inbox = nil
	return nil
}
