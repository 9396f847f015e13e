package p2p

import (
	"errors"
	"sync"

	"github.com/cappuch/lib-p2pchat/internal/crypto/envelope"
	"github.com/cappuch/lib-p2pchat/internal/netx"
	"github.com/cappuch/lib-p2pchat/internal/peers"
	"github.com/cappuch/lib-p2pchat/internal/proto"
)

var (
	ErrUnknownDestination = errors.New("p2p: unknown destination")
	ErrNoRoute            = errors.New("p2p: no neighbor accepted the packet")
)

// Drop reasons, as passed to Metrics.IncDropped.
const (
	DropMalformed     = "malformed"
	DropUnknownSender = "unknown_sender"
	DropBadSignature  = "bad_signature"
	DropDecryptFailed = "decrypt_failed"
	DropTTLExhausted  = "ttl_exhausted"
	DropNoRoute       = "no_route"
)

type Action int

const (
	ActionDropped Action = iota
	ActionDelivered
	ActionForwarded
)

func (a Action) String() string {
	switch a {
	case ActionDelivered:
		return "delivered"
	case ActionForwarded:
		return "forwarded"
	}
	return "dropped"
}

// Verdict is what the router did with one inbound packet.
type Verdict struct {
	Action Action
	Reason string // set when dropped
}

// TypedHandler receives a decrypted message split into type and body.
type TypedHandler func(from proto.NodeID, t proto.MessageType, body []byte)

// MessageHandler receives the full decrypted plaintext, type byte included.
type MessageHandler func(from proto.NodeID, plaintext []byte)

// Sender is the slice of the transport the router needs.
type Sender interface {
	SendTo(to netx.Addr, data []byte) error
}

// Router decides deliver, forward or drop for every inbound packet and
// builds outbound ones.
type Router struct {
	self    *Identity
	dir     *peers.Directory
	out     Sender
	metrics Metrics

	mu    sync.RWMutex
	typed []TypedHandler
	raw   []MessageHandler
}

func NewRouter(self *Identity, dir *peers.Directory, out Sender, m Metrics) *Router {
	if m == nil {
		m = NoopMetrics{}
	}
	return &Router{self: self, dir: dir, out: out, metrics: m}
}

// OnTypedMessage registers h. Handlers run on the receiving goroutine in
// registration order, before any raw handler, and must not block.
func (r *Router) OnTypedMessage(h TypedHandler) {
	r.mu.Lock()
	r.typed = append(r.typed, h)
	r.mu.Unlock()
}

// OnMessage registers h. Same rules as OnTypedMessage.
func (r *Router) OnMessage(h MessageHandler) {
	r.mu.Lock()
	r.raw = append(r.raw, h)
	r.mu.Unlock()
}

func (r *Router) handlers() ([]TypedHandler, []MessageHandler) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TypedHandler(nil), r.typed...), append([]MessageHandler(nil), r.raw...)
}

// HandleIncoming processes one packet received from `from`.
func (r *Router) HandleIncoming(pkt *proto.Packet, from netx.Addr) Verdict {
	r.dir.TouchAddr(from.IP, from.Port)

	if pkt.Dest == r.self.ID {
		return r.deliver(pkt)
	}

	if pkt.TTL == 0 {
		return r.drop(DropTTLExhausted)
	}
	fwd := pkt.Clone()
	fwd.TTL--
	if r.flood(fwd.Marshal(), from) == 0 {
		return r.drop(DropNoRoute)
	}
	r.metrics.IncForwarded()
	return Verdict{Action: ActionForwarded}
}

func (r *Router) deliver(pkt *proto.Packet) Verdict {
	sender, ok := r.dir.FindByID(pkt.Sender)
	if !ok {
		return r.drop(DropUnknownSender)
	}
	if !envelope.VerifyPacket(sender.SignKey, pkt) {
		return r.drop(DropBadSignature)
	}
	plaintext, err := envelope.Open(r.self.EncPrivate(), sender.EncKey, pkt.Payload)
	if err != nil {
		return r.drop(DropDecryptFailed)
	}

	typed, raw := r.handlers()
	if len(typed) > 0 {
		if t, body, err := proto.UnpackMessage(plaintext); err == nil {
			for _, h := range typed {
				h(pkt.Sender, t, body)
			}
		}
	}
	for _, h := range raw {
		h(pkt.Sender, plaintext)
	}
	r.metrics.IncDelivered()
	return Verdict{Action: ActionDelivered}
}

func (r *Router) drop(reason string) Verdict {
	r.metrics.IncDropped(reason)
	return Verdict{Action: ActionDropped, Reason: reason}
}

// flood sends wire to every peer with an address except `except`, and
// returns how many sends succeeded.
func (r *Router) flood(wire []byte, except netx.Addr) int {
	sent := 0
	for _, p := range r.dir.List() {
		if !p.HasAddr() {
			continue
		}
		to := netx.Addr{IP: p.IP, Port: p.Port}
		if to == except {
			continue
		}
		if r.out.SendTo(to, wire) == nil {
			sent++
		}
	}
	return sent
}

// SendMessage seals data for dest and sends it directly, falling back to a
// flood if the direct send fails locally. Success means the bytes reached the
// transport; there is no delivery confirmation.
func (r *Router) SendMessage(dest proto.NodeID, data []byte) error {
	p, ok := r.dir.FindByID(dest)
	if !ok {
		return ErrUnknownDestination
	}
	ct, err := envelope.Seal(r.self.EncPrivate(), p.EncKey, data)
	if err != nil {
		return err
	}
	pkt := &proto.Packet{
		Sender:  r.self.ID,
		Dest:    dest,
		TTL:     proto.DefaultTTL,
		Payload: ct,
	}
	envelope.SignPacket(r.self.SignPriv, pkt)
	wire := pkt.Marshal()

	if p.HasAddr() {
		if err := r.out.SendTo(netx.Addr{IP: p.IP, Port: p.Port}, wire); err == nil {
			r.metrics.IncSent(true)
			return nil
		}
	}
	if r.flood(wire, netx.Addr{}) == 0 {
		return ErrNoRoute
	}
	r.metrics.IncSent(false)
	return nil
}
