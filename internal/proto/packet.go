package proto

import "encoding/binary"

const (
	SignatureBytes = 64

	// DefaultTTL is the hop budget a fresh packet starts with.
	DefaultTTL uint8 = 8

	// PacketHeaderBytes = sender(32) + dest(32) + ttl(1) + sig(64) + len(4).
	PacketHeaderBytes = NodeIDBytes + NodeIDBytes + 1 + SignatureBytes + 4
)

// Packet is one directed, signed message. Payload is ciphertext and opaque here.
//
// Signature covers sender || dest || payload; TTL is not signed so relays can
// decrement it without re-signing.
type Packet struct {
	Sender    NodeID
	Dest      NodeID
	TTL       uint8
	Signature [SignatureBytes]byte
	Payload   []byte
}

// Marshal encodes p in wire order.
func (p *Packet) Marshal() []byte {
	out := make([]byte, PacketHeaderBytes+len(p.Payload))
	off := 0
	off += copy(out[off:], p.Sender[:])
	off += copy(out[off:], p.Dest[:])
	out[off] = p.TTL
	off++
	off += copy(out[off:], p.Signature[:])
	binary.BigEndian.PutUint32(out[off:], uint32(len(p.Payload)))
	off += 4
	copy(out[off:], p.Payload)
	return out
}

// SignedBytes returns sender || dest || payload, the material the signature covers.
func (p *Packet) SignedBytes() []byte {
	return SignedBytes(p.Sender, p.Dest, p.Payload)
}

func SignedBytes(sender, dest NodeID, payload []byte) []byte {
	m := make([]byte, 0, 2*NodeIDBytes+len(payload))
	m = append(m, sender[:]...)
	m = append(m, dest[:]...)
	m = append(m, payload...)
	return m
}

// UnmarshalPacket decodes a packet. Trailing bytes after the payload are ignored.
func UnmarshalPacket(b []byte) (*Packet, error) {
	if len(b) < PacketHeaderBytes {
		return nil, ErrShortPacket
	}
	plen := binary.BigEndian.Uint32(b[PacketHeaderBytes-4 : PacketHeaderBytes])
	if uint64(plen) > uint64(len(b)-PacketHeaderBytes) {
		return nil, ErrPayloadOverrun
	}

	p := &Packet{}
	off := 0
	off += copy(p.Sender[:], b[off:])
	off += copy(p.Dest[:], b[off:])
	p.TTL = b[off]
	off++
	copy(p.Signature[:], b[off:])
	p.Payload = make([]byte, plen)
	copy(p.Payload, b[PacketHeaderBytes:])
	return p, nil
}

// Clone returns a deep copy, so a relay can change TTL without touching the original.
func (p *Packet) Clone() *Packet {
	c := *p
	c.Payload = append([]byte(nil), p.Payload...)
	return &c
}
