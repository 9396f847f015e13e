package proto

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func genPacket(t *rapid.T) *Packet {
	p := &Packet{
		TTL:     rapid.Uint8().Draw(t, "ttl"),
		Payload: rapid.SliceOfN(rapid.Byte(), 0, 2048).Draw(t, "payload"),
	}
	copy(p.Sender[:], rapid.SliceOfN(rapid.Byte(), NodeIDBytes, NodeIDBytes).Draw(t, "sender"))
	copy(p.Dest[:], rapid.SliceOfN(rapid.Byte(), NodeIDBytes, NodeIDBytes).Draw(t, "dest"))
	copy(p.Signature[:], rapid.SliceOfN(rapid.Byte(), SignatureBytes, SignatureBytes).Draw(t, "sig"))
	return p
}

func TestPacketRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := genPacket(t)
		got, err := UnmarshalPacket(p.Marshal())
		if err != nil {
			t.Fatalf("UnmarshalPacket: %v", err)
		}
		if got.Sender != p.Sender || got.Dest != p.Dest || got.TTL != p.TTL || got.Signature != p.Signature {
			t.Fatalf("header mismatch: got %+v want %+v", got, p)
		}
		if !bytes.Equal(got.Payload, p.Payload) {
			t.Fatalf("payload mismatch")
		}
	})
}

func TestPacketLayout(t *testing.T) {
	p := &Packet{TTL: 7, Payload: []byte("abc")}
	p.Sender[0] = 0xAA
	p.Dest[0] = 0xBB
	p.Signature[0] = 0xCC

	b := p.Marshal()
	require.Len(t, b, 133+3)
	assert.Equal(t, byte(0xAA), b[0])
	assert.Equal(t, byte(0xBB), b[32])
	assert.Equal(t, byte(7), b[64])
	assert.Equal(t, byte(0xCC), b[65])
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(b[129:133]))
	assert.Equal(t, []byte("abc"), b[133:])
}

func TestUnmarshalPacketShort(t *testing.T) {
	_, err := UnmarshalPacket(make([]byte, PacketHeaderBytes-1))
	require.ErrorIs(t, err, ErrShortPacket)
}

func TestUnmarshalPacketOverrun(t *testing.T) {
	b := (&Packet{Payload: []byte("hello")}).Marshal()
	_, err := UnmarshalPacket(b[:len(b)-1])
	require.ErrorIs(t, err, ErrPayloadOverrun)

	binary.BigEndian.PutUint32(b[129:133], 0xFFFFFFFF)
	_, err = UnmarshalPacket(b)
	require.ErrorIs(t, err, ErrPayloadOverrun)
}

func TestUnmarshalPacketEmptyPayload(t *testing.T) {
	got, err := UnmarshalPacket((&Packet{TTL: 1}).Marshal())
	require.NoError(t, err)
	assert.Empty(t, got.Payload)
}

func TestPacketCloneIsDeep(t *testing.T) {
	p := &Packet{TTL: 3, Payload: []byte{1, 2, 3}}
	c := p.Clone()
	c.TTL--
	c.Payload[0] = 9
	assert.Equal(t, uint8(3), p.TTL)
	assert.Equal(t, byte(1), p.Payload[0])
}

func TestSignedBytesExcludesTTL(t *testing.T) {
	p := &Packet{TTL: 8, Payload: []byte("x")}
	before := p.SignedBytes()
	p.TTL = 2
	assert.Equal(t, before, p.SignedBytes())
	assert.Len(t, before, 2*NodeIDBytes+1)
}

func FuzzUnmarshalPacket(f *testing.F) {
	f.Add((&Packet{Payload: []byte("seed")}).Marshal())
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, data []byte) {
		p, err := UnmarshalPacket(data)
		if err != nil {
			if p != nil {
				t.Fatalf("partial packet returned with error %v", err)
			}
			return
		}
		if !bytes.Equal(p.Marshal(), data[:PacketHeaderBytes+len(p.Payload)]) {
			t.Fatalf("re-encode mismatch")
		}
	})
}
