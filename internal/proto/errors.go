package proto

import "errors"

// Decode errors. Decoders return one of these and never a partially filled value.
var (
	ErrShortPacket      = errors.New("proto: packet shorter than header")
	ErrPayloadOverrun   = errors.New("proto: payload length exceeds buffer")
	ErrShortBeacon      = errors.New("proto: beacon too short")
	ErrBadMagic         = errors.New("proto: bad beacon magic")
	ErrEmptyMessage     = errors.New("proto: empty message")
	ErrShortFragment    = errors.New("proto: fragment truncated")
	ErrBadFragmentTag   = errors.New("proto: not a file chunk")
	ErrFragmentChecksum = errors.New("proto: fragment checksum mismatch")
)
