package proto

import (
	"crypto/subtle"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

const (
	TransferIDBytes = 16
	ChecksumBytes   = blake2b.Size256

	MaxNameBytes  = 255
	MaxChunkBytes = 65535

	// FragmentFixedBytes is everything except name and chunk bytes.
	FragmentFixedBytes = 1 + TransferIDBytes + 4 + 4 + 1 + 2 + ChecksumBytes
)

type TransferID [TransferIDBytes]byte

// Fragment is one chunk of a chunked transfer.
type Fragment struct {
	TransferID TransferID
	Index      uint32
	Total      uint32
	Name       string
	Data       []byte
}

// ChunkChecksum is the integrity hash carried after each chunk.
func ChunkChecksum(data []byte) [ChecksumBytes]byte {
	return blake2b.Sum256(data)
}

// MarshalFragment encodes f as a complete MsgFileChunk message, type byte included.
// Names longer than 255 bytes and chunks longer than 65535 bytes are truncated.
func MarshalFragment(f Fragment) []byte {
	name := f.Name
	if len(name) > MaxNameBytes {
		name = name[:MaxNameBytes]
	}
	data := f.Data
	if len(data) > MaxChunkBytes {
		data = data[:MaxChunkBytes]
	}

	out := make([]byte, 0, FragmentFixedBytes+len(name)+len(data))
	out = append(out, byte(MsgFileChunk))
	out = append(out, f.TransferID[:]...)
	out = binary.BigEndian.AppendUint32(out, f.Index)
	out = binary.BigEndian.AppendUint32(out, f.Total)
	out = append(out, byte(len(name)))
	out = append(out, name...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(data)))
	out = append(out, data...)
	sum := ChunkChecksum(data)
	out = append(out, sum[:]...)
	return out
}

// UnmarshalFragment decodes a full message including the leading type byte.
func UnmarshalFragment(msg []byte) (Fragment, error) {
	if len(msg) < 1 {
		return Fragment{}, ErrShortFragment
	}
	if MessageType(msg[0]) != MsgFileChunk {
		return Fragment{}, ErrBadFragmentTag
	}
	return UnmarshalFragmentBody(msg[1:])
}

// UnmarshalFragmentBody decodes a fragment whose type byte was already stripped,
// as handed to typed-message callbacks. The checksum is verified before anything
// is returned.
func UnmarshalFragmentBody(body []byte) (Fragment, error) {
	if len(body) < FragmentFixedBytes-1 {
		return Fragment{}, ErrShortFragment
	}
	var f Fragment
	off := copy(f.TransferID[:], body)
	f.Index = binary.BigEndian.Uint32(body[off:])
	off += 4
	f.Total = binary.BigEndian.Uint32(body[off:])
	off += 4
	nl := int(body[off])
	off++
	if off+nl+2 > len(body) {
		return Fragment{}, ErrShortFragment
	}
	name := string(body[off : off+nl])
	off += nl
	dl := int(binary.BigEndian.Uint16(body[off:]))
	off += 2
	if off+dl+ChecksumBytes > len(body) {
		return Fragment{}, ErrShortFragment
	}
	data := body[off : off+dl]
	off += dl
	sum := ChunkChecksum(data)
	if subtle.ConstantTimeCompare(sum[:], body[off:off+ChecksumBytes]) != 1 {
		return Fragment{}, ErrFragmentChecksum
	}
	f.Name = name
	f.Data = append([]byte(nil), data...)
	return f, nil
}
