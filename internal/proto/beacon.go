package proto

import (
	"bytes"
	"encoding/binary"
)

// BeaconBytes = magic(4) + port(2) + enc key(32) + sign key(32) + id(32).
const BeaconBytes = 4 + 2 + KeyBytes + KeyBytes + NodeIDBytes

// BeaconMagic tags discovery beacons on the shared socket.
var BeaconMagic = [4]byte{'D', 'I', 'S', 'C'}

// Beacon is the unsigned LAN announcement. Trust comes later, when a packet
// from the advertised id verifies against SignKey.
type Beacon struct {
	Port    uint16
	EncKey  PublicKey
	SignKey SigningKey
	ID      NodeID
}

func (b Beacon) Marshal() []byte {
	out := make([]byte, BeaconBytes)
	off := copy(out, BeaconMagic[:])
	binary.BigEndian.PutUint16(out[off:], b.Port)
	off += 2
	off += copy(out[off:], b.EncKey[:])
	off += copy(out[off:], b.SignKey[:])
	copy(out[off:], b.ID[:])
	return out
}

// IsBeacon reports whether a datagram starts with the beacon magic.
//
// This is a prefix heuristic: a packet whose sender id begins with "DISC"
// would be misread as a beacon.
func IsBeacon(data []byte) bool {
	return len(data) >= len(BeaconMagic) && bytes.Equal(data[:len(BeaconMagic)], BeaconMagic[:])
}

func UnmarshalBeacon(data []byte) (Beacon, error) {
	if !IsBeacon(data) {
		if len(data) < len(BeaconMagic) {
			return Beacon{}, ErrShortBeacon
		}
		return Beacon{}, ErrBadMagic
	}
	if len(data) < BeaconBytes {
		return Beacon{}, ErrShortBeacon
	}
	var b Beacon
	off := len(BeaconMagic)
	b.Port = binary.BigEndian.Uint16(data[off:])
	off += 2
	off += copy(b.EncKey[:], data[off:])
	off += copy(b.SignKey[:], data[off:])
	copy(b.ID[:], data[off:])
	return b, nil
}
