package proto

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const (
	NodeIDBytes = 32
	KeyBytes    = 32
)

// NodeID is a node's overlay address: BLAKE2b-256 of its encryption public key.
type NodeID [NodeIDBytes]byte

// PublicKey is an X25519 encryption public key.
type PublicKey [KeyBytes]byte

// SigningKey is an Ed25519 public key.
type SigningKey [KeyBytes]byte

// DeriveNodeID hashes an encryption public key into its node id.
func DeriveNodeID(pub PublicKey) NodeID {
	return NodeID(blake2b.Sum256(pub[:]))
}

func ParseNodeIDHex(s string) (NodeID, error) {
	var id NodeID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != NodeIDBytes {
		return id, fmt.Errorf("node id must be %d bytes, got %d", NodeIDBytes, len(b))
	}
	copy(id[:], b)
	return id, nil
}

func MustParseNodeIDHex(s string) NodeID {
	id, err := ParseNodeIDHex(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id NodeID) Hex() string { return hex.EncodeToString(id[:]) }

func (id NodeID) String() string { return id.Hex() }

// Short returns the first 8 hex chars, for logs.
func (id NodeID) Short() string { return id.Hex()[:8] }

func (id NodeID) IsZero() bool { return id == NodeID{} }

// ParseKeyHex parses a 32-byte key from hex. Used for both key kinds.
func ParseKeyHex(s string) ([KeyBytes]byte, error) {
	var k [KeyBytes]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, err
	}
	if len(b) != KeyBytes {
		return k, fmt.Errorf("expected %d-byte key, got %d", KeyBytes, len(b))
	}
	copy(k[:], b)
	return k, nil
}

func (k PublicKey) Hex() string  { return hex.EncodeToString(k[:]) }
func (k SigningKey) Hex() string { return hex.EncodeToString(k[:]) }
