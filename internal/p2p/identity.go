package p2p

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"

	"github.com/cappuch/lib-p2pchat/internal/proto"
)

const identityVersion = 1

// identityBlobBytes = version(1) + x25519 private(32) + ed25519 seed(32).
const identityBlobBytes = 1 + 32 + ed25519.SeedSize

var ErrBadIdentity = errors.New("p2p: malformed identity blob")

// Identity is a node's long-term key material. It never changes after creation.
type Identity struct {
	EncPub   proto.PublicKey
	encPriv  [32]byte
	SignPub  proto.SigningKey
	SignPriv ed25519.PrivateKey
	ID       proto.NodeID // BLAKE2b-256(EncPub)
}

func NewIdentity() (*Identity, error) {
	kp, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate x25519 key: %w", err)
	}
	_, signPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return newIdentity(kp.Private, signPriv.Seed())
}

func newIdentity(encPriv, signSeed []byte) (*Identity, error) {
	if len(encPriv) != 32 || len(signSeed) != ed25519.SeedSize {
		return nil, ErrBadIdentity
	}
	// Recompute the public half the same way the keypair generator does.
	kp, err := noise.DH25519.GenerateKeypair(fixedReader(encPriv))
	if err != nil {
		return nil, fmt.Errorf("derive x25519 public key: %w", err)
	}

	id := &Identity{}
	copy(id.encPriv[:], kp.Private)
	copy(id.EncPub[:], kp.Public)
	id.SignPriv = ed25519.NewKeyFromSeed(signSeed)
	copy(id.SignPub[:], id.SignPriv.Public().(ed25519.PublicKey))
	id.ID = proto.DeriveNodeID(id.EncPub)
	return id, nil
}

// EncPrivate returns the X25519 private key in the form the box primitives take.
func (id *Identity) EncPrivate() *[32]byte {
	k := id.encPriv
	return &k
}

// Beacon returns the discovery announcement for this identity listening on port.
func (id *Identity) Beacon(port uint16) proto.Beacon {
	return proto.Beacon{Port: port, EncKey: id.EncPub, SignKey: id.SignPub, ID: id.ID}
}

// MarshalBinary encodes the private halves so the identity survives restarts.
func (id *Identity) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, identityBlobBytes)
	out = append(out, identityVersion)
	out = append(out, id.encPriv[:]...)
	out = append(out, id.SignPriv.Seed()...)
	return out, nil
}

func (id *Identity) UnmarshalBinary(b []byte) error {
	if len(b) != identityBlobBytes || b[0] != identityVersion {
		return ErrBadIdentity
	}
	got, err := newIdentity(b[1:33], b[33:])
	if err != nil {
		return err
	}
	*id = *got
	return nil
}

// fixedReader feeds a known private key to a keypair generator.
type fixedReader []byte

func (r fixedReader) Read(p []byte) (int, error) {
	return copy(p, r), nil
}
