package envelope

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/nacl/box"

	"github.com/cappuch/lib-p2pchat/internal/proto"
)

const (
	NonceBytes    = 24
	OverheadBytes = box.Overhead
)

var (
	ErrCiphertextTooShort = errors.New("envelope: ciphertext too short")
	ErrOpenFailed         = errors.New("envelope: authentication failed")
)

var (
	setupOnce sync.Once
	setupErr  error
)

// Setup checks that the system random source is usable. It runs once per
// process; later calls return the first result.
func Setup() error {
	setupOnce.Do(func() {
		var probe [NonceBytes]byte
		if _, err := io.ReadFull(rand.Reader, probe[:]); err != nil {
			setupErr = fmt.Errorf("envelope: random source unavailable: %w", err)
		}
	})
	return setupErr
}

// Sign produces the detached signature over sender || dest || payload.
func Sign(priv ed25519.PrivateKey, sender, dest proto.NodeID, payload []byte) [proto.SignatureBytes]byte {
	var sig [proto.SignatureBytes]byte
	copy(sig[:], ed25519.Sign(priv, proto.SignedBytes(sender, dest, payload)))
	return sig
}

// SignPacket fills p.Signature in place.
func SignPacket(priv ed25519.PrivateKey, p *proto.Packet) {
	p.Signature = Sign(priv, p.Sender, p.Dest, p.Payload)
}

// Verify reports whether sig is a valid signature by pub. Any malformed input
// yields false.
func Verify(pub proto.SigningKey, sender, dest proto.NodeID, payload, sig []byte) bool {
	if len(sig) != proto.SignatureBytes {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), proto.SignedBytes(sender, dest, payload), sig)
}

func VerifyPacket(pub proto.SigningKey, p *proto.Packet) bool {
	return Verify(pub, p.Sender, p.Dest, p.Payload, p.Signature[:])
}

// Seal encrypts and authenticates plaintext from the holder of senderPriv to
// recipientPub. The output is nonce || box.
func Seal(senderPriv *[32]byte, recipientPub proto.PublicKey, plaintext []byte) ([]byte, error) {
	var nonce [NonceBytes]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("envelope: nonce: %w", err)
	}
	peer := [32]byte(recipientPub)
	out := make([]byte, NonceBytes, NonceBytes+len(plaintext)+OverheadBytes)
	copy(out, nonce[:])
	return box.Seal(out, plaintext, &nonce, &peer, senderPriv), nil
}

// Open reverses Seal.
func Open(recipientPriv *[32]byte, senderPub proto.PublicKey, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceBytes+OverheadBytes {
		return nil, ErrCiphertextTooShort
	}
	var nonce [NonceBytes]byte
	copy(nonce[:], ciphertext[:NonceBytes])
	peer := [32]byte(senderPub)
	pt, ok := box.Open(nil, ciphertext[NonceBytes:], &nonce, &peer, recipientPriv)
	if !ok {
		return nil, ErrOpenFailed
	}
	if pt == nil {
		pt = []byte{}
	}
	return pt, nil
}
