package chatnode

import (
	"errors"
	"fmt"
	"time"

	"github.com/cappuch/lib-p2pchat/internal/p2p"
	"github.com/cappuch/lib-p2pchat/internal/proto"
)

var ErrNotFound = errors.New("chatnode: not found")

// InboxEntry describes one received file.
type InboxEntry struct {
	Seq        uint64
	From       proto.NodeID
	Name       string
	Size       int
	ReceivedAt time.Time
}

// Store persists the node identity and the received-file inbox.
type Store interface {
	LoadIdentity() ([]byte, bool, error)
	SaveIdentity(blob []byte) error

	PutFile(from proto.NodeID, name string, data []byte, at time.Time) (uint64, error)
	ListFiles(since time.Time, limit int) ([]InboxEntry, error)
	ReadFile(seq uint64) (InboxEntry, []byte, error)
	DeleteFile(seq uint64) error

	Close() error
}

// LoadOrCreateIdentity returns the stored identity, generating and saving a
// fresh one on first run.
func LoadOrCreateIdentity(s Store) (*p2p.Identity, bool, error) {
	blob, ok, err := s.LoadIdentity()
	if err != nil {
		return nil, false, fmt.Errorf("load identity: %w", err)
	}
	if ok {
		id := &p2p.Identity{}
		if err := id.UnmarshalBinary(blob); err != nil {
			return nil, false, fmt.Errorf("load identity: %w", err)
		}
		return id, false, nil
	}

	id, err := p2p.NewIdentity()
	if err != nil {
		return nil, false, err
	}
	blob, err = id.MarshalBinary()
	if err != nil {
		return nil, false, err
	}
	if err := s.SaveIdentity(blob); err != nil {
		return nil, false, fmt.Errorf("save identity: %w", err)
	}
	return id, true, nil
}
