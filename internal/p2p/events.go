package p2p

import "github.com/cappuch/lib-p2pchat/internal/proto"

type EventType string

const (
	EventPeerDiscovered EventType = "peer_discovered"
	EventPeerExpired    EventType = "peer_expired"
)

type Event struct {
	Type     EventType
	PeerID   proto.NodeID
	PeerAddr string
}
