package p2p

import (
	"github.com/cappuch/lib-p2pchat/internal/peers"
	"github.com/cappuch/lib-p2pchat/internal/proto"
)

// AddPeer registers a known peer by hand, e.g. from bootstrap config.
// Peers added with a zero LastSeen never expire. It reports false, and
// records nothing, for this node's own id.
func (n *Node) AddPeer(p peers.Peer) bool {
	if p.ID == n.id.ID {
		return false
	}
	n.dir.AddOrUpdate(p)
	return true
}

// Peers returns a snapshot of the directory.
func (n *Node) Peers() []peers.Peer { return n.dir.List() }

// PeerCount returns the current number of known peers.
func (n *Node) PeerCount() int { return n.dir.Len() }

func (n *Node) FindPeer(id proto.NodeID) (peers.Peer, bool) { return n.dir.FindByID(id) }

// Directory exposes the underlying peer directory.
func (n *Node) Directory() *peers.Directory { return n.dir }
