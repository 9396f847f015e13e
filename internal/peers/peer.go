package peers

import (
	"net"
	"strconv"
	"time"

	"github.com/cappuch/lib-p2pchat/internal/proto"
)

// Peer is what a node knows about another node.
type Peer struct {
	ID       proto.NodeID
	EncKey   proto.PublicKey
	SignKey  proto.SigningKey
	IP       string
	Port     uint16
	LastSeen time.Time // zero means never seen; exempt from eviction
}

// HasAddr reports whether the peer has a last-known address to send to.
func (p Peer) HasAddr() bool { return p.IP != "" && p.Port != 0 }

// Addr formats ip:port, or "" when unknown.
func (p Peer) Addr() string {
	if !p.HasAddr() {
		return ""
	}
	return net.JoinHostPort(p.IP, strconv.Itoa(int(p.Port)))
}
