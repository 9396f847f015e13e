package bootstrap

import (
	"context"

	"github.com/cappuch/lib-p2pchat/internal/peers"
	"github.com/cappuch/lib-p2pchat/internal/proto"
	"github.com/cappuch/lib-p2pchat/internal/telemetry"
)

type Config struct {
	MaxPeersPerRound int
}

func DefaultConfig() Config {
	return Config{
		MaxPeersPerRound: 64,
	}
}

// Registrar accepts manually known peers; *p2p.Node implements it. AddPeer
// reports whether the peer was recorded.
type Registrar interface {
	AddPeer(p peers.Peer) bool
}

// RunOnce gathers peers from sources and registers each distinct id once.
// Source errors are logged and skipped. Returns how many peers were added.
func RunOnce(ctx context.Context, reg Registrar, log telemetry.Logger, cfg Config, sources ...PeerSource) int {
	seen := make(map[proto.NodeID]struct{})
	added := 0

	for _, s := range sources {
		if ctx.Err() != nil {
			break
		}
		found, err := s.Discover(ctx)
		if err != nil {
			if log != nil {
				log.Printf("[bootstrap] %s discover error: %v", s.Name(), err)
			}
			continue
		}
		for _, p := range found {
			if cfg.MaxPeersPerRound > 0 && added >= cfg.MaxPeersPerRound {
				return added
			}
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			if reg.AddPeer(p) {
				added++
			}
		}
	}
	return added
}
