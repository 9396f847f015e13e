package bootstrap

import (
	"context"

	"github.com/cappuch/lib-p2pchat/internal/peers"
)

type PeerSource interface {
	// Discover returns peers whose address and keys are already known.
	Discover(ctx context.Context) ([]peers.Peer, error)
	Name() string
}
