package bootstrap

import (
	"context"

	"github.com/cappuch/lib-p2pchat/internal/config"
	"github.com/cappuch/lib-p2pchat/internal/peers"
)

type StaticSource struct {
	Peers []peers.Peer
	Label string
}

func (s StaticSource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return "static"
}

func (s StaticSource) Discover(ctx context.Context) ([]peers.Peer, error) {
	return append([]peers.Peer(nil), s.Peers...), nil
}

// ConfigSource yields the peers listed in a config file's peers section.
type ConfigSource struct {
	Entries []config.PeerConfig
}

func (s ConfigSource) Name() string { return "config" }

func (s ConfigSource) Discover(ctx context.Context) ([]peers.Peer, error) {
	out := make([]peers.Peer, 0, len(s.Entries))
	for _, e := range s.Entries {
		p, err := e.Peer()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// FileSource reads a YAML peers list (the format config.MarshalPeers writes)
// every time it is asked.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) Discover(ctx context.Context) ([]peers.Peer, error) {
	cfg, err := config.Load(s.Path)
	if err != nil {
		return nil, err
	}
	return ConfigSource{Entries: cfg.Peers}.Discover(ctx)
}
