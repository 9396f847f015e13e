package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"github.com/cappuch/lib-p2pchat/internal/netx"
	"github.com/cappuch/lib-p2pchat/internal/paths"
	"github.com/cappuch/lib-p2pchat/internal/peers"
	"github.com/cappuch/lib-p2pchat/internal/proto"
	"github.com/cappuch/lib-p2pchat/internal/telemetry"
	"github.com/cappuch/lib-p2pchat/internal/transfer"
)

// Config is the node's on-disk configuration. Zero values fall back to
// Default() when loaded.
type Config struct {
	BindAddr       string        `yaml:"bindAddr"`
	DiscoveryPort  uint16        `yaml:"discoveryPort"`
	BeaconInterval time.Duration `yaml:"beaconInterval"`
	PeerTTL        time.Duration `yaml:"peerTTL"`
	PollTimeout    time.Duration `yaml:"pollTimeout"`
	ChunkSize      int           `yaml:"chunkSize"`
	DataDir        string        `yaml:"dataDir"`
	LogLevel       string        `yaml:"logLevel"`
	Debug          bool          `yaml:"debug"`
	Peers          []PeerConfig  `yaml:"peers"`
}

// PeerConfig is a statically known peer, all keys in hex.
type PeerConfig struct {
	ID      string `yaml:"id"`
	EncKey  string `yaml:"encKey"`
	SignKey string `yaml:"signKey"`
	Addr    string `yaml:"addr"`
}

func Default() Config {
	return Config{
		BindAddr:       ":42042",
		DiscoveryPort:  42042,
		BeaconInterval: 2 * time.Second,
		PeerTTL:        120 * time.Second,
		PollTimeout:    100 * time.Millisecond,
		ChunkSize:      1024,
		DataDir:        paths.DefaultDataDir(),
		LogLevel:       "info",
	}
}

// Load reads a YAML file on top of Default(). Unknown keys are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config read: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs error
	if _, err := netx.ParseAddr(c.BindAddr); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("bindAddr: %w", err))
	}
	if c.DiscoveryPort == 0 {
		errs = multierr.Append(errs, errors.New("discoveryPort must be non-zero"))
	}
	if c.BeaconInterval <= 0 || c.PeerTTL <= 0 || c.PollTimeout <= 0 {
		errs = multierr.Append(errs, errors.New("beaconInterval, peerTTL and pollTimeout must be positive"))
	}
	if c.ChunkSize < 0 || c.ChunkSize > transfer.MaxSafeChunkBytes {
		errs = multierr.Append(errs, fmt.Errorf("chunkSize must be in [0, %d]", transfer.MaxSafeChunkBytes))
	}
	if _, err := telemetry.ParseLevel(c.LogLevel); err != nil {
		errs = multierr.Append(errs, err)
	}
	for i, p := range c.Peers {
		if _, err := p.Peer(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("peers[%d]: %w", i, err))
		}
	}
	return errs
}

// Peer converts the hex config entry into a directory entry.
func (p PeerConfig) Peer() (peers.Peer, error) {
	id, err := proto.ParseNodeIDHex(p.ID)
	if err != nil {
		return peers.Peer{}, fmt.Errorf("id: %w", err)
	}
	enc, err := proto.ParseKeyHex(p.EncKey)
	if err != nil {
		return peers.Peer{}, fmt.Errorf("encKey: %w", err)
	}
	sign, err := proto.ParseKeyHex(p.SignKey)
	if err != nil {
		return peers.Peer{}, fmt.Errorf("signKey: %w", err)
	}
	if proto.DeriveNodeID(enc) != id {
		return peers.Peer{}, errors.New("id does not match encKey")
	}
	addr, err := netx.ParseAddr(p.Addr)
	if err != nil {
		return peers.Peer{}, fmt.Errorf("addr: %w", err)
	}
	if addr.IP == "" || addr.Port == 0 {
		return peers.Peer{}, fmt.Errorf("addr %q needs host and port", p.Addr)
	}
	return peers.Peer{ID: id, EncKey: enc, SignKey: sign, IP: addr.IP, Port: addr.Port}, nil
}

// PeerConfigOf renders a peer the way it would appear in a config file.
func PeerConfigOf(p peers.Peer) PeerConfig {
	return PeerConfig{
		ID:      p.ID.Hex(),
		EncKey:  p.EncKey.Hex(),
		SignKey: p.SignKey.Hex(),
		Addr:    p.Addr(),
	}
}

// MarshalPeers emits a YAML peers list another node can paste into its config.
func MarshalPeers(ps ...peers.Peer) ([]byte, error) {
	out := struct {
		Peers []PeerConfig `yaml:"peers"`
	}{}
	for _, p := range ps {
		out.Peers = append(out.Peers, PeerConfigOf(p))
	}
	return yaml.Marshal(out)
}
