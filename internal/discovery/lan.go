package discovery

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cappuch/lib-p2pchat/internal/netx"
	"github.com/cappuch/lib-p2pchat/internal/proto"
)

// LANConfig controls beacon discovery.
type LANConfig struct {
	Port     uint16        // well-known port every node listens for beacons on
	Interval time.Duration // time between beacons
}

const (
	DefaultLANPort     = 42042
	DefaultLANInterval = 2 * time.Second
)

// DefaultLANConfig returns the default settings for LAN discovery.
func DefaultLANConfig() LANConfig {
	return LANConfig{
		Port:     DefaultLANPort,
		Interval: DefaultLANInterval,
	}
}

var ErrOwnBeacon = errors.New("discovery: own beacon")

// Broadcaster is the slice of the transport the announcer needs.
type Broadcaster interface {
	Broadcast(port uint16, data []byte) error
}

// Announcer periodically broadcasts this node's beacon.
type Announcer struct {
	cfg    LANConfig
	out    Broadcaster
	beacon []byte

	mu   sync.Mutex
	last time.Time
}

// NewAnnouncer prepares the encoded beacon once; the contents never change
// for the life of the node.
func NewAnnouncer(out Broadcaster, self proto.Beacon, cfg LANConfig) *Announcer {
	if cfg.Port == 0 {
		cfg.Port = DefaultLANPort
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultLANInterval
	}
	return &Announcer{cfg: cfg, out: out, beacon: self.Marshal()}
}

// Announce broadcasts the beacon now.
func (a *Announcer) Announce() error {
	if err := a.out.Broadcast(a.cfg.Port, a.beacon); err != nil {
		return fmt.Errorf("beacon broadcast: %w", err)
	}
	return nil
}

// Tick announces if at least one interval has passed since the last
// announcement. The first tick always announces.
func (a *Announcer) Tick(now time.Time) (bool, error) {
	a.mu.Lock()
	if !a.last.IsZero() && now.Sub(a.last) < a.cfg.Interval {
		a.mu.Unlock()
		return false, nil
	}
	a.last = now
	a.mu.Unlock()
	return true, a.Announce()
}

// Registry is where learned peers go; *peers.Directory implements it.
type Registry interface {
	UpsertAddressAndKeys(id proto.NodeID, ip string, port uint16, enc proto.PublicKey, sign proto.SigningKey) bool
}

// Ingester turns received beacons into directory entries.
type Ingester struct {
	self proto.NodeID
	reg  Registry
}

func NewIngester(self proto.NodeID, reg Registry) *Ingester {
	return &Ingester{self: self, reg: reg}
}

// Result describes an accepted beacon.
type Result struct {
	ID      proto.NodeID
	Addr    netx.Addr
	Created bool
}

// Handle parses data as a beacon received from `from`. The peer is recorded
// at the sender's IP and the port advertised in the beacon, not the source
// port.
func (i *Ingester) Handle(data []byte, from netx.Addr) (Result, error) {
	b, err := proto.UnmarshalBeacon(data)
	if err != nil {
		return Result{}, err
	}
	if b.ID == i.self {
		return Result{}, ErrOwnBeacon
	}
	created := i.reg.UpsertAddressAndKeys(b.ID, from.IP, b.Port, b.EncKey, b.SignKey)
	return Result{
		ID:      b.ID,
		Addr:    netx.Addr{IP: from.IP, Port: b.Port},
		Created: created,
	}, nil
}
