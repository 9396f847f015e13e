package p2p

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/cappuch/lib-p2pchat/internal/crypto/envelope"
	"github.com/cappuch/lib-p2pchat/internal/discovery"
	"github.com/cappuch/lib-p2pchat/internal/netx"
	"github.com/cappuch/lib-p2pchat/internal/peers"
	"github.com/cappuch/lib-p2pchat/internal/proto"
	"github.com/cappuch/lib-p2pchat/internal/telemetry"
)

// ErrStopped is returned by Start on a node that was already stopped.
var ErrStopped = errors.New("p2p: node stopped")

const (
	DefaultBindAddr    = ":42042"
	DefaultPeerTTL     = 120 * time.Second
	DefaultPollTimeout = 100 * time.Millisecond
)

type NodeConfig struct {
	Network     netx.Network        // transport implementation
	BindAddr    string              // e.g. ":0" to choose random port
	Discovery   discovery.LANConfig // beacon port and interval
	PeerTTL     time.Duration       // evict peers not seen for this long
	PollTimeout time.Duration       // worker poll bound
	Identity    *Identity           // nil generates a fresh one
	Metrics     Metrics             // nil means NoopMetrics
	Logger      telemetry.Logger    // system logger
	Debug       bool                // flag for showing hidden logs to debug
}

type Node struct {
	cfg  NodeConfig
	id   *Identity
	addr netx.Addr

	dir      *peers.Directory
	router   *Router
	announce *discovery.Announcer
	ingest   *discovery.Ingester

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lifeMu    sync.Mutex // serializes start against stop
	startOnce sync.Once
	stopOnce  sync.Once
	stopErr   error

	events chan Event
}

func NewNode(cfg NodeConfig) (*Node, error) {
	if err := envelope.Setup(); err != nil {
		return nil, err
	}
	if cfg.Network == nil {
		return nil, errors.New("p2p: NodeConfig.Network is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.BindAddr == "" {
		cfg.BindAddr = DefaultBindAddr
	}
	if cfg.Discovery.Port == 0 {
		cfg.Discovery.Port = discovery.DefaultLANPort
	}
	if cfg.Discovery.Interval <= 0 {
		cfg.Discovery.Interval = discovery.DefaultLANInterval
	}
	if cfg.PeerTTL <= 0 {
		cfg.PeerTTL = DefaultPeerTTL
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetrics{}
	}

	id := cfg.Identity
	if id == nil {
		var err error
		if id, err = NewIdentity(); err != nil {
			return nil, err
		}
	}

	dir := peers.NewDirectory()
	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:    cfg,
		id:     id,
		dir:    dir,
		router: NewRouter(id, dir, cfg.Network, cfg.Metrics),
		ingest: discovery.NewIngester(id.ID, dir),
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, 128),
	}
	return n, nil
}

// ID returns this node's id.
func (n *Node) ID() proto.NodeID { return n.id.ID }

// Identity returns the node's key material.
func (n *Node) Identity() *Identity { return n.id }

// ListenAddr returns where this node is listening.
func (n *Node) ListenAddr() netx.Addr { return n.addr }

// Events return a channel of peer discovery/expiry events.
func (n *Node) Events() <-chan Event { return n.events }

func (n *Node) Metrics() Metrics { return n.cfg.Metrics }

// Start binds the transport and launches the worker. A bind failure is fatal,
// and a stopped node cannot be started.
func (n *Node) Start() error {
	err := errors.New("p2p: node already started")
	n.startOnce.Do(func() {
		err = n.start()
	})
	return err
}

func (n *Node) start() error {
	n.lifeMu.Lock()
	defer n.lifeMu.Unlock()
	if n.ctx.Err() != nil {
		return ErrStopped
	}

	addr, err := n.cfg.Network.Listen(n.cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("p2p: bind %s: %w", n.cfg.BindAddr, err)
	}
	n.addr = addr
	n.announce = discovery.NewAnnouncer(n.cfg.Network, n.id.Beacon(addr.Port), n.cfg.Discovery)
	n.Logf("listening on %s, id=%s", n.addr, n.id.ID)

	n.wg.Add(1)
	go n.loop()
	return nil
}

// Stop shuts the worker down and closes the transport. In-flight transfers
// are abandoned.
func (n *Node) Stop() error {
	n.stopOnce.Do(func() {
		n.lifeMu.Lock()
		defer n.lifeMu.Unlock()
		n.cancel()
		n.wg.Wait()
		n.stopErr = multierr.Append(n.stopErr, n.cfg.Network.Close())
	})
	return n.stopErr
}

func (n *Node) emit(e Event) {
	select {
	case n.events <- e:
	default:
		// drop to avoid stalling the worker
	}
}

func (n *Node) loop() {
	defer n.wg.Done()
	for {
		if n.ctx.Err() != nil {
			return
		}

		d, ok, err := n.cfg.Network.Poll(n.cfg.PollTimeout)
		switch {
		case err != nil:
			if n.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			n.Logf("poll: %v", err)
			select {
			case <-n.ctx.Done():
				return
			case <-time.After(n.cfg.PollTimeout):
			}
		case ok:
			n.dispatch(d)
		}

		for _, p := range n.dir.RemoveStale(n.cfg.PeerTTL) {
			n.Logf("peer %s expired", p.ID.Short())
			n.emit(Event{Type: EventPeerExpired, PeerID: p.ID, PeerAddr: p.Addr()})
		}

		if _, err := n.announce.Tick(time.Now()); err != nil {
			n.Logf("%v", err)
		}
	}
}

func (n *Node) dispatch(d netx.Datagram) {
	if proto.IsBeacon(d.Data) {
		res, err := n.ingest.Handle(d.Data, d.From)
		if err != nil {
			if !errors.Is(err, discovery.ErrOwnBeacon) {
				n.Logf("bad beacon from %s: %v", d.From, err)
			}
			return
		}
		if res.Created {
			n.Logf("discovered %s at %s", res.ID.Short(), res.Addr)
			n.emit(Event{Type: EventPeerDiscovered, PeerID: res.ID, PeerAddr: res.Addr.String()})
		}
		return
	}

	pkt, err := proto.UnmarshalPacket(d.Data)
	if err != nil {
		n.cfg.Metrics.IncDropped(DropMalformed)
		n.Logf("bad packet from %s: %v", d.From, err)
		return
	}
	v := n.router.HandleIncoming(pkt, d.From)
	if v.Action == ActionDropped {
		n.Logf("dropped packet %s->%s from %s: %s", pkt.Sender.Short(), pkt.Dest.Short(), d.From, v.Reason)
	}
}
