package p2p

import (
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/cappuch/lib-p2pchat/internal/discovery"
	"github.com/cappuch/lib-p2pchat/internal/netx"
	"github.com/cappuch/lib-p2pchat/internal/peers"
	"github.com/cappuch/lib-p2pchat/internal/proto"
)

type nodeTestOpt func(*NodeConfig)

// WithBind overrides the bind address (default ":0", which keeps the node
// off the discovery port so it only learns peers by hand).
func WithBind(addr string) nodeTestOpt {
	return func(cfg *NodeConfig) { cfg.BindAddr = addr }
}

// WithLogger lets you override the logger (default is io.Discard).
func WithLogger(l *log.Logger) nodeTestOpt {
	return func(cfg *NodeConfig) { cfg.Logger = l }
}

// WithMetrics installs a metrics sink.
func WithMetrics(m Metrics) nodeTestOpt {
	return func(cfg *NodeConfig) { cfg.Metrics = m }
}

// WithPeerTTL shortens peer expiry.
func WithPeerTTL(d time.Duration) nodeTestOpt {
	return func(cfg *NodeConfig) { cfg.PeerTTL = d }
}

// WithBeaconInterval overrides the discovery interval.
func WithBeaconInterval(d time.Duration) nodeTestOpt {
	return func(cfg *NodeConfig) { cfg.Discovery.Interval = d }
}

// newTestNode starts a node on the in-memory hub at host ip and auto-stops it.
func newTestNode(t *testing.T, hub *netx.MemHub, ip string, opts ...nodeTestOpt) *Node {
	t.Helper()

	cfg := NodeConfig{
		Network:     hub.NewNetwork(ip),
		BindAddr:    ":0",
		Discovery:   discovery.LANConfig{Port: discovery.DefaultLANPort, Interval: time.Hour},
		PollTimeout: 10 * time.Millisecond,
		Logger:      log.New(io.Discard, "", log.LstdFlags),
		Debug:       true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	n, err := NewNode(cfg)
	if err != nil {
		t.Fatalf("NewNode(%s) error: %v", ip, err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start(%s) error: %v", ip, err)
	}
	t.Cleanup(func() { _ = n.Stop() })
	return n
}

// peerOf is what another node would record about n after bootstrap.
func peerOf(n *Node) peers.Peer {
	return peers.Peer{
		ID:      n.ID(),
		EncKey:  n.Identity().EncPub,
		SignKey: n.Identity().SignPub,
		IP:      n.ListenAddr().IP,
		Port:    n.ListenAddr().Port,
	}
}

// link makes a and b know each other by hand.
func link(a, b *Node) {
	a.AddPeer(peerOf(b))
	b.AddPeer(peerOf(a))
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitPeers(t *testing.T, n *Node, want int, timeout time.Duration) {
	t.Helper()
	waitFor(t, timeout, "peers", func() bool { return n.PeerCount() >= want })
}

type typedMsg struct {
	From proto.NodeID
	Type proto.MessageType
	Body string
}

// inbox collects typed messages delivered to a node.
type inbox struct {
	mu   sync.Mutex
	msgs []typedMsg
}

func collect(n *Node) *inbox {
	in := &inbox{}
	n.OnTypedMessage(func(from proto.NodeID, t proto.MessageType, body []byte) {
		in.mu.Lock()
		in.msgs = append(in.msgs, typedMsg{From: from, Type: t, Body: string(body)})
		in.mu.Unlock()
	})
	return in
}

func (in *inbox) snapshot() []typedMsg {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]typedMsg(nil), in.msgs...)
}

func (in *inbox) len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.msgs)
}
