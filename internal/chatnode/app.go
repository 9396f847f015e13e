package chatnode

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/cappuch/lib-p2pchat/internal/bootstrap"
	"github.com/cappuch/lib-p2pchat/internal/discovery"
	"github.com/cappuch/lib-p2pchat/internal/netx"
	"github.com/cappuch/lib-p2pchat/internal/p2p"
	"github.com/cappuch/lib-p2pchat/internal/proto"
	"github.com/cappuch/lib-p2pchat/internal/transfer"
)

const inboundQueue = 256

type App struct {
	cfg    Config
	ui     Printer
	logger *logrus.Logger
	store  Store

	Node    *p2p.Node
	Files   *transfer.Manager
	Metrics *p2p.AtomicMetrics

	// Filled by handlers on the node worker, drained by Run.
	inbound chan inbound

	quit     chan struct{}
	quitOnce sync.Once
	stopOnce sync.Once
	stopErr  error
}

func New(cfg Config, logger *logrus.Logger) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("chatnode: Config.Store is required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.Network == nil {
		cfg.Network = netx.NewUDPNetwork()
	}
	if cfg.Input == nil {
		cfg.Input = os.Stdin
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	id, created, err := LoadOrCreateIdentity(cfg.Store)
	if err != nil {
		return nil, err
	}
	if created {
		logger.WithField("id", id.ID.Short()).Info("generated new identity")
	}

	s := cfg.Settings
	metrics := &p2p.AtomicMetrics{}
	n, err := p2p.NewNode(p2p.NodeConfig{
		Network:  cfg.Network,
		BindAddr: s.BindAddr,
		Discovery: discovery.LANConfig{
			Port:     s.DiscoveryPort,
			Interval: s.BeaconInterval,
		},
		PeerTTL:     s.PeerTTL,
		PollTimeout: s.PollTimeout,
		Identity:    id,
		Metrics:     metrics,
		Logger:      logger,
		Debug:       s.Debug,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		ui:      NewStdPrinter(cfg.Output, cfg.Color),
		logger:  logger,
		store:   cfg.Store,
		Node:    n,
		Files:   transfer.NewManager(n, transfer.WithLogger(logger)),
		Metrics: metrics,
		inbound: make(chan inbound, inboundQueue),
		quit:    make(chan struct{}),
	}
	n.OnTypedMessage(a.onTyped)
	a.Files.OnFile(a.onFile)
	return a, nil
}

// Start binds the node and registers configured peers.
func (a *App) Start() error {
	if err := a.Node.Start(); err != nil {
		return err
	}

	sources := []bootstrap.PeerSource{bootstrap.ConfigSource{Entries: a.cfg.Settings.Peers}}
	if a.cfg.PeersFile != "" {
		if _, err := os.Stat(a.cfg.PeersFile); err == nil {
			sources = append(sources, bootstrap.FileSource{Path: a.cfg.PeersFile})
		}
	}
	added := bootstrap.RunOnce(context.Background(), a.Node, a.logger, bootstrap.DefaultConfig(), sources...)
	a.logger.WithFields(logrus.Fields{
		"addr":  a.Node.ListenAddr().String(),
		"peers": added,
	}).Info("node started")
	return nil
}

// Run prints the banner, reads commands and prints inbound traffic until ctx
// is done or /quit is entered.
func (a *App) Run(ctx context.Context) error {
	PrintBanner(a.ui, a.Node)

	go a.readInput(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.quit:
			return nil
		case ev := <-a.Node.Events():
			a.handleEvent(ev)
		case in := <-a.inbound:
			a.handleInbound(in)
		}
	}
}

// Quit asks Run to return.
func (a *App) Quit() {
	a.quitOnce.Do(func() { close(a.quit) })
}

// StopAll stops the node and closes the store.
func (a *App) StopAll() error {
	a.stopOnce.Do(func() {
		a.Quit()
		a.stopErr = multierr.Append(a.Node.Stop(), a.store.Close())
	})
	return a.stopErr
}

func (a *App) handleEvent(ev p2p.Event) {
	switch ev.Type {
	case p2p.EventPeerDiscovered:
		a.ui.Printf("[NET] peer discovered: %s (%s)\n", formatName(ev.PeerID), ev.PeerAddr)
	case p2p.EventPeerExpired:
		a.ui.Printf("[NET] peer expired: %s\n", formatName(ev.PeerID))
	}
}

// enqueue hands work from the node worker to Run without blocking it.
func (a *App) enqueue(in inbound) {
	select {
	case a.inbound <- in:
	default:
		a.logger.WithField("from", in.from.Short()).Debug("inbound queue full, dropping message")
	}
}

func (a *App) onTyped(from proto.NodeID, t proto.MessageType, body []byte) {
	if t != proto.MsgText {
		return
	}
	a.enqueue(inbound{kind: inboundText, from: from, text: string(body), at: time.Now()})
}

func (a *App) onFile(from proto.NodeID, name string, data []byte) {
	a.enqueue(inbound{kind: inboundFile, from: from, name: name, data: data, at: time.Now()})
}
