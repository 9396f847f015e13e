package chatnode

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cappuch/lib-p2pchat/internal/config"
	"github.com/cappuch/lib-p2pchat/internal/netx"
	"github.com/cappuch/lib-p2pchat/internal/peers"
	"github.com/cappuch/lib-p2pchat/internal/proto"
	"github.com/cappuch/lib-p2pchat/internal/telemetry"
)

// memStore is an in-memory Store.
type memStore struct {
	mu       sync.Mutex
	identity []byte
	files    map[uint64]memFile
	next     uint64
	closed   bool
}

type memFile struct {
	entry InboxEntry
	data  []byte
}

func newMemStore() *memStore { return &memStore{files: make(map[uint64]memFile)} }

func (s *memStore) LoadIdentity() ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.identity != nil, nil
}

func (s *memStore) SaveIdentity(blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = append([]byte(nil), blob...)
	return nil
}

func (s *memStore) PutFile(from proto.NodeID, name string, data []byte, at time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.files[s.next] = memFile{
		entry: InboxEntry{Seq: s.next, From: from, Name: name, Size: len(data), ReceivedAt: at},
		data:  append([]byte(nil), data...),
	}
	return s.next, nil
}

func (s *memStore) ListFiles(since time.Time, limit int) ([]InboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []InboxEntry
	for _, f := range s.files {
		if !f.entry.ReceivedAt.Before(since) {
			out = append(out, f.entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ReadFile(seq uint64) (InboxEntry, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[seq]
	if !ok {
		return InboxEntry{}, nil, ErrNotFound
	}
	return f.entry, f.data, nil
}

func (s *memStore) DeleteFile(seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[seq]; !ok {
		return ErrNotFound
	}
	delete(s.files, seq)
	return nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// syncBuffer collects printer output across goroutines.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (w *syncBuffer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.Write(p)
}

func (w *syncBuffer) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.String()
}

type testApp struct {
	*App
	out   *syncBuffer
	store *memStore
}

type appTestOpt func(*Config)

// WithPeers puts static peers in the app's settings.
func WithPeers(ps ...peers.Peer) appTestOpt {
	return func(cfg *Config) {
		for _, p := range ps {
			cfg.Settings.Peers = append(cfg.Settings.Peers, config.PeerConfigOf(p))
		}
	}
}

// WithStore replaces the fresh in-memory store.
func WithStore(s *memStore) appTestOpt {
	return func(cfg *Config) { cfg.Store = s }
}

func WithPeersFile(path string) appTestOpt {
	return func(cfg *Config) { cfg.PeersFile = path }
}

// newTestApp builds, starts and runs an app on the in-memory hub at host ip.
// Beacons are effectively off so peers are only known by hand.
func newTestApp(t *testing.T, hub *netx.MemHub, ip string, opts ...appTestOpt) *testApp {
	t.Helper()

	settings := config.Default()
	settings.BindAddr = ":0"
	settings.BeaconInterval = time.Hour
	settings.PollTimeout = 10 * time.Millisecond
	settings.DataDir = t.TempDir()

	out := &syncBuffer{}
	store := newMemStore()
	cfg := Config{
		Settings: settings,
		Network:  hub.NewNetwork(ip),
		Store:    store,
		Input:    strings.NewReader(""),
		Output:   out,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	a, err := New(cfg, telemetry.Discard())
	require.NoError(t, err)
	require.NoError(t, a.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = a.StopAll()
	})

	ta := &testApp{App: a, out: out, store: cfg.Store.(*memStore)}
	waitOutput(t, ta, "Node started.")
	return ta
}

// link makes a and b know each other's address and keys.
func link(a, b *testApp) {
	a.Node.AddPeer(b.selfPeer())
	b.Node.AddPeer(a.selfPeer())
}

func waitOutput(t *testing.T, a *testApp, substr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(a.out.String(), substr)
	}, 2*time.Second, 5*time.Millisecond, "output never contained %q:\n%s", substr, a.out.String())
}
