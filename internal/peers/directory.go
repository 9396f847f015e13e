package peers

import (
	"sync"
	"time"

	"github.com/cappuch/lib-p2pchat/internal/proto"
)

// Directory is the set of known peers, at most one entry per id. It keeps
// insertion order so listings and floods are deterministic. Safe for
// concurrent use.
type Directory struct {
	mu    sync.RWMutex
	peers []Peer
	index map[proto.NodeID]int
	now   func() time.Time
}

type Option func(*Directory)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

func NewDirectory(opts ...Option) *Directory {
	d := &Directory{
		index: make(map[proto.NodeID]int),
		now:   time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// AddOrUpdate inserts p, or replaces the whole entry with the same id.
func (d *Directory) AddOrUpdate(p Peer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i, ok := d.index[p.ID]; ok {
		d.peers[i] = p
		return
	}
	d.index[p.ID] = len(d.peers)
	d.peers = append(d.peers, p)
}

// List returns a snapshot copy.
func (d *Directory) List() []Peer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Peer, len(d.peers))
	copy(out, d.peers)
	return out
}

func (d *Directory) FindByID(id proto.NodeID) (Peer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	i, ok := d.index[id]
	if !ok {
		return Peer{}, false
	}
	return d.peers[i], true
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}

// UpsertAddressAndKeys sets address and keys for id and marks it seen now,
// creating the entry if needed. Returns true when a new entry was created.
func (d *Directory) UpsertAddressAndKeys(id proto.NodeID, ip string, port uint16, enc proto.PublicKey, sign proto.SigningKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := Peer{ID: id, IP: ip, Port: port, EncKey: enc, SignKey: sign, LastSeen: d.now()}
	if i, ok := d.index[id]; ok {
		d.peers[i] = p
		return false
	}
	d.index[id] = len(d.peers)
	d.peers = append(d.peers, p)
	return true
}

// TouchAddr refreshes LastSeen on the first peer, in insertion order, whose
// address is ip:port. Later peers sharing that address are left alone.
func (d *Directory) TouchAddr(ip string, port uint16) bool {
	if ip == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.peers {
		if d.peers[i].IP == ip && d.peers[i].Port == port {
			d.peers[i].LastSeen = d.now()
			return true
		}
	}
	return false
}

// RemoveStale evicts peers last seen more than maxAge ago and returns them.
// Peers never seen are kept.
func (d *Directory) RemoveStale(maxAge time.Duration) []Peer {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	var evicted []Peer
	kept := d.peers[:0]
	for _, p := range d.peers {
		if !p.LastSeen.IsZero() && now.Sub(p.LastSeen) > maxAge {
			evicted = append(evicted, p)
			continue
		}
		kept = append(kept, p)
	}
	if len(evicted) > 0 {
		d.reindex(kept)
	}
	return evicted
}

func (d *Directory) Remove(id proto.NodeID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.index[id]
	if !ok {
		return false
	}
	d.reindex(append(d.peers[:i], d.peers[i+1:]...))
	return true
}

func (d *Directory) reindex(ps []Peer) {
	// clear the tail so dropped entries don't linger in the backing array
	for i := len(ps); i < len(d.peers); i++ {
		d.peers[i] = Peer{}
	}
	d.peers = ps
	d.index = make(map[proto.NodeID]int, len(ps))
	for i, p := range ps {
		d.index[p.ID] = i
	}
}
