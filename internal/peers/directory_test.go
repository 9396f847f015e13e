package peers

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cappuch/lib-p2pchat/internal/proto"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestDirectory(t *testing.T) (*Directory, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	return NewDirectory(WithClock(clk.Now)), clk
}

func TestAddOrUpdateReplaces(t *testing.T) {
	d, _ := newTestDirectory(t)
	d.AddOrUpdate(Peer{ID: proto.NodeID{1}, IP: "10.0.0.1", Port: 1})
	d.AddOrUpdate(Peer{ID: proto.NodeID{1}, IP: "10.0.0.2", Port: 2})

	require.Equal(t, 1, d.Len())
	p, ok := d.FindByID(proto.NodeID{1})
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", p.IP)
	assert.Equal(t, uint16(2), p.Port)

	_, ok = d.FindByID(proto.NodeID{9})
	assert.False(t, ok)
}

func TestListIsSnapshotInInsertionOrder(t *testing.T) {
	d, _ := newTestDirectory(t)
	for i := byte(1); i <= 3; i++ {
		d.AddOrUpdate(Peer{ID: proto.NodeID{i}})
	}
	list := d.List()
	require.Len(t, list, 3)
	for i, p := range list {
		assert.Equal(t, proto.NodeID{byte(i + 1)}, p.ID)
	}

	list[0].IP = "mutated"
	p, _ := d.FindByID(proto.NodeID{1})
	assert.Empty(t, p.IP)
}

func TestUpsertAddressAndKeys(t *testing.T) {
	d, clk := newTestDirectory(t)
	id := proto.NodeID{7}

	created := d.UpsertAddressAndKeys(id, "192.168.1.5", 4000, proto.PublicKey{1}, proto.SigningKey{2})
	assert.True(t, created)
	first, _ := d.FindByID(id)
	assert.Equal(t, clk.Now(), first.LastSeen)

	clk.Advance(time.Second)
	created = d.UpsertAddressAndKeys(id, "192.168.1.6", 4001, proto.PublicKey{3}, proto.SigningKey{4})
	assert.False(t, created)

	p, _ := d.FindByID(id)
	assert.Equal(t, "192.168.1.6", p.IP)
	assert.Equal(t, uint16(4001), p.Port)
	assert.Equal(t, proto.PublicKey{3}, p.EncKey)
	assert.Equal(t, proto.SigningKey{4}, p.SignKey)
	assert.Equal(t, clk.Now(), p.LastSeen)
	assert.Equal(t, 1, d.Len())
}

func TestRemoveStaleExactness(t *testing.T) {
	d, clk := newTestDirectory(t)
	now := clk.Now()

	d.AddOrUpdate(Peer{ID: proto.NodeID{1}, LastSeen: now.Add(-200 * time.Second)})
	d.AddOrUpdate(Peer{ID: proto.NodeID{2}, LastSeen: now.Add(-10 * time.Second)})
	d.AddOrUpdate(Peer{ID: proto.NodeID{3}})
	d.AddOrUpdate(Peer{ID: proto.NodeID{4}, LastSeen: now.Add(-120 * time.Second)})

	evicted := d.RemoveStale(120 * time.Second)
	require.Len(t, evicted, 1)
	assert.Equal(t, proto.NodeID{1}, evicted[0].ID)

	ids := make([]proto.NodeID, 0)
	for _, p := range d.List() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []proto.NodeID{{2}, {3}, {4}}, ids)

	_, ok := d.FindByID(proto.NodeID{4})
	assert.True(t, ok, "index rebuilt after eviction")

	clk.Advance(time.Hour)
	evicted = d.RemoveStale(120 * time.Second)
	assert.Len(t, evicted, 2)
	list := d.List()
	require.Len(t, list, 1)
	assert.Equal(t, proto.NodeID{3}, list[0].ID, "never-seen peers are exempt")
}

func TestTouchAddr(t *testing.T) {
	d, clk := newTestDirectory(t)
	d.AddOrUpdate(Peer{ID: proto.NodeID{1}, IP: "10.0.0.1", Port: 5000})
	d.AddOrUpdate(Peer{ID: proto.NodeID{2}, IP: "10.0.0.1", Port: 5001})

	clk.Advance(time.Minute)
	assert.True(t, d.TouchAddr("10.0.0.1", 5000))
	assert.False(t, d.TouchAddr("10.0.0.9", 5000))
	assert.False(t, d.TouchAddr("", 0))

	p1, _ := d.FindByID(proto.NodeID{1})
	p2, _ := d.FindByID(proto.NodeID{2})
	assert.Equal(t, clk.Now(), p1.LastSeen)
	assert.True(t, p2.LastSeen.IsZero())
}

func TestTouchAddrStopsAtFirstMatch(t *testing.T) {
	d, clk := newTestDirectory(t)
	d.AddOrUpdate(Peer{ID: proto.NodeID{1}, IP: "10.0.0.1", Port: 5000})
	d.AddOrUpdate(Peer{ID: proto.NodeID{2}, IP: "10.0.0.1", Port: 5000})

	clk.Advance(time.Minute)
	require.True(t, d.TouchAddr("10.0.0.1", 5000))

	first, _ := d.FindByID(proto.NodeID{1})
	second, _ := d.FindByID(proto.NodeID{2})
	assert.Equal(t, clk.Now(), first.LastSeen)
	assert.True(t, second.LastSeen.IsZero())
}

func TestRemove(t *testing.T) {
	d, _ := newTestDirectory(t)
	d.AddOrUpdate(Peer{ID: proto.NodeID{1}})
	d.AddOrUpdate(Peer{ID: proto.NodeID{2}})
	d.AddOrUpdate(Peer{ID: proto.NodeID{3}})

	assert.True(t, d.Remove(proto.NodeID{2}))
	assert.False(t, d.Remove(proto.NodeID{2}))
	_, ok := d.FindByID(proto.NodeID{3})
	assert.True(t, ok)
	assert.Equal(t, 2, d.Len())
}

func TestPeerAddr(t *testing.T) {
	assert.Equal(t, "", Peer{}.Addr())
	assert.Equal(t, "10.0.0.1:42042", Peer{IP: "10.0.0.1", Port: 42042}.Addr())
	assert.Equal(t, "[::1]:9", Peer{IP: "::1", Port: 9}.Addr())
}

func TestDirectoryConcurrentAccess(t *testing.T) {
	d := NewDirectory()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := proto.NodeID{byte(w), byte(i)}
				d.UpsertAddressAndKeys(id, "127.0.0.1", uint16(1000+i), proto.PublicKey{}, proto.SigningKey{})
				d.TouchAddr("127.0.0.1", uint16(1000+i))
				_ = d.List()
				_, _ = d.FindByID(id)
				if i%10 == 0 {
					d.RemoveStale(time.Hour)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 8*200, d.Len())
}
