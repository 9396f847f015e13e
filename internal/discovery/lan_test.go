package discovery

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cappuch/lib-p2pchat/internal/netx"
	"github.com/cappuch/lib-p2pchat/internal/peers"
	"github.com/cappuch/lib-p2pchat/internal/proto"
)

type recordingBroadcaster struct {
	mu    sync.Mutex
	sent  [][]byte
	ports []uint16
	err   error
}

func (r *recordingBroadcaster) Broadcast(port uint16, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, append([]byte(nil), data...))
	r.ports = append(r.ports, port)
	return nil
}

func (r *recordingBroadcaster) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func testBeacon(id byte, port uint16) proto.Beacon {
	return proto.Beacon{
		Port:    port,
		EncKey:  proto.PublicKey{id, 1},
		SignKey: proto.SigningKey{id, 2},
		ID:      proto.NodeID{id},
	}
}

func TestAnnouncerTickRespectsInterval(t *testing.T) {
	rb := &recordingBroadcaster{}
	a := NewAnnouncer(rb, testBeacon(1, 5000), LANConfig{Port: 42042, Interval: 2 * time.Second})

	t0 := time.Unix(100, 0)
	sent, err := a.Tick(t0)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, _ = a.Tick(t0.Add(1999 * time.Millisecond))
	assert.False(t, sent)

	sent, _ = a.Tick(t0.Add(2 * time.Second))
	assert.True(t, sent)

	require.Equal(t, 2, rb.count())
	assert.Equal(t, []uint16{42042, 42042}, rb.ports)
	got, err := proto.UnmarshalBeacon(rb.sent[0])
	require.NoError(t, err)
	assert.Equal(t, testBeacon(1, 5000), got)
}

func TestAnnouncerDefaults(t *testing.T) {
	rb := &recordingBroadcaster{}
	a := NewAnnouncer(rb, testBeacon(1, 1), LANConfig{})
	require.NoError(t, a.Announce())
	assert.Equal(t, []uint16{DefaultLANPort}, rb.ports)
}

func TestAnnouncerWrapsBroadcastError(t *testing.T) {
	boom := errors.New("boom")
	a := NewAnnouncer(&recordingBroadcaster{err: boom}, testBeacon(1, 1), DefaultLANConfig())
	_, err := a.Tick(time.Now())
	assert.ErrorIs(t, err, boom)
}

func TestIngesterRecordsAdvertisedPort(t *testing.T) {
	dir := peers.NewDirectory()
	in := NewIngester(proto.NodeID{9}, dir)

	res, err := in.Handle(testBeacon(1, 6001).Marshal(), netx.Addr{IP: "192.168.0.7", Port: 42042})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, netx.Addr{IP: "192.168.0.7", Port: 6001}, res.Addr)

	p, ok := dir.FindByID(proto.NodeID{1})
	require.True(t, ok)
	assert.Equal(t, "192.168.0.7", p.IP)
	assert.Equal(t, uint16(6001), p.Port)
	assert.Equal(t, proto.PublicKey{1, 1}, p.EncKey)
	assert.Equal(t, proto.SigningKey{1, 2}, p.SignKey)
	assert.False(t, p.LastSeen.IsZero())

	res, err = in.Handle(testBeacon(1, 6002).Marshal(), netx.Addr{IP: "192.168.0.7", Port: 42042})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, 1, dir.Len())
}

func TestIngesterRejects(t *testing.T) {
	dir := peers.NewDirectory()
	in := NewIngester(proto.NodeID{9}, dir)
	from := netx.Addr{IP: "10.0.0.1", Port: 1}

	_, err := in.Handle(testBeacon(9, 1).Marshal(), from)
	assert.ErrorIs(t, err, ErrOwnBeacon)

	_, err = in.Handle([]byte("DISC-short"), from)
	assert.ErrorIs(t, err, proto.ErrShortBeacon)

	_, err = in.Handle((&proto.Packet{}).Marshal(), from)
	assert.ErrorIs(t, err, proto.ErrBadMagic)

	assert.Zero(t, dir.Len())
}

// Several nodes on one in-memory broadcast domain announce and ingest
// concurrently; every node should learn every other one.
func TestLANDiscoveryRaceHarness(t *testing.T) {
	const nodes = 5
	hub := netx.NewMemHub()

	type member struct {
		net netx.Network
		dir *peers.Directory
		ann *Announcer
		in  *Ingester
	}
	members := make([]member, nodes)
	for i := range members {
		n := hub.NewNetwork(fmt.Sprintf("10.0.0.%d", i+1))
		_, err := n.Listen(":42042")
		require.NoError(t, err)
		t.Cleanup(func() { _ = n.Close() })
		dir := peers.NewDirectory()
		b := testBeacon(byte(i+1), 42042)
		members[i] = member{
			net: n,
			dir: dir,
			ann: NewAnnouncer(n, b, DefaultLANConfig()),
			in:  NewIngester(b.ID, dir),
		}
	}

	var wg sync.WaitGroup
	for _, m := range members {
		wg.Add(1)
		go func(m member) {
			defer wg.Done()
			assert.NoError(t, m.ann.Announce())
			deadline := time.Now().Add(2 * time.Second)
			for m.dir.Len() < nodes-1 && time.Now().Before(deadline) {
				d, ok, err := m.net.Poll(20 * time.Millisecond)
				if err != nil || !ok {
					continue
				}
				_, _ = m.in.Handle(d.Data, d.From)
			}
		}(m)
	}
	wg.Wait()

	for i, m := range members {
		assert.Equal(t, nodes-1, m.dir.Len(), "member %d", i)
	}
}
