package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/cappuch/lib-p2pchat/internal/crypto/envelope"
	"github.com/cappuch/lib-p2pchat/internal/netx"
	"github.com/cappuch/lib-p2pchat/internal/p2p"
	"github.com/cappuch/lib-p2pchat/internal/proto"
)

const (
	DefaultChunkSize  = 1024
	DefaultMaxPending = 256

	// MaxSafeChunkBytes is the largest chunk whose sealed packet still fits
	// one UDP datagram with a maximum-length name. The fragment wire field
	// allows up to proto.MaxChunkBytes.
	MaxSafeChunkBytes = netx.MaxUDPPayload - proto.PacketHeaderBytes -
		envelope.NonceBytes - envelope.OverheadBytes -
		proto.FragmentFixedBytes - proto.MaxNameBytes
)

var ErrTooLarge = errors.New("transfer: blob needs more than 2^32-1 chunks")

// Messenger is the part of the node API transfers ride on. *p2p.Node
// implements it.
type Messenger interface {
	SendMessage(dest proto.NodeID, data []byte) error
	OnTypedMessage(h p2p.TypedHandler)
}

// FileHandler receives a completed transfer.
type FileHandler func(from proto.NodeID, name string, data []byte)

type incoming struct {
	name   string
	total  uint32
	chunks map[uint32][]byte
}

// Stats counts receive-side outcomes.
type Stats struct {
	Completed  uint64
	Corrupt    uint64
	Duplicates uint64
	Rejected   uint64
}

type Manager struct {
	msg        Messenger
	logger     logrus.FieldLogger
	maxPending int

	mu       sync.Mutex
	in       map[proto.TransferID]*incoming
	handlers []FileHandler

	completed  atomic.Uint64
	corrupt    atomic.Uint64
	duplicates atomic.Uint64
	rejected   atomic.Uint64
}

type Option func(*Manager)

// WithLogger sets where dropped fragments are reported. Drops are driven by
// remote input, so they are logged at debug level only.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMaxPending caps concurrent incomplete incoming transfers. Fragments
// that would open a new transfer past the cap are dropped.
func WithMaxPending(n int) Option {
	return func(m *Manager) { m.maxPending = n }
}

// NewManager wires a transfer manager onto msg's typed message stream.
func NewManager(msg Messenger, opts ...Option) *Manager {
	m := &Manager{
		msg:        msg,
		maxPending: DefaultMaxPending,
		in:         make(map[proto.TransferID]*incoming),
	}
	for _, o := range opts {
		o(m)
	}
	msg.OnTypedMessage(m.handleTyped)
	return m
}

// OnFile registers h for completed transfers. Handlers run on the node
// worker and must not block.
func (m *Manager) OnFile(h FileHandler) {
	m.mu.Lock()
	m.handlers = append(m.handlers, h)
	m.mu.Unlock()
}

func (m *Manager) debug(from proto.NodeID, err error, msg string) {
	if m.logger != nil {
		m.logger.WithField("from", from.Short()).WithError(err).Debug("transfer: " + msg)
	}
}

// SendFile sends the file at path under its base name.
func (m *Manager) SendFile(ctx context.Context, dest proto.NodeID, path string, chunkSize int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return m.SendBuffer(ctx, dest, filepath.Base(path), data, chunkSize)
}

// SendBuffer splits data into chunkSize pieces (default 1024, at most
// MaxSafeChunkBytes) and sends them back to back under a fresh transfer id.
// It stops at the first failed send or when ctx is done. An empty blob goes
// out as a single empty chunk.
func (m *Manager) SendBuffer(ctx context.Context, dest proto.NodeID, name string, data []byte, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize > MaxSafeChunkBytes {
		chunkSize = MaxSafeChunkBytes
	}
	total := (len(data) + chunkSize - 1) / chunkSize
	if total == 0 {
		total = 1
	}
	if uint64(total) > uint64(^uint32(0)) {
		return ErrTooLarge
	}

	f := proto.Fragment{Total: uint32(total), Name: name}
	if _, err := io.ReadFull(rand.Reader, f.TransferID[:]); err != nil {
		return fmt.Errorf("transfer id: %w", err)
	}

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := i * chunkSize
		end := min(start+chunkSize, len(data))
		f.Index = uint32(i)
		f.Data = data[start:end]
		if err := m.msg.SendMessage(dest, proto.MarshalFragment(f)); err != nil {
			return fmt.Errorf("send chunk %d/%d: %w", i+1, total, err)
		}
	}
	return nil
}

// Pending returns the number of incomplete incoming transfers.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.in)
}

func (m *Manager) Stats() Stats {
	return Stats{
		Completed:  m.completed.Load(),
		Corrupt:    m.corrupt.Load(),
		Duplicates: m.duplicates.Load(),
		Rejected:   m.rejected.Load(),
	}
}

func (m *Manager) handleTyped(from proto.NodeID, t proto.MessageType, body []byte) {
	if t != proto.MsgFileChunk {
		return
	}
	f, err := proto.UnmarshalFragmentBody(body)
	if err != nil {
		m.corrupt.Add(1)
		m.debug(from, err, "drop chunk")
		return
	}

	name, assembled, done := m.accept(f)
	if !done {
		return
	}
	m.completed.Add(1)

	m.mu.Lock()
	handlers := append([]FileHandler(nil), m.handlers...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(from, name, assembled)
	}
}

// accept stores one verified fragment and, once every index below total is
// present, removes the transfer and returns the assembled bytes.
func (m *Manager) accept(f proto.Fragment) (string, []byte, bool) {
	if f.Total == 0 || f.Index >= f.Total {
		m.rejected.Add(1)
		return "", nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inc, ok := m.in[f.TransferID]
	if !ok {
		if m.maxPending > 0 && len(m.in) >= m.maxPending {
			m.rejected.Add(1)
			return "", nil, false
		}
		inc = &incoming{name: f.Name, total: f.Total, chunks: make(map[uint32][]byte)}
		m.in[f.TransferID] = inc
	}

	// The latest fragment's total wins; chunks past it are forgotten.
	if inc.total != f.Total {
		inc.total = f.Total
		for idx := range inc.chunks {
			if idx >= inc.total {
				delete(inc.chunks, idx)
			}
		}
	}

	if _, dup := inc.chunks[f.Index]; dup {
		m.duplicates.Add(1)
	} else {
		inc.chunks[f.Index] = f.Data
	}

	if uint32(len(inc.chunks)) != inc.total {
		return "", nil, false
	}

	var buf bytes.Buffer
	for i := uint32(0); i < inc.total; i++ {
		buf.Write(inc.chunks[i])
	}
	delete(m.in, f.TransferID)
	return inc.name, buf.Bytes(), true
}
