package boltstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cappuch/lib-p2pchat/internal/chatnode"
	"github.com/cappuch/lib-p2pchat/internal/proto"
)

const (
	bMeta      = "meta"
	bInboxMeta = "inbox_meta"
	bInboxData = "inbox_data"
	bInboxByTS = "inbox_by_ts"
	kIdentity  = "identity"

	defaultTO = 2 * time.Second
)

// Store is a BoltDB-backed implementation of chatnode.Store.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) a BoltDB database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: defaultTO})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range []string{bMeta, bInboxMeta, bInboxData, bInboxByTS} {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// LoadIdentity returns the saved identity blob, or ok=false if none exists.
func (s *Store) LoadIdentity() ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bMeta)).Get([]byte(kIdentity)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil, err
}

func (s *Store) SaveIdentity(blob []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bMeta)).Put([]byte(kIdentity), blob)
	})
}

type fileRecord struct {
	From       string    `json:"from"`
	Name       string    `json:"name"`
	Size       int       `json:"size"`
	ReceivedAt time.Time `json:"received_at"`
}

// PutFile stores a received file and returns its inbox sequence number.
func (s *Store) PutFile(from proto.NodeID, name string, data []byte, at time.Time) (uint64, error) {
	rec := fileRecord{From: from.Hex(), Name: name, Size: len(data), ReceivedAt: at.UTC()}
	val, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}

	var seq uint64
	err = s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bInboxMeta))
		n, err := meta.NextSequence()
		if err != nil {
			return err
		}
		seq = n
		if err := meta.Put(encodeU64(seq), val); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(bInboxData)).Put(encodeU64(seq), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(bInboxByTS)).Put(tsKey(rec.ReceivedAt.UnixNano(), seq), nil)
	})
	return seq, err
}

// ListFiles returns inbox entries received at or after since, oldest first.
func (s *Store) ListFiles(since time.Time, limit int) ([]chatnode.InboxEntry, error) {
	if limit <= 0 {
		limit = 500
	}
	out := make([]chatnode.InboxEntry, 0, min(limit, 64))

	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bInboxMeta))
		c := tx.Bucket([]byte(bInboxByTS)).Cursor()
		var seek []byte
		if !since.IsZero() {
			seek = tsKey(since.UnixNano(), 0)
		}
		k, _ := c.First()
		if seek != nil {
			k, _ = c.Seek(seek)
		}
		for ; k != nil && len(out) < limit; k, _ = c.Next() {
			_, seq := splitTSKey(k)
			e, ok := decodeEntry(seq, meta.Get(encodeU64(seq)))
			if !ok {
				// Corruption: keep going.
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// ReadFile returns one inbox entry with its bytes.
func (s *Store) ReadFile(seq uint64) (chatnode.InboxEntry, []byte, error) {
	var (
		e    chatnode.InboxEntry
		data []byte
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		var ok bool
		e, ok = decodeEntry(seq, tx.Bucket([]byte(bInboxMeta)).Get(encodeU64(seq)))
		if !ok {
			return chatnode.ErrNotFound
		}
		data = append([]byte{}, tx.Bucket([]byte(bInboxData)).Get(encodeU64(seq))...)
		return nil
	})
	return e, data, err
}

func (s *Store) DeleteFile(seq uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bInboxMeta))
		e, ok := decodeEntry(seq, meta.Get(encodeU64(seq)))
		if !ok {
			return chatnode.ErrNotFound
		}
		if err := meta.Delete(encodeU64(seq)); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(bInboxData)).Delete(encodeU64(seq)); err != nil {
			return err
		}
		return tx.Bucket([]byte(bInboxByTS)).Delete(tsKey(e.ReceivedAt.UnixNano(), seq))
	})
}

func decodeEntry(seq uint64, raw []byte) (chatnode.InboxEntry, bool) {
	if raw == nil {
		return chatnode.InboxEntry{}, false
	}
	var rec fileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return chatnode.InboxEntry{}, false
	}
	from, err := proto.ParseNodeIDHex(rec.From)
	if err != nil {
		return chatnode.InboxEntry{}, false
	}
	return chatnode.InboxEntry{
		Seq:        seq,
		From:       from,
		Name:       rec.Name,
		Size:       rec.Size,
		ReceivedAt: rec.ReceivedAt,
	}, true
}

func tsKey(ts int64, seq uint64) []byte {
	// big-endian timestamp for correct ordering, then seq to keep keys unique.
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], uint64(ts))
	binary.BigEndian.PutUint64(b[8:], seq)
	return b
}

func splitTSKey(k []byte) (int64, uint64) {
	if len(k) != 16 {
		return 0, 0
	}
	return int64(binary.BigEndian.Uint64(k[:8])), binary.BigEndian.Uint64(k[8:])
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Compile-time check that Store satisfies the interface.
var _ chatnode.Store = (*Store)(nil)
