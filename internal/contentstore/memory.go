package contentstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"lottery/internal/faults"
	"lottery/internal/models"
)

var rawPrefix = cid.Prefix{
	Version:  1,
	Codec:    cid.Raw,
	MhType:   multihash.SHA2_256,
	MhLength: -1,
}

// Memory is an in-process content-addressed store.
type Memory struct {
	mu          sync.RWMutex
	blobs       map[models.ContentID][]byte
	mounts      map[string]models.ContentID
	puts        int
	unreachable bool
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		blobs:  make(map[models.ContentID][]byte),
		mounts: make(map[string]models.ContentID),
	}
}

// Put stores data under its CIDv1 (raw, sha2-256).
func (m *Memory) Put(ctx context.Context, data []byte) (models.ContentID, error) {
	const op = "store put"
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachable {
		return "", faults.New(faults.KindStore, op, faults.ErrStoreUnreachable)
	}
	if err := ctx.Err(); err != nil {
		return "", &faults.Error{Kind: faults.KindStore, Op: op, Reason: faults.ErrStoreUnreachable, Err: err}
	}
	c, err := rawPrefix.Sum(data)
	if err != nil {
		return "", faults.Wrap(faults.KindStore, op, err)
	}
	id := models.ContentID(c.String())
	m.blobs[id] = append([]byte(nil), data...)
	m.puts++
	return id, nil
}

// Mount records id under path.
func (m *Memory) Mount(ctx context.Context, id models.ContentID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[id]; !ok {
		return faults.Wrap(faults.KindStore, "store mount", fmt.Errorf("unknown content id %s", id))
	}
	m.mounts[path] = id
	return nil
}

// Get returns the blob stored under id.
func (m *Memory) Get(id models.ContentID) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[id]
	return b, ok
}

// Puts counts successful uploads.
func (m *Memory) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// SetUnreachable simulates an unreachable endpoint.
func (m *Memory) SetUnreachable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unreachable = v
}
