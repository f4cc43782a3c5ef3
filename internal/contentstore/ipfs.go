package contentstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"lottery/internal/faults"
	"lottery/internal/models"
)

// IPFS stores blobs on a kubo node through its RPC API.
type IPFS struct {
	sh *shell.Shell
}

// NewIPFS connects to the kubo RPC endpoint at apiURL (e.g. http://127.0.0.1:5001).
func NewIPFS(apiURL string, timeout time.Duration) *IPFS {
	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}
	return &IPFS{sh: sh}
}

// Put adds data as a CIDv1 object and returns its identifier.
func (s *IPFS) Put(ctx context.Context, data []byte) (models.ContentID, error) {
	const op = "store put"
	if err := ctx.Err(); err != nil {
		return "", &faults.Error{Kind: faults.KindStore, Op: op, Reason: faults.ErrStoreUnreachable, Err: err}
	}
	hash, err := s.sh.Add(bytes.NewReader(data), shell.CidVersion(1), shell.Pin(true))
	if err != nil {
		return "", &faults.Error{Kind: faults.KindStore, Op: op, Reason: faults.ErrStoreUnreachable, Err: err}
	}
	id := models.ContentID(hash)
	if err := id.Validate(); err != nil {
		return "", faults.Wrap(faults.KindStore, op, err)
	}
	return id, nil
}

// Mount copies the object into the node's mutable file system at path.
func (s *IPFS) Mount(ctx context.Context, id models.ContentID, path string) error {
	if err := s.sh.FilesCp(ctx, "/ipfs/"+string(id), path); err != nil {
		return faults.Wrap(faults.KindStore, "store mount", fmt.Errorf("cp %s %s: %w", id, path, err))
	}
	return nil
}

// Reachable reports whether the node answers.
func (s *IPFS) Reachable() bool {
	return s.sh.IsUp()
}
