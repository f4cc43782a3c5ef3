package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/logger"

	"lottery/internal/faults"
	"lottery/internal/ledger"
	"lottery/internal/models"
)

// receipts reports the outcome of an accepted write; nil while it is pending.
type receipts interface {
	Status(ctx context.Context, h ledger.Handle) (*ledger.Receipt, error)
}

type writeKey struct {
	who    models.Identity
	target string
}

// writeGuard allows at most one outstanding write per identity and target. A second
// write is rejected, not queued. A write whose confirmation timed out stays
// outstanding until the ledger reports an outcome for its handle.
type writeGuard struct {
	ledger receipts

	mu         sync.Mutex
	inflight   map[writeKey]struct{}
	unresolved map[writeKey]ledger.Handle
}

func newWriteGuard(r receipts) *writeGuard {
	return &writeGuard{
		ledger:     r,
		inflight:   make(map[writeKey]struct{}),
		unresolved: make(map[writeKey]ledger.Handle),
	}
}

func (g *writeGuard) acquire(ctx context.Context, op string, who models.Identity, target string) (func(), error) {
	k := writeKey{who: who, target: target}

	g.mu.Lock()
	if _, busy := g.inflight[k]; busy {
		g.mu.Unlock()
		return nil, faults.New(faults.KindConflict, op, faults.ErrWriteAlreadyPending)
	}
	h, waiting := g.unresolved[k]
	g.inflight[k] = struct{}{}
	g.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inflight, k)
			g.mu.Unlock()
		})
	}

	if waiting {
		if !g.settled(ctx, h) {
			release()
			return nil, &faults.Error{Kind: faults.KindConflict, Op: op, Reason: faults.ErrWriteAlreadyPending, Handle: h}
		}
		g.mu.Lock()
		delete(g.unresolved, k)
		g.mu.Unlock()
		logger.Infof("%s: earlier write %s from %s has settled", op, h.Hex(), who.Hex())
	}
	return release, nil
}

func (g *writeGuard) settled(ctx context.Context, h ledger.Handle) bool {
	r, err := g.ledger.Status(ctx, h)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		logger.Warningf("write %s is unknown to the ledger; treating it as dropped", h.Hex())
		return true
	case err != nil:
		logger.Warningf("write %s: status: %v", h.Hex(), err)
		return false
	}
	return r != nil
}

// track keeps the target blocked when err left an accepted write with an unknown outcome.
func (g *writeGuard) track(who models.Identity, target string, err error) {
	fe, ok := faults.As(err)
	if !ok || fe.Kind != faults.KindConfirmationTimeout || fe.Handle == (ledger.Handle{}) {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unresolved[writeKey{who: who, target: target}] = fe.Handle
}

func (g *writeGuard) pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight) + len(g.unresolved)
}

func lotteryTarget(id uint64) string {
	return fmt.Sprintf("lottery/%d", id)
}

func anchorTarget(kind models.AnchorKind) string {
	return "anchor/" + string(kind)
}

const (
	createTarget   = "create"
	withdrawTarget = "withdraw"
)
