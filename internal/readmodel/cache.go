// Package readmodel mirrors the ledger's last confirmed state.
//
// Entries are never patched field by field: a refresh performs a live read and swaps
// the whole value in, and a failed refresh leaves the previous value in place.
package readmodel

import (
	"context"
	"math/big"
	"sync"

	"github.com/google/logger"

	"lottery/internal/faults"
	"lottery/internal/models"
)

// Source is the read side of the ledger.
type Source interface {
	LotteryInfo(ctx context.Context, id uint64) (models.Lottery, error)
	MyTickets(ctx context.Context, id uint64, who models.Identity) (uint64, error)
	PendingWithdrawal(ctx context.Context, who models.Identity) (*big.Int, error)
	ParticipantStats(ctx context.Context, who models.Identity) (models.ParticipantStats, error)
	UserFile(ctx context.Context, who models.Identity, kind models.AnchorKind) (models.ContentID, error)
}

type ticketKey struct {
	lottery uint64
	who     models.Identity
}

type anchorKey struct {
	who  models.Identity
	kind models.AnchorKind
}

// viewKey names one cached view for generation tracking.
type viewKey struct {
	view string
	id   uint64
	who  models.Identity
	kind models.AnchorKind
}

func lotteryKey(id uint64) viewKey { return viewKey{view: "lottery", id: id} }

// Cache holds confirmed snapshots keyed by lottery and identity.
//
// Every live read is stamped with a generation when it starts. A result is stored
// only if no later read or invalidation of the same view has been recorded, so a
// slow read can never replace a newer snapshot.
type Cache struct {
	src Source

	mu        sync.RWMutex
	lotteries map[uint64]models.Lottery
	tickets   map[ticketKey]uint64
	pending   map[models.Identity]*big.Int
	stats     map[models.Identity]models.ParticipantStats
	anchors   map[anchorKey]models.ContentID

	gen      uint64
	versions map[viewKey]uint64
	floors   map[models.Identity]uint64
}

// New creates an empty cache reading from src.
func New(src Source) *Cache {
	return &Cache{
		src:       src,
		lotteries: make(map[uint64]models.Lottery),
		tickets:   make(map[ticketKey]uint64),
		pending:   make(map[models.Identity]*big.Int),
		stats:     make(map[models.Identity]models.ParticipantStats),
		anchors:   make(map[anchorKey]models.ContentID),
		versions:  make(map[viewKey]uint64),
		floors:    make(map[models.Identity]uint64),
	}
}

func refreshError(op string, err error) error {
	logger.Warningf("readmodel: %s failed, keeping last snapshot: %v", op, err)
	if faults.KindOf(err) == faults.KindCache {
		return err
	}
	return faults.Wrap(faults.KindCache, op, err)
}

// begin stamps a live read about to start.
func (c *Cache) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	return c.gen
}

// admit reports whether a read stamped gen may replace view k and records it.
// Caller holds c.mu.
func (c *Cache) admit(k viewKey, gen uint64) bool {
	if gen < c.versions[k] {
		return false
	}
	if k.who != (models.Identity{}) && gen < c.floors[k.who] {
		return false
	}
	c.versions[k] = gen
	return true
}

// Get returns the cached snapshot of lottery id.
func (c *Cache) Get(id uint64) (models.Lottery, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.lotteries[id]
	if !ok {
		return models.Lottery{}, false
	}
	return l.Clone(), true
}

// Invalidate drops the snapshot of lottery id. Reads already in flight for it
// will not be stored.
func (c *Cache) Invalidate(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.versions[lotteryKey(id)] = c.gen
	delete(c.lotteries, id)
}

// Refresh reads lottery id live and replaces the snapshot. When a newer snapshot
// landed while the read was in flight, that one is returned instead.
func (c *Cache) Refresh(ctx context.Context, id uint64) (models.Lottery, error) {
	gen := c.begin()
	l, err := c.src.LotteryInfo(ctx, id)
	if err != nil {
		return models.Lottery{}, refreshError("refresh lottery", err)
	}
	l = l.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.admit(lotteryKey(id), gen) {
		if cur, ok := c.lotteries[id]; ok {
			return cur.Clone(), nil
		}
		return l, nil
	}
	c.lotteries[id] = l
	return l.Clone(), nil
}

// Lottery returns the cached snapshot, reading it live on a miss.
func (c *Cache) Lottery(ctx context.Context, id uint64) (models.Lottery, error) {
	if l, ok := c.Get(id); ok {
		return l, nil
	}
	return c.Refresh(ctx, id)
}

// MyTickets returns the cached ticket count of who in lottery id.
func (c *Cache) MyTickets(id uint64, who models.Identity) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.tickets[ticketKey{lottery: id, who: who}]
	return n, ok
}

// RefreshMyTickets reads the ticket count live and replaces the cached value.
func (c *Cache) RefreshMyTickets(ctx context.Context, id uint64, who models.Identity) (uint64, error) {
	gen := c.begin()
	n, err := c.src.MyTickets(ctx, id, who)
	if err != nil {
		return 0, refreshError("refresh tickets", err)
	}
	k := ticketKey{lottery: id, who: who}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.admit(viewKey{view: "tickets", id: id, who: who}, gen) {
		if cur, ok := c.tickets[k]; ok {
			return cur, nil
		}
		return n, nil
	}
	c.tickets[k] = n
	return n, nil
}

// PendingWithdrawal returns the cached withdrawable balance of who.
func (c *Cache) PendingWithdrawal(who models.Identity) (*big.Int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.pending[who]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(v), true
}

// RefreshPendingWithdrawal reads the balance live and replaces the cached value.
func (c *Cache) RefreshPendingWithdrawal(ctx context.Context, who models.Identity) (*big.Int, error) {
	gen := c.begin()
	v, err := c.src.PendingWithdrawal(ctx, who)
	if err != nil {
		return nil, refreshError("refresh pending withdrawal", err)
	}
	if v == nil {
		v = new(big.Int)
	}
	v = new(big.Int).Set(v)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.admit(viewKey{view: "pending", who: who}, gen) {
		if cur, ok := c.pending[who]; ok {
			return new(big.Int).Set(cur), nil
		}
		return v, nil
	}
	c.pending[who] = v
	return new(big.Int).Set(v), nil
}

// ParticipantStats returns the cached counters of who.
func (c *Cache) ParticipantStats(who models.Identity) (models.ParticipantStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.stats[who]
	return s, ok
}

// RefreshParticipantStats reads the counters live and replaces the cached value.
func (c *Cache) RefreshParticipantStats(ctx context.Context, who models.Identity) (models.ParticipantStats, error) {
	gen := c.begin()
	s, err := c.src.ParticipantStats(ctx, who)
	if err != nil {
		return models.ParticipantStats{}, refreshError("refresh participant stats", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.admit(viewKey{view: "stats", who: who}, gen) {
		if cur, ok := c.stats[who]; ok {
			return cur, nil
		}
		return s, nil
	}
	c.stats[who] = s
	return s, nil
}

// Anchor returns the cached anchor of who for kind. An empty id with ok means
// the ledger reported no anchor.
func (c *Cache) Anchor(who models.Identity, kind models.AnchorKind) (models.ContentID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.anchors[anchorKey{who: who, kind: kind}]
	return id, ok
}

// RefreshAnchor reads the anchor live; the ledger's zero sentinel is stored as none.
func (c *Cache) RefreshAnchor(ctx context.Context, who models.Identity, kind models.AnchorKind) (models.ContentID, error) {
	gen := c.begin()
	id, err := c.src.UserFile(ctx, who, kind)
	if err != nil {
		return "", refreshError("refresh anchor", err)
	}
	if id.IsZero() {
		id = ""
	}
	k := anchorKey{who: who, kind: kind}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.admit(viewKey{view: "anchor", who: who, kind: kind}, gen) {
		if cur, ok := c.anchors[k]; ok {
			return cur, nil
		}
		return id, nil
	}
	c.anchors[k] = id
	return id, nil
}

// InvalidateIdentity drops every per-identity view of who.
func (c *Cache) InvalidateIdentity(who models.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.floors[who] = c.gen
	delete(c.pending, who)
	delete(c.stats, who)
	for k := range c.tickets {
		if k.who == who {
			delete(c.tickets, k)
		}
	}
	for k := range c.anchors {
		if k.who == who {
			delete(c.anchors, k)
		}
	}
}
