// Package memledger is an in-process authoritative lottery ledger. Writes are accepted
// by Send and take effect when mined, either by Mine or when first confirmed through
// Receipt, the way a transaction is mined after it enters a pool.
package memledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"lottery/internal/ledger"
	"lottery/internal/models"
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the ledger's notion of now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithPicker overrides winner selection; pick returns a ticket index in [0, total).
func WithPicker(pick func(total uint64) uint64) Option {
	return func(l *Ledger) { l.pick = pick }
}

type entry struct {
	models.Lottery
	tickets map[models.Identity]uint64
	order   []models.Identity
}

type anchorKey struct {
	owner models.Identity
	kind  models.AnchorKind
}

type tx struct {
	req     ledger.Request
	receipt *ledger.Receipt
}

// Ledger implements ledger.Backend in memory.
type Ledger struct {
	mu   sync.Mutex
	now  func() time.Time
	pick func(total uint64) uint64

	lotteries   []*entry
	anchors     map[anchorKey]models.ContentID
	stats       map[models.Identity]*models.ParticipantStats
	pending     map[models.Identity]*big.Int
	commissions map[models.Identity]*big.Int
	txs         map[ledger.Handle]*tx
	queue       []ledger.Handle

	nonce     uint64
	block     uint64
	sent      int
	held      bool
	failSends int
	readErr   error
}

var _ ledger.Backend = (*Ledger)(nil)

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		now:         time.Now,
		pick:        func(total uint64) uint64 { return rand.Uint64N(total) },
		anchors:     make(map[anchorKey]models.ContentID),
		stats:       make(map[models.Identity]*models.ParticipantStats),
		pending:     make(map[models.Identity]*big.Int),
		commissions: make(map[models.Identity]*big.Int),
		txs:         make(map[ledger.Handle]*tx),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Hold keeps every write pending until Release.
func (l *Ledger) Hold() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = true
}

// Release lets pending writes confirm.
func (l *Ledger) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
}

// FailNextSends makes the next n sends fail with a transport error.
func (l *Ledger) FailNextSends(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failSends = n
}

// FailReads makes every read return err until called with nil.
func (l *Ledger) FailReads(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readErr = err
}

// Sent counts accepted writes.
func (l *Ledger) Sent() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent
}

// Commission returns what creator has earned in commissions.
func (l *Ledger) Commission(creator models.Identity) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return balance(l.commissions, creator)
}

// Send accepts a write for processing.
func (l *Ledger) Send(ctx context.Context, req ledger.Request) (ledger.Handle, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Handle{}, fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failSends > 0 {
		l.failSends--
		return ledger.Handle{}, fmt.Errorf("%w: connection refused", ledger.ErrUnavailable)
	}
	if req.Call == nil {
		return ledger.Handle{}, fmt.Errorf("%w: no call", ledger.ErrMalformed)
	}
	if req.Value != nil && req.Value.Sign() < 0 {
		return ledger.Handle{}, fmt.Errorf("%w: negative value", ledger.ErrMalformed)
	}
	switch req.Call.(type) {
	case ledger.CreateLottery, ledger.BuyTickets, ledger.CloseLottery,
		ledger.SetLotteryCommission, ledger.Withdraw, ledger.SetAnchor:
	default:
		return ledger.Handle{}, fmt.Errorf("%w: unknown call %T", ledger.ErrMalformed, req.Call)
	}

	l.nonce++
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], l.nonce)
	h := crypto.Keccak256Hash(n[:], req.From.Bytes(), []byte(req.Call.Method()))

	if req.Value != nil {
		req.Value = new(big.Int).Set(req.Value)
	}
	l.txs[h] = &tx{req: req}
	l.queue = append(l.queue, h)
	l.sent++
	return h, nil
}

// Receipt processes the write on first query and returns its outcome.
func (l *Ledger) Receipt(ctx context.Context, h ledger.Handle) (*ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.txs[h]
	if !ok {
		return nil, fmt.Errorf("tx %s: %w", h.Hex(), ledger.ErrNotFound)
	}
	if t.receipt == nil {
		if l.held {
			return nil, nil
		}
		l.settle(h, t)
	}
	r := *t.receipt
	return &r, nil
}

// Mine confirms every pending write in the order it was sent, unless writes are
// held. It returns how many writes were applied.
func (l *Ledger) Mine() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return 0
	}
	n := 0
	for _, h := range l.queue {
		if t := l.txs[h]; t.receipt == nil {
			l.settle(h, t)
			n++
		}
	}
	l.queue = l.queue[:0]
	return n
}

// Run mines on every tick until ctx is done.
func (l *Ledger) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Mine()
		}
	}
}

func (l *Ledger) settle(h ledger.Handle, t *tx) {
	l.block++
	t.receipt = l.apply(t.req)
	t.receipt.Handle = h
	t.receipt.Block = l.block
}

func (l *Ledger) apply(req ledger.Request) *ledger.Receipt {
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	var reason string
	r := &ledger.Receipt{}
	switch c := req.Call.(type) {
	case ledger.CreateLottery:
		var id uint64
		id, reason = l.create(req.From, c)
		r.LotteryID = id
	case ledger.BuyTickets:
		reason = l.buy(req.From, c, value)
	case ledger.CloseLottery:
		reason = l.close(req.From, c.LotteryID)
	case ledger.SetLotteryCommission:
		reason = l.setCommission(req.From, c)
	case ledger.Withdraw:
		reason = l.withdraw(req.From)
	case ledger.SetAnchor:
		if c.Kind == "" {
			reason = ledger.ReasonInvalidParams
		} else {
			l.anchors[anchorKey{owner: req.From, kind: c.Kind}] = c.ID
		}
	}
	if reason != "" {
		r.Status = ledger.StatusReverted
		r.Reason = reason
		return r
	}
	r.Status = ledger.StatusSucceeded
	return r
}

func (l *Ledger) create(from models.Identity, c ledger.CreateLottery) (uint64, string) {
	switch {
	case c.Name == "", c.TicketPrice == nil, c.TicketPrice.Sign() <= 0, c.MaxTickets == 0, !c.EndTime.After(l.now()):
		return 0, ledger.ReasonInvalidParams
	case c.CommissionBasisPoints > models.MaxBasisPoints:
		return 0, ledger.ReasonInvalidCommission
	}
	id := uint64(len(l.lotteries))
	l.lotteries = append(l.lotteries, &entry{
		Lottery: models.Lottery{
			ID:                    id,
			Creator:               from,
			Name:                  c.Name,
			TicketPrice:           new(big.Int).Set(c.TicketPrice),
			MaxTickets:            c.MaxTickets,
			CommissionBasisPoints: c.CommissionBasisPoints,
			Pot:                   new(big.Int),
			EndTime:               c.EndTime.UTC(),
			DescriptionAnchor:     c.Description,
		},
		tickets: make(map[models.Identity]uint64),
	})
	return id, ""
}

func (l *Ledger) buy(from models.Identity, c ledger.BuyTickets, value *big.Int) string {
	e, reason := l.find(c.LotteryID)
	switch {
	case reason != "":
		return reason
	case e.Closed:
		return ledger.ReasonClosed
	case e.Ended(l.now()):
		return ledger.ReasonEnded
	case c.Quantity == 0:
		return ledger.ReasonInvalidQuantity
	case c.Quantity > e.TicketsLeft():
		return ledger.ReasonSoldOut
	}
	cost := new(big.Int).Mul(e.TicketPrice, new(big.Int).SetUint64(c.Quantity))
	if cost.Cmp(value) != 0 {
		return ledger.ReasonIncorrectPayment
	}

	st := l.statsOf(from)
	if e.tickets[from] == 0 {
		e.order = append(e.order, from)
		st.LotteriesParticipated++
	}
	e.tickets[from] += c.Quantity
	st.TotalTickets += c.Quantity
	e.TicketsSold += c.Quantity
	e.Pot.Add(e.Pot, value)
	return ""
}

func (l *Ledger) close(from models.Identity, id uint64) string {
	e, reason := l.find(id)
	switch {
	case reason != "":
		return reason
	case e.Creator != from:
		return ledger.ReasonNotCreator
	case e.Closed:
		return ledger.ReasonAlreadyClosed
	}

	commission := new(big.Int).Mul(e.Pot, big.NewInt(int64(e.CommissionBasisPoints)))
	commission.Quo(commission, big.NewInt(models.MaxBasisPoints))
	e.Pot.Sub(e.Pot, commission)
	credit(l.commissions, e.Creator, commission)

	e.Closed = true
	if e.TicketsSold == 0 {
		return ""
	}

	ticket := l.pick(e.TicketsSold)
	for _, p := range e.order {
		if ticket < e.tickets[p] {
			e.Winner = p
			break
		}
		ticket -= e.tickets[p]
	}
	credit(l.pending, e.Winner, e.Pot)
	l.statsOf(e.Winner).LotteriesWon++
	return ""
}

func (l *Ledger) setCommission(from models.Identity, c ledger.SetLotteryCommission) string {
	e, reason := l.find(c.LotteryID)
	switch {
	case reason != "":
		return reason
	case e.Creator != from:
		return ledger.ReasonNotCreator
	case e.Closed:
		return ledger.ReasonAlreadyClosed
	case c.BasisPoints > models.MaxBasisPoints:
		return ledger.ReasonInvalidCommission
	}
	e.CommissionBasisPoints = c.BasisPoints
	return ""
}

func (l *Ledger) withdraw(from models.Identity) string {
	if balance(l.pending, from).Sign() == 0 {
		return ledger.ReasonNothingToWithdraw
	}
	delete(l.pending, from)
	return ""
}

func (l *Ledger) find(id uint64) (*entry, string) {
	if id >= uint64(len(l.lotteries)) {
		return nil, ledger.ReasonNotFound
	}
	return l.lotteries[id], ""
}

func (l *Ledger) statsOf(who models.Identity) *models.ParticipantStats {
	st, ok := l.stats[who]
	if !ok {
		st = &models.ParticipantStats{}
		l.stats[who] = st
	}
	return st
}

func credit(m map[models.Identity]*big.Int, who models.Identity, v *big.Int) {
	cur, ok := m[who]
	if !ok {
		cur = new(big.Int)
		m[who] = cur
	}
	cur.Add(cur, v)
}

func balance(m map[models.Identity]*big.Int, who models.Identity) *big.Int {
	if v, ok := m[who]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}
