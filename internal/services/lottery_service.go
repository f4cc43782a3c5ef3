package services

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/google/logger"
	"golang.org/x/sync/errgroup"

	"lottery/internal/contentstore"
	"lottery/internal/faults"
	"lottery/internal/ledger"
	"lottery/internal/models"
	"lottery/internal/readmodel"
	"lottery/internal/session"
)

// MaxNameLength bounds lottery names.
const MaxNameLength = 128

// CreateParams describes a new lottery.
type CreateParams struct {
	Name                  string
	TicketPrice           *big.Int
	MaxTickets            uint64
	EndTime               time.Time
	CommissionBasisPoints int
	// Description, when set, is uploaded to the content store and linked to the lottery.
	Description []byte
}

func (p CreateParams) validate(now time.Time) error {
	const op = "create lottery"
	switch {
	case strings.TrimSpace(p.Name) == "":
		return faults.Validation(op, "name is required")
	case len(p.Name) > MaxNameLength:
		return faults.Validation(op, "name is longer than %d bytes", MaxNameLength)
	case p.TicketPrice == nil || p.TicketPrice.Sign() <= 0:
		return faults.Validation(op, "ticket price must be positive")
	case p.MaxTickets == 0:
		return faults.Validation(op, "max tickets must be positive")
	case p.EndTime.IsZero() || !p.EndTime.After(now):
		return faults.Validation(op, "end time must be in the future")
	case p.CommissionBasisPoints < 0 || p.CommissionBasisPoints > models.MaxBasisPoints:
		return &faults.Error{Kind: faults.KindValidation, Op: op, Reason: faults.ErrCommissionOutOfRange}
	}
	return nil
}

// TicketCost is the exact payment for quantity tickets at price.
func TicketCost(price *big.Int, quantity uint64) *big.Int {
	return new(big.Int).Mul(price, new(big.Int).SetUint64(quantity))
}

// LotteryService drives lottery lifecycle writes against the ledger and serves
// reads from the confirmed read model.
type LotteryService struct {
	ledger *ledger.Client
	store  contentstore.Store
	cache  *readmodel.Cache
	guard  *writeGuard
	now    func() time.Time
}

// NewLotteryService creates and initializes a new LotteryService.
func NewLotteryService(lc *ledger.Client, store contentstore.Store, cache *readmodel.Cache) *LotteryService {
	return &LotteryService{
		ledger: lc,
		store:  store,
		cache:  cache,
		guard:  newWriteGuard(lc),
		now:    time.Now,
	}
}

// SetClock overrides the clock used for local end-time checks.
func (s *LotteryService) SetClock(now func() time.Time) {
	s.now = now
}

// Create validates p locally, uploads the optional description and opens a lottery.
func (s *LotteryService) Create(ctx context.Context, sess *session.Session, p CreateParams) (uint64, error) {
	const op = "create lottery"
	if err := p.validate(s.now()); err != nil {
		return 0, err
	}
	who, err := sess.Ready(ctx)
	if err != nil {
		return 0, err
	}
	release, err := s.guard.acquire(ctx, op, who, createTarget)
	if err != nil {
		return 0, err
	}
	defer release()

	var description models.ContentID
	if len(p.Description) > 0 {
		if description, err = s.store.Put(ctx, p.Description); err != nil {
			return 0, err
		}
	}

	r, err := s.ledger.Execute(ctx, ledger.Request{
		From: who,
		Call: ledger.CreateLottery{
			Name:                  strings.TrimSpace(p.Name),
			TicketPrice:           new(big.Int).Set(p.TicketPrice),
			MaxTickets:            p.MaxTickets,
			EndTime:               p.EndTime.UTC(),
			CommissionBasisPoints: uint16(p.CommissionBasisPoints),
			Description:           description,
		},
	})
	if err != nil {
		s.guard.track(who, createTarget, err)
		return 0, err
	}

	logger.Infof("lottery %d created by %s", r.LotteryID, who.Hex())
	refreshViews(ctx, op, func(ctx context.Context) error {
		_, err := s.cache.Refresh(ctx, r.LotteryID)
		return err
	})
	return r.LotteryID, nil
}

func checkPurchase(l models.Lottery, quantity uint64, now time.Time) error {
	const op = "buy tickets"
	switch {
	case l.Closed:
		return faults.New(faults.KindRejected, op, faults.ErrLotteryClosed)
	case l.Ended(now):
		return faults.New(faults.KindRejected, op, faults.ErrLotteryEnded)
	case quantity > l.TicketsLeft():
		return faults.New(faults.KindRejected, op, faults.ErrSoldOut)
	}
	return nil
}

// BuyTickets pays exactly ticketPrice*quantity for quantity tickets. The cached
// snapshot is checked first and then re-validated against a fresh read.
func (s *LotteryService) BuyTickets(ctx context.Context, sess *session.Session, id uint64, quantity int64) error {
	const op = "buy tickets"
	if quantity <= 0 {
		return &faults.Error{Kind: faults.KindValidation, Op: op, Reason: faults.ErrQuantityInvalid}
	}
	q := uint64(quantity)

	who, err := sess.Ready(ctx)
	if err != nil {
		return err
	}
	release, err := s.guard.acquire(ctx, op, who, lotteryTarget(id))
	if err != nil {
		return err
	}
	defer release()

	snapshot, err := s.cache.Lottery(ctx, id)
	if err != nil {
		return err
	}
	if err := checkPurchase(snapshot, q, s.now()); err != nil {
		return err
	}
	fresh, err := s.cache.Refresh(ctx, id)
	if err != nil {
		return err
	}
	if err := checkPurchase(fresh, q, s.now()); err != nil {
		return err
	}

	payment := TicketCost(fresh.TicketPrice, q)
	if _, err := s.ledger.Execute(ctx, ledger.Request{
		From:  who,
		Value: payment,
		Call:  ledger.BuyTickets{LotteryID: id, Quantity: q},
	}); err != nil {
		s.guard.track(who, lotteryTarget(id), err)
		return err
	}

	logger.Infof("lottery %d: %s bought %d tickets for %s", id, who.Hex(), q, payment)
	refreshViews(ctx, op,
		func(ctx context.Context) error {
			s.cache.Invalidate(id)
			_, err := s.cache.Refresh(ctx, id)
			return err
		},
		func(ctx context.Context) error {
			_, err := s.cache.RefreshMyTickets(ctx, id, who)
			return err
		},
		func(ctx context.Context) error {
			_, err := s.cache.RefreshParticipantStats(ctx, who)
			return err
		},
	)
	return nil
}

// Close closes lottery id. Only its creator may close it; the ledger picks the winner.
func (s *LotteryService) Close(ctx context.Context, sess *session.Session, id uint64) error {
	const op = "close lottery"
	who, err := sess.Ready(ctx)
	if err != nil {
		return err
	}
	release, err := s.guard.acquire(ctx, op, who, lotteryTarget(id))
	if err != nil {
		return err
	}
	defer release()

	snapshot, err := s.cache.Lottery(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case snapshot.Creator != who:
		return faults.New(faults.KindRejected, op, faults.ErrNotCreator)
	case snapshot.Closed:
		return faults.New(faults.KindRejected, op, faults.ErrAlreadyClosed)
	}

	if _, err := s.ledger.Execute(ctx, ledger.Request{From: who, Call: ledger.CloseLottery{LotteryID: id}}); err != nil {
		s.guard.track(who, lotteryTarget(id), err)
		return err
	}

	s.cache.Invalidate(id)
	closed, err := s.cache.Refresh(ctx, id)
	if err != nil {
		logger.Warningf("%s %d confirmed but refresh failed: %v", op, id, err)
		return nil
	}
	if !closed.HasWinner() {
		logger.Infof("lottery %d closed without participants", id)
		return nil
	}
	logger.Infof("lottery %d closed, winner %s", id, closed.Winner.Hex())
	refreshViews(ctx, op,
		func(ctx context.Context) error {
			_, err := s.cache.RefreshPendingWithdrawal(ctx, closed.Winner)
			return err
		},
		func(ctx context.Context) error {
			_, err := s.cache.RefreshParticipantStats(ctx, closed.Winner)
			return err
		},
	)
	return nil
}

// SetCommission changes the commission of an open lottery.
func (s *LotteryService) SetCommission(ctx context.Context, sess *session.Session, id uint64, basisPoints int) error {
	const op = "set commission"
	if basisPoints < 0 || basisPoints > models.MaxBasisPoints {
		return &faults.Error{Kind: faults.KindValidation, Op: op, Reason: faults.ErrCommissionOutOfRange}
	}
	who, err := sess.Ready(ctx)
	if err != nil {
		return err
	}
	release, err := s.guard.acquire(ctx, op, who, lotteryTarget(id))
	if err != nil {
		return err
	}
	defer release()

	snapshot, err := s.cache.Lottery(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case snapshot.Creator != who:
		return faults.New(faults.KindRejected, op, faults.ErrNotCreator)
	case snapshot.Closed:
		return faults.New(faults.KindRejected, op, faults.ErrAlreadyClosed)
	}

	if _, err := s.ledger.Execute(ctx, ledger.Request{
		From: who,
		Call: ledger.SetLotteryCommission{LotteryID: id, BasisPoints: uint16(basisPoints)},
	}); err != nil {
		s.guard.track(who, lotteryTarget(id), err)
		return err
	}
	refreshViews(ctx, op, func(ctx context.Context) error {
		s.cache.Invalidate(id)
		_, err := s.cache.Refresh(ctx, id)
		return err
	})
	return nil
}

// Withdraw claims the caller's pending winnings and returns the amount claimed.
// A zero balance fails locally without submitting anything.
func (s *LotteryService) Withdraw(ctx context.Context, sess *session.Session) (*big.Int, error) {
	const op = "withdraw"
	who, err := sess.Ready(ctx)
	if err != nil {
		return nil, err
	}
	release, err := s.guard.acquire(ctx, op, who, withdrawTarget)
	if err != nil {
		return nil, err
	}
	defer release()

	// An empty cached balance is confirmed live before refusing.
	amount, ok := s.cache.PendingWithdrawal(who)
	if !ok || amount.Sign() <= 0 {
		if amount, err = s.cache.RefreshPendingWithdrawal(ctx, who); err != nil {
			return nil, err
		}
	}
	if amount.Sign() <= 0 {
		return nil, faults.New(faults.KindRejected, op, faults.ErrNothingToWithdraw)
	}

	if _, err := s.ledger.Execute(ctx, ledger.Request{From: who, Call: ledger.Withdraw{}}); err != nil {
		s.guard.track(who, withdrawTarget, err)
		if fe, ok := faults.As(err); ok && fe.Kind == faults.KindRejected {
			return nil, &faults.Error{Kind: faults.KindRejected, Op: op, Reason: faults.ErrWithdrawRejected, Handle: fe.Handle, Err: err}
		}
		return nil, err
	}

	logger.Infof("%s withdrew %s", who.Hex(), amount)
	refreshViews(ctx, op, func(ctx context.Context) error {
		_, err := s.cache.RefreshPendingWithdrawal(ctx, who)
		return err
	})
	return amount, nil
}

// refreshViews re-reads the views touched by a confirmed write, in parallel.
// Refresh failures are logged, not returned.
func refreshViews(ctx context.Context, op string, fns ...func(context.Context) error) {
	var g errgroup.Group
	for _, fn := range fns {
		g.Go(func() error { return fn(ctx) })
	}
	if err := g.Wait(); err != nil {
		logger.Warningf("%s confirmed but refresh failed: %v", op, err)
	}
}
