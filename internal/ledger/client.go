package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/logger"

	"lottery/internal/faults"
	"lottery/internal/models"
)

// Options tunes submission retries and confirmation waits.
type Options struct {
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	SubmitAttempts uint
	SubmitBackoff  time.Duration
}

// DefaultOptions are used for zero fields.
var DefaultOptions = Options{
	ConfirmTimeout: 2 * time.Minute,
	PollInterval:   time.Second,
	SubmitAttempts: 3,
	SubmitBackoff:  250 * time.Millisecond,
}

// Client wraps a Backend with typed errors, bounded submit retries and confirmation waits.
type Client struct {
	backend Backend
	opts    Options
}

// NewClient creates a client over backend.
func NewClient(backend Backend, opts Options) *Client {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultOptions.ConfirmTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions.PollInterval
	}
	if opts.SubmitAttempts == 0 {
		opts.SubmitAttempts = DefaultOptions.SubmitAttempts
	}
	if opts.SubmitBackoff <= 0 {
		opts.SubmitBackoff = DefaultOptions.SubmitBackoff
	}
	return &Client{backend: backend, opts: opts}
}

// Submit sends req and returns the handle of the accepted write. Only transport
// failures before acceptance are retried.
func (c *Client) Submit(ctx context.Context, req Request) (Handle, error) {
	method := req.Call.Method()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.SubmitBackoff
	b.MaxInterval = 8 * c.opts.SubmitBackoff

	attempt := 0
	h, err := backoff.Retry(ctx, func() (Handle, error) {
		attempt++
		h, err := c.backend.Send(ctx, req)
		switch {
		case err == nil:
			return h, nil
		case errors.Is(err, ErrUnavailable):
			logger.Warningf("ledger: %s attempt %d/%d not delivered: %v", method, attempt, c.opts.SubmitAttempts, err)
			return Handle{}, err
		default:
			return Handle{}, backoff.Permanent(err)
		}
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.opts.SubmitAttempts))
	if err != nil {
		return Handle{}, faults.Wrap(faults.KindSubmission, method, err)
	}

	logger.Infof("ledger: %s from %s accepted as %s", method, req.From.Hex(), h.Hex())
	return h, nil
}

// Wait polls for the receipt of h until it is confirmed or the confirm timeout
// passes. A timeout or cancellation leaves the outcome unknown.
func (c *Client) Wait(ctx context.Context, method string, h Handle) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		r, err := c.backend.Receipt(ctx, h)
		switch {
		case err != nil:
			logger.Warningf("ledger: receipt for %s: %v", h.Hex(), err)
		case r != nil && r.Succeeded():
			return r, nil
		case r != nil:
			return r, &faults.Error{
				Kind:   faults.KindRejected,
				Op:     method,
				Reason: reasonError(method, r.Reason),
				Handle: h,
			}
		}

		select {
		case <-ctx.Done():
			logger.Warningf("ledger: %s %s unconfirmed after %s", method, h.Hex(), c.opts.ConfirmTimeout)
			return nil, &faults.Error{
				Kind:   faults.KindConfirmationTimeout,
				Op:     method,
				Handle: h,
				Err:    fmt.Errorf("outcome unknown for %s: %w", h.Hex(), ctx.Err()),
			}
		case <-ticker.C:
		}
	}
}

// Status polls the receipt of h once. A nil receipt means the write is still pending.
func (c *Client) Status(ctx context.Context, h Handle) (*Receipt, error) {
	r, err := c.backend.Receipt(ctx, h)
	if err != nil {
		return nil, faults.Wrap(faults.KindCache, "write status", err)
	}
	return r, nil
}

// Execute submits req and waits for its confirmation.
func (c *Client) Execute(ctx context.Context, req Request) (*Receipt, error) {
	h, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx, req.Call.Method(), h)
}

var reasons = map[string]error{
	ReasonNotFound:          faults.ErrLotteryNotFound,
	ReasonClosed:            faults.ErrLotteryClosed,
	ReasonEnded:             faults.ErrLotteryEnded,
	ReasonSoldOut:           faults.ErrSoldOut,
	ReasonIncorrectPayment:  faults.ErrIncorrectPayment,
	ReasonInvalidQuantity:   faults.ErrQuantityInvalid,
	ReasonNotCreator:        faults.ErrNotCreator,
	ReasonAlreadyClosed:     faults.ErrAlreadyClosed,
	ReasonNothingToWithdraw: faults.ErrNothingToWithdraw,
	ReasonInvalidCommission: faults.ErrCommissionOutOfRange,
}

func reasonError(method, reason string) error {
	if err, ok := reasons[reason]; ok {
		return err
	}
	if method == (Withdraw{}).Method() {
		return fmt.Errorf("%w: %s", faults.ErrWithdrawRejected, reason)
	}
	if reason == "" {
		reason = "reverted"
	}
	return errors.New(reason)
}

func readError(op string, err error) error {
	fe := &faults.Error{Kind: faults.KindCache, Op: op, Err: err}
	if errors.Is(err, ErrNotFound) {
		fe.Reason = faults.ErrLotteryNotFound
	}
	return fe
}

// LotteryInfo reads a lottery.
func (c *Client) LotteryInfo(ctx context.Context, id uint64) (models.Lottery, error) {
	l, err := c.backend.LotteryInfo(ctx, id)
	if err != nil {
		return models.Lottery{}, readError(fmt.Sprintf("read lottery %d", id), err)
	}
	return l, nil
}

// TotalLotteries reads how many lotteries were ever created.
func (c *Client) TotalLotteries(ctx context.Context) (uint64, error) {
	n, err := c.backend.TotalLotteries(ctx)
	if err != nil {
		return 0, readError("read total lotteries", err)
	}
	return n, nil
}

// ActiveLotteries reads the ids of open lotteries.
func (c *Client) ActiveLotteries(ctx context.Context) ([]uint64, error) {
	ids, err := c.backend.ActiveLotteries(ctx)
	if err != nil {
		return nil, readError("read active lotteries", err)
	}
	return ids, nil
}

// LotteriesByCreator reads the ids of lotteries created by creator.
func (c *Client) LotteriesByCreator(ctx context.Context, creator models.Identity) ([]uint64, error) {
	ids, err := c.backend.LotteriesByCreator(ctx, creator)
	if err != nil {
		return nil, readError("read lotteries by creator", err)
	}
	return ids, nil
}

// MyTickets reads how many tickets who holds in lottery id.
func (c *Client) MyTickets(ctx context.Context, id uint64, who models.Identity) (uint64, error) {
	n, err := c.backend.MyTickets(ctx, id, who)
	if err != nil {
		return 0, readError(fmt.Sprintf("read tickets of lottery %d", id), err)
	}
	return n, nil
}

// Participants reads the distinct participants of lottery id in ledger order.
func (c *Client) Participants(ctx context.Context, id uint64) ([]models.Identity, error) {
	list, err := c.backend.Participants(ctx, id)
	if err != nil {
		return nil, readError(fmt.Sprintf("read participants of lottery %d", id), err)
	}
	seen := make(map[models.Identity]bool, len(list))
	out := make([]models.Identity, 0, len(list))
	for _, p := range list {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

// ParticipantStats reads the counters of who.
func (c *Client) ParticipantStats(ctx context.Context, who models.Identity) (models.ParticipantStats, error) {
	s, err := c.backend.ParticipantStats(ctx, who)
	if err != nil {
		return models.ParticipantStats{}, readError("read participant stats", err)
	}
	return s, nil
}

// PendingWithdrawal reads the unclaimed balance of who.
func (c *Client) PendingWithdrawal(ctx context.Context, who models.Identity) (*big.Int, error) {
	v, err := c.backend.PendingWithdrawal(ctx, who)
	if err != nil {
		return nil, readError("read pending withdrawal", err)
	}
	if v == nil {
		v = new(big.Int)
	}
	return v, nil
}

// UserFile reads the anchor of who for kind; the zero sentinel is returned as is.
func (c *Client) UserFile(ctx context.Context, who models.Identity, kind models.AnchorKind) (models.ContentID, error) {
	id, err := c.backend.UserFile(ctx, who, kind)
	if err != nil {
		return "", readError("read user file", err)
	}
	return id, nil
}
