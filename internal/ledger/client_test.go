package ledger_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"lottery/internal/faults"
	"lottery/internal/ledger"
	"lottery/internal/ledger/memledger"
	"lottery/internal/models"
)

var (
	creator = models.Identity{0xc0}
	buyer   = models.Identity{0xb0}
)

func newClient(l *memledger.Ledger) *ledger.Client {
	return ledger.NewClient(l, ledger.Options{
		ConfirmTimeout: 200 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
		SubmitAttempts: 3,
		SubmitBackoff:  time.Millisecond,
	})
}

func createRequest() ledger.Request {
	return ledger.Request{From: creator, Call: ledger.CreateLottery{
		Name:                  "weekly",
		TicketPrice:           big.NewInt(100),
		MaxTickets:            10,
		EndTime:               time.Now().Add(time.Hour),
		CommissionBasisPoints: 500,
	}}
}

func TestClient_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("Test transient failures are retried", func(t *testing.T) {
		l := memledger.New()
		l.FailNextSends(2)
		c := newClient(l)

		r, err := c.Execute(ctx, createRequest())
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if !r.Succeeded() {
			t.Errorf("Expected a succeeded receipt, but got %+v", r)
		}
		if l.Sent() != 1 {
			t.Errorf("Expected exactly one accepted send, but got %d", l.Sent())
		}
	})

	t.Run("Test retries are bounded", func(t *testing.T) {
		l := memledger.New()
		l.FailNextSends(5)
		c := newClient(l)

		_, err := c.Submit(ctx, createRequest())
		if faults.KindOf(err) != faults.KindSubmission {
			t.Fatalf("Expected a submission error, but got %v", err)
		}
		if !errors.Is(err, ledger.ErrUnavailable) {
			t.Errorf("Expected the transport cause to be kept, but got %v", err)
		}
		if l.Sent() != 0 {
			t.Errorf("Expected nothing accepted, but got %d", l.Sent())
		}
	})

	t.Run("Test malformed request is not retried", func(t *testing.T) {
		l := memledger.New()
		c := newClient(l)
		_, err := c.Submit(ctx, ledger.Request{From: creator, Value: big.NewInt(-1), Call: ledger.Withdraw{}})
		if !errors.Is(err, ledger.ErrMalformed) {
			t.Fatalf("Expected ErrMalformed, but got %v", err)
		}
		if faults.KindOf(err) != faults.KindSubmission {
			t.Errorf("Expected a submission error, but got %s", faults.KindOf(err))
		}
	})
}

func TestClient_Wait(t *testing.T) {
	ctx := context.Background()

	t.Run("Test timeout leaves the outcome unknown and is not resubmitted", func(t *testing.T) {
		l := memledger.New()
		l.Hold()
		c := newClient(l)

		_, err := c.Execute(ctx, createRequest())
		if faults.KindOf(err) != faults.KindConfirmationTimeout {
			t.Fatalf("Expected a confirmation timeout, but got %v", err)
		}
		fe, _ := faults.As(err)
		if fe.Handle == (ledger.Handle{}) {
			t.Error("Expected the timeout to carry the pending handle")
		}
		if l.Sent() != 1 {
			t.Errorf("Expected one send, but got %d", l.Sent())
		}

		// The write still lands once the ledger processes it.
		l.Release()
		r, err := c.Wait(ctx, "createLottery", fe.Handle)
		if err != nil || !r.Succeeded() {
			t.Fatalf("Expected the held write to confirm, but got %+v, %v", r, err)
		}
		total, _ := c.TotalLotteries(ctx)
		if total != 1 {
			t.Errorf("Expected 1 lottery, but got %d", total)
		}
	})

	t.Run("Test reverted write maps to a typed rejection", func(t *testing.T) {
		l := memledger.New()
		c := newClient(l)
		if _, err := c.Execute(ctx, createRequest()); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}

		_, err := c.Execute(ctx, ledger.Request{From: buyer, Call: ledger.CloseLottery{LotteryID: 0}})
		if faults.KindOf(err) != faults.KindRejected {
			t.Fatalf("Expected a rejection, but got %v", err)
		}
		if !errors.Is(err, faults.ErrNotCreator) {
			t.Errorf("Expected NotCreator, but got %v", err)
		}
	})

	t.Run("Test withdraw rejection without a known reason", func(t *testing.T) {
		l := memledger.New()
		c := newClient(l)
		_, err := c.Execute(ctx, ledger.Request{From: buyer, Call: ledger.Withdraw{}})
		if !errors.Is(err, faults.ErrNothingToWithdraw) {
			t.Fatalf("Expected NothingToWithdraw, but got %v", err)
		}
	})
}

func TestClient_Reads(t *testing.T) {
	ctx := context.Background()
	l := memledger.New()
	c := newClient(l)

	t.Run("Test missing lottery", func(t *testing.T) {
		_, err := c.LotteryInfo(ctx, 42)
		if !errors.Is(err, faults.ErrLotteryNotFound) {
			t.Fatalf("Expected LotteryNotFound, but got %v", err)
		}
	})

	t.Run("Test unset anchor reads as the zero sentinel", func(t *testing.T) {
		id, err := c.UserFile(ctx, buyer, models.AnchorProfile)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if !id.IsZero() {
			t.Errorf("Expected the zero sentinel, but got %s", id)
		}
	})

	t.Run("Test read failures are cache errors", func(t *testing.T) {
		l.FailReads(ledger.ErrUnavailable)
		defer l.FailReads(nil)
		_, err := c.TotalLotteries(ctx)
		if faults.KindOf(err) != faults.KindCache {
			t.Fatalf("Expected a cache error, but got %v", err)
		}
	})
}
