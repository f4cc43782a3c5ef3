package memledger

import (
	"context"
	"math/big"
	"testing"
	"time"

	"lottery/internal/ledger"
	"lottery/internal/models"
)

var (
	creator = models.Identity{0xc0}
	alice   = models.Identity{0xa1}
	bob     = models.Identity{0xb0}
)

func mustConfirm(t *testing.T, l *Ledger, req ledger.Request) *ledger.Receipt {
	t.Helper()
	ctx := context.Background()
	h, err := l.Send(ctx, req)
	if err != nil {
		t.Fatalf("Expected send to be accepted, but got %v", err)
	}
	r, err := l.Receipt(ctx, h)
	if err != nil || r == nil {
		t.Fatalf("Expected a receipt, but got %+v, %v", r, err)
	}
	return r
}

func TestLedger_Lifecycle(t *testing.T) {
	ctx := context.Background()
	// Always pick the first ticket, which is alice's.
	l := New(WithPicker(func(total uint64) uint64 { return 0 }))

	r := mustConfirm(t, l, ledger.Request{From: creator, Call: ledger.CreateLottery{
		Name: "raffle", TicketPrice: big.NewInt(1000), MaxTickets: 5,
		EndTime: time.Now().Add(time.Hour), CommissionBasisPoints: 1000,
	}})
	if !r.Succeeded() || r.LotteryID != 0 {
		t.Fatalf("Expected lottery 0 to be created, but got %+v", r)
	}

	t.Run("Test incorrect payment is reverted", func(t *testing.T) {
		r := mustConfirm(t, l, ledger.Request{From: alice, Value: big.NewInt(999), Call: ledger.BuyTickets{LotteryID: 0, Quantity: 1}})
		if r.Reason != ledger.ReasonIncorrectPayment {
			t.Errorf("Expected %s, but got %q", ledger.ReasonIncorrectPayment, r.Reason)
		}
	})

	t.Run("Test purchases update pot, tickets and stats", func(t *testing.T) {
		mustConfirm(t, l, ledger.Request{From: alice, Value: big.NewInt(2000), Call: ledger.BuyTickets{LotteryID: 0, Quantity: 2}})
		mustConfirm(t, l, ledger.Request{From: bob, Value: big.NewInt(1000), Call: ledger.BuyTickets{LotteryID: 0, Quantity: 1}})
		mustConfirm(t, l, ledger.Request{From: alice, Value: big.NewInt(1000), Call: ledger.BuyTickets{LotteryID: 0, Quantity: 1}})

		info, _ := l.LotteryInfo(ctx, 0)
		if info.TicketsSold != 4 || info.Pot.Cmp(big.NewInt(4000)) != 0 {
			t.Errorf("Expected 4 sold and pot 4000, but got %d and %s", info.TicketsSold, info.Pot)
		}
		st, _ := l.ParticipantStats(ctx, alice)
		if st.LotteriesParticipated != 1 || st.TotalTickets != 3 {
			t.Errorf("Expected alice in 1 lottery with 3 tickets, but got %+v", st)
		}
		parts, _ := l.Participants(ctx, 0)
		if len(parts) != 2 {
			t.Errorf("Expected 2 participants, but got %d", len(parts))
		}
	})

	t.Run("Test overselling is reverted", func(t *testing.T) {
		r := mustConfirm(t, l, ledger.Request{From: bob, Value: big.NewInt(2000), Call: ledger.BuyTickets{LotteryID: 0, Quantity: 2}})
		if r.Reason != ledger.ReasonSoldOut {
			t.Errorf("Expected %s, but got %q", ledger.ReasonSoldOut, r.Reason)
		}
	})

	t.Run("Test close extracts commission and credits the winner", func(t *testing.T) {
		r := mustConfirm(t, l, ledger.Request{From: creator, Call: ledger.CloseLottery{LotteryID: 0}})
		if !r.Succeeded() {
			t.Fatalf("Expected close to succeed, but got %q", r.Reason)
		}
		info, _ := l.LotteryInfo(ctx, 0)
		if !info.Closed || info.Winner != alice {
			t.Errorf("Expected closed with winner alice, but got closed=%v winner=%s", info.Closed, info.Winner.Hex())
		}
		if info.Pot.Cmp(big.NewInt(3600)) != 0 {
			t.Errorf("Expected pot 3600 after 10%% commission, but got %s", info.Pot)
		}
		if l.Commission(creator).Cmp(big.NewInt(400)) != 0 {
			t.Errorf("Expected commission 400, but got %s", l.Commission(creator))
		}
		pending, _ := l.PendingWithdrawal(ctx, alice)
		if pending.Cmp(big.NewInt(3600)) != 0 {
			t.Errorf("Expected alice to be owed 3600, but got %s", pending)
		}
	})

	t.Run("Test second close is reverted", func(t *testing.T) {
		r := mustConfirm(t, l, ledger.Request{From: creator, Call: ledger.CloseLottery{LotteryID: 0}})
		if r.Reason != ledger.ReasonAlreadyClosed {
			t.Errorf("Expected %s, but got %q", ledger.ReasonAlreadyClosed, r.Reason)
		}
	})

	t.Run("Test withdraw zeroes the balance once", func(t *testing.T) {
		if r := mustConfirm(t, l, ledger.Request{From: alice, Call: ledger.Withdraw{}}); !r.Succeeded() {
			t.Fatalf("Expected withdraw to succeed, but got %q", r.Reason)
		}
		pending, _ := l.PendingWithdrawal(ctx, alice)
		if pending.Sign() != 0 {
			t.Errorf("Expected zero balance, but got %s", pending)
		}
		if r := mustConfirm(t, l, ledger.Request{From: alice, Call: ledger.Withdraw{}}); r.Reason != ledger.ReasonNothingToWithdraw {
			t.Errorf("Expected %s, but got %q", ledger.ReasonNothingToWithdraw, r.Reason)
		}
	})
}

func TestLedger_EndTime(t *testing.T) {
	now := time.Now()
	clock := now
	l := New(WithClock(func() time.Time { return clock }))
	mustConfirm(t, l, ledger.Request{From: creator, Call: ledger.CreateLottery{
		Name: "short", TicketPrice: big.NewInt(1), MaxTickets: 5, EndTime: now.Add(time.Minute),
	}})

	clock = now.Add(2 * time.Minute)
	r := mustConfirm(t, l, ledger.Request{From: alice, Value: big.NewInt(1), Call: ledger.BuyTickets{LotteryID: 0, Quantity: 1}})
	if r.Reason != ledger.ReasonEnded {
		t.Errorf("Expected %s, but got %q", ledger.ReasonEnded, r.Reason)
	}
	active, _ := l.ActiveLotteries(context.Background())
	if len(active) != 0 {
		t.Errorf("Expected no active lotteries, but got %v", active)
	}
}

func TestLedger_Mine(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Hold()
	h, err := l.Send(ctx, ledger.Request{From: creator, Call: ledger.CreateLottery{
		Name: "mined", TicketPrice: big.NewInt(1), MaxTickets: 1, EndTime: time.Now().Add(time.Hour),
	}})
	if err != nil {
		t.Fatalf("Expected send to be accepted, but got %v", err)
	}

	t.Run("Test held writes are not mined", func(t *testing.T) {
		if n := l.Mine(); n != 0 {
			t.Errorf("Expected nothing mined, but got %d", n)
		}
		if total, _ := l.TotalLotteries(ctx); total != 0 {
			t.Errorf("Expected no lottery yet, but got %d", total)
		}
	})

	t.Run("Test mining applies writes without a receipt poll", func(t *testing.T) {
		l.Release()
		if n := l.Mine(); n != 1 {
			t.Errorf("Expected 1 write mined, but got %d", n)
		}
		if total, _ := l.TotalLotteries(ctx); total != 1 {
			t.Errorf("Expected 1 lottery, but got %d", total)
		}
		r, err := l.Receipt(ctx, h)
		if err != nil || !r.Succeeded() {
			t.Fatalf("Expected a succeeded receipt, but got %+v, %v", r, err)
		}
		if n := l.Mine(); n != 0 {
			t.Errorf("Expected nothing left to mine, but got %d", n)
		}
	})

	t.Run("Test run mines in the background", func(t *testing.T) {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go l.Run(runCtx, time.Millisecond)

		h, _ := l.Send(ctx, ledger.Request{From: alice, Value: big.NewInt(1), Call: ledger.BuyTickets{LotteryID: 0, Quantity: 1}})
		deadline := time.Now().Add(2 * time.Second)
		for {
			if info, _ := l.LotteryInfo(ctx, 0); info.TicketsSold == 1 {
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("Expected the purchase to be mined")
			}
			time.Sleep(time.Millisecond)
		}
		if r, _ := l.Receipt(ctx, h); !r.Succeeded() {
			t.Errorf("Expected the purchase to succeed, but got %+v", r)
		}
	})
}
