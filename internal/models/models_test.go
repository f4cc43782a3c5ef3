package models

import (
	"math/big"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

func TestChainID(t *testing.T) {
	cases := map[string]NetworkID{
		"0xaa36a7":   "0xaa36a7",
		"0xAA36A7":   "0xaa36a7",
		"11155111":   "0xaa36a7",
		"31337":      "0x7a69",
		" 0x0007a69": "0x7a69",
	}
	for in, want := range cases {
		got, err := ChainID(in)
		if err != nil || got != want {
			t.Errorf("Expected %q to parse as %s, but got %s (%v)", in, want, got, err)
		}
	}
	for _, bad := range []string{"", "0x", "0", "-5", "sepolia"} {
		if _, err := ChainID(bad); err == nil {
			t.Errorf("Expected %q to be rejected", bad)
		}
	}
	if !NetworkID("0xAA36A7").Equal("11155111") {
		t.Error("Expected hex and decimal forms to be equal")
	}
}

func TestContentID(t *testing.T) {
	if !ContentID("").IsZero() || !ContentID(zeroWord).IsZero() {
		t.Error("Expected empty and zero word to be the none sentinel")
	}
	c, err := cid.Prefix{Version: 1, Codec: cid.Raw, MhType: multihash.SHA2_256, MhLength: -1}.Sum([]byte("hello"))
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if err := ContentID(c.String()).Validate(); err != nil {
		t.Errorf("Expected a valid CIDv1, but got %v", err)
	}
	if err := ContentID("not-a-cid").Validate(); err == nil {
		t.Error("Expected an invalid content id to be rejected")
	}
}

func TestLottery(t *testing.T) {
	now := time.Now()
	l := Lottery{
		TicketPrice: big.NewInt(10),
		Pot:         big.NewInt(30),
		MaxTickets:  5,
		TicketsSold: 3,
		EndTime:     now.Add(time.Minute),
	}

	t.Run("Test state", func(t *testing.T) {
		if l.State() != StateOpen || l.TicketsLeft() != 2 || l.Ended(now) {
			t.Errorf("Expected an open lottery with 2 tickets left, but got %s and %d", l.State(), l.TicketsLeft())
		}
		closed := l
		closed.Closed = true
		if closed.State() != StateClosed || closed.HasWinner() {
			t.Errorf("Expected closed without winner, but got %s", closed.State())
		}
		closed.Winner = Identity{1}
		if closed.State() != StateResolved {
			t.Errorf("Expected resolved, but got %s", closed.State())
		}
		if !l.Ended(l.EndTime) {
			t.Error("Expected the lottery to have ended at its end time")
		}
	})

	t.Run("Test clone does not alias amounts", func(t *testing.T) {
		c := l.Clone()
		c.Pot.SetInt64(0)
		c.TicketPrice.SetInt64(0)
		if l.Pot.Int64() != 30 || l.TicketPrice.Int64() != 10 {
			t.Errorf("Expected the original to be untouched, but got pot %s price %s", l.Pot, l.TicketPrice)
		}
	})
}

func TestFormatUnits(t *testing.T) {
	wei, _ := new(big.Int).SetString("1234500000000000000", 10)
	cases := []struct {
		v    *big.Int
		want string
	}{
		{wei, "1.2345"},
		{big.NewInt(1), "0.000000000000000001"},
		{big.NewInt(0), "0"},
		{nil, "0"},
	}
	for _, c := range cases {
		if got := FormatUnits(c.v, 18); got != c.want {
			t.Errorf("Expected %s, but got %s", c.want, got)
		}
	}
}
