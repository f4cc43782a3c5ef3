package models

import (
	"math/big"
	"time"
)

// MaxBasisPoints is the commission ceiling (100%).
const MaxBasisPoints = 10000

// LotteryState is the lifecycle position of a lottery as last confirmed by the ledger.
type LotteryState string

const (
	StateOpen     LotteryState = "open"
	StateClosed   LotteryState = "closed"
	StateResolved LotteryState = "resolved"
)

// Lottery is a confirmed snapshot of a single lottery record on the ledger.
// Amounts are expressed in the smallest currency unit.
type Lottery struct {
	ID                    uint64    `json:"id"`
	Creator               Identity  `json:"creator"`
	Name                  string    `json:"name"`
	TicketPrice           *big.Int  `json:"ticketPrice"`
	MaxTickets            uint64    `json:"maxTickets"`
	TicketsSold           uint64    `json:"ticketsSold"`
	CommissionBasisPoints uint16    `json:"commissionBasisPoints"`
	Pot                   *big.Int  `json:"pot"`
	EndTime               time.Time `json:"endTime"`
	Closed                bool      `json:"closed"`
	Winner                Identity  `json:"winner"`
	DescriptionAnchor     ContentID `json:"descriptionAnchor,omitempty"`
}

// State derives the lifecycle state. A lottery is Resolved once it is closed and has a winner.
func (l Lottery) State() LotteryState {
	switch {
	case l.Closed && !IsZeroIdentity(l.Winner):
		return StateResolved
	case l.Closed:
		return StateClosed
	default:
		return StateOpen
	}
}

// HasWinner reports whether the ledger has designated a winner.
func (l Lottery) HasWinner() bool {
	return l.Closed && !IsZeroIdentity(l.Winner)
}

// TicketsLeft returns how many tickets can still be sold.
func (l Lottery) TicketsLeft() uint64 {
	if l.TicketsSold >= l.MaxTickets {
		return 0
	}
	return l.MaxTickets - l.TicketsSold
}

// Ended reports whether the sale window has passed at the given instant.
func (l Lottery) Ended(now time.Time) bool {
	return !now.Before(l.EndTime)
}

// Clone returns a deep copy so callers cannot alias the amounts of a cached snapshot.
func (l Lottery) Clone() Lottery {
	c := l
	c.TicketPrice = cloneInt(l.TicketPrice)
	c.Pot = cloneInt(l.Pot)
	return c
}

// ParticipantStats are the per-identity counters kept by the ledger.
type ParticipantStats struct {
	LotteriesParticipated uint64 `json:"lotteriesParticipated"`
	TotalTickets          uint64 `json:"totalTickets"`
	LotteriesWon          uint64 `json:"lotteriesWon"`
}

// TicketHolding is the number of tickets an identity holds in one lottery.
type TicketHolding struct {
	LotteryID uint64 `json:"lotteryId"`
	Quantity  uint64 `json:"quantity"`
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
