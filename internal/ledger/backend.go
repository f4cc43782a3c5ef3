// Package ledger is the client-side adapter to the authoritative lottery ledger.
//
// Reads go straight to the backend. Writes are submitted once (transport failures
// before acceptance are retried with backoff), then confirmed by polling receipts.
// An accepted write is never resubmitted by this package.
package ledger

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lottery/internal/models"
)

// Backend errors.
var (
	// ErrUnavailable marks a transport failure that happened before the request was accepted.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrMalformed marks a request the ledger refused synchronously.
	ErrMalformed = errors.New("malformed request")
	// ErrNotFound marks a read of a record that does not exist.
	ErrNotFound = errors.New("not found")
)

// Handle identifies an accepted, possibly unconfirmed, write.
type Handle = common.Hash

// Backend is the ledger contract surface.
type Backend interface {
	LotteryInfo(ctx context.Context, id uint64) (models.Lottery, error)
	TotalLotteries(ctx context.Context) (uint64, error)
	ActiveLotteries(ctx context.Context) ([]uint64, error)
	LotteriesByCreator(ctx context.Context, creator models.Identity) ([]uint64, error)
	MyTickets(ctx context.Context, id uint64, who models.Identity) (uint64, error)
	Participants(ctx context.Context, id uint64) ([]models.Identity, error)
	ParticipantStats(ctx context.Context, who models.Identity) (models.ParticipantStats, error)
	PendingWithdrawal(ctx context.Context, who models.Identity) (*big.Int, error)
	UserFile(ctx context.Context, who models.Identity, kind models.AnchorKind) (models.ContentID, error)

	// Send submits a write. A nil error means the ledger accepted it for processing.
	Send(ctx context.Context, req Request) (Handle, error)
	// Receipt returns nil while the write is still pending.
	Receipt(ctx context.Context, h Handle) (*Receipt, error)
}

// Call is one of the ledger's write methods.
type Call interface {
	Method() string
}

// CreateLottery opens a new lottery.
type CreateLottery struct {
	Name                  string
	TicketPrice           *big.Int
	MaxTickets            uint64
	EndTime               time.Time
	CommissionBasisPoints uint16
	Description           models.ContentID
}

// BuyTickets buys Quantity tickets; the request Value must equal price times quantity.
type BuyTickets struct {
	LotteryID uint64
	Quantity  uint64
}

// CloseLottery closes a lottery and resolves its winner.
type CloseLottery struct {
	LotteryID uint64
}

// SetLotteryCommission changes the commission of an open lottery.
type SetLotteryCommission struct {
	LotteryID   uint64
	BasisPoints uint16
}

// Withdraw claims the sender's pending balance.
type Withdraw struct{}

// SetAnchor links the sender's anchor slot Kind to ID.
type SetAnchor struct {
	Kind models.AnchorKind
	ID   models.ContentID
}

func (CreateLottery) Method() string        { return "createLottery" }
func (BuyTickets) Method() string           { return "buyTickets" }
func (CloseLottery) Method() string         { return "closeLottery" }
func (SetLotteryCommission) Method() string { return "setLotteryCommission" }
func (Withdraw) Method() string             { return "withdraw" }
func (SetAnchor) Method() string            { return "setAnchor" }

// Request is a signed write: who sends it, what it pays, and what it calls.
type Request struct {
	From  models.Identity
	Value *big.Int
	Call  Call
}

// Status of a processed write.
type Status int

const (
	StatusSucceeded Status = iota + 1
	StatusReverted
)

// Reason codes a reverted receipt carries.
const (
	ReasonNotFound          = "LotteryNotFound"
	ReasonClosed            = "LotteryClosed"
	ReasonEnded             = "LotteryEnded"
	ReasonSoldOut           = "SoldOut"
	ReasonIncorrectPayment  = "IncorrectPayment"
	ReasonInvalidQuantity   = "InvalidQuantity"
	ReasonNotCreator        = "NotCreator"
	ReasonAlreadyClosed     = "AlreadyClosed"
	ReasonNothingToWithdraw = "NothingToWithdraw"
	ReasonInvalidCommission = "InvalidCommission"
	ReasonInvalidParams     = "InvalidParams"
)

// Receipt is the confirmed outcome of a write.
type Receipt struct {
	Handle Handle
	Status Status
	Reason string
	Block  uint64
	// LotteryID is set for a confirmed createLottery.
	LotteryID uint64
}

// Succeeded reports whether the write took effect.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == StatusSucceeded
}
