// Package faults defines the error taxonomy shared by every client-side operation.
//
// Every error returned across a package boundary is a *Error carrying a Kind (the
// category the caller must react to) and, where one applies, a Reason sentinel that
// can be matched with errors.Is.
package faults

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"lottery/internal/models"
)

// Kind is the category of a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is malformed input detected locally; nothing was sent.
	KindValidation
	// KindNetwork is a missing or wrong ledger network context.
	KindNetwork
	// KindAuth means no identity was granted.
	KindAuth
	// KindStore means the content store could not be reached.
	KindStore
	// KindSubmission is a write refused before the ledger accepted it.
	KindSubmission
	// KindConfirmationTimeout is an accepted write whose outcome is unknown.
	KindConfirmationTimeout
	// KindRejected is a write (or local precondition mirror of it) explicitly refused.
	KindRejected
	// KindCache is a failed read while refreshing a view; the stale view is kept.
	KindCache
	// KindConflict is a second write while one is outstanding for the same target.
	KindConflict
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindValidation:          "validation",
	KindNetwork:             "network",
	KindAuth:                "auth",
	KindStore:               "store",
	KindSubmission:          "submission",
	KindConfirmationTimeout: "confirmation_timeout",
	KindRejected:            "ledger_rejected",
	KindCache:               "cache",
	KindConflict:            "write_pending",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Reason sentinels.
var (
	ErrQuantityInvalid      = errors.New("quantity must be positive")
	ErrCommissionOutOfRange = errors.New("commission must be between 0 and 10000 basis points")
	ErrLotteryNotFound      = errors.New("lottery not found")
	ErrLotteryClosed        = errors.New("lottery is closed")
	ErrLotteryEnded         = errors.New("lottery sale window has ended")
	ErrSoldOut              = errors.New("not enough tickets left")
	ErrIncorrectPayment     = errors.New("payment does not match ticket price")
	ErrNotCreator           = errors.New("only the lottery creator may do this")
	ErrAlreadyClosed        = errors.New("lottery already closed")
	ErrNothingToWithdraw    = errors.New("nothing to withdraw")
	ErrWithdrawRejected     = errors.New("withdrawal rejected")
	ErrWriteAlreadyPending  = errors.New("a write for this target is already pending")
	ErrLinkFailed           = errors.New("content uploaded but linking it failed")
	ErrNetworkUnavailable   = errors.New("no wallet session available")
	ErrNetworkRejected      = errors.New("network switch declined")
	ErrNetworkUnknown       = errors.New("network could not be registered")
	ErrNoAccountGranted     = errors.New("no account access granted")
	ErrStoreUnreachable     = errors.New("content store unreachable")
)

// Error is the typed failure returned by every operation.
type Error struct {
	Kind   Kind
	Op     string
	Reason error
	// ContentID is set when an upload succeeded before the failure.
	ContentID models.ContentID
	// Handle is set once the ledger accepted the write.
	Handle common.Hash
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Reason != nil {
		msg += ": " + e.Reason.Error()
	}
	if e.Err != nil && e.Err != e.Reason {
		msg += ": " + e.Err.Error()
	}
	if e.ContentID != "" {
		msg += " (content id " + string(e.ContentID) + ")"
	}
	return msg
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.Reason != nil {
		errs = append(errs, e.Reason)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// New builds an Error for op with kind and reason.
func New(kind Kind, op string, reason error) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Wrap builds an Error for op with kind around an underlying cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation is a shorthand for a local input error.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the category of err, or KindUnknown.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return KindUnknown
}

// ContentIDOf returns the content id recovered by a failed anchoring, if any.
func ContentIDOf(err error) (models.ContentID, bool) {
	if fe, ok := As(err); ok && fe.ContentID != "" {
		return fe.ContentID, true
	}
	return "", false
}

// Message returns an actionable message for the category of err.
func Message(err error) string {
	switch KindOf(err) {
	case KindValidation:
		return "Check the submitted values: " + err.Error()
	case KindNetwork:
		return "Switch your wallet to the required network and try again: " + err.Error()
	case KindAuth:
		return "Connect an account to continue."
	case KindStore:
		return "The file store is unreachable; try the upload again later."
	case KindSubmission:
		return "The ledger did not accept the request: " + err.Error()
	case KindConfirmationTimeout:
		return "The request was sent but not confirmed in time. Refresh and check its state before resubmitting."
	case KindRejected:
		return "The ledger refused the request: " + err.Error()
	case KindCache:
		return "Could not refresh from the ledger; showing the last confirmed state."
	case KindConflict:
		return "Another request for the same target is still pending; wait for it to finish."
	default:
		return err.Error()
	}
}
