// Package session gates ledger writes behind the required network context and a
// granted account identity.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/logger"

	"lottery/internal/faults"
	"lottery/internal/models"
)

// Errors a Host reports.
var (
	// ErrUnknownChain is returned by SwitchNetwork when the target chain is not registered.
	ErrUnknownChain = errors.New("unrecognized chain")
	// ErrUserRejected is returned when the user declines or cancels a prompt.
	ErrUserRejected = errors.New("user rejected the request")
)

// Host is the ambient wallet the session talks to.
type Host interface {
	CurrentNetwork(ctx context.Context) (models.NetworkID, error)
	SwitchNetwork(ctx context.Context, id models.NetworkID) error
	RegisterNetwork(ctx context.Context, desc NetworkDescriptor) error
	RequestAccounts(ctx context.Context) ([]models.Identity, error)
}

// Session is the per-user context passed explicitly into every write.
type Session struct {
	host     Host
	required models.NetworkID

	mu       sync.Mutex
	identity models.Identity
	granted  bool
}

// New creates a session over host that requires the given network for writes.
// A nil host yields a session on which every gate fails with NetworkUnavailable.
func New(host Host, required models.NetworkID) *Session {
	return &Session{host: host, required: required}
}

// Required returns the network this session enforces.
func (s *Session) Required() models.NetworkID {
	return s.required
}

// EnsureNetwork guarantees the host targets the session's required network.
func (s *Session) EnsureNetwork(ctx context.Context) error {
	return s.EnsureNetworkFor(ctx, s.required)
}

// EnsureNetworkFor guarantees the host targets required. When the host is already on
// it nothing is prompted. Otherwise it switches, registering the known descriptor and
// retrying once when the host does not recognise the chain.
func (s *Session) EnsureNetworkFor(ctx context.Context, required models.NetworkID) error {
	const op = "ensure network"
	if s.host == nil {
		return faults.New(faults.KindNetwork, op, faults.ErrNetworkUnavailable)
	}

	current, err := s.host.CurrentNetwork(ctx)
	if err != nil {
		return &faults.Error{Kind: faults.KindNetwork, Op: op, Reason: faults.ErrNetworkUnavailable, Err: err}
	}
	if current.Equal(required) {
		return nil
	}

	logger.Infof("session: switching network %s -> %s", current, required)
	err = s.host.SwitchNetwork(ctx, required)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUnknownChain) {
		return &faults.Error{Kind: faults.KindNetwork, Op: op, Reason: faults.ErrNetworkRejected, Err: err}
	}

	desc, ok := Lookup(required)
	if !ok {
		return &faults.Error{Kind: faults.KindNetwork, Op: op, Reason: faults.ErrNetworkUnknown, Err: err}
	}
	logger.Infof("session: registering network %s (%s)", desc.Name, desc.ChainID)
	if err := s.host.RegisterNetwork(ctx, desc); err != nil {
		return &faults.Error{Kind: faults.KindNetwork, Op: op, Reason: faults.ErrNetworkUnknown, Err: err}
	}

	if err := s.host.SwitchNetwork(ctx, required); err != nil {
		reason := faults.ErrNetworkRejected
		if errors.Is(err, ErrUnknownChain) {
			reason = faults.ErrNetworkUnknown
		}
		return &faults.Error{Kind: faults.KindNetwork, Op: op, Reason: reason, Err: err}
	}
	return nil
}

// EnsureIdentity requests account access once and caches the first granted account
// for the lifetime of the session.
func (s *Session) EnsureIdentity(ctx context.Context) (models.Identity, error) {
	const op = "ensure identity"
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.granted {
		return s.identity, nil
	}
	if s.host == nil {
		return models.Identity{}, faults.New(faults.KindNetwork, op, faults.ErrNetworkUnavailable)
	}

	accounts, err := s.host.RequestAccounts(ctx)
	if err != nil {
		return models.Identity{}, &faults.Error{Kind: faults.KindAuth, Op: op, Reason: faults.ErrNoAccountGranted, Err: err}
	}
	if len(accounts) == 0 || models.IsZeroIdentity(accounts[0]) {
		return models.Identity{}, faults.New(faults.KindAuth, op, faults.ErrNoAccountGranted)
	}

	s.identity = accounts[0]
	s.granted = true
	return s.identity, nil
}

// Identity returns the cached identity without prompting.
func (s *Session) Identity() (models.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.granted
}

// Ready ensures both the network and the identity, in that order.
func (s *Session) Ready(ctx context.Context) (models.Identity, error) {
	if err := s.EnsureNetwork(ctx); err != nil {
		return models.Identity{}, err
	}
	return s.EnsureIdentity(ctx)
}
