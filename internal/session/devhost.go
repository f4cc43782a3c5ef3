package session

import (
	"context"
	"sync"

	"lottery/internal/models"
)

// DevHost is an in-process wallet host. It backs the dev daemon, where the caller's
// address is trusted as given, and the tests, where prompts are scripted and counted.
type DevHost struct {
	mu       sync.Mutex
	current  models.NetworkID
	known    map[models.NetworkID]bool
	accounts []models.Identity
	prompts  int

	rejectSwitch   bool
	rejectAccounts bool
	failRegister   bool
}

// NewDevHost creates a host on network current exposing accounts.
func NewDevHost(current models.NetworkID, accounts ...models.Identity) *DevHost {
	return &DevHost{
		current:  current,
		known:    map[models.NetworkID]bool{normalize(current): true},
		accounts: accounts,
	}
}

// CurrentNetwork returns the network the host targets.
func (h *DevHost) CurrentNetwork(ctx context.Context) (models.NetworkID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current, nil
}

// SwitchNetwork prompts for a switch to id.
func (h *DevHost) SwitchNetwork(ctx context.Context, id models.NetworkID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prompts++
	if err := ctx.Err(); err != nil {
		return ErrUserRejected
	}
	if !h.known[normalize(id)] {
		return ErrUnknownChain
	}
	if h.rejectSwitch {
		return ErrUserRejected
	}
	h.current = id
	return nil
}

// RegisterNetwork prompts to add desc to the host.
func (h *DevHost) RegisterNetwork(ctx context.Context, desc NetworkDescriptor) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prompts++
	if err := ctx.Err(); err != nil {
		return ErrUserRejected
	}
	if h.failRegister {
		return ErrUserRejected
	}
	h.known[normalize(desc.ChainID)] = true
	return nil
}

// RequestAccounts prompts for account access.
func (h *DevHost) RequestAccounts(ctx context.Context) ([]models.Identity, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prompts++
	if err := ctx.Err(); err != nil {
		return nil, ErrUserRejected
	}
	if h.rejectAccounts {
		return nil, ErrUserRejected
	}
	return append([]models.Identity(nil), h.accounts...), nil
}

// Prompts returns how many times the user would have been prompted.
func (h *DevHost) Prompts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.prompts
}

// Know marks id as registered.
func (h *DevHost) Know(id models.NetworkID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.known[normalize(id)] = true
}

// RejectSwitch makes the user decline network switches.
func (h *DevHost) RejectSwitch(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejectSwitch = v
}

// RejectAccounts makes the user decline account access.
func (h *DevHost) RejectAccounts(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejectAccounts = v
}

// FailRegister makes network registration fail.
func (h *DevHost) FailRegister(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failRegister = v
}

func normalize(id models.NetworkID) models.NetworkID {
	if n, err := models.ChainID(string(id)); err == nil {
		return n
	}
	return id
}
