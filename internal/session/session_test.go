package session

import (
	"context"
	"errors"
	"testing"

	"lottery/internal/faults"
	"lottery/internal/models"
)

const (
	sepolia models.NetworkID = "0xaa36a7"
	hardhat models.NetworkID = "0x7a69"
)

var alice = models.Identity{0xa1}

func TestSession_EnsureNetwork(t *testing.T) {
	ctx := context.Background()

	t.Run("Test already on required network prompts nothing", func(t *testing.T) {
		host := NewDevHost(sepolia, alice)
		s := New(host, sepolia)

		for i := 0; i < 3; i++ {
			if err := s.EnsureNetwork(ctx); err != nil {
				t.Fatalf("Expected no error, but got %v", err)
			}
		}
		if host.Prompts() != 0 {
			t.Errorf("Expected zero prompts, but got %d", host.Prompts())
		}
	})

	t.Run("Test equivalent chain id spelling matches", func(t *testing.T) {
		host := NewDevHost("0xAA36A7", alice)
		if err := New(host, "11155111").EnsureNetwork(ctx); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if host.Prompts() != 0 {
			t.Errorf("Expected zero prompts, but got %d", host.Prompts())
		}
	})

	t.Run("Test switches to a known network", func(t *testing.T) {
		host := NewDevHost(hardhat, alice)
		host.Know(sepolia)
		if err := New(host, sepolia).EnsureNetwork(ctx); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		current, _ := host.CurrentNetwork(ctx)
		if current != sepolia {
			t.Errorf("Expected host on %s, but got %s", sepolia, current)
		}
		if host.Prompts() != 1 {
			t.Errorf("Expected one prompt, but got %d", host.Prompts())
		}
	})

	t.Run("Test registers an unknown network then retries once", func(t *testing.T) {
		host := NewDevHost(hardhat, alice)
		if err := New(host, sepolia).EnsureNetwork(ctx); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		current, _ := host.CurrentNetwork(ctx)
		if current != sepolia {
			t.Errorf("Expected host on %s, but got %s", sepolia, current)
		}
		if host.Prompts() != 3 {
			t.Errorf("Expected switch, register and switch prompts, but got %d", host.Prompts())
		}
	})

	t.Run("Test declined switch", func(t *testing.T) {
		host := NewDevHost(hardhat, alice)
		host.Know(sepolia)
		host.RejectSwitch(true)
		err := New(host, sepolia).EnsureNetwork(ctx)
		if !errors.Is(err, faults.ErrNetworkRejected) {
			t.Fatalf("Expected NetworkRejected, but got %v", err)
		}
		if faults.KindOf(err) != faults.KindNetwork {
			t.Errorf("Expected network kind, but got %s", faults.KindOf(err))
		}
	})

	t.Run("Test failed registration", func(t *testing.T) {
		host := NewDevHost(hardhat, alice)
		host.FailRegister(true)
		err := New(host, sepolia).EnsureNetwork(ctx)
		if !errors.Is(err, faults.ErrNetworkUnknown) {
			t.Fatalf("Expected NetworkUnknown, but got %v", err)
		}
	})

	t.Run("Test network without a descriptor", func(t *testing.T) {
		host := NewDevHost(hardhat, alice)
		err := New(host, "0x1").EnsureNetwork(ctx)
		if !errors.Is(err, faults.ErrNetworkUnknown) {
			t.Fatalf("Expected NetworkUnknown, but got %v", err)
		}
	})

	t.Run("Test missing host", func(t *testing.T) {
		err := New(nil, sepolia).EnsureNetwork(ctx)
		if !errors.Is(err, faults.ErrNetworkUnavailable) {
			t.Fatalf("Expected NetworkUnavailable, but got %v", err)
		}
	})

	t.Run("Test cancelled switch is a rejection", func(t *testing.T) {
		host := NewDevHost(hardhat, alice)
		host.Know(sepolia)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		// CurrentNetwork honours the cancelled context first.
		err := New(host, sepolia).EnsureNetwork(cancelled)
		if faults.KindOf(err) != faults.KindNetwork {
			t.Fatalf("Expected a network error, but got %v", err)
		}
	})
}

func TestSession_EnsureIdentity(t *testing.T) {
	ctx := context.Background()

	t.Run("Test identity is requested once and cached", func(t *testing.T) {
		host := NewDevHost(sepolia, alice)
		s := New(host, sepolia)
		for i := 0; i < 3; i++ {
			id, err := s.EnsureIdentity(ctx)
			if err != nil {
				t.Fatalf("Expected no error, but got %v", err)
			}
			if id != alice {
				t.Errorf("Expected %s, but got %s", alice.Hex(), id.Hex())
			}
		}
		if host.Prompts() != 1 {
			t.Errorf("Expected one prompt, but got %d", host.Prompts())
		}
	})

	t.Run("Test declined account access", func(t *testing.T) {
		host := NewDevHost(sepolia, alice)
		host.RejectAccounts(true)
		s := New(host, sepolia)
		_, err := s.EnsureIdentity(ctx)
		if !errors.Is(err, faults.ErrNoAccountGranted) {
			t.Fatalf("Expected NoAccountGranted, but got %v", err)
		}
		if _, ok := s.Identity(); ok {
			t.Error("Expected no cached identity after a decline")
		}
	})

	t.Run("Test no accounts", func(t *testing.T) {
		_, err := New(NewDevHost(sepolia), sepolia).EnsureIdentity(ctx)
		if faults.KindOf(err) != faults.KindAuth {
			t.Fatalf("Expected auth kind, but got %v", err)
		}
	})
}
