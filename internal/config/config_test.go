package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("Test defaults", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if cfg.HTTPAddr != ":8080" {
			t.Errorf("Expected default address :8080, but got %s", cfg.HTTPAddr)
		}
		if cfg.ConfirmTimeout != 2*time.Minute {
			t.Errorf("Expected default confirm timeout 2m, but got %s", cfg.ConfirmTimeout)
		}
		network, err := cfg.Network()
		if err != nil || network != "0xaa36a7" {
			t.Errorf("Expected network 0xaa36a7, but got %s (%v)", network, err)
		}
	})

	t.Run("Test overrides", func(t *testing.T) {
		t.Setenv("LOTTERY_REQUIRED_NETWORK", "31337")
		t.Setenv("LOTTERY_STORE", "memory")
		t.Setenv("LOTTERY_SUBMIT_ATTEMPTS", "5")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		network, _ := cfg.Network()
		if network != "0x7a69" {
			t.Errorf("Expected decimal chain id to normalize to 0x7a69, but got %s", network)
		}
		if cfg.Store != StoreMemory || cfg.SubmitAttempts != 5 {
			t.Errorf("Expected overrides to apply, but got %+v", cfg)
		}
	})

	t.Run("Test invalid store backend", func(t *testing.T) {
		t.Setenv("LOTTERY_STORE", "s3")
		if _, err := Load(); err == nil {
			t.Fatal("Expected an error for an unknown store backend, but got nil")
		}
	})

	t.Run("Test zero submit attempts", func(t *testing.T) {
		t.Setenv("LOTTERY_SUBMIT_ATTEMPTS", "0")
		if _, err := Load(); err == nil {
			t.Fatal("Expected an error for zero submit attempts, but got nil")
		}
	})

	t.Run("Test invalid network", func(t *testing.T) {
		t.Setenv("LOTTERY_REQUIRED_NETWORK", "mainnet")
		if _, err := Load(); err == nil {
			t.Fatal("Expected an error for a non-numeric network, but got nil")
		}
	})
}
