package models

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	"github.com/shopspring/decimal"
)

// Identity is an externally issued account address.
type Identity = common.Address

// ParseIdentity parses a hex address. Checksum casing is not enforced.
func ParseIdentity(s string) (Identity, error) {
	if !common.IsHexAddress(s) {
		return Identity{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// IsZeroIdentity reports whether id is the ledger's "no identity" sentinel.
func IsZeroIdentity(id Identity) bool {
	return id == (common.Address{})
}

// NetworkID identifies a ledger network as a 0x-prefixed hex chain id.
type NetworkID string

// ChainID parses a decimal or hex chain id into a normalized NetworkID.
func ChainID(s string) (NetworkID, error) {
	var (
		v  *big.Int
		ok bool
	)
	lower := strings.ToLower(strings.TrimSpace(s))
	if hex, found := strings.CutPrefix(lower, "0x"); found {
		v, ok = new(big.Int).SetString(hex, 16)
	} else {
		v, ok = new(big.Int).SetString(lower, 10)
	}
	if !ok || v.Sign() <= 0 {
		return "", fmt.Errorf("invalid chain id %q", s)
	}
	return NetworkID("0x" + v.Text(16)), nil
}

// Equal compares two network ids ignoring case and leading zeros.
func (n NetworkID) Equal(other NetworkID) bool {
	a, errA := ChainID(string(n))
	b, errB := ChainID(string(other))
	if errA != nil || errB != nil {
		return strings.EqualFold(string(n), string(other))
	}
	return a == b
}

// ContentID is a content-addressed identifier returned by the store.
type ContentID string

// zeroWord is what the ledger reports for a never-written anchor slot.
const zeroWord = "0x0000000000000000000000000000000000000000000000000000000000000000"

// IsZero reports whether the identifier is the empty/zero sentinel.
func (c ContentID) IsZero() bool {
	return c == "" || strings.EqualFold(string(c), zeroWord)
}

// Validate checks that c decodes as a CID.
func (c ContentID) Validate() error {
	if c.IsZero() {
		return fmt.Errorf("empty content id")
	}
	if _, err := cid.Decode(string(c)); err != nil {
		return fmt.Errorf("invalid content id %q: %w", string(c), err)
	}
	return nil
}

func (c ContentID) String() string { return string(c) }

// AnchorKind discriminates the per-identity anchor slots.
type AnchorKind string

const (
	AnchorProfile       AnchorKind = "profile"
	AnchorParticipation AnchorKind = "participation"
)

// ContentAnchor links an identity to a content identifier for one kind.
type ContentAnchor struct {
	Owner      Identity   `json:"owner"`
	Kind       AnchorKind `json:"kind"`
	Identifier ContentID  `json:"identifier"`
}

// FormatUnits renders an integer amount of the smallest unit as a decimal string
// with the given number of decimals, without going through floating point.
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}
