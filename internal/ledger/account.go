package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// AccountIDSize is the width of an account identifier in bytes.
const AccountIDSize = 32

// AccountID identifies an account holder. It is opaque to the ledger.
type AccountID [AccountIDSize]byte

// ParseAccountID decodes 64 hex characters, with or without a 0x prefix.
func ParseAccountID(s string) (AccountID, error) {
	var id AccountID
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != 2*AccountIDSize {
		return id, fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidAccountID, 2*AccountIDSize, len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidAccountID, err)
	}
	return id, nil
}

// AccountIDFromName derives a stable identifier from a human-readable name.
func AccountIDFromName(name string) AccountID {
	return AccountID(sha256.Sum256([]byte(name)))
}

func (id AccountID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first eight hex characters, for display.
func (id AccountID) Short() string {
	return id.String()[:8]
}

func (id AccountID) IsZero() bool {
	return id == AccountID{}
}

func (id AccountID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *AccountID) UnmarshalText(b []byte) error {
	parsed, err := ParseAccountID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
