package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt silently ignores input past this many bytes, so longer passwords are refused.
const bcryptMaxPasswordBytes = 72

// Bcrypt defines a public type used by agentauth APIs.
//
// Bcrypt instances are immutable after construction.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher. A zero cost selects bcrypt.DefaultCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

// Hash describes the hash operation and its observable behavior.
//
// Hash returns ErrPasswordEmpty or ErrPasswordTooLong for inputs bcrypt cannot represent faithfully.
func (b *Bcrypt) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrPasswordEmpty
	}
	if len(password) > bcryptMaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", err
	}
	return string(hash), nil
}

// Verify describes the verify operation and its observable behavior.
//
// A mismatch is reported as (false, nil); a malformed hash is reported as an error.
func (b *Bcrypt) Verify(password string, encodedHash string) (bool, error) {
	if alg, ok := detectAlgorithm(encodedHash); !ok || alg != AlgorithmBcrypt {
		return false, ErrUnsupportedHash
	}
	if len(password) > bcryptMaxPasswordBytes {
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// NeedsUpgrade reports whether encodedHash was produced with a lower cost than configured.
func (b *Bcrypt) NeedsUpgrade(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, err
	}
	return cost < b.cost, nil
}
