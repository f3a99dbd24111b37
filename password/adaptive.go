package password

import (
	"errors"
	"fmt"
)

// Adaptive hashes with one primary algorithm and verifies every supported format, so hashes
// written by an older configuration keep working and can be upgraded on the next login.
type Adaptive struct {
	primary  Algorithm
	bcrypt   *Bcrypt
	argon2   *Argon2
	maxBytes int
}

// New builds an Adaptive hasher from cfg. An empty Algorithm selects bcrypt.
func New(cfg Config) (*Adaptive, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmBcrypt
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	if cfg.MaxPasswordBytes < 0 {
		return nil, errors.New("max password bytes must be positive")
	}

	bc, err := NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	a := &Adaptive{
		primary:  cfg.Algorithm,
		bcrypt:   bc,
		maxBytes: cfg.MaxPasswordBytes,
	}

	switch cfg.Algorithm {
	case AlgorithmBcrypt:
		// argon2 hashes can still be verified; parameters come from the hash itself.
		a.argon2 = &Argon2{config: DefaultArgon2Config()}
	case AlgorithmArgon2id:
		a.argon2, err = NewArgon2(cfg.Argon2)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported password algorithm %q", cfg.Algorithm)
	}

	return a, nil
}

// Algorithm returns the algorithm new hashes are produced with.
func (a *Adaptive) Algorithm() Algorithm {
	return a.primary
}

// Hash describes the hash operation and its observable behavior.
func (a *Adaptive) Hash(password string) (string, error) {
	if len(password) > a.maxBytes {
		return "", ErrPasswordTooLong
	}
	if a.primary == AlgorithmArgon2id {
		return a.argon2.Hash(password)
	}
	return a.bcrypt.Hash(password)
}

// Verify describes the verify operation and its observable behavior.
//
// The algorithm is chosen from the hash prefix, independent of the primary algorithm.
func (a *Adaptive) Verify(password, encodedHash string) (bool, error) {
	if len(password) > a.maxBytes {
		return false, nil
	}
	alg, ok := detectAlgorithm(encodedHash)
	if !ok {
		return false, ErrUnsupportedHash
	}
	if alg == AlgorithmArgon2id {
		return a.argon2.Verify(password, encodedHash)
	}
	return a.bcrypt.Verify(password, encodedHash)
}

// NeedsUpgrade reports true when encodedHash uses a different algorithm than the primary one
// or weaker parameters than currently configured.
func (a *Adaptive) NeedsUpgrade(encodedHash string) (bool, error) {
	alg, ok := detectAlgorithm(encodedHash)
	if !ok {
		return false, ErrUnsupportedHash
	}
	if alg != a.primary {
		return true, nil
	}
	if alg == AlgorithmArgon2id {
		return a.argon2.NeedsUpgrade(encodedHash)
	}
	return a.bcrypt.NeedsUpgrade(encodedHash)
}
