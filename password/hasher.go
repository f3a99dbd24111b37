package password

import (
	"errors"
	"strings"
)

var (
	// ErrPasswordEmpty is returned when hashing an empty password.
	ErrPasswordEmpty = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned when a password exceeds the algorithm or configured byte limit.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrUnsupportedHash is returned when an encoded hash matches no known format.
	ErrUnsupportedHash = errors.New("unsupported password hash format")
)

// DefaultMaxPasswordBytes bounds the work a single Hash or Verify call can be asked to do.
const DefaultMaxPasswordBytes = 1024

// Hasher defines a public type used by agentauth APIs.
//
// Implementations must be safe for concurrent use.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Algorithm names a supported hashing scheme.
type Algorithm string

const (
	// AlgorithmBcrypt hashes with bcrypt. Stored hashes from the legacy service use this format.
	AlgorithmBcrypt Algorithm = "bcrypt"
	// AlgorithmArgon2id hashes with argon2id in PHC string format.
	AlgorithmArgon2id Algorithm = "argon2id"
)

// Config selects the primary algorithm and its parameters.
type Config struct {
	Algorithm        Algorithm
	BcryptCost       int
	Argon2           Argon2Config
	MaxPasswordBytes int
}

func detectAlgorithm(encodedHash string) (Algorithm, bool) {
	switch {
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		return AlgorithmBcrypt, true
	case strings.HasPrefix(encodedHash, "$"+argon2AlgorithmID+"$"):
		return AlgorithmArgon2id, true
	default:
		return "", false
	}
}
