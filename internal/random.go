package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
	"strings"
)

var (
	ErrInvalidCodeRange = errors.New("invalid otp code range")
	ErrMalformedCode    = errors.New("malformed otp code")
)

// NewOTPCode draws a code uniformly from [min, max] using crypto/rand.
func NewOTPCode(min, max int) (int, error) {
	if min < 0 || max <= min || max > 0xFFFF {
		return 0, ErrInvalidCodeRange
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(max-min+1)))
	if err != nil {
		return 0, err
	}
	return min + int(n.Int64()), nil
}

// OutOfRangeCode is what ParseOTPCode yields for a number beyond the 16-bit code space.
// No stored challenge can hold it, so it always compares as a mismatch.
const OutOfRangeCode = 0x10000

// ParseOTPCode accepts only ASCII digits. Leading zeros are tolerated so "01234" and "1234"
// name the same code. Range is not checked here: a well-formed number that no challenge could
// hold is a wrong code, not a malformed one.
func ParseOTPCode(s string) (int, error) {
	if s == "" {
		return 0, ErrMalformedCode
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, ErrMalformedCode
		}
	}

	digits := strings.TrimLeft(s, "0")
	if len(digits) > 5 {
		return OutOfRangeCode, nil
	}
	v, err := strconv.Atoi("0" + digits)
	if err != nil {
		return 0, ErrMalformedCode
	}
	if v > 0xFFFF {
		return OutOfRangeCode, nil
	}
	return v, nil
}

// NewNonce returns 16 random bytes used to tell apart records written for the same key.
func NewNonce() ([16]byte, error) {
	var nonce [16]byte
	_, err := rand.Read(nonce[:])
	return nonce, err
}
