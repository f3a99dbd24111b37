package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/fieldops/agentauth/internal/cache"
)

const (
	otpKeyPrefix       = "otp:"
	otpRecordVersionV1 = 1
	otpRecordSize      = 1 + 2 + 8
)

var (
	ErrOTPNotFound    = errors.New("otp challenge not found")
	ErrOTPMismatch    = errors.New("otp code mismatch")
	ErrOTPUnavailable = errors.New("otp cache unavailable")
)

// Cache is the subset of the ephemeral keyed cache the stores rely on.
type Cache interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	DeleteIfEqual(ctx context.Context, key string, value []byte) (bool, error)
	CompareAndDelete(ctx context.Context, key string, match func([]byte) bool) (bool, error)
}

type OTPRecord struct {
	Code     uint16
	IssuedAt int64
}

// OTPStore keeps at most one pending challenge per recipient.
type OTPStore struct {
	cache Cache
}

func NewOTPStore(c Cache) *OTPStore {
	return &OTPStore{cache: c}
}

func (s *OTPStore) key(recipient string) string {
	return otpKeyPrefix + recipient
}

// Save overwrites any pending challenge for recipient and returns the stored encoding, which
// Discard needs to remove exactly this challenge later.
func (s *OTPStore) Save(ctx context.Context, recipient string, record OTPRecord, ttl time.Duration) ([]byte, error) {
	encoded := encodeOTPRecord(record)
	if err := s.cache.Put(ctx, s.key(recipient), encoded, ttl); err != nil {
		return nil, mapCacheError(err, ErrOTPUnavailable)
	}
	return encoded, nil
}

func (s *OTPStore) Get(ctx context.Context, recipient string) (*OTPRecord, error) {
	data, err := s.cache.Get(ctx, s.key(recipient))
	if err != nil {
		if errors.Is(err, cache.ErrAbsent) {
			return nil, ErrOTPNotFound
		}
		return nil, mapCacheError(err, ErrOTPUnavailable)
	}
	record, err := decodeOTPRecord(data)
	if err != nil {
		return nil, ErrOTPNotFound
	}
	return record, nil
}

// Discard removes the challenge only if it is still the one identified by encoded.
func (s *OTPStore) Discard(ctx context.Context, recipient string, encoded []byte) (bool, error) {
	deleted, err := s.cache.DeleteIfEqual(ctx, s.key(recipient), encoded)
	if err != nil {
		if errors.Is(err, cache.ErrAbsent) {
			return false, nil
		}
		return false, mapCacheError(err, ErrOTPUnavailable)
	}
	return deleted, nil
}

// Consume deletes the pending challenge when code matches it. A mismatch leaves the challenge
// in place so the recipient may retry until it expires. Codes outside the 16-bit range still
// look up the challenge, so an absent one reports ErrOTPNotFound, but they never match.
func (s *OTPStore) Consume(ctx context.Context, recipient string, code int) error {
	var corrupt bool
	representable := code >= 0 && code <= 0xFFFF

	deleted, err := s.cache.CompareAndDelete(ctx, s.key(recipient), func(data []byte) bool {
		record, decodeErr := decodeOTPRecord(data)
		if decodeErr != nil {
			corrupt = true
			return true
		}
		if !representable {
			return false
		}
		var want, got [2]byte
		binary.BigEndian.PutUint16(want[:], record.Code)
		binary.BigEndian.PutUint16(got[:], uint16(code))
		return subtle.ConstantTimeCompare(want[:], got[:]) == 1
	})
	if err != nil {
		if errors.Is(err, cache.ErrAbsent) {
			return ErrOTPNotFound
		}
		return mapCacheError(err, ErrOTPUnavailable)
	}
	if corrupt {
		return ErrOTPNotFound
	}
	if !deleted {
		return ErrOTPMismatch
	}
	return nil
}

func encodeOTPRecord(record OTPRecord) []byte {
	buf := make([]byte, otpRecordSize)
	buf[0] = otpRecordVersionV1
	binary.BigEndian.PutUint16(buf[1:3], record.Code)
	binary.BigEndian.PutUint64(buf[3:11], uint64(record.IssuedAt))
	return buf
}

func decodeOTPRecord(data []byte) (*OTPRecord, error) {
	if len(data) != otpRecordSize {
		return nil, errors.New("invalid otp record size")
	}
	if data[0] != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	reader := bytes.NewReader(data[1:])
	record := &OTPRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Code); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}
	return record, nil
}

func mapCacheError(err error, unavailable error) error {
	if errors.Is(err, cache.ErrUnavailable) {
		return fmt.Errorf("%w: %v", unavailable, err)
	}
	return err
}
