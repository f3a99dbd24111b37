package stores

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/fieldops/agentauth/internal/cache"
)

const (
	grantKeyPrefix       = "rg:"
	grantRecordVersionV1 = 1
	grantRecordSize      = 1 + 16 + 8
)

var (
	ErrGrantNotFound    = errors.New("reset grant not found")
	ErrGrantUnavailable = errors.New("reset grant cache unavailable")
)

// ResetGrant records that recipient proved control of their mailbox by confirming an OTP.
type ResetGrant struct {
	Nonce    [16]byte
	IssuedAt int64
}

type ResetGrantStore struct {
	cache Cache
}

func NewResetGrantStore(c Cache) *ResetGrantStore {
	return &ResetGrantStore{cache: c}
}

func (s *ResetGrantStore) key(recipient string) string {
	return grantKeyPrefix + recipient
}

func (s *ResetGrantStore) Save(ctx context.Context, recipient string, grant ResetGrant, ttl time.Duration) error {
	if err := s.cache.Put(ctx, s.key(recipient), encodeResetGrant(grant), ttl); err != nil {
		return mapCacheError(err, ErrGrantUnavailable)
	}
	return nil
}

// Get returns the live grant with its raw encoding. Pass the encoding to Consume so only the
// grant that was checked can be spent.
func (s *ResetGrantStore) Get(ctx context.Context, recipient string) (*ResetGrant, []byte, error) {
	data, err := s.cache.Get(ctx, s.key(recipient))
	if err != nil {
		if errors.Is(err, cache.ErrAbsent) {
			return nil, nil, ErrGrantNotFound
		}
		return nil, nil, mapCacheError(err, ErrGrantUnavailable)
	}
	grant, err := decodeResetGrant(data)
	if err != nil {
		return nil, nil, ErrGrantNotFound
	}
	return grant, data, nil
}

// Consume spends the grant identified by encoded. A grant already spent by a concurrent
// reset, or replaced by a newer verification, yields ErrGrantNotFound.
func (s *ResetGrantStore) Consume(ctx context.Context, recipient string, encoded []byte) error {
	deleted, err := s.cache.DeleteIfEqual(ctx, s.key(recipient), encoded)
	if err != nil {
		if errors.Is(err, cache.ErrAbsent) {
			return ErrGrantNotFound
		}
		return mapCacheError(err, ErrGrantUnavailable)
	}
	if !deleted {
		return ErrGrantNotFound
	}
	return nil
}

// Restore puts back a grant that Consume spent when the reset it was spent on did not
// complete. The grant keeps its original deadline, issuedAt plus ttl, and a grant that has
// since been replaced or has run out is left alone.
func (s *ResetGrantStore) Restore(ctx context.Context, recipient string, encoded []byte, ttl time.Duration) error {
	grant, err := decodeResetGrant(encoded)
	if err != nil {
		return err
	}
	remaining := time.Until(time.Unix(grant.IssuedAt, 0).Add(ttl))
	if remaining <= 0 {
		return nil
	}
	if _, err := s.cache.PutIfAbsent(ctx, s.key(recipient), encoded, remaining); err != nil {
		return mapCacheError(err, ErrGrantUnavailable)
	}
	return nil
}

func encodeResetGrant(grant ResetGrant) []byte {
	buf := make([]byte, grantRecordSize)
	buf[0] = grantRecordVersionV1
	copy(buf[1:17], grant.Nonce[:])
	binary.BigEndian.PutUint64(buf[17:], uint64(grant.IssuedAt))
	return buf
}

func decodeResetGrant(data []byte) (*ResetGrant, error) {
	if len(data) != grantRecordSize || data[0] != grantRecordVersionV1 {
		return nil, errors.New("invalid reset grant record")
	}
	grant := &ResetGrant{IssuedAt: int64(binary.BigEndian.Uint64(data[17:]))}
	copy(grant.Nonce[:], data[1:17])
	return grant, nil
}
