// Package auth validates bearer keys presented on the realtime endpoint.
//
// Two validators are provided: [StaticKeys] checks against a fixed list from
// configuration, and [Keystore] checks against a Postgres table of SHA-256
// key hashes. [AllowAll] disables authentication for development setups.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrInvalidKey is returned when the presented key is missing, unknown, or
// revoked.
var ErrInvalidKey = errors.New("auth: invalid api key")

// Compile-time interface checks.
var (
	_ Authenticator = AllowAll{}
	_ Authenticator = (*StaticKeys)(nil)
	_ Authenticator = (*Keystore)(nil)
)

// Authenticator validates a client-presented API key before a realtime
// session starts.
type Authenticator interface {
	// Authenticate returns nil when key grants access and [ErrInvalidKey]
	// when it does not. Any other error is an infrastructure failure the
	// caller should surface as a server-side error rather than a rejection.
	Authenticate(ctx context.Context, key string) error
}

// AllowAll accepts every connection. Used when no auth is configured.
type AllowAll struct{}

func (AllowAll) Authenticate(context.Context, string) error { return nil }

// StaticKeys validates keys against a fixed set from configuration. The set
// holds SHA-256 digests, never the raw keys.
type StaticKeys struct {
	hashes map[string]struct{}
}

// NewStaticKeys builds a validator from the configured key list.
func NewStaticKeys(keys []string) *StaticKeys {
	s := &StaticKeys{hashes: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		s.hashes[HashKey(k)] = struct{}{}
	}
	return s
}

// Authenticate implements [Authenticator].
func (s *StaticKeys) Authenticate(_ context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if _, ok := s.hashes[HashKey(key)]; !ok {
		return ErrInvalidKey
	}
	return nil
}

// HashKey returns the hex SHA-256 digest of key. Both validators store keys
// in this representation.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
