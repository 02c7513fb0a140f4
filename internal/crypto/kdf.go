// Package crypto implements password-based key derivation, file encryption and
// server-side account password hashing.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// KDFVersion identifies a fixed set of key-derivation parameters. A version,
// once stored in CipherParams, must keep deriving the same key forever.
type KDFVersion uint8

const (
	// KDFPBKDF2SHA256 is PBKDF2-HMAC-SHA256 with 100000 iterations.
	KDFPBKDF2SHA256 KDFVersion = 1
	// KDFArgon2id is Argon2id t=3, m=64MiB, p=1.
	KDFArgon2id KDFVersion = 2

	// CurrentKDF is used for new uploads.
	CurrentKDF = KDFArgon2id
)

// Params
const (
	KeyLen  = 32
	SaltLen = 16

	pbkdf2Iterations = 100_000

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

// ErrUnknownKDF is returned for a KDF version this build cannot derive.
var ErrUnknownKDF = errors.New("unknown kdf version")

func (v KDFVersion) String() string {
	switch v {
	case KDFPBKDF2SHA256:
		return "pbkdf2-sha256"
	case KDFArgon2id:
		return "argon2id"
	default:
		return fmt.Sprintf("kdf(%d)", uint8(v))
	}
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewSalt returns a fresh per-file salt.
func NewSalt() ([]byte, error) { return RandBytes(SaltLen) }

// DeriveKey stretches password with salt into a KeyLen-byte key.
func DeriveKey(password, salt []byte, v KDFVersion) ([]byte, error) {
	if len(salt) == 0 {
		return nil, errors.New("empty salt")
	}
	switch v {
	case KDFPBKDF2SHA256:
		return pbkdf2.Key(password, salt, pbkdf2Iterations, KeyLen, sha256.New), nil
	case KDFArgon2id:
		return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, KeyLen), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKDF, uint8(v))
	}
}
