package crypto

import (
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for account passwords (tuned for server-side hashing).
const (
	authTime    uint32 = 3         // iterations
	authMemory  uint32 = 64 * 1024 // 64 MB
	authThreads uint8  = 1
	authKeyLen  uint32 = 32
)

// HashPassword returns the Argon2id hash of an account password.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, authTime, authMemory, authThreads, authKeyLen)
}

// VerifyPassword compares password against the stored hash in constant time.
func VerifyPassword(password, salt, expected []byte) bool {
	return subtle.ConstantTimeCompare(HashPassword(password, salt), expected) == 1
}
