package crypto

import (
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/and161185/cloudsentinel/internal/errs"
)

// AlgXChaCha20Poly1305 names the only payload cipher in use.
const AlgXChaCha20Poly1305 = "xchacha20-poly1305"

// NonceLen is the XChaCha20-Poly1305 nonce size.
const NonceLen = chacha20poly1305.NonceSizeX

// Encrypt seals plaintext under key with a fresh random nonce.
func Encrypt(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	return EncryptWithAAD(plaintext, key, nil)
}

// Decrypt opens ciphertext. Any failure, including a wrong key, is errs.ErrDecryption.
func Decrypt(ciphertext, nonce, key []byte) ([]byte, error) {
	return DecryptWithAAD(ciphertext, nonce, key, nil)
}

// EncryptWithAAD is Encrypt with additional authenticated data.
func EncryptWithAAD(plaintext, key, aad []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, err
	}
	nonce, err = RandBytes(NonceLen)
	if err != nil {
		return nil, nil, err
	}
	return aead.Seal(nil, nonce, plaintext, aad), nonce, nil
}

// DecryptWithAAD is Decrypt with additional authenticated data.
func DecryptWithAAD(ciphertext, nonce, key, aad []byte) ([]byte, error) {
	if len(nonce) != NonceLen {
		return nil, errs.ErrDecryption
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errs.ErrDecryption
	}
	pt, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, errs.ErrDecryption
	}
	return pt, nil
}
