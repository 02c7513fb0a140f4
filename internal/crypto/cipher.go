package crypto

import (
	"fmt"

	"github.com/and161185/cloudsentinel/internal/errs"
	"github.com/and161185/cloudsentinel/internal/model"
)

// FileCipher turns a password and a payload into ciphertext plus the params
// needed to open it again.
type FileCipher interface {
	Seal(password, plaintext []byte) ([]byte, model.CipherParams, error)
	Open(password, ciphertext []byte, params model.CipherParams) ([]byte, error)
}

// PasswordCipher derives a per-file key from the password and a fresh salt.
type PasswordCipher struct {
	kdf KDFVersion
}

var _ FileCipher = (*PasswordCipher)(nil)

// NewFileCipher returns a cipher that seals with the given KDF version.
// Open always honours the version recorded in the params.
func NewFileCipher(v KDFVersion) *PasswordCipher {
	return &PasswordCipher{kdf: v}
}

// Seal encrypts plaintext with a key derived from password and a new salt.
func (c *PasswordCipher) Seal(password, plaintext []byte) ([]byte, model.CipherParams, error) {
	salt, err := NewSalt()
	if err != nil {
		return nil, model.CipherParams{}, err
	}
	key, err := DeriveKey(password, salt, c.kdf)
	if err != nil {
		return nil, model.CipherParams{}, err
	}
	defer wipe(key)

	params := model.CipherParams{Alg: AlgXChaCha20Poly1305, KDF: uint8(c.kdf), Salt: salt}
	ct, nonce, err := EncryptWithAAD(plaintext, key, paramsAAD(params))
	if err != nil {
		return nil, model.CipherParams{}, err
	}
	params.Nonce = nonce
	return ct, params, nil
}

// Open re-derives the key from password and params and decrypts ciphertext.
func (c *PasswordCipher) Open(password, ciphertext []byte, params model.CipherParams) ([]byte, error) {
	if params.Alg != AlgXChaCha20Poly1305 {
		return nil, fmt.Errorf("unsupported cipher %q: %w", params.Alg, errs.ErrDecryption)
	}
	key, err := DeriveKey(password, params.Salt, KDFVersion(params.KDF))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrDecryption)
	}
	defer wipe(key)
	return DecryptWithAAD(ciphertext, params.Nonce, key, paramsAAD(params))
}

// paramsAAD binds alg and kdf version so a params downgrade fails authentication.
func paramsAAD(p model.CipherParams) []byte {
	return append([]byte(p.Alg+"|"), p.KDF)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
