package backup

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Sealed snapshot layout: magic | salt | nonce | AES-256-GCM ciphertext.
var magic = []byte("VOLB1")

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4
)

// ErrBadPassphrase is returned when a snapshot cannot be authenticated.
var ErrBadPassphrase = errors.New("backup: wrong passphrase or corrupted snapshot")

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonPar, keySize)
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// seal encrypts plaintext under a key derived from passphrase with a fresh
// salt and nonce.
func seal(plaintext []byte, passphrase string) ([]byte, error) {
	header := make([]byte, len(magic)+saltSize+nonceSize)
	copy(header, magic)
	if _, err := io.ReadFull(rand.Reader, header[len(magic):]); err != nil {
		return nil, fmt.Errorf("generate salt and nonce: %w", err)
	}
	salt := header[len(magic) : len(magic)+saltSize]
	nonce := header[len(magic)+saltSize:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	// The header is authenticated along with the ciphertext.
	return gcm.Seal(header, nonce, plaintext, header), nil
}

func open(sealed []byte, passphrase string) ([]byte, error) {
	headerSize := len(magic) + saltSize + nonceSize
	if len(sealed) < headerSize || !bytes.Equal(sealed[:len(magic)], magic) {
		return nil, fmt.Errorf("backup: not a volunteerd snapshot")
	}
	header := sealed[:headerSize]
	salt := header[len(magic) : len(magic)+saltSize]
	nonce := header[len(magic)+saltSize:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, sealed[headerSize:], header)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return plaintext, nil
}
