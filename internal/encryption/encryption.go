// Package encryption protects audit exports with an age key pair.
package encryption

import (
	"errors"
	"io"
)

// ErrKeysExist is returned by Setup when a key pair is already present.
var ErrKeysExist = errors.New("encryption keys already exist")

// Encryptor encrypts exports to a locally stored public key.
type Encryptor interface {
	// Setup creates a new key pair whose private half is locked by passphrase.
	Setup(passphrase string) error
	// Encrypt writes the encryption of r to w.
	Encrypt(r io.Reader, w io.Writer) error
	// Unlock opens the private key for decryption.
	Unlock(passphrase string) (DecryptionContext, error)
	// IsConfigured reports whether a key pair is available.
	IsConfigured() bool
}

// DecryptionContext decrypts data with an unlocked private key.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
