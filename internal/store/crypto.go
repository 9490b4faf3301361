package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// SealCredentials encrypts login credentials with the tenant-wide key.
func SealCredentials(key [32]byte, creds Credentials) ([]byte, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &key), nil
}

// OpenCredentials decrypts a sealed credential blob.
func OpenCredentials(key [32]byte, sealed []byte) (Credentials, error) {
	var creds Credentials
	if len(sealed) <= nonceSize {
		return creds, errors.New("store: sealed credentials too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &key)
	if !ok {
		return creds, errors.New("store: credential unseal failed")
	}
	if err := json.Unmarshal(plain, &creds); err != nil {
		return creds, err
	}
	return creds, nil
}
