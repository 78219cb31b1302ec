// Package cryptox implements the local encryption used for the offline
// session: a device-bound key derived with PBKDF2 and AES-GCM sealing with a
// fresh nonce per call.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/pbkdf2"

	"github.com/dmitrijs2005/tripkeeper/internal/common"
)

const (
	// KeyIterations is the PBKDF2 iteration count for device keys.
	KeyIterations = 100_000

	// KeySize is the derived key length (AES-256).
	KeySize = 32

	// NonceSize is the AES-GCM nonce length.
	NonceSize = 12
)

// The salts are fixed so the same device identifier always yields the same
// keys. Each key use has its own salt.
var (
	deviceKeySalt  = []byte("tripkeeper-offline-session-v1")
	signingKeySalt = []byte("tripkeeper-offline-signing-v1")
)

var ErrEmptyDeviceID = errors.New("empty device id")

// DeriveDeviceKey derives the AES key for this device from its locally
// generated identifier.
func DeriveDeviceKey(deviceID string) ([]byte, error) {
	if deviceID == "" {
		return nil, ErrEmptyDeviceID
	}
	return pbkdf2.Key([]byte(deviceID), deviceKeySalt, KeyIterations, KeySize, sha256.New), nil
}

// DeriveSigningKey derives the HMAC key for locally signed tokens. It is
// independent of the AES key of the same device.
func DeriveSigningKey(deviceID string) ([]byte, error) {
	if deviceID == "" {
		return nil, ErrEmptyDeviceID
	}
	return pbkdf2.Key([]byte(deviceID), signingKeySalt, KeyIterations, KeySize, sha256.New), nil
}

// EncryptEntry serializes the given entry to JSON and encrypts it using AES-GCM.
//
// The key must be a valid AES key length (16, 24, or 32 bytes). A new random
// 12-byte nonce is generated for each encryption. The ciphertext and nonce are
// returned separately.
//
// Example:
//
//	key, _ := DeriveDeviceKey(deviceID)
//	ciphertext, nonce, err := EncryptEntry("token", key)
//	if err != nil {
//	    return err
//	}
func EncryptEntry(entry any, key []byte) (ciphertext, nonce []byte, err error) {

	// serializing JSON
	plaintext, err := json.Marshal(entry)
	if err != nil {
		return nil, nil, err
	}
	defer common.WipeByteArray(plaintext)

	// nonce
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	// encrypting
	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)

	return ciphertext, nonce, nil
}

// DecryptEntry decrypts the given ciphertext using AES-GCM and unmarshals
// the resulting JSON into v.
//
// The key and nonce must be the ones used by EncryptEntry. Any tampering
// with the ciphertext or a different key makes it fail.
func DecryptEntry(ciphertext, nonce, key []byte, v any) error {
	aesgcm, err := newGCM(key)
	if err != nil {
		return err
	}
	if len(nonce) != aesgcm.NonceSize() {
		return errors.New("invalid nonce size")
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)

	return json.Unmarshal(plaintext, v)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
