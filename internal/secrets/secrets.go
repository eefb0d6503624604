// Package secrets protects per-host agent credentials at rest.
//
// Stored values are base64(IV || AES-CBC(PKCS#7(plaintext))) with a random
// 16-byte IV, keyed by the raw bytes of the configured encryption key.
package secrets

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidKeyLength indicates the key is not 16, 24 or 32 bytes long.
	ErrInvalidKeyLength = errors.New("secrets: encryption key must be 16, 24 or 32 bytes")
	// ErrMalformedCiphertext indicates the payload is not a valid IV+CBC block sequence.
	ErrMalformedCiphertext = errors.New("secrets: malformed ciphertext")
)

// Decrypter turns a stored secret back into plaintext.
type Decrypter interface {
	Decrypt(encoded string) (string, error)
}

type Cipher struct {
	key []byte
}

func NewCipher(key string) (*Cipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKeyLength
	}
	return &Cipher{key: []byte(key)}, nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("secrets: create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("secrets: generate iv: %w", err)
	}

	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *Cipher) Decrypt(encoded string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("secrets: decode ciphertext: %w", err)
	}
	if len(payload) < 2*aes.BlockSize || len(payload)%aes.BlockSize != 0 {
		return "", ErrMalformedCiphertext
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("secrets: create cipher: %w", err)
	}

	iv := payload[:aes.BlockSize]
	data := make([]byte, len(payload)-aes.BlockSize)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(data, payload[aes.BlockSize:])

	plain, err := unpad(data, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrMalformedCiphertext
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrMalformedCiphertext
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, ErrMalformedCiphertext
		}
	}
	return b[:len(b)-n], nil
}
