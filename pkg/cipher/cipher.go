// Package cipher encrypts video segments with AES-128-CBC, the scheme HLS
// players understand as METHOD=AES-128. Each segment gets a fresh random
// IV; the IV is recorded on the segment so the playlist can carry it.
package cipher

import (
	"context"
	"crypto/aes"
	aescipher "crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/suistream/suistream/pkg/media"
)

const (
	// KeySize is the AES-128 key length in bytes.
	KeySize = 16
	// IVSize is the CBC initialization vector length in bytes.
	IVSize = 16
)

var (
	ErrKeyLength = errors.New("cipher: key must be 16 bytes")
	ErrIVLength  = errors.New("cipher: iv must be 16 bytes")
)

// NewKey draws a random AES-128 key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// EncryptSegments encrypts every segment in place under key, drawing an
// independent random IV per segment. Ciphertext is PKCS#7-padded, so each
// payload grows to the next 16-byte boundary; the original plaintext
// length is recoverable only through the playlist byte ranges.
// The context is checked once per segment so a caller can cancel during
// the pre-registration stage.
func EncryptSegments(ctx context.Context, segments []media.Segment, key []byte) error {
	if len(key) != KeySize {
		return ErrKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}

	for i := range segments {
		if err := ctx.Err(); err != nil {
			return err
		}

		iv := make([]byte, IVSize)
		if _, err := rand.Read(iv); err != nil {
			return fmt.Errorf("generate iv for segment %d: %w", i, err)
		}

		padded := pad(segments[i].Data)
		aescipher.NewCBCEncrypter(block, iv).CryptBlocks(padded, padded)

		segments[i].Data = padded
		segments[i].IV = iv
	}

	return nil
}

// DecryptSegment is the inverse of one EncryptSegments step. The pipeline
// itself never decrypts; this exists for tests and tooling.
func DecryptSegment(data, key, iv []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrKeyLength
	}
	if len(iv) != IVSize {
		return nil, ErrIVLength
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("cipher: ciphertext length %d is not a block multiple", len(data))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	plain := make([]byte, len(data))
	aescipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)

	return unpad(plain)
}

// pad appends PKCS#7 padding. A payload already on a block boundary gets a
// full extra block, matching WebCrypto's AES-CBC output.
func pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func unpad(data []byte) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("cipher: invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("cipher: invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
