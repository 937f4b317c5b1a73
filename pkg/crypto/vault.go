package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const keySize = 32

// devKeySalt is only used when deriving a key for non-production
// environments without an explicit ENCRYPTION_KEY.
var devKeySalt = []byte("recast-dev-vault")

// ErrKeyRequired is returned when no encryption key is configured in
// production. Tokens encrypted under an ephemeral dev key would be
// unrecoverable after a key rotation, so startup must fail instead.
var ErrKeyRequired = errors.New("ENCRYPTION_KEY must be set in production")

// Vault encrypts and decrypts OAuth tokens at rest with AES-256-CBC.
// Ciphertext is stored as "hex(iv):hex(cipher)" text columns.
type Vault struct {
	key []byte
}

// NewVault creates a Vault from a base64-encoded 32-byte key. An empty key
// is an error in production; in other environments a deterministic key is
// derived so local setups work without provisioning a secret.
func NewVault(encodedKey, env string) (*Vault, error) {
	if encodedKey == "" {
		if env == "production" {
			return nil, ErrKeyRequired
		}
		key, err := scrypt.Key([]byte("recast-development-key"), devKeySalt, 1<<15, 8, 1, keySize)
		if err != nil {
			return nil, fmt.Errorf("deriving development key: %w", err)
		}
		return &Vault{key: key}, nil
	}

	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(key))
	}
	return &Vault{key: key}, nil
}

// GenerateKey returns a fresh random key in the encoding NewVault expects.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt encrypts plaintext and returns "hex(iv):hex(cipher)".
func (v *Vault) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. Malformed input of any kind (wrong part count,
// bad hex, truncated blocks, invalid padding) reports ok=false rather than
// an error: callers must treat the token as unusable and move on.
func (v *Vault) Decrypt(encoded string) (plaintext string, ok bool) {
	parts := strings.Split(encoded, ":")
	if len(parts) != 2 {
		return "", false
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aes.BlockSize {
		return "", false
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", false
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", false
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	unpadded, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return "", false
	}
	return string(unpadded), true
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
