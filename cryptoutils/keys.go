package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/certificate-manager/interfaces"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for key files.
const (
	keyFileVersion = 1
	argonTime      = 1
	argonMemory    = 64 * 1024
	argonThreads   = 4
	argonKeyLen    = 32
	saltLen        = 16
)

var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted key file")

// GenerateKey creates a new secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// ParsePrivateKeyHex parses a hex encoded secp256k1 private key, with or
// without the 0x prefix.
func ParsePrivateKeyHex(s string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// PrivateKeyHex encodes a private key as 0x-prefixed hex.
func PrivateKeyHex(key *ecdsa.PrivateKey) string {
	return hexutil.Encode(crypto.FromECDSA(key))
}

// KeyIdentity returns the identity (address) controlled by key.
func KeyIdentity(key *ecdsa.PrivateKey) interfaces.Identity {
	return interfaces.IdentityFromAddress(crypto.PubkeyToAddress(key.PublicKey))
}

// KeyFile is the on-disk form of a passphrase protected private key. The
// AES-256-GCM key is derived from the passphrase with Argon2id.
type KeyFile struct {
	Version    int                 `json:"version"`
	Address    interfaces.Identity `json:"address"`
	Salt       hexutil.Bytes       `json:"salt"`
	Nonce      hexutil.Bytes       `json:"nonce"`
	Ciphertext hexutil.Bytes       `json:"ciphertext"`
}

func keyFileCipher(passphrase string, salt []byte) (cipher.AEAD, error) {
	derived := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptKey seals a private key with a passphrase.
func EncryptKey(key *ecdsa.PrivateKey, passphrase string) (*KeyFile, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := keyFileCipher(passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	address := KeyIdentity(key)
	return &KeyFile{
		Version:    keyFileVersion,
		Address:    address,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, crypto.FromECDSA(key), address.Bytes()),
	}, nil
}

// DecryptKey opens a key file with a passphrase.
func DecryptKey(kf *KeyFile, passphrase string) (*ecdsa.PrivateKey, error) {
	if kf.Version != keyFileVersion {
		return nil, fmt.Errorf("unsupported key file version %d", kf.Version)
	}

	aead, err := keyFileCipher(passphrase, kf.Salt)
	if err != nil {
		return nil, err
	}
	if len(kf.Nonce) != aead.NonceSize() {
		return nil, ErrWrongPassphrase
	}

	plaintext, err := aead.Open(nil, kf.Nonce, kf.Ciphertext, kf.Address.Bytes())
	if err != nil {
		return nil, ErrWrongPassphrase
	}

	key, err := crypto.ToECDSA(plaintext)
	if err != nil {
		return nil, fmt.Errorf("invalid key material: %w", err)
	}
	if KeyIdentity(key) != kf.Address {
		return nil, ErrWrongPassphrase
	}
	return key, nil
}

// SaveKeyFile encrypts key and writes it to path with owner-only permissions.
func SaveKeyFile(path string, key *ecdsa.PrivateKey, passphrase string) error {
	kf, err := EncryptKey(key, passphrase)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadKeyFile reads and decrypts the key file at path.
func LoadKeyFile(path, passphrase string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to parse key file: %w", err)
	}
	return DecryptKey(&kf, passphrase)
}
