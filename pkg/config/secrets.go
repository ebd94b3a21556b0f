package config

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// Secrets file layout: magic | salt | nonce | AES-256-GCM(JSON), with the magic
// bound as additional data so a file from another tool never decrypts.
const (
	secretsFileName = "secrets.json.enc"
	saltSize        = 16
	keySize         = 32
	scryptN         = 1 << 15
	scryptR         = 8
	scryptP         = 1
)

//nolint:gochecknoglobals // file format constant
var secretsMagic = []byte("SPX1")

// ErrSecretsDecrypt is returned for a wrong password or a tampered file.
var ErrSecretsDecrypt = errors.New("decryption failed (wrong password or corrupted file)")

// secretStore holds decrypted secrets for the life of the process.
type secretStore struct {
	values map[string]string
	mu     sync.RWMutex
}

//nolint:gochecknoglobals // process-wide, like the config singleton
var secrets secretStore

// SetDecryptedSecrets replaces the in-memory secrets.
func SetDecryptedSecrets(values map[string]string) {
	secrets.mu.Lock()
	defer secrets.mu.Unlock()
	secrets.values = values
}

// SetSecret sets one in-memory secret.
func SetSecret(name, value string) {
	secrets.mu.Lock()
	defer secrets.mu.Unlock()
	if secrets.values == nil {
		secrets.values = map[string]string{}
	}
	secrets.values[name] = value
}

// GetSecret looks a secret up in the decrypted file first, then the environment.
func GetSecret(name string) (string, error) {
	secrets.mu.RLock()
	value := secrets.values[name]
	secrets.mu.RUnlock()
	if value != "" {
		return value, nil
	}
	if value := os.Getenv(name); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
}

// GetDecryptedSecretNames returns the sorted secret names, never values.
func GetDecryptedSecretNames() []string {
	secrets.mu.RLock()
	defer secrets.mu.RUnlock()
	return slices.Sorted(maps.Keys(secrets.values))
}

// SaveSecretsToFile encrypts the current in-memory secrets to the project's file.
func SaveSecretsToFile(projectDir, password string) error {
	secrets.mu.RLock()
	snapshot := maps.Clone(secrets.values)
	secrets.mu.RUnlock()
	if snapshot == nil {
		snapshot = map[string]string{}
	}
	return EncryptSecretsFile(projectDir, password, snapshot)
}

func secretsPath(projectDir string) string {
	return filepath.Join(projectDir, ProjectConfigDir, secretsFileName)
}

// SecretsFileExists reports whether the project has an encrypted secrets file.
func SecretsFileExists(projectDir string) bool {
	_, err := os.Stat(secretsPath(projectDir))
	return err == nil
}

func wipe(b []byte) {
	clear(b)
}

func secretsCipher(password string, salt []byte) (cipher.AEAD, error) {
	pw := []byte(password)
	defer wipe(pw)
	key, err := scrypt.Key(pw, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptSecretsFile writes values to .spectra/secrets.json.enc with mode 0600.
func EncryptSecretsFile(projectDir, password string, values map[string]string) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	aead, err := secretsCipher(password, salt)
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}
	defer wipe(plaintext)

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := slices.Concat(secretsMagic, salt, nonce)
	out = aead.Seal(out, nonce, plaintext, secretsMagic)

	if err := os.MkdirAll(filepath.Join(projectDir, ProjectConfigDir), 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", ProjectConfigDir, err)
	}
	if err := os.WriteFile(secretsPath(projectDir), out, 0o600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile reads and decrypts .spectra/secrets.json.enc. A file readable
// by others is reset to 0600 first.
func DecryptSecretsFile(projectDir, password string) (map[string]string, error) {
	path := secretsPath(projectDir)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		getLogger().Warn("Secrets file has permissions %04o, resetting to 0600", perm)
		if err := os.Chmod(path, 0o600); err != nil {
			return nil, fmt.Errorf("failed to fix file permissions: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if !bytes.HasPrefix(data, secretsMagic) {
		return nil, fmt.Errorf("secrets file is corrupted or invalid format (bad header)")
	}
	data = data[len(secretsMagic):]
	if len(data) < saltSize {
		return nil, fmt.Errorf("secrets file is corrupted or invalid format (too small)")
	}

	aead, err := secretsCipher(password, data[:saltSize])
	if err != nil {
		return nil, err
	}
	data = data[saltSize:]
	if len(data) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("secrets file is corrupted or invalid format (too small)")
	}

	plaintext, err := aead.Open(nil, data[:aead.NonceSize()], data[aead.NonceSize():], secretsMagic)
	if err != nil {
		return nil, ErrSecretsDecrypt
	}
	defer wipe(plaintext)

	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return values, nil
}
