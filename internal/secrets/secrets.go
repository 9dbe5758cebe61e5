package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const schemaVersion = 1

type Store struct {
	secretsPath string
	keyPath     string
	mu          sync.Mutex
}

type Secrets struct {
	SchemaVersion int    `json:"schema_version"`
	OpenAIKey     string `json:"openai_api_key,omitempty"`
	AnthropicKey  string `json:"anthropic_api_key,omitempty"`
}

type encryptedPayload struct {
	SchemaVersion int    `json:"schema_version"`
	Nonce         string `json:"nonce"`
	Ciphertext    string `json:"ciphertext"`
}

func NewStore(secretsPath, keyPath string) *Store {
	return &Store{secretsPath: secretsPath, keyPath: keyPath}
}

func (s *Store) GetProviderKey(providerID string) (string, error) {
	secrets, err := s.load()
	if err != nil {
		return "", err
	}
	switch providerID {
	case "openai":
		return secrets.OpenAIKey, nil
	case "anthropic":
		return secrets.AnthropicKey, nil
	default:
		return "", errors.New("unsupported provider")
	}
}

func (s *Store) SetProviderKey(providerID, key string) error {
	secrets, err := s.load()
	if err != nil {
		return err
	}
	switch providerID {
	case "openai":
		secrets.OpenAIKey = key
	case "anthropic":
		secrets.AnthropicKey = key
	default:
		return errors.New("unsupported provider")
	}
	return s.save(secrets)
}

func (s *Store) ClearProviderKey(providerID string) error {
	return s.SetProviderKey(providerID, "")
}

func (s *Store) load() (*Secrets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Secrets{SchemaVersion: schemaVersion}, nil
		}
		return nil, err
	}
	var payload encryptedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	key, err := s.loadOrCreateKey()
	if err != nil {
		return nil, err
	}
	nonce, err := base64.StdEncoding.DecodeString(payload.Nonce)
	if err != nil {
		return nil, err
	}
	ciphertext, err := base64.StdEncoding.DecodeString(payload.Ciphertext)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}
	var secrets Secrets
	if err := json.Unmarshal(plain, &secrets); err != nil {
		return nil, err
	}
	if secrets.SchemaVersion == 0 {
		secrets.SchemaVersion = schemaVersion
	}
	return &secrets, nil
}

func (s *Store) save(secrets *Secrets) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := s.loadOrCreateKey()
	if err != nil {
		return err
	}
	plain, err := json.Marshal(secrets)
	if err != nil {
		return err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	ciphertext := gcm.Seal(nil, nonce, plain, nil)
	payload := encryptedPayload{
		SchemaVersion: schemaVersion,
		Nonce:         base64.StdEncoding.EncodeToString(nonce),
		Ciphertext:    base64.StdEncoding.EncodeToString(ciphertext),
	}
	if err := os.MkdirAll(filepath.Dir(s.secretsPath), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.secretsPath, encoded, 0o600)
}

func (s *Store) loadOrCreateKey() ([]byte, error) {
	key, err := os.ReadFile(s.keyPath)
	if err == nil {
		if len(key) != 32 {
			return nil, errors.New("invalid master key length")
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(s.keyPath), 0o755); err != nil {
		return nil, err
	}
	key = make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	if err := os.WriteFile(s.keyPath, key, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}
