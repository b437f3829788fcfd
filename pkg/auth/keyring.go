package auth

import (
	"errors"
	"fmt"
	"sync"

	keyringlib "github.com/zalando/go-keyring"
)

// ErrNotFound is returned by Get when the requested secret is not found.
var ErrNotFound = errors.New("secret not found in keyring")

// Keyring abstracts the operating system's keyring.
type Keyring interface {
	// Get returns ErrNotFound if the secret is not found.
	Get(service, user string) (string, error)
	Set(service, user, password string) error
	// Delete does not fail when the secret does not exist.
	Delete(service, user string) error
}

// OSKeyring is the Keyring backed by zalando/go-keyring.
type OSKeyring struct{}

func NewOSKeyring() *OSKeyring {
	return &OSKeyring{}
}

func (OSKeyring) Get(service, user string) (string, error) {
	secret, err := keyringlib.Get(service, user)
	if err != nil {
		if errors.Is(err, keyringlib.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get secret from OS keyring: %w", err)
	}
	return secret, nil
}

func (OSKeyring) Set(service, user, password string) error {
	return keyringlib.Set(service, user, password)
}

func (OSKeyring) Delete(service, user string) error {
	err := keyringlib.Delete(service, user)
	if errors.Is(err, keyringlib.ErrNotFound) {
		return nil
	}
	return err
}

// MemoryKeyring keeps secrets in memory. Used in tests.
type MemoryKeyring struct {
	mu    sync.RWMutex
	store map[string]string
}

func NewMemoryKeyring() *MemoryKeyring {
	return &MemoryKeyring{store: make(map[string]string)}
}

func (m *MemoryKeyring) Get(service, user string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	secret, ok := m.store[service+"/"+user]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (m *MemoryKeyring) Set(service, user, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[service+"/"+user] = password
	return nil
}

func (m *MemoryKeyring) Delete(service, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, service+"/"+user)
	return nil
}

var (
	_ Keyring = (*OSKeyring)(nil)
	_ Keyring = (*MemoryKeyring)(nil)
)
