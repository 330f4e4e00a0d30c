// Package accounts is a minimal in-core adapter for the account store
// that spec.md §1 places out of scope for the core (a real deployment
// would back this with its own admin HTTP surface and persistence).
// C7 still needs something to resolve an API key against, so this
// package gives the contract a lightweight in-memory implementation
// plus a read-only static table loaded from configuration, grounded on
// the map+RWMutex registry shape in pkg/registry/registry.go.
package accounts

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("accounts: not found")

// ErrExists is returned by Create when name is already taken.
var ErrExists = errors.New("accounts: already exists")

// Account is the persisted record described in spec.md §3.
type Account struct {
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a concurrency-safe, in-memory account table with a static
// fallback layer consulted on lookup miss. Real deployments replace
// this with a persisted accounts.json-backed implementation; the
// contract is what C7 depends on, not the storage medium.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*Account // keyed by name
	byAPIKey map[string]string   // api_key -> name, enabled accounts only

	staticMu sync.RWMutex
	static   map[string]string // api_key -> name, read-only config table
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[string]*Account),
		byAPIKey: make(map[string]string),
		static:   make(map[string]string),
	}
}

// LoadStatic replaces the static config-table accounts (spec.md §1's
// "optional static accounts" configuration knob). apiKeyToName maps a
// bearer key directly to an account name; static accounts are always
// enabled and never appear in List.
func (s *Store) LoadStatic(apiKeyToName map[string]string) {
	s.staticMu.Lock()
	defer s.staticMu.Unlock()
	s.static = make(map[string]string, len(apiKeyToName))
	for k, v := range apiKeyToName {
		s.static[k] = v
	}
}

// List returns every account, enabled or not.
func (s *Store) List() []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	return out
}

// Get returns the account named name.
func (s *Store) Get(name string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[name]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *a, nil
}

// GetByAPIKey resolves a bearer key to an enabled account, falling back
// to the static config table when the dynamic store has no match
// (spec.md §4.7 step 1).
func (s *Store) GetByAPIKey(apiKey string) (Account, error) {
	s.mu.RLock()
	name, ok := s.byAPIKey[apiKey]
	s.mu.RUnlock()
	if ok {
		return s.Get(name)
	}

	s.staticMu.RLock()
	name, ok = s.static[apiKey]
	s.staticMu.RUnlock()
	if !ok {
		return Account{}, ErrNotFound
	}
	return Account{Name: name, APIKey: apiKey, Enabled: true}, nil
}

// Create adds a new enabled account. If apiKey is empty, one is
// generated in the `sk-kiro-<name>-<32 hex>` shape spec.md §3 describes.
func (s *Store) Create(name, apiKey string) (Account, error) {
	if apiKey == "" {
		generated, err := generateAPIKey(name)
		if err != nil {
			return Account{}, err
		}
		apiKey = generated
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[name]; exists {
		return Account{}, ErrExists
	}

	now := time.Now().UTC()
	a := &Account{
		Name:      name,
		APIKey:    apiKey,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.accounts[name] = a
	s.byAPIKey[apiKey] = name
	return *a, nil
}

// Update replaces the API key and/or enabled flag for an existing account.
func (s *Store) Update(name string, apiKey *string, enabled *bool) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[name]
	if !ok {
		return Account{}, ErrNotFound
	}

	if apiKey != nil && *apiKey != a.APIKey {
		delete(s.byAPIKey, a.APIKey)
		a.APIKey = *apiKey
		if a.Enabled {
			s.byAPIKey[a.APIKey] = name
		}
	}
	if enabled != nil {
		a.Enabled = *enabled
		if a.Enabled {
			s.byAPIKey[a.APIKey] = name
		} else {
			delete(s.byAPIKey, a.APIKey)
		}
	}
	a.UpdatedAt = time.Now().UTC()
	return *a, nil
}

// Toggle flips Enabled and returns the updated account.
func (s *Store) Toggle(name string) (Account, error) {
	s.mu.Lock()
	a, ok := s.accounts[name]
	if !ok {
		s.mu.Unlock()
		return Account{}, ErrNotFound
	}
	enabled := !a.Enabled
	s.mu.Unlock()
	return s.Update(name, nil, &enabled)
}

// Delete removes an account. The caller (the proxy orchestrator's admin
// surface, out of this package's scope) is responsible for also
// deleting the associated TokenBlob, per spec.md §3's atomicity
// invariant — this package only owns the account record.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[name]
	if !ok {
		return ErrNotFound
	}
	delete(s.byAPIKey, a.APIKey)
	delete(s.accounts, name)
	return nil
}

func generateAPIKey(name string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("accounts: generating api key: %w", err)
	}
	return fmt.Sprintf("sk-kiro-%s-%s", name, hex.EncodeToString(buf)), nil
}
