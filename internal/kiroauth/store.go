// Package kiroauth implements the credential plane (C3): reading and
// writing each account's TokenBlob, refreshing it against the AWS OIDC
// token endpoint with single-flight de-duplication, and caching the
// profile ARN discovered via ListAvailableProfiles.
package kiroauth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TokenBlob is the persisted, per-account credential record (spec.md §3).
type TokenBlob struct {
	AccessToken   string `json:"access_token"`
	RefreshToken  string `json:"refresh_token"`
	ExpiresAt     string `json:"expires_at,omitempty"`
	ClientID      string `json:"client_id,omitempty"`
	ClientSecret  string `json:"client_secret,omitempty"`
	ClientIDHash  string `json:"client_id_hash,omitempty"`
}

const expiryMargin = 5 * time.Minute

// Expired reports whether the blob should be treated as expired, applying
// the 5-minute safety margin spec.md §3 mandates. An empty ExpiresAt is
// always expired.
func (b TokenBlob) Expired(now time.Time) bool {
	if b.ExpiresAt == "" {
		return true
	}
	t, err := time.Parse(time.RFC3339, b.ExpiresAt)
	if err != nil {
		return true
	}
	return !t.After(now.Add(expiryMargin))
}

// Store reads and writes token blobs under <dataDir>/tokens/<name>.json,
// using write-temp-then-rename so a concurrent reader always observes
// either the whole pre-write or whole post-write file (spec.md §5).
type Store struct {
	dataDir string
}

// NewStore creates a Store rooted at dataDir.
func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dataDir, "tokens", name+".json")
}

// Read loads the token blob for name. A missing file is reported as an
// error, per spec.md §4.3 step 2.
func (s *Store) Read(name string) (TokenBlob, error) {
	var blob TokenBlob
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return blob, fmt.Errorf("reading token for %q: %w", name, err)
	}
	if err := json.Unmarshal(data, &blob); err != nil {
		return blob, fmt.Errorf("parsing token for %q: %w", name, err)
	}
	return blob, nil
}

// Save persists blob for name atomically.
func (s *Store) Save(name string, blob TokenBlob) error {
	dir := filepath.Join(s.dataDir, "tokens")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating token dir: %w", err)
	}

	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token for %q: %w", name, err)
	}

	tmp, err := os.CreateTemp(dir, name+".json.tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp token file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path(name)); err != nil {
		return fmt.Errorf("committing token file for %q: %w", name, err)
	}
	return nil
}

// Delete removes the persisted blob for name, if any. Deleting an account
// must leave no readable token blob behind (spec.md invariant 5).
func (s *Store) Delete(name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting token for %q: %w", name, err)
	}
	return nil
}
