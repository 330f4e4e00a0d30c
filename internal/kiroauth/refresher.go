package kiroauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	oidcTokenURL       = "https://oidc.us-east-1.amazonaws.com/token"
	listProfilesURL    = "https://q.us-east-1.amazonaws.com/ListAvailableProfiles"
	refreshTimeout     = 30 * time.Second
	discoveryTimeout   = 30 * time.Second
)

// Refresher implements the token-store-and-refresher contract (C3): it
// owns the per-account single-flight group that guarantees at most one
// refresh per account name is ever in flight (spec.md §5), and the
// process-lifetime profile ARN cache (spec.md §3).
type Refresher struct {
	store  *Store
	client *http.Client

	group singleflight.Group

	arnMu sync.RWMutex
	arn   map[string]string
}

// NewRefresher creates a Refresher backed by store, issuing OIDC and
// profile-discovery calls with client.
func NewRefresher(store *Store, client *http.Client) *Refresher {
	return &Refresher{
		store:  store,
		client: client,
		arn:    make(map[string]string),
	}
}

// GetToken returns a valid access token for name, refreshing it first if
// force is set or if the cached token is within 5 minutes of expiry. At
// most one refresh per account name runs concurrently; other callers
// collapse onto that refresh and share its result (spec.md §5, invariant
// 1, boundary S5).
func (r *Refresher) GetToken(ctx context.Context, name string, force bool) (TokenBlob, error) {
	v, err, _ := r.group.Do(name, func() (interface{}, error) {
		return r.refreshOnce(ctx, name, force)
	})
	if err != nil {
		return TokenBlob{}, err
	}
	return v.(TokenBlob), nil
}

func (r *Refresher) refreshOnce(ctx context.Context, name string, force bool) (TokenBlob, error) {
	blob, err := r.store.Read(name)
	if err != nil {
		return TokenBlob{}, err
	}

	if !force && !blob.Expired(time.Now()) {
		return blob, nil
	}

	refreshed, err := r.callOIDC(ctx, blob)
	if err != nil {
		return TokenBlob{}, err
	}

	if err := r.store.Save(name, refreshed); err != nil {
		return TokenBlob{}, err
	}
	return refreshed, nil
}

type oidcRefreshRequest struct {
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	GrantType    string `json:"grantType"`
	RefreshToken string `json:"refreshToken"`
	ClientIDHash string `json:"clientIdHash,omitempty"`
}

type oidcRefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	ExpiresIn    int    `json:"expiresIn"`
	RefreshToken string `json:"refreshToken"`
}

// callOIDC posts the refresh request and overlays the response onto the
// existing blob so unrelated fields are preserved (spec.md §4.3 step 6).
// It prefers the full-OIDC client-credential form; when the blob carries
// no client_id/client_secret but does carry a legacy client_id_hash, it
// falls back to that older payload shape (original_source/app/token_manager.py).
func (r *Refresher) callOIDC(ctx context.Context, blob TokenBlob) (TokenBlob, error) {
	req := oidcRefreshRequest{
		ClientID:     blob.ClientID,
		ClientSecret: blob.ClientSecret,
		GrantType:    "refresh_token",
		RefreshToken: blob.RefreshToken,
	}
	if blob.ClientID == "" && blob.ClientSecret == "" && blob.ClientIDHash != "" {
		req = oidcRefreshRequest{
			GrantType:    "refresh_token",
			RefreshToken: blob.RefreshToken,
			ClientIDHash: blob.ClientIDHash,
		}
	}

	status, body, err := r.post(ctx, oidcTokenURL, req, refreshTimeout, "")
	if err != nil {
		return TokenBlob{}, err
	}
	if status != http.StatusOK {
		return TokenBlob{}, fmt.Errorf("Token refresh failed: %d", status)
	}

	var parsed oidcRefreshResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return TokenBlob{}, fmt.Errorf("parsing refresh response: %w", err)
	}

	updated := blob
	updated.AccessToken = parsed.AccessToken
	updated.ExpiresAt = time.Now().UTC().Add(time.Duration(parsed.ExpiresIn) * time.Second).Format("2006-01-02T15:04:05.000Z")
	if parsed.RefreshToken != "" {
		updated.RefreshToken = parsed.RefreshToken
	}
	return updated, nil
}

// GetProfileArn returns the cached profile ARN for name, discovering it
// via ListAvailableProfiles on first use and caching it indefinitely for
// the process lifetime (spec.md §3, §4.3, open question in §9).
func (r *Refresher) GetProfileArn(ctx context.Context, name string, accessToken string) (string, error) {
	r.arnMu.RLock()
	if arn, ok := r.arn[name]; ok {
		r.arnMu.RUnlock()
		return arn, nil
	}
	r.arnMu.RUnlock()

	v, err, _ := r.group.Do("profile-arn:"+name, func() (interface{}, error) {
		r.arnMu.RLock()
		if arn, ok := r.arn[name]; ok {
			r.arnMu.RUnlock()
			return arn, nil
		}
		r.arnMu.RUnlock()

		arn, err := r.discoverProfileArn(ctx, accessToken)
		if err != nil {
			return "", err
		}

		r.arnMu.Lock()
		r.arn[name] = arn
		r.arnMu.Unlock()
		return arn, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Refresher) discoverProfileArn(ctx context.Context, accessToken string) (string, error) {
	status, body, err := r.post(ctx, listProfilesURL, struct{}{}, discoveryTimeout, accessToken)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("ListAvailableProfiles failed: %d", status)
	}

	var parsed struct {
		Profiles []struct {
			Arn string `json:"arn"`
		} `json:"profiles"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parsing profile list: %w", err)
	}
	if len(parsed.Profiles) == 0 {
		return "", fmt.Errorf("no profiles available")
	}
	return parsed.Profiles[0].Arn, nil
}

// post issues a JSON POST within timeout and returns the fully-read
// response. Reading the body before returning keeps it immune to the
// context being canceled once this function's deadline elapses.
func (r *Refresher) post(ctx context.Context, url string, body interface{}, timeout time.Duration, bearer string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshaling request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
