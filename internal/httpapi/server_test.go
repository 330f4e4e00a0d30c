package httpapi

import (
	"bytes"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiro-gateway/kiro-gateway/internal/accounts"
	"github.com/kiro-gateway/kiro-gateway/internal/config"
	"github.com/kiro-gateway/kiro-gateway/internal/kiroauth"
	"github.com/kiro-gateway/kiro-gateway/internal/proxy"
	"github.com/kiro-gateway/kiro-gateway/internal/upstream"
)

// oidcStub answers the refresher's hardcoded OIDC/profile-discovery
// endpoints so a full Orchestrator can run against a fake upstream
// without touching the real network.
type oidcStub struct{}

func (oidcStub) RoundTrip(req *http.Request) (*http.Response, error) {
	switch req.URL.Host {
	case "oidc.us-east-1.amazonaws.com":
		return fakeResponse(200, `{"accessToken":"tok","expiresIn":3600}`), nil
	case "q.us-east-1.amazonaws.com":
		return fakeResponse(200, `{"profiles":[{"arn":"arn:profile:1"}]}`), nil
	}
	return fakeResponse(404, `{}`), nil
}

func fakeResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       &nopReadCloser{bytes.NewReader([]byte(body))},
		Header:     make(http.Header),
	}
}

type nopReadCloser struct{ *bytes.Reader }

func (n *nopReadCloser) Close() error { return nil }

func buildFrame(payload string) []byte {
	const preludeAndTrailer = 16
	total := preludeAndTrailer + len(payload)
	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	binary.BigEndian.PutUint32(buf[4:8], 0)
	copy(buf[12:12+len(payload)], payload)
	return buf
}

func newTestServer(t *testing.T, upstreamHandler http.HandlerFunc) *Server {
	t.Helper()

	srv := httptest.NewServer(upstreamHandler)
	t.Cleanup(srv.Close)

	store := accounts.New()
	_, err := store.Create("acct1", "key1")
	require.NoError(t, err)

	tokenStore := kiroauth.NewStore(t.TempDir())
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	require.NoError(t, tokenStore.Save("acct1", kiroauth.TokenBlob{AccessToken: "cached", ExpiresAt: future}))

	refresher := kiroauth.NewRefresher(tokenStore, &http.Client{Transport: oidcStub{}})
	client := upstream.New(srv.URL)
	orchestrator := proxy.New(store, refresher, client, nil)

	s, err := New(orchestrator, config.AdminConfig{})
	require.NoError(t, err)
	return s
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestHandleMessages_MissingAPIKeyIs401(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleMessages_BatchHappyPath(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write(buildFrame(`{"content":"hi"}`))
	})

	body := []byte(`{"model":"claude-3-sonnet","messages":[{"role":"user","content":"hello"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(body))
	req.Header.Set("x-api-key", "key1")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hi")
}

func TestHandleMessages_InvalidJSONIs400(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader([]byte(`not json`)))
	req.Header.Set("x-api-key", "key1")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleMessages_StreamingHappyPath(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write(buildFrame(`{"content":"streamed"}`))
	})

	body := []byte(`{"model":"claude-3-sonnet","stream":true,"messages":[{"role":"user","content":"hello"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(body))
	req.Header.Set("x-api-key", "key1")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "message_stop")
}

func TestHandleMessages_ClaudeAliasRouteWorks(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write(buildFrame(`{"content":"hi"}`))
	})

	body := []byte(`{"model":"claude-3-sonnet","messages":[{"role":"user","content":"hello"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/claude/v1/messages", bytes.NewReader(body))
	req.Header.Set("x-api-key", "key1")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
