package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_ReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generateAssistantResponse", r.URL.Path)
		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.amazon.eventstream", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("frame-bytes"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	status, body, err := c.Do(context.Background(), "tok123", map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "frame-bytes", string(body))
}

func TestDo_NonOKStatusStillReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"forbidden"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	status, body, err := c.Do(context.Background(), "tok", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, string(body), "forbidden")
}

func TestStream_OKReturnsLiveResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("stream-bytes"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.Stream(context.Background(), "tok", map[string]string{})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStream_401ReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"unauthorized"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Stream(context.Background(), "tok", map[string]string{})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.True(t, statusErr.Unauthorized())
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestStream_403IsUnauthorized(t *testing.T) {
	se := &StatusError{StatusCode: http.StatusForbidden}
	assert.True(t, se.Unauthorized())
}

func TestStream_500IsNotUnauthorized(t *testing.T) {
	se := &StatusError{StatusCode: http.StatusInternalServerError}
	assert.False(t, se.Unauthorized())
}

func TestNew_EmptyBaseURLFallsBackToDefault(t *testing.T) {
	c := New("")
	assert.Equal(t, defaultBaseURL, c.baseURL)
}
