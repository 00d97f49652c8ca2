package store

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHttpStore_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	s := NewHttpStore(srv.URL, srv.Client(), nil)
	r, err := s.Find(context.Background(), "a/b/c", DefaultCacheValidityPolicy)
	require.NoError(t, err)
	require.NotNil(t, r.Diagnostics)
	assert.Equal(t, OutcomeSuccess, r.Diagnostics.Outcome)
	assert.Equal(t, srv.URL+"/a/b/c", *r.Identity)

	stream, err := r.OpenStream()
	require.NoError(t, err)
	body, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestHttpStore_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewHttpStore(srv.URL, srv.Client(), nil)
	r, err := s.Find(context.Background(), "a/b/c", DefaultCacheValidityPolicy)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, r.Diagnostics.Outcome)
}

func TestHttpStore_UnreachableBackoff(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHttpStore(srv.URL, srv.Client(), nil)
	policy := CacheValidityPolicy{UnreachableStatusValidityPeriod: 5 * time.Minute}

	r1, err := s.Find(context.Background(), "a/b/c", policy)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnreachable, r1.Diagnostics.Outcome)

	r2, err := s.Find(context.Background(), "a/b/c", policy)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnreachable, r2.Diagnostics.Outcome)

	assert.Equal(t, 1, requests, "second query should fast-fail without an outbound request")
}

func TestHttpStore_TwoNotFoundsDoNotBackoff(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewHttpStore(srv.URL, srv.Client(), nil)
	policy := CacheValidityPolicy{UnreachableStatusValidityPeriod: 5 * time.Minute}

	s.Find(context.Background(), "a/b/c", policy)
	s.Find(context.Background(), "a/b/c", policy)

	assert.Equal(t, 2, requests, "404 is expected, should not trip the circuit breaker")
}

func TestHttpStore_InvalidKeyRejected(t *testing.T) {
	s := NewHttpStore("http://example.com", nil, nil)
	_, err := s.Find(context.Background(), "../etc/passwd", DefaultCacheValidityPolicy)
	require.Error(t, err)
}

func TestHttpStore_FileIdentityNoIO(t *testing.T) {
	s := NewHttpStore("http://example.test", nil, nil)
	id := s.FileIdentity("a/b/c")
	require.NotNil(t, id)
	assert.Equal(t, "http://example.test/a/b/c", *id)
}
