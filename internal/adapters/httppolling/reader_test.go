package httppolling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderSendsPreemptiveBasicAuth(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok, "credentials must be sent without a challenge")
		assert.Equal(t, "u", user)
		assert.Equal(t, "p", pass)
		assert.Equal(t, "1", r.URL.Query().Get("x"))
		assert.Empty(t, r.URL.Query().Get(ParamPassword))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"temperature":21.5}`))
	}))
	defer srv.Close()

	cfg := Config{ServerURL: srv.URL + "/api?x=1", AuthUsername: "u", AuthPassword: "p"}
	r, err := NewReader(cfg.ConnectionURI(), map[string]string{"Accept": "application/json"}, srv.Client())
	require.NoError(t, err)
	require.NoError(t, r.Open(context.Background()))
	defer r.Close()

	for i := 0; i < 2; i++ {
		val, err := r.Read(context.Background())
		require.NoError(t, err)
		assert.JSONEq(t, `{"temperature":21.5}`, string(val.([]byte)))
	}
	assert.Equal(t, 2, calls)
}

func TestReaderWithoutCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, ok := r.BasicAuth()
		assert.False(t, ok)
		_, _ = w.Write([]byte("42"))
	}))
	defer srv.Close()

	r, err := NewReader(srv.URL, nil, srv.Client())
	require.NoError(t, err)
	assert.Equal(t, srv.URL, r.Target())

	val, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", string(val.([]byte)))
}

func TestReaderNonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r, err := NewReader(srv.URL, nil, srv.Client())
	require.NoError(t, err)

	_, err = r.Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestReaderHonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	r, err := NewReader(srv.URL, nil, srv.Client())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Read(ctx)
	require.Error(t, err)
}

func TestSplitCredentialsRejectsForeignMethod(t *testing.T) {
	_, _, err := splitCredentials("http://h/a?authUsername=u&authPassword=p&authMethod=Digest")
	require.Error(t, err)

	_, _, err = splitCredentials("http://h/a?authUsername=u")
	require.Error(t, err)
}
