package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUpstream(retries, fails int) *Upstream {
	return New(Config{
		Name:            "test",
		Timeout:         time.Second,
		Retries:         retries,
		RetryInterval:   time.Millisecond,
		BreakerFailures: fails,
		BreakerOpenFor:  time.Minute,
		UserAgent:       "agri-test/1.0",
	})
}

func TestGetJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "agri-test/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"value":3}`))
	}))
	defer srv.Close()

	var out struct{ Value int }
	require.NoError(t, newTestUpstream(0, 3).GetJSON(context.Background(), srv.URL, &out, nil))
	assert.Equal(t, 3, out.Value)
}

func TestGetJSON_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"value":1}`))
	}))
	defer srv.Close()

	var out struct{ Value int }
	require.NoError(t, newTestUpstream(3, 3).GetJSON(context.Background(), srv.URL, &out, nil))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1, out.Value)
}

func TestGetJSON_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"API key is invalid."}}`))
	}))
	defer srv.Close()

	decode := func(b []byte) string {
		var e struct {
			Error struct{ Message string } `json:"error"`
		}
		_ = json.Unmarshal(b, &e)
		return e.Error.Message
	}

	u := newTestUpstream(3, 1)
	err := u.GetJSON(context.Background(), srv.URL, &struct{}{}, decode)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Equal(t, "API key is invalid.", se.Message)
	assert.Equal(t, int32(1), calls.Load())
	// client errors do not trip the breaker
	assert.Equal(t, "closed", u.State())
}

func TestGetJSON_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	u := newTestUpstream(0, 2)
	for i := 0; i < 2; i++ {
		err := u.GetJSON(context.Background(), srv.URL, &struct{}{}, nil)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrUnavailable))
	}
	assert.Equal(t, "open", u.State())

	err := u.GetJSON(context.Background(), srv.URL, &struct{}{}, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetJSON_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	err := newTestUpstream(2, 5).GetJSON(context.Background(), srv.URL, &struct{}{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode error")
}
