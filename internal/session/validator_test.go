package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldproof/internal/backend"
	"fieldproof/internal/geo"
)

func testPosition() geo.Position {
	return geo.Position{Lat: 19.0760, Long: 72.8777, Accuracy: 15, Timestamp: time.Now()}
}

func TestValidateAllowedStoresCode(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "abc123", req["case_id"])
		assert.InDelta(t, 19.0760, req["lat"].(float64), 1e-9)
		assert.InDelta(t, 15.0, req["accuracy"].(float64), 1e-9)
		w.Write([]byte(`{"allowed": true, "verification_code": "4821"}`))
	}))
	defer srv.Close()

	v := NewValidator(backend.NewClient(srv.URL, time.Second))
	d, err := v.Validate(context.Background(), "abc123", testPosition())
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, "4821", d.VerificationCode)

	// Second call for the same id: cached decision, no network traffic.
	d2, err := v.Validate(context.Background(), "abc123", testPosition())
	require.NoError(t, err)
	assert.Equal(t, d, d2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestValidateRejectedCachesDecision(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"allowed": false, "reason": "350m from site"}`))
	}))
	defer srv.Close()

	v := NewValidator(backend.NewClient(srv.URL, time.Second))
	d, err := v.Validate(context.Background(), "abc123", testPosition())
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "350m from site", d.Reason)

	// Rejection is terminal per session: no second call either.
	_, err = v.Validate(context.Background(), "abc123", testPosition())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTransportFailureLeavesIDRetryable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"allowed": true, "verification_code": "9000"}`))
	}))
	defer srv.Close()

	v := NewValidator(backend.NewClient(srv.URL, time.Second))
	_, err := v.Validate(context.Background(), "abc123", testPosition())
	require.Error(t, err)
	be := backend.AsError(err)
	require.NotNil(t, be)
	assert.Equal(t, backend.KindColdStart, be.Kind)

	// A cold backend is not a denial: explicit retry dispatches again.
	d, err := v.Validate(context.Background(), "abc123", testPosition())
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAllowedWithoutCodeIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"allowed": true}`))
	}))
	defer srv.Close()

	v := NewValidator(backend.NewClient(srv.URL, time.Second))
	_, err := v.Validate(context.Background(), "abc123", testPosition())
	require.Error(t, err)

	// The id stays undecided so a retry is possible.
	_, decided := v.Decided("abc123")
	assert.False(t, decided)
}

func TestValidateRejectsBadInput(t *testing.T) {
	v := NewValidator(backend.NewClient("http://127.0.0.1:1", time.Second))

	_, err := v.Validate(context.Background(), "  ", testPosition())
	assert.Error(t, err)

	bad := testPosition()
	bad.Lat = 120
	_, err = v.Validate(context.Background(), "abc123", bad)
	assert.Error(t, err)
}
