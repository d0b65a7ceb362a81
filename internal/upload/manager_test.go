package upload

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldproof/internal/backend"
	"fieldproof/internal/capture"
)

func testArtifact(t *testing.T) *capture.Artifact {
	t.Helper()
	stream := &stubStream{data: bytes.Repeat([]byte("v"), 4096)}
	s := capture.NewSession(&stubDevice{stream: stream})
	require.NoError(t, s.StartCapture(context.Background()))
	art, err := s.StartRecording(context.Background(), "4821", time.Second)
	require.NoError(t, err)
	return art
}

type stubStream struct{ data []byte }

func (s *stubStream) Record(context.Context, string, time.Duration) ([]byte, error) {
	return s.data, nil
}
func (s *stubStream) MIME() string { return "video/webm" }
func (s *stubStream) Close() error { return nil }

type stubDevice struct{ stream *stubStream }

func (d *stubDevice) Acquire(context.Context) (capture.Stream, error) { return d.stream, nil }
func (d *stubDevice) Describe() string                                { return "stub" }

func TestUploadSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload-video/abc123", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "4821", r.FormValue("liveness_code"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.True(t, strings.HasPrefix(header.Filename, "audit-"))
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Len(t, data, 4096)

		w.Write([]byte(`{"video_url": "https://cdn.example.com/v.webm", "report_id": "R-1009"}`))
	}))
	defer srv.Close()

	var mu sync.Mutex
	var seen []float64
	m := NewManager(backend.NewClient(srv.URL, time.Second), WithProgress(func(p float64) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	}))

	res, err := m.Upload(context.Background(), testArtifact(t), "abc123", "4821")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/v.webm", res.VideoURL)
	assert.Equal(t, "R-1009", res.ReportID)
	assert.Equal(t, StateSuccess, m.State())
	assert.Equal(t, 100.0, m.Progress())

	// Progress never decreases and tops out at 100.
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.LessOrEqual(t, seen[len(seen)-1], 100.0)
}

func TestUploadColdStartClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewManager(backend.NewClient(srv.URL, time.Second))
	_, err := m.Upload(context.Background(), testArtifact(t), "abc123", "4821")
	require.Error(t, err)
	assert.Equal(t, StateError, m.State())
	require.NotNil(t, m.LastError())
	assert.Equal(t, backend.KindColdStart, m.LastError().Kind)
	assert.Contains(t, m.LastError().UserMessage(), "30 seconds")
}

func TestRetryReusesRetainedAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "4821", r.FormValue("liveness_code"))
		w.Write([]byte(`{"video_url": "https://cdn.example.com/v.webm"}`))
	}))
	defer srv.Close()

	m := NewManager(backend.NewClient(srv.URL, time.Second))
	_, err := m.Upload(context.Background(), testArtifact(t), "abc123", "4821")
	require.Error(t, err)

	res, err := m.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/v.webm", res.VideoURL)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRetryAfterResetIsNoop(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"video_url": "u"}`))
	}))
	defer srv.Close()

	m := NewManager(backend.NewClient(srv.URL, time.Second))
	_, err := m.Upload(context.Background(), testArtifact(t), "abc123", "4821")
	require.NoError(t, err)

	m.Reset()
	res, err := m.Retry(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, 0.0, m.Progress())
}

func TestCancelReturnsToIdleKeepingSlot(t *testing.T) {
	var first int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		if atomic.AddInt32(&first, 1) == 1 {
			// Hold the first transfer open until the client aborts it.
			<-r.Context().Done()
			return
		}
		w.Write([]byte(`{"video_url": "u"}`))
	}))
	defer srv.Close()

	m := NewManager(backend.NewClient(srv.URL, time.Second))

	done := make(chan error, 1)
	go func() {
		_, err := m.Upload(context.Background(), testArtifact(t), "abc123", "4821")
		done <- err
	}()

	require.Eventually(t, func() bool { return m.State() == StateUploading }, time.Second, 5*time.Millisecond)
	m.Cancel()

	err := <-done
	require.Error(t, err)
	assert.Equal(t, backend.KindCanceled, backend.KindOf(err))
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, 0.0, m.Progress())

	// A fresh upload attempt is possible: the retained slot survives.
	res, retryErr := m.Retry(context.Background())
	require.NoError(t, retryErr)
	assert.Equal(t, "u", res.VideoURL)
}

func TestUploadGuards(t *testing.T) {
	m := NewManager(backend.NewClient("http://127.0.0.1:1", time.Second))

	_, err := m.Upload(context.Background(), nil, "abc123", "4821")
	assert.Error(t, err)
	_, err = m.Upload(context.Background(), testArtifact(t), "", "4821")
	assert.Error(t, err)
	_, err = m.Upload(context.Background(), testArtifact(t), "abc123", "")
	assert.Error(t, err)
}
