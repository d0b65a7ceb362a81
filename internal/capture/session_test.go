package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	data     []byte
	err      error
	closed   bool
	lastCode string
}

func (f *fakeStream) Record(ctx context.Context, code string, d time.Duration) ([]byte, error) {
	f.lastCode = code
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func (f *fakeStream) MIME() string { return "video/webm" }

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

type fakeDevice struct {
	stream   *fakeStream
	err      error
	acquires int
}

func (f *fakeDevice) Acquire(ctx context.Context) (Stream, error) {
	f.acquires++
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func (f *fakeDevice) Describe() string { return "fake device" }

func TestCaptureLifecycle(t *testing.T) {
	stream := &fakeStream{data: []byte("webm-bytes")}
	dev := &fakeDevice{stream: stream}
	s := NewSession(dev)

	require.Equal(t, StateIdle, s.State())
	require.NoError(t, s.StartCapture(context.Background()))
	assert.Equal(t, StatePreviewing, s.State())

	art, err := s.StartRecording(context.Background(), "4821", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateRecorded, s.State())
	assert.Equal(t, "4821", stream.lastCode)
	assert.Equal(t, int64(10), art.Size)
	assert.Equal(t, "video/webm", art.MIME)
	assert.NotEmpty(t, art.FileName())
	assert.Same(t, art, s.Artifact())
}

func TestResetKeepsStreamOpen(t *testing.T) {
	stream := &fakeStream{data: []byte("x")}
	dev := &fakeDevice{stream: stream}
	s := NewSession(dev)
	require.NoError(t, s.StartCapture(context.Background()))
	_, err := s.StartRecording(context.Background(), "1111", time.Second)
	require.NoError(t, err)

	s.ResetCapture()
	assert.Equal(t, StatePreviewing, s.State())
	assert.Nil(t, s.Artifact())
	assert.False(t, stream.closed)
	// No second permission prompt: Acquire was called exactly once.
	assert.Equal(t, 1, dev.acquires)

	// Re-record works straight off the open stream.
	_, err = s.StartRecording(context.Background(), "1111", time.Second)
	require.NoError(t, err)
}

func TestResetAfterReleaseFallsBackToIdle(t *testing.T) {
	stream := &fakeStream{data: []byte("x")}
	s := NewSession(&fakeDevice{stream: stream})
	require.NoError(t, s.StartCapture(context.Background()))
	s.Release()
	assert.True(t, stream.closed)

	s.ResetCapture()
	assert.Equal(t, StateIdle, s.State())
}

func TestAcquireFailureClassified(t *testing.T) {
	dev := &fakeDevice{err: &Error{Cause: CausePermission, cause: errors.New("EACCES")}}
	s := NewSession(dev)

	err := s.StartCapture(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, s.State())
	require.NotNil(t, s.LastError())
	assert.Equal(t, CausePermission, s.LastError().Cause)
	assert.Contains(t, s.LastError().UserMessage(), "denied")

	// Error state is recoverable by user action.
	dev.err = nil
	dev.stream = &fakeStream{data: []byte("x")}
	require.NoError(t, s.StartCapture(context.Background()))
	assert.Equal(t, StatePreviewing, s.State())
}

func TestMidRecordingFailureExposesNoPartial(t *testing.T) {
	stream := &fakeStream{err: errors.New("stream died")}
	s := NewSession(&fakeDevice{stream: stream})
	require.NoError(t, s.StartCapture(context.Background()))

	art, err := s.StartRecording(context.Background(), "4821", time.Second)
	require.Error(t, err)
	assert.Nil(t, art)
	assert.Nil(t, s.Artifact())
	assert.Equal(t, StateError, s.State())
	assert.Equal(t, CauseOther, s.LastError().Cause)
}

func TestRecordingRequiresCodeAndPreview(t *testing.T) {
	s := NewSession(&fakeDevice{stream: &fakeStream{data: []byte("x")}})

	// Not previewing yet.
	_, err := s.StartRecording(context.Background(), "4821", time.Second)
	assert.Error(t, err)

	require.NoError(t, s.StartCapture(context.Background()))
	// Empty code would produce a clip nothing can verify.
	_, err = s.StartRecording(context.Background(), "", time.Second)
	assert.Error(t, err)
}

func TestSanitizeCode(t *testing.T) {
	assert.Equal(t, "4821", sanitizeCode("4821"))
	assert.Equal(t, "4821", sanitizeCode("48'21:x"))
}
