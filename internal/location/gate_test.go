package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldproof/internal/geo"
)

type fakeProvider struct {
	fix   geo.Position
	err   error
	calls int
	block bool
}

func (f *fakeProvider) Current(ctx context.Context) (geo.Position, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return geo.Position{}, ctx.Err()
	}
	if f.err != nil {
		return geo.Position{}, f.err
	}
	return f.fix, nil
}

func (f *fakeProvider) Describe() string { return "fake provider" }

func freshFix() geo.Position {
	return geo.Position{Lat: 19.0760, Long: 72.8777, Accuracy: 15, Timestamp: time.Now()}
}

func TestRequestGrantsFreshFix(t *testing.T) {
	p := &fakeProvider{fix: freshFix()}
	g := NewGate(p)

	fix, err := g.Request(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateGranted, g.State())
	assert.Equal(t, 19.0760, fix.Lat)
	assert.Equal(t, fix, g.Fix())
}

func TestDeniedIsTerminal(t *testing.T) {
	p := &fakeProvider{err: ErrPermissionDenied}
	g := NewGate(p)

	_, err := g.Request(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDenied, g.State())

	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, CauseDenied, gerr.Cause)
	assert.False(t, gerr.Cause.Recoverable())

	// A second request must not reach the provider again.
	_, err = g.Request(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestTimeoutIsRecoverable(t *testing.T) {
	p := &fakeProvider{block: true}
	g := NewGate(p, WithTimeout(50*time.Millisecond))

	_, err := g.Request(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, g.State())

	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, CauseTimeout, gerr.Cause)
	assert.True(t, gerr.Cause.Recoverable())

	// Explicit retry goes back to the provider and can succeed.
	p.block = false
	p.fix = freshFix()
	_, err = g.Request(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateGranted, g.State())
	assert.Equal(t, 2, p.calls)
}

func TestUnavailableClassification(t *testing.T) {
	p := &fakeProvider{err: ErrUnavailable}
	g := NewGate(p)

	_, err := g.Request(context.Background())
	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, CauseUnavailable, gerr.Cause)
	assert.Equal(t, StateError, g.State())
}

func TestStaleFixRejected(t *testing.T) {
	stale := freshFix()
	stale.Timestamp = time.Now().Add(-5 * time.Minute)
	g := NewGate(&fakeProvider{fix: stale})

	_, err := g.Request(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, g.State())
}

func TestInvalidFixRejected(t *testing.T) {
	bad := freshFix()
	bad.Lat = 200
	g := NewGate(&fakeProvider{fix: bad})

	_, err := g.Request(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, g.State())
}

func TestStaticProviderStampsNow(t *testing.T) {
	p := &StaticProvider{Lat: 19.0760, Long: 72.8777, Accuracy: 15}
	fix, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, fix.Fresh(time.Now(), geo.DefaultMaxFixAge))
	assert.Contains(t, p.Describe(), "reduced trust")
}
