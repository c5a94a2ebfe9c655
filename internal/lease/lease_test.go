package lease

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitaldrywood/opsboard/internal/apperr"
)

func openTwo(t *testing.T) (*SQLite, *SQLite) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leases.db")

	a, err := Open(path, Options{TTL: time.Minute, Wait: 150 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	b, err := Open(path, Options{TTL: time.Minute, Wait: 150 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	return a, b
}

func TestHeldLeaseBlocksOtherOwner(t *testing.T) {
	ctx := context.Background()
	a, b := openTwo(t)

	release, err := a.Acquire(ctx, "routine/2024-06-01/WORK")
	require.NoError(t, err)

	_, err = b.Acquire(ctx, "routine/2024-06-01/WORK")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	other, err := b.Acquire(ctx, "routine/2024-06-01/WORKOUT")
	require.NoError(t, err, "different keys do not interfere")
	other()

	release()

	again, err := b.Acquire(ctx, "routine/2024-06-01/WORK")
	require.NoError(t, err)
	again()
}

func TestExpiredLeaseIsTaken(t *testing.T) {
	ctx := context.Background()
	a, b := openTwo(t)

	_, err := a.Acquire(ctx, "task/T1")
	require.NoError(t, err)

	b.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	release, err := b.Acquire(ctx, "task/T1")
	require.NoError(t, err)
	release()
}

func TestStaleReleaseKeepsNewHolder(t *testing.T) {
	ctx := context.Background()
	l, err := Open(filepath.Join(t.TempDir(), "leases.db"), Options{TTL: time.Minute, Wait: 150 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	releaseA, err := l.Acquire(ctx, "task/T1")
	require.NoError(t, err)

	// A overran its lease; B takes it over in the same process.
	later := time.Now().Add(2 * time.Minute)
	l.now = func() time.Time { return later }
	releaseB, err := l.Acquire(ctx, "task/T1")
	require.NoError(t, err)

	releaseA()

	_, err = l.Acquire(ctx, "task/T1")
	require.Error(t, err, "B still holds the key")
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	releaseB()
	releaseC, err := l.Acquire(ctx, "task/T1")
	require.NoError(t, err)
	releaseC()
}

func TestSameHandleBlocksSecondHolder(t *testing.T) {
	ctx := context.Background()
	l, err := Open(filepath.Join(t.TempDir(), "leases.db"), Options{TTL: time.Minute, Wait: 100 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	release, err := l.Acquire(ctx, "k")
	require.NoError(t, err)
	defer release()

	_, err = l.Acquire(ctx, "k")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestAcquireHonoursContext(t *testing.T) {
	a, b := openTwo(t)
	b.wait = time.Minute

	release, err := a.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = b.Acquire(ctx, "k")
	require.Error(t, err)
	assert.False(t, apperr.Is(err, apperr.KindConflict), "a cancelled wait is not a conflict")
}

func TestNop(t *testing.T) {
	release, err := Nop{}.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release()
}
