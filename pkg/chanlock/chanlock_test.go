package chanlock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLockAt(t *testing.T, base string) *ChannelLock {
	t.Helper()
	l := New("0000:01:00.0", 3)
	l.filePath = filepath.Join(base, "test.lock")
	return l
}

func TestAcquireAndReleaseRoundTrips(t *testing.T) {
	l := newLockAt(t, t.TempDir())
	require.NoError(t, l.Acquire(ModeTry))
	l.Release()
}

func TestModeTryFailsWhenFileAlreadyFlocked(t *testing.T) {
	dir := t.TempDir()
	l1 := newLockAt(t, dir)
	require.NoError(t, l1.Acquire(ModeTry))
	defer l1.Release()

	l2 := New("0000:01:00.0", 3)
	l2.filePath = l1.filePath
	err := l2.Acquire(ModeTry)
	assert.ErrorContains(t, err, "held by another process")
}

func TestModeTryFailsWhenNamedMutexAlreadyHeld(t *testing.T) {
	dir := t.TempDir()

	pciAddr, channel := "0000:02:00.0", 1
	l1 := New(pciAddr, channel)
	l1.filePath = filepath.Join(dir, "a.lock")
	require.NoError(t, l1.Acquire(ModeTry))
	defer l1.Release()

	l2 := New(pciAddr, channel)
	l2.filePath = filepath.Join(dir, "b.lock") // distinct file, same named mutex
	err := l2.Acquire(ModeTry)
	assert.ErrorContains(t, err, "named mutex")
}

func TestFilePathAndMutexNameAreDerived(t *testing.T) {
	l := New("0000:03:00.0", 2)
	assert.Equal(t, "/dev/shm/AliceO2_RoC_0000:03:00.0_Channel_2.lock", l.FilePath())
	assert.Equal(t, "AliceO2_RoC_0000:03:00.0_Channel_2_Mutex", l.MutexName())
}
