package bar

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestFile backs an MmapBar with a regular file the way a real BAR
// would back it with a sysfs resource file: both are just fds mmap
// accepts, the kernel doesn't care which for Mmap's purposes here.
func newTestFile(t *testing.T, size int) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "bar")
	require.NoError(t, err)
	require.NoError(t, f.Truncate(int64(size)))
	t.Cleanup(func() { f.Close() })
	return f
}

func TestReadWriteRegisterRoundTrips(t *testing.T) {
	f := newTestFile(t, 0x100)
	b, err := OpenMmapBar(int(f.Fd()), 0x100)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.WriteRegister(0x10, 0xdeadbeef))
	v, err := b.ReadRegister(0x10)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), v)
}

func TestReadRegisterRejectsOutOfBounds(t *testing.T) {
	f := newTestFile(t, 0x100)
	b, err := OpenMmapBar(int(f.Fd()), 0x100)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.ReadRegister(0x100)
	assert.Error(t, err)
}

func TestRegionExposesWritableWindow(t *testing.T) {
	f := newTestFile(t, 0x100)
	b, err := OpenMmapBar(int(f.Fd()), 0x100)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.WriteRegister(0x20, 42))
	region, err := b.Region(0x20, 8)
	require.NoError(t, err)
	assert.Equal(t, byte(42), region[0])
}

func TestRegionRejectsRangeBeyondMappedSize(t *testing.T) {
	f := newTestFile(t, 0x100)
	b, err := OpenMmapBar(int(f.Fd()), 0x100)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Region(0xf0, 0x20)
	assert.Error(t, err)
}

func TestOpenMmapBarRejectsZeroSize(t *testing.T) {
	f := newTestFile(t, 0x10)
	_, err := OpenMmapBar(int(f.Fd()), 0)
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newTestFile(t, 0x100)
	b, err := OpenMmapBar(int(f.Fd()), 0x100)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}
