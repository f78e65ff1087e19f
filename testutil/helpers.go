package testutil

import (
	"os"
	"testing"
)

// SkipIfNoCard skips the test unless a real C-RORC BAR resource file is
// present, for tests that want to run against real hardware when
// available instead of FakeBar/FakeCardOps.
func SkipIfNoCard(t *testing.T) string {
	t.Helper()

	candidates := []string{
		"/sys/bus/pci/devices/0000:01:00.0/resource0",
		"/sys/bus/pci/devices/0000:02:00.0/resource0",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	t.Skip("no C-RORC card resource file available")
	return ""
}

// MakeBuffer returns a zeroed byte slice of size, standing in for a
// client-registered DMA buffer in tests that don't need a real mmap.
func MakeBuffer(size int) []byte {
	return make([]byte, size)
}
