// Package chanlock implements the per-channel exclusive ownership
// adapter (spec.md §4.5): two coupled locks, a crash-releasable file
// lock and a named mutex whose lingering held state after a crash is
// itself diagnostic information.
package chanlock

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"readoutcard.example/rocdma/pkg/rocerr"
)

// Mode selects how acquisition behaves when a lock is already held.
type Mode int

const (
	// ModeTry fails immediately if either lock is unavailable.
	ModeTry Mode = iota
	// ModeWait blocks until both locks can be acquired, taking them in
	// a fixed order (file, then named mutex) to avoid deadlock against
	// another process doing the same.
	ModeWait
)

// namedMutexRegistry stands in for the boost::interprocess named mutex:
// a process-wide table keyed by name, held in this process's memory.
// It only sees holders inside this process: the table does not outlive
// the process and is not shared with other processes, so a crashed
// holder leaves no lingering mutex behind here.
var (
	namedMutexMu sync.Mutex
	namedMutexes = map[string]*sync.Mutex{}
)

func namedMutexFor(name string) *sync.Mutex {
	namedMutexMu.Lock()
	defer namedMutexMu.Unlock()
	m, ok := namedMutexes[name]
	if !ok {
		m = &sync.Mutex{}
		namedMutexes[name] = m
	}
	return m
}

// ChannelLock holds the two coupled locks for one (pciAddress, channel)
// pair. Paths are derived the way the original layout names them:
// /dev/shm/AliceO2_RoC_<pci-addr>_Channel_<n>.lock and an
// AliceO2_RoC_<pci-addr>_Channel_<n>_Mutex named mutex.
type ChannelLock struct {
	filePath  string
	mutexName string

	file      *os.File
	fileHeld  bool
	mutex     *sync.Mutex
	mutexHeld bool
}

// New builds a ChannelLock for the given PCI address and channel
// number. Acquire must be called before the lock is considered held.
func New(pciAddress string, channel int) *ChannelLock {
	base := fmt.Sprintf("AliceO2_RoC_%s_Channel_%d", pciAddress, channel)
	return &ChannelLock{
		filePath:  "/dev/shm/" + base + ".lock",
		mutexName: base + "_Mutex",
		mutex:     namedMutexFor(base + "_Mutex"),
	}
}

// FilePath returns the backing file lock's path, for diagnostics.
func (l *ChannelLock) FilePath() string { return l.filePath }

// MutexName returns the named mutex's name, for diagnostics.
func (l *ChannelLock) MutexName() string { return l.mutexName }

// Acquire takes both locks according to mode. On failure in ModeTry it
// reports which lock could not be taken: a file-only failure means
// another live process holds the channel; a named-only failure means
// the file lock was free but the mutex was still held, the signature of
// a prior crash that never ran its cleanup.
func (l *ChannelLock) Acquire(mode Mode) error {
	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return rocerr.Wrap(rocerr.KindFileLock, "open lock file "+l.filePath, rocerr.Context{}, err)
	}

	flockFlags := unix.LOCK_EX
	if mode == ModeTry {
		flockFlags |= unix.LOCK_NB
	}
	if err := unix.Flock(int(f.Fd()), flockFlags); err != nil {
		f.Close()
		return rocerr.Wrap(rocerr.KindFileLock,
			fmt.Sprintf("channel is held by another process (%s)", l.filePath),
			rocerr.Context{}, err)
	}
	l.file = f
	l.fileHeld = true

	if mode == ModeTry {
		if !l.mutex.TryLock() {
			l.releaseFile()
			return rocerr.New(rocerr.KindNamedMutexLock,
				fmt.Sprintf("named mutex %s still held, likely a crashed process: manual cleanup required", l.mutexName),
				rocerr.Context{})
		}
	} else {
		l.mutex.Lock()
	}
	l.mutexHeld = true

	return nil
}

// Release drops both locks. The named mutex always clears; the file
// lock and its descriptor are closed so the OS drops the flock even if
// Release is never reached (crash recovery relies on that).
func (l *ChannelLock) Release() {
	if l.mutexHeld {
		l.mutex.Unlock()
		l.mutexHeld = false
	}
	l.releaseFile()
}

func (l *ChannelLock) releaseFile() {
	if !l.fileHeld {
		return
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	l.fileHeld = false
}
