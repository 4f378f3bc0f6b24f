// Package lockfile guards the state directory against overlapping relay runs.
//
// The relay is a batch job fired by an external scheduler, and overlapping
// invocations sharing one checkpoint are not safe. An flock-based lock on the
// state directory rejects the second invocation; the kernel releases the lock
// automatically if the process dies.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockFileName is the name of the lock file created in the state directory.
const LockFileName = "channelrelay.lock"

// Lock represents an acquired state directory lock.
type Lock struct {
	file     *os.File
	path     string
	acquired bool
}

// Acquire attempts to take an exclusive lock on the state directory. It fails
// immediately with a LockError if another run holds the lock.
func Acquire(stateDir string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("lockfile.Acquire: acquiring run lock", "lock_path", lockPath)

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("lockfile.Acquire: failed to create state directory", "error", err, "state_dir", stateDir)
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		slog.Error("lockfile.Acquire: failed to open lock file", "error", err, "lock_path", lockPath)
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := readHolderPID(lockPath)
		slog.Error("lockfile.Acquire: lock already held, another relay run is active",
			"lock_path", lockPath, "holder_pid", holder, "error", err)
		return nil, &LockError{LockPath: lockPath, HolderPID: holder, Cause: err}
	}

	if _, err := fmt.Fprintf(file, "pid=%d\n", os.Getpid()); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		slog.Error("lockfile.Acquire: failed to write holder pid", "error", err, "lock_path", lockPath)
		return nil, fmt.Errorf("failed to write lock file %s: %w", lockPath, err)
	}

	slog.Debug("lockfile.Acquire: run lock acquired", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath, acquired: true}, nil
}

// Release releases the lock and removes the lock file. Safe to call twice.
func (l *Lock) Release() error {
	if !l.acquired || l.file == nil {
		return nil
	}

	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("lockfile.Release: failed to release flock", "error", err, "lock_path", l.path)
	}
	if err := l.file.Close(); err != nil {
		slog.Error("lockfile.Release: failed to close lock file", "error", err, "lock_path", l.path)
	}
	if err := os.Remove(l.path); err != nil {
		// Not critical: the flock itself has been released.
		slog.Debug("lockfile.Release: failed to remove lock file", "error", err, "lock_path", l.path)
	}

	l.acquired = false
	l.file = nil
	slog.Debug("lockfile.Release: run lock released", "lock_path", l.path)
	return nil
}

// LockError is returned when the lock is held by another relay run.
type LockError struct {
	LockPath  string
	HolderPID int
	Cause     error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another relay run holds the lock at %s", e.LockPath)
	if e.HolderPID > 0 {
		if isProcessRunning(e.HolderPID) {
			msg += fmt.Sprintf(" (pid %d, running)", e.HolderPID)
		} else {
			msg += fmt.Sprintf(" (pid %d, not running - stale lock, remove the file to recover)", e.HolderPID)
		}
	}
	return msg
}

func (e *LockError) Unwrap() error { return e.Cause }

// readHolderPID extracts the holder pid from an existing lock file.
// Returns 0 if the file cannot be read or parsed.
func readHolderPID(lockPath string) int {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return 0
	}
	content := strings.TrimSpace(string(data))
	if rest, ok := strings.CutPrefix(content, "pid="); ok {
		if pid, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
			return pid
		}
	}
	return 0
}

// isProcessRunning checks whether a process with the given pid exists by
// sending signal 0 to it.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
