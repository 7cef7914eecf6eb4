// Package lockfile serializes writers of a PhaseGuide state directory.
//
// Generation and split runs replace the whole guide store, so only one of
// them may run against a state directory at a time. The lock is an flock on a
// file inside the directory and is dropped by the kernel if the process dies.
package lockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory.
const LockFileName = "phaseguide.lock"

// ErrLocked matches a *LockError with errors.Is.
var ErrLocked = errors.New("state directory is locked by another run")

// Lock is a held state directory lock.
type Lock struct {
	file    *os.File
	path    string
	purpose string
	held    bool
}

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID     int
	Purpose string
	Started time.Time
	Running bool
}

func (h Holder) String() string {
	if h.PID == 0 {
		return "unknown holder"
	}
	state := "running"
	if !h.Running {
		state = "not running, stale lock"
	}
	s := fmt.Sprintf("PID %d (%s)", h.PID, state)
	if h.Purpose != "" {
		s += ", " + h.Purpose
	}
	if !h.Started.IsZero() {
		s += ", since " + h.Started.Format(time.RFC3339)
	}
	return s
}

// AcquireLock takes the exclusive lock on stateDir for purpose (for example
// "generate"). It fails fast with a *LockError if another process holds it.
func AcquireLock(stateDir, purpose string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("lockfile.AcquireLock: acquiring", "lock_path", lockPath, "purpose", purpose)

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		slog.Error("lockfile.AcquireLock: failed to create state directory", "error", err, "state_dir", stateDir)
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// O_TRUNC would wipe the holder's details before we know we own the lock.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		slog.Error("lockfile.AcquireLock: failed to open lock file", "error", err, "lock_path", lockPath)
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := ReadHolder(lockPath)
		slog.Error("lockfile.AcquireLock: state directory busy", "lock_path", lockPath, "holder", holder.String())
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	if err := writeHolder(file, purpose); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		slog.Error("lockfile.AcquireLock: failed to record holder", "error", err, "lock_path", lockPath)
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("lockfile.AcquireLock: acquired", "lock_path", lockPath, "purpose", purpose, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath, purpose: purpose, held: true}, nil
}

func writeHolder(file *os.File, purpose string) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	info := fmt.Sprintf("pid=%d\npurpose=%s\nstarted=%s\n", os.Getpid(), purpose, time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteAt([]byte(info), 0); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("lockfile.writeHolder: sync failed", "error", err, "lock_path", file.Name())
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release drops the lock and removes the lock file. Safe to call more than once.
func (l *Lock) Release() error {
	if !l.held || l.file == nil {
		return nil
	}

	// Remove while still holding the flock so a waiting process never
	// locks a file that is about to disappear.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("lockfile.Lock.Release: failed to remove lock file", "error", err, "lock_path", l.path)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("lockfile.Lock.Release: failed to unlock", "error", err, "lock_path", l.path)
	}
	err := l.file.Close()

	l.held = false
	l.file = nil
	slog.Info("lockfile.Lock.Release: released", "lock_path", l.path, "purpose", l.purpose)
	if err != nil {
		return fmt.Errorf("failed to close lock file %s: %w", l.path, err)
	}
	return nil
}

// LockError reports a lock held by another process.
type LockError struct {
	LockPath string
	Holder   Holder
	Cause    error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another phaseguide run is using this state directory (lock file %s, held by %s)", e.LockPath, e.Holder)
	if e.Holder.PID != 0 && !e.Holder.Running {
		msg += fmt.Sprintf("; the holder has exited, remove the lock with: rm %s", e.LockPath)
	}
	return msg
}

func (e *LockError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrLocked) true for any *LockError.
func (e *LockError) Is(target error) bool { return target == ErrLocked }

// ReadHolder parses the lock file at lockPath. Missing fields are left zero.
func ReadHolder(lockPath string) Holder {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return Holder{}
	}
	h := parseHolder(string(data))
	if h.PID > 0 {
		h.Running = isProcessRunning(h.PID)
	}
	return h
}

func parseHolder(content string) Holder {
	var h Holder
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				h.PID = pid
			}
		case "purpose":
			h.Purpose = value
		case "started":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				h.Started = t
			}
		}
	}
	return h
}

// isProcessRunning sends signal 0, which only checks that pid exists.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
