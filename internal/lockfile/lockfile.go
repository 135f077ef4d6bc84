// Package lockfile keeps two Recommendy instances from sharing a state directory.
//
// The lock is an flock on a file in the state directory, so the kernel drops
// it when the process exits, however it exits.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory
const LockFileName = "recommendy.lock"

// Info describes the process holding a lock. It is written to the lock file
// as key=value lines.
type Info struct {
	PID     int
	Started time.Time
	Addr    string // API listen address, if known
}

func (i Info) encode() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pid=%d\n", i.PID)
	fmt.Fprintf(&b, "started=%s\n", i.Started.UTC().Format(time.RFC3339))
	if i.Addr != "" {
		fmt.Fprintf(&b, "addr=%s\n", i.Addr)
	}
	return b.String()
}

// parseInfo reads key=value lines; unknown keys and malformed lines are ignored.
func parseInfo(content string) Info {
	var info Info
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(val); err == nil {
				info.PID = pid
			}
		case "started":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				info.Started = t
			}
		case "addr":
			info.Addr = val
		}
	}
	return info
}

// Lock is an acquired state directory lock.
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes the lock in stateDir, creating the directory if needed.
// addr is recorded for the error message another instance would see.
func AcquireLock(stateDir, addr string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// O_TRUNC would wipe the holder's info before we know we own the lock.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := describeHolder(lockPath)
		slog.Error("lockfile.AcquireLock: state directory is locked", "error", err, "lock_path", lockPath, "holder", holder)
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	info := Info{PID: os.Getpid(), Started: time.Now(), Addr: addr}
	if err := writeInfo(file, info); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("lockfile.AcquireLock: state directory locked", "lock_path", lockPath, "pid", info.PID)
	return &Lock{file: file, path: lockPath}, nil
}

func writeInfo(file *os.File, info Info) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.WriteAt([]byte(info.encode()), 0); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("lockfile.AcquireLock: failed to sync lock file", "error", err)
	}
	return nil
}

// Release unlocks and removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove before unlocking so a waiting instance never sees our stale info.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("lockfile.Release: failed to remove lock file", "error", err, "lock_path", l.path)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("lockfile.Release: failed to unlock", "error", err, "lock_path", l.path)
	}
	err := l.file.Close()
	l.file = nil
	slog.Info("lockfile.Release: state directory unlocked", "lock_path", l.path)
	return err
}

// LockError reports that another process holds the lock.
type LockError struct {
	LockPath string
	Holder   string
	Cause    error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another Recommendy instance is using this state directory (lock file %s)", e.LockPath)
	if e.Holder != "" {
		msg += ": " + e.Holder
	}
	return msg + "; if that process is gone, remove " + e.LockPath + " and retry"
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// describeHolder summarizes the lock file's owner for error messages.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil || len(data) == 0 {
		return ""
	}
	info := parseInfo(string(data))
	if info.PID == 0 {
		return ""
	}
	state := "running"
	if !isProcessRunning(info.PID) {
		state = "not running, stale lock"
	}
	desc := fmt.Sprintf("PID %d (%s)", info.PID, state)
	if info.Addr != "" {
		desc += " serving " + info.Addr
	}
	if !info.Started.IsZero() {
		desc += " since " + info.Started.Format(time.RFC3339)
	}
	return desc
}

// isProcessRunning sends signal 0, which only checks that the process exists.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
