package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/fleetbay/drydock/internal/logger"
)

var (
	errLockHeld = errors.New("another agent run holds the install lock")
)

// lockFilePermissions is the mode of the advisory lock file.
const lockFilePermissions = 0o644

// runLock is the advisory lock serializing agent runs against one install
// root. The lock file lives beside the install root, not inside it, so it
// survives the install tree being renamed away during an update.
type runLock struct {
	path string
}

// acquireRunLock takes the advisory lock for the given install root, writing
// the current pid into it. A lock held by a live agent process is a fatal
// error the operator resolves; a lock left behind by a dead process is
// reclaimed and the acquisition retried once.
func acquireRunLock(ctx context.Context, installRoot string) (*runLock, error) {
	path := lockPath(installRoot)

	if err := os.MkdirAll(filepath.Dir(path), stagingDirectoryPermissions); err != nil {
		return nil, fmt.Errorf("prepare lock directory: %w", err)
	}

	if err := createLockFile(path); err == nil {
		return &runLock{path: path}, nil
	} else if !os.IsExist(err) {
		return nil, fmt.Errorf("create lock file: %w", err)
	}

	if !lockIsStale(ctx, path) {
		return nil, fmt.Errorf("%s: %w", path, errLockHeld)
	}

	logger.WarnKV(ctx, "Reclaiming stale agent lock", "path", path)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale lock: %w", err)
	}

	if err := createLockFile(path); err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%s: %w", path, errLockHeld)
		}

		return nil, fmt.Errorf("create lock file: %w", err)
	}

	return &runLock{path: path}, nil
}

// release removes the lock file. It is safe to call on every exit path.
func (l *runLock) release(ctx context.Context) {
	if l == nil {
		return
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		logger.ErrorKV(ctx, "Failed to release agent lock", "path", l.path, "error", err)
	}
}

// lockPath derives the lock file location from the install root.
func lockPath(installRoot string) string {
	return filepath.Clean(installRoot) + ".lock"
}

// createLockFile creates the lock exclusively and records the current pid.
func createLockFile(path string) error {
	file, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_EXCL, lockFilePermissions)
	if err != nil {
		return err
	}

	_, writeErr := file.WriteString(strconv.Itoa(os.Getpid()))

	if closeErr := file.Close(); writeErr == nil {
		writeErr = closeErr
	}

	return writeErr
}

// lockIsStale reports whether the lock file at path belongs to a process that
// is no longer a live agent. A lock with unreadable or malformed contents is
// stale, and so is one whose pid is gone or has been recycled by an unrelated
// executable.
func lockIsStale(ctx context.Context, path string) bool {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return true
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil {
		return true
	}

	process, err := ps.FindProcess(pid)
	if err != nil || process == nil {
		return true
	}

	ownName := filepath.Base(os.Args[0])
	if process.Executable() != ownName {
		logger.WarnKV(ctx, "Lock pid belongs to another executable",
			"pid", pid,
			"executable", process.Executable())

		return true
	}

	return false
}
