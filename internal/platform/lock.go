package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrAlreadyLocked is returned when another process holds the lock
var ErrAlreadyLocked = errors.New("another flowstate host is already running")

// InstanceLock is an exclusive OS-level file lock. It is released by
// Release or when the process exits.
type InstanceLock struct {
	path string
	file *os.File
}

// AcquireInstanceLock takes a non-blocking exclusive lock on path and
// writes the current PID into it.
func AcquireInstanceLock(path string) (*InstanceLock, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create lock directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := lockFile(file); err != nil {
		file.Close()
		return nil, err
	}

	if err := file.Truncate(0); err == nil {
		file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}

	return &InstanceLock{path: path, file: file}, nil
}

// Path returns the lock file location
func (l *InstanceLock) Path() string {
	return l.path
}

// Release unlocks and closes the lock file. The file itself is left in
// place; removing it would race with a process about to lock it.
func (l *InstanceLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := unlockFile(l.file)
	closeErr := l.file.Close()
	l.file = nil
	return errors.Join(unlockErr, closeErr)
}
