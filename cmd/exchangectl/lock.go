package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
)

const lockName = ".exchangectl.lock"

// dirLock keeps two dumps from appending to the same daily files.
type dirLock struct {
	path string
	file *os.File
}

type lockOwner struct {
	PID       int       `json:"pid"`
	Symbol    string    `json:"symbol"`
	StartedAt time.Time `json:"started_at"`
}

// acquireDirLock takes the lock in dir. A lock left behind by a process
// that is no longer running is taken over.
func acquireDirLock(dir, symbol string, now time.Time) (*dirLock, error) {
	path := filepath.Join(dir, lockName)
	for attempts := 0; attempts < 3; attempts++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			owner := lockOwner{PID: os.Getpid(), Symbol: symbol, StartedAt: now.UTC()}
			if err := writeLockOwner(f, owner); err != nil {
				_ = f.Close()
				_ = os.Remove(path)
				return nil, err
			}
			return &dirLock{path: path, file: f}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		owner, err := readLockOwner(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("output dir locked: %s (unreadable owner: %v)", path, err)
		}
		if processAlive(owner.PID) {
			return nil, fmt.Errorf("output dir locked by pid %d dumping %s since %s", owner.PID, owner.Symbol, owner.StartedAt.Format(time.RFC3339))
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("output dir locked: %s", path)
}

func writeLockOwner(f *os.File, owner lockOwner) error {
	data, err := json.Marshal(owner)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

func readLockOwner(path string) (lockOwner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lockOwner{}, err
	}
	var owner lockOwner
	if err := json.Unmarshal(data, &owner); err != nil {
		return lockOwner{}, err
	}
	return owner, nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, os.ErrProcessDone) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "operation not permitted") || strings.Contains(msg, "permission denied")
}

func (l *dirLock) release() error {
	if l == nil || l.path == "" {
		return nil
	}
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
	err := os.Remove(l.path)
	l.path = ""
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
