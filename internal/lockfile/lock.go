// Package lockfile guards a region directory against being served by two
// upstairsd processes at once.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LockInfo is the metadata stored in daemon.lock.
type LockInfo struct {
	PID        int       `json:"pid"`
	ParentPID  int       `json:"parent_pid,omitempty"`
	RegionPath string    `json:"region_path"`
	UpstairsID string    `json:"upstairs_id"`
	Version    string    `json:"version"`
	StartedAt  time.Time `json:"started_at"`
}

// Lock represents a held lock on daemon.lock.
type Lock struct {
	file *os.File
}

// Close releases the lock; closing the descriptor releases the flock.
func (l *Lock) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Acquire attempts to acquire an exclusive lock on regionDir/daemon.lock.
// Returns ErrLocked if another upstairsd already holds it.
func Acquire(regionDir, upstairsID, version string) (*Lock, error) {
	lockPath := filepath.Join(regionDir, "daemon.lock")

	// #nosec G304 - controlled path from config
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("cannot open lock file: %w", err)
	}

	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		if err == ErrLocked {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("cannot lock file: %w", err)
	}

	info := LockInfo{
		PID:        os.Getpid(),
		ParentPID:  os.Getppid(),
		RegionPath: regionDir,
		UpstairsID: upstairsID,
		Version:    version,
		StartedAt:  time.Now().UTC(),
	}

	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	_ = enc.Encode(info)
	_ = f.Sync()

	pidFile := filepath.Join(regionDir, "daemon.pid")
	_ = os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0600)

	return &Lock{file: f}, nil
}

// TryLock attempts to acquire and immediately release the lock, reporting
// whether a daemon is currently running. It falls back to the PID file for
// daemons from before lock support existed.
func TryLock(regionDir string) (running bool, pid int) {
	lockPath := filepath.Join(regionDir, "daemon.lock")

	// #nosec G304 - controlled path from config
	f, err := os.OpenFile(lockPath, os.O_RDWR, 0)
	if err != nil {
		return checkPIDFile(regionDir)
	}
	defer func() { _ = f.Close() }()

	if err := flockExclusive(f); err != nil {
		if err == ErrLocked {
			_, _ = f.Seek(0, 0)
			var info LockInfo
			if err := json.NewDecoder(f).Decode(&info); err == nil {
				pid = info.PID
			}
			if pid == 0 {
				_, pid = checkPIDFile(regionDir)
			}
			return true, pid
		}
		return false, 0
	}
	return false, 0
}

func checkPIDFile(regionDir string) (running bool, pid int) {
	data, err := os.ReadFile(filepath.Join(regionDir, "daemon.pid"))
	if err != nil {
		return false, 0
	}
	pidVal, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0
	}
	if !isProcessRunning(pidVal) {
		return false, 0
	}
	return true, pidVal
}

// ReadLockInfo reads and parses daemon.lock.
func ReadLockInfo(regionDir string) (*LockInfo, error) {
	data, err := os.ReadFile(filepath.Join(regionDir, "daemon.lock"))
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("cannot parse lock file: %w", err)
	}
	return &info, nil
}

// Validate checks a running daemon's lock against the region this process
// expects to serve, catching the case of two regions sharing a directory
// by mistake.
func Validate(regionDir, expectedRegion string) error {
	info, err := ReadLockInfo(regionDir)
	if err != nil {
		return nil
	}
	if info.RegionPath != "" && expectedRegion != "" && info.RegionPath != expectedRegion {
		return fmt.Errorf("daemon region mismatch: lock holder serves %s but expected %s", info.RegionPath, expectedRegion)
	}
	return nil
}
