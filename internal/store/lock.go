package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/librarian-dev/librarian/internal/logging"
)

// staleEmptyLockAfter is how long an empty lock directory (no pid file
// written yet, e.g. a crash mid-acquire) is considered abandoned.
const staleEmptyLockAfter = 2 * time.Second

// staleLockAfter is how long a lock directory whose recorded owner pid
// still reports alive is honored; past it the lock is reclaimed anyway,
// which also covers platforms where the liveness probe always says alive.
// A lock whose owner pid is dead is reclaimed at once.
const staleLockAfter = 30 * time.Second

// Lock is a held advisory workspace lock. Release it via Unlock.
type Lock struct {
	dir string
}

func lockDir(workspace string) string {
	return filepath.Join(workspace, ".librarian", "lock")
}

// AcquireLock takes the workspace advisory lock, reclaiming it if the
// prior owner is dead or the lock has gone stale.
func AcquireLock(workspace string) (*Lock, error) {
	dir := lockDir(workspace)
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return nil, fmt.Errorf("failed to prepare lock parent: %w", err)
	}

	err := os.Mkdir(dir, 0755)
	if err == nil {
		if err := writePID(dir); err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
		logging.Boot("acquired workspace lock: %s", dir)
		return &Lock{dir: dir}, nil
	}
	if !os.IsExist(err) {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	if reclaimed := tryReclaim(dir); !reclaimed {
		return nil, fmt.Errorf("workspace is locked by another process (%s)", dir)
	}

	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to acquire lock after reclaim: %w", err)
	}
	if err := writePID(dir); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	logging.Boot("reclaimed and acquired stale workspace lock: %s", dir)
	return &Lock{dir: dir}, nil
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	return os.RemoveAll(l.dir)
}

func writePID(dir string) error {
	return os.WriteFile(filepath.Join(dir, "pid"), []byte(strconv.Itoa(os.Getpid())), 0644)
}

func tryReclaim(dir string) bool {
	pidPath := filepath.Join(dir, "pid")
	data, err := os.ReadFile(pidPath)
	if err != nil {
		info, statErr := os.Stat(dir)
		if statErr != nil {
			return true
		}
		if time.Since(info.ModTime()) > staleEmptyLockAfter {
			os.RemoveAll(dir)
			return true
		}
		return false
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		os.RemoveAll(dir)
		return true
	}

	if pidAlive(pid) {
		info, statErr := os.Stat(dir)
		if statErr == nil && time.Since(info.ModTime()) > staleLockAfter {
			logging.BootWarn("lock owner pid %d appears alive past staleness threshold; reclaiming anyway", pid)
			os.RemoveAll(dir)
			return true
		}
		return false
	}

	os.RemoveAll(dir)
	return true
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// A zero signal performs no action but still reports whether the
	// process exists and is signalable. This check is accurate on unix;
	// on platforms without signal semantics os.FindProcess always
	// succeeds and this degrades to "assume alive", a documented
	// limitation of non-unix lock reclamation.
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// RecoveryResult reports the actions RecoverCorruptStore took.
type RecoveryResult struct {
	Actions   []string
	Recovered bool
}

// RecoverCorruptStore quarantines a corrupt librarian.db (and its WAL/SHM
// side files) under a timestamped suffix so a fresh bootstrap can proceed.
// Quarantined files are never auto-deleted; see SPEC_FULL.md's Open
// Question decision on retention.
func RecoverCorruptStore(workspace string) (RecoveryResult, error) {
	dir := filepath.Join(workspace, ".librarian")
	base := filepath.Join(dir, "librarian.db")
	ts := time.Now().UnixNano()

	var result RecoveryResult
	for _, suffix := range []string{"", "-wal", "-shm"} {
		src := base + suffix
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := fmt.Sprintf("%s.corrupt.%d%s", base, ts, suffix)
		if err := os.Rename(src, dst); err != nil {
			return result, fmt.Errorf("failed to quarantine %s: %w", src, err)
		}
		result.Actions = append(result.Actions, fmt.Sprintf("quarantined %s -> %s", src, dst))
	}
	result.Recovered = len(result.Actions) > 0
	return result, nil
}
