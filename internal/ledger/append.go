// Package ledger implements the shared append-only sidecar files: the
// cross-process append-with-lock primitive, the HITL decisions log, and the
// structured diagnostics log.
//
// Sidecars are shared by every agent process working in the same workspace,
// so writes serialize through an exclusive-create lockfile. Reads are
// lock-free and tolerate partial or garbled lines.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	lockSuffix    = ".lock"
	lockAttempts  = 8
	lockBackoff   = 25 * time.Millisecond
)

// AppendWithLock appends content to the file at path, serialized against
// other processes via a sidecar "<path>.lock" file created with
// O_CREATE|O_EXCL. The parent directory is created if needed.
//
// On lock contention the write backs off (25ms × attempt) and retries up to
// 8 attempts; after exhaustion the lock error is propagated so callers can
// report the failure without blocking forever.
func AppendWithLock(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ledger: create dir for %s: %w", path, err)
	}

	lockPath := path + lockSuffix
	var lockErr error
	for attempt := 1; attempt <= lockAttempts; attempt++ {
		lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			if os.IsExist(err) {
				lockErr = err
				time.Sleep(lockBackoff * time.Duration(attempt))
				continue
			}
			return fmt.Errorf("ledger: create lock %s: %w", lockPath, err)
		}
		lock.Close()

		appendErr := appendBytes(path, content)
		if rmErr := os.Remove(lockPath); rmErr != nil && appendErr == nil {
			appendErr = fmt.Errorf("ledger: release lock %s: %w", lockPath, rmErr)
		}
		return appendErr
	}
	return fmt.Errorf("ledger: lock %s held after %d attempts: %w", lockPath, lockAttempts, lockErr)
}

// AppendLine appends content plus a trailing newline via AppendWithLock.
func AppendLine(path string, content []byte) error {
	buf := make([]byte, 0, len(content)+1)
	buf = append(buf, content...)
	buf = append(buf, '\n')
	return AppendWithLock(path, buf)
}

func appendBytes(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(content); err != nil {
		return fmt.Errorf("ledger: append to %s: %w", path, err)
	}
	return nil
}
