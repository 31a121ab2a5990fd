// Package lock serializes svcinstall runs that touch the same service.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/gofrs/flock"

	"github.com/conn-castle/service-install/internal/messages"
)

var (
	// DefaultWait bounds how long Acquire waits for a held lock.
	DefaultWait = 30 * time.Second
	pollEvery   = 100 * time.Millisecond
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._@-]`)

// Lock is an exclusive advisory lock on a per-service lock file.
type Lock struct {
	path string
	fl   *flock.Flock
}

// DefaultDir is the per-user directory holding lock files.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "service-install-"+strconv.Itoa(os.Geteuid()))
}

// FilePath returns the lock file used for name inside dir.
func FilePath(dir string, name string) string {
	return filepath.Join(dir, unsafeChars.ReplaceAllString(name, "_")+".lock")
}

// Acquire takes the lock for name, waiting up to wait. A zero wait tries once.
func Acquire(ctx context.Context, dir string, name string, wait time.Duration) (*Lock, error) {
	if name == "" {
		return nil, errors.New(messages.LockNameRequired)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf(messages.LockCreateDirFmt, dir, err)
	}
	path := FilePath(dir, name)
	fl := flock.New(path)

	if wait <= 0 {
		ok, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf(messages.LockAcquireFmt, path, err)
		}
		if !ok {
			return nil, fmt.Errorf(messages.LockHeldElsewhereFmt, path)
		}
		return &Lock{path: path, fl: fl}, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	ok, err := fl.TryLockContext(waitCtx, pollEvery)
	if ok {
		return &Lock{path: path, fl: fl}, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf(messages.LockAcquireFmt, path, ctx.Err())
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf(messages.LockAcquireFmt, path, err)
	}
	return nil, fmt.Errorf(messages.LockTimeoutFmt, path, wait)
}

// With runs fn while holding the lock for name.
func With(ctx context.Context, dir string, name string, wait time.Duration, fn func() error) (err error) {
	l, err := Acquire(ctx, dir, name, wait)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := l.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	return fn()
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and closes the lock file. The file itself is left in place.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf(messages.LockReleaseFmt, l.path, err)
	}
	return nil
}
