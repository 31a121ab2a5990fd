// Package procs finds live processes by the executable they run and stops
// them.
package procs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

const (
	defaultGrace   = 5 * time.Second
	pollInterval   = 50 * time.Millisecond
	deletedSuffix  = " (deleted)"
	zombieState    = "Z"
	defaultProcDir = procfs.DefaultMountPoint
)

// Process is one live process.
type Process struct {
	PID     int
	Exe     string
	Cmdline []string
}

// Table is the process view the installer needs.
type Table interface {
	// Find returns the live processes executing path, excluding the caller.
	Find(path string) ([]Process, error)
	// FindByName returns the live processes whose executable base name is name.
	FindByName(name string) ([]Process, error)
	// Terminate asks pid to exit and kills it after a grace period.
	Terminate(ctx context.Context, pid int) error
}

// ProcFS reads the process table from a procfs mount.
type ProcFS struct {
	// Root is the procfs mount point; empty means /proc.
	Root string
	// Grace is how long Terminate waits after SIGTERM before SIGKILL.
	Grace time.Duration
}

// New returns a Table backed by /proc.
func New() *ProcFS {
	return &ProcFS{}
}

func (p *ProcFS) root() string {
	if p.Root == "" {
		return defaultProcDir
	}
	return p.Root
}

func (p *ProcFS) grace() time.Duration {
	if p.Grace <= 0 {
		return defaultGrace
	}
	return p.Grace
}

// list returns every process whose executable link is readable. Processes
// owned by other users are skipped when the caller lacks permission.
func (p *ProcFS) list() ([]Process, error) {
	fs, err := procfs.NewFS(p.root())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p.root(), err)
	}
	all, err := fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	self := os.Getpid()
	out := make([]Process, 0, len(all))
	for _, proc := range all {
		if proc.PID == self {
			continue
		}
		exe, err := proc.Executable()
		if err != nil || exe == "" {
			continue
		}
		if stat, err := proc.Stat(); err == nil && stat.State == zombieState {
			continue
		}
		cmdline, _ := proc.CmdLine()
		out = append(out, Process{
			PID:     proc.PID,
			Exe:     strings.TrimSuffix(exe, deletedSuffix),
			Cmdline: cmdline,
		})
	}
	return out, nil
}

// Find returns the processes executing path. Both sides are compared after
// resolving symlinks, so a process started through a link still matches.
func (p *ProcFS) Find(path string) ([]Process, error) {
	want := resolve(path)
	all, err := p.list()
	if err != nil {
		return nil, err
	}
	var out []Process
	for _, proc := range all {
		if proc.Exe == path || proc.Exe == want {
			out = append(out, proc)
		}
	}
	return out, nil
}

// FindByName returns the processes whose executable is named name.
func (p *ProcFS) FindByName(name string) ([]Process, error) {
	all, err := p.list()
	if err != nil {
		return nil, err
	}
	var out []Process
	for _, proc := range all {
		if filepath.Base(proc.Exe) == name {
			out = append(out, proc)
		}
	}
	return out, nil
}

// Terminate sends SIGTERM, waits up to the grace period for pid to exit, then
// sends SIGKILL. A process that is already gone is not an error.
func (p *ProcFS) Terminate(ctx context.Context, pid int) error {
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("signal %d: %w", pid, err)
	}
	if p.waitGone(ctx, pid, p.grace()) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	if p.waitGone(ctx, pid, p.grace()) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("process %d did not exit", pid)
}

func (p *ProcFS) waitGone(ctx context.Context, pid int, within time.Duration) bool {
	deadline := time.NewTimer(within)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if !p.alive(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return !p.alive(pid)
		case <-ticker.C:
		}
	}
}

// alive reports whether pid exists and is not a zombie waiting to be reaped.
func (p *ProcFS) alive(pid int) bool {
	if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
		return false
	}
	fs, err := procfs.NewFS(p.root())
	if err != nil {
		return true
	}
	proc, err := fs.Proc(pid)
	if err != nil {
		return false
	}
	stat, err := proc.Stat()
	if err != nil {
		return !errors.Is(err, os.ErrNotExist)
	}
	return stat.State != zombieState
}

func resolve(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}
