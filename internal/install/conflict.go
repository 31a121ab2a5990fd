package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/messages"
	"github.com/conn-castle/service-install/internal/procs"
)

// ConflictKind classifies what occupies the install slot.
type ConflictKind string

// Conflict kinds in increasing priority.
const (
	ConflictNone           ConflictKind = "none"
	ConflictIdenticalFile  ConflictKind = "identical-file"
	ConflictDifferentFile  ConflictKind = "different-file"
	ConflictRunningProcess ConflictKind = "running-process"
	ConflictManagedService ConflictKind = "managed-service"
)

// FileFacts is what the scanner observed about the target file.
type FileFacts struct {
	Exists    bool
	Identical bool
	Mode      os.FileMode
	UID       int
	GID       int
}

// Conflict is the classification of the install slot. Kind is the single
// variant chosen by priority; the observed facts stay available to the
// planner so it never re-reads state.
type Conflict struct {
	Kind      ConflictKind
	File      FileFacts
	Processes []procs.Process
	Existing  *backend.Existing
}

// CreatedByUs reports whether the conflicting registration carries our marker.
func (c Conflict) CreatedByUs() bool {
	return c.Existing != nil && c.Existing.Handle.CreatedByUs
}

// FileInspector is the read-only file access the scanner needs.
type FileInspector interface {
	Stat(name string) (os.FileInfo, error)
	SameContent(a string, b string) (bool, error)
}

// ScanInput names the slot to classify.
type ScanInput struct {
	Name   string
	Source string
	Target string
}

// Scan classifies the install slot. It only reads: the file, the process
// table and the backend's registrations.
func Scan(ctx context.Context, in ScanInput, files FileInspector, table procs.Table, be backend.Backend) (Conflict, error) {
	var c Conflict

	facts, err := inspectFile(files, in.Target)
	if err != nil {
		return Conflict{}, fmt.Errorf(messages.InstallScanFailedFmt, in.Target, err)
	}
	if facts.Exists {
		same, err := files.SameContent(in.Source, in.Target)
		if err != nil {
			return Conflict{}, fmt.Errorf(messages.InstallScanFailedFmt, in.Target, err)
		}
		facts.Identical = same
	}
	c.File = facts

	if c.File.Exists {
		running, err := table.Find(in.Target)
		if err != nil {
			return Conflict{}, fmt.Errorf(messages.InstallScanFailedFmt, in.Target, err)
		}
		c.Processes = running
	}

	existing, err := be.FindExisting(ctx, in.Name, in.Target)
	if err != nil {
		return Conflict{}, newError(KindBackend, nil, fmt.Errorf(messages.InstallScanFailedFmt, in.Target, err))
	}
	c.Existing = existing

	c.Kind = classify(c)
	return c, nil
}

// inspectFile stats path. A missing file yields zero facts.
func inspectFile(files FileInspector, path string) (FileFacts, error) {
	info, err := files.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return FileFacts{}, nil
	}
	if err != nil {
		return FileFacts{}, err
	}
	facts := FileFacts{Exists: true, Mode: info.Mode().Perm()}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		facts.UID, facts.GID = int(st.Uid), int(st.Gid)
	}
	return facts, nil
}

func classify(c Conflict) ConflictKind {
	switch {
	case c.Existing != nil:
		return ConflictManagedService
	case len(c.Processes) > 0:
		return ConflictRunningProcess
	case c.File.Exists && c.File.Identical:
		return ConflictIdenticalFile
	case c.File.Exists:
		return ConflictDifferentFile
	default:
		return ConflictNone
	}
}
