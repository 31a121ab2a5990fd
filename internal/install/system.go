package install

import (
	"os"
	"os/user"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/sys/unix"

	"github.com/conn-castle/service-install/internal/fsutil"
)

// System abstracts the filesystem and identity operations the installer needs.
// Tests substitute it to inject failures and to pretend to be unprivileged.
type System interface {
	Lstat(name string) (os.FileInfo, error)
	Stat(name string) (os.FileInfo, error)
	EvalSymlinks(path string) (string, error)
	Executable() (string, error)
	Geteuid() int
	Getegid() int
	HomeDir() (string, error)
	LookupUser(name string) (*user.User, error)
	// Access checks path against the W_OK/X_OK style bits in mode.
	Access(path string, mode uint32) error
	// Noexec reports whether path lives on a filesystem mounted noexec.
	Noexec(path string) (bool, error)
	Mkdir(path string, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	Remove(name string) error
	RemoveAll(path string) error
	Chmod(name string, mode os.FileMode) error
	Chown(name string, uid int, gid int) error
	CopyFileAtomic(src string, dst string, perm os.FileMode) error
	SameContent(a string, b string) (bool, error)
}

// RealSystem implements System using the OS.
type RealSystem struct{}

// Lstat returns a FileInfo describing the named file without following symlinks.
func (RealSystem) Lstat(name string) (os.FileInfo, error) {
	return os.Lstat(name)
}

// Stat returns a FileInfo describing the named file.
func (RealSystem) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

// EvalSymlinks returns path with all symbolic links resolved.
func (RealSystem) EvalSymlinks(path string) (string, error) {
	return filepath.EvalSymlinks(path)
}

// Executable returns the path of the running executable.
func (RealSystem) Executable() (string, error) {
	return os.Executable()
}

// Geteuid returns the effective user id.
func (RealSystem) Geteuid() int {
	return os.Geteuid()
}

// Getegid returns the effective group id.
func (RealSystem) Getegid() int {
	return os.Getegid()
}

// HomeDir returns the invoking user's home directory.
func (RealSystem) HomeDir() (string, error) {
	return homedir.Dir()
}

// LookupUser looks up a user by name.
func (RealSystem) LookupUser(name string) (*user.User, error) {
	return user.Lookup(name)
}

// Access checks the calling process's permission on path.
func (RealSystem) Access(path string, mode uint32) error {
	return unix.Access(path, mode)
}

// Noexec reports whether the filesystem holding path is mounted noexec.
func (RealSystem) Noexec(path string) (bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return false, err
	}
	return st.Flags&unix.ST_NOEXEC != 0, nil
}

// Mkdir creates a single directory.
func (RealSystem) Mkdir(path string, perm os.FileMode) error {
	return os.Mkdir(path, perm)
}

// MkdirAll creates a directory named path, along with any necessary parents.
func (RealSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Remove removes a file or empty directory.
func (RealSystem) Remove(name string) error {
	return os.Remove(name)
}

// RemoveAll removes path and any children it contains.
func (RealSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// Chmod changes the mode of the named file.
func (RealSystem) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(name, mode)
}

// Chown changes the numeric uid and gid of the named file.
func (RealSystem) Chown(name string, uid int, gid int) error {
	return os.Chown(name, uid, gid)
}

// CopyFileAtomic copies src over dst through a temp file and rename.
func (RealSystem) CopyFileAtomic(src string, dst string, perm os.FileMode) error {
	return fsutil.CopyFileAtomic(src, dst, perm)
}

// SameContent reports whether two files are byte-for-byte identical.
func (RealSystem) SameContent(a string, b string) (bool, error) {
	return fsutil.SameContent(a, b)
}
