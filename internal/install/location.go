package install

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/messages"
)

var systemCandidates = []string{"/usr/local/bin", "/usr/bin", "/opt/bin"}

func userCandidates(home string) []string {
	return []string{
		filepath.Join(home, ".local", "bin"),
		filepath.Join(home, "bin"),
	}
}

// location is a resolved install directory. create is set when the directory
// does not exist yet and the plan has to make it.
type location struct {
	dir    string
	create bool
}

// resolveLocation returns the explicit target directory when it is usable,
// otherwise the first usable candidate for the scope.
func (inst *Installer) resolveLocation(targetDir string, scope backend.Scope) (location, error) {
	if strings.TrimSpace(targetDir) != "" {
		dir, err := filepath.Abs(targetDir)
		if err != nil {
			return location{}, newError(KindLocation, ErrNoSuitableLocation, fmt.Errorf(messages.InstallTargetDirUnusableFmt, targetDir, err))
		}
		loc, err := inst.probeDir(dir)
		if err != nil {
			return location{}, newError(KindLocation, ErrNoSuitableLocation, fmt.Errorf(messages.InstallTargetDirUnusableFmt, dir, err))
		}
		return loc, nil
	}

	candidates := systemCandidates
	if scope == backend.ScopeUser {
		home, err := inst.sys.HomeDir()
		if err != nil {
			return location{}, newError(KindLocation, ErrNoSuitableLocation, fmt.Errorf(messages.InstallNoHomeFmt, err))
		}
		candidates = userCandidates(home)
	}
	for _, dir := range candidates {
		loc, err := inst.probeDir(dir)
		if err != nil {
			inst.logger.Debug("install location rejected", "dir", dir, "reason", err)
			continue
		}
		return loc, nil
	}
	return location{}, newError(KindLocation, ErrNoSuitableLocation,
		fmt.Errorf(messages.InstallNoSuitableLocationFmt, strings.Join(candidates, ", ")))
}

// probeDir accepts dir when it is an executable-capable writable directory,
// or when it is missing and its parent is one.
func (inst *Installer) probeDir(dir string) (location, error) {
	err := inst.usableDir(dir)
	if err == nil {
		return location{dir: dir}, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return location{}, err
	}
	if parentErr := inst.usableDir(filepath.Dir(dir)); parentErr != nil {
		return location{}, err
	}
	return location{dir: dir, create: true}, nil
}

func (inst *Installer) usableDir(dir string) error {
	info, err := inst.sys.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf(messages.InstallNotDirectoryFmt, dir)
	}
	if err := inst.sys.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf(messages.InstallNotWritableFmt, dir, err)
	}
	noexec, err := inst.sys.Noexec(dir)
	if err != nil {
		return err
	}
	if noexec {
		return fmt.Errorf(messages.InstallNoexecMountFmt, dir)
	}
	return nil
}
