package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/install"
	"github.com/conn-castle/service-install/internal/lock"
	"github.com/conn-castle/service-install/internal/logging"
	"github.com/conn-castle/service-install/internal/messages"
	"github.com/conn-castle/service-install/internal/procs"
	"github.com/conn-castle/service-install/internal/terminal"
)

// app holds what every command shares. Tests replace its seams.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	logLevel  string
	logFormat string
	lockWait  time.Duration
	yes       bool

	logger     *slog.Logger
	system     install.System
	factory    backend.Factory
	procs      procs.Table
	lockDir    string
	backupRoot string
	// interactive reports whether prompts can be shown.
	interactive func() bool
	// confirm asks a yes/no question; the default renders a huh form.
	confirm func(title string) (bool, error)

	palette palette
}

// palette colours command output; every colour is disabled off a terminal.
type palette struct {
	header *color.Color
	ok     *color.Color
	warn   *color.Color
	fail   *color.Color
	added  *color.Color
	remove *color.Color
	hunk   *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		header: color.New(color.Bold),
		ok:     color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		fail:   color.New(color.FgRed, color.Bold),
		added:  color.New(color.FgGreen),
		remove: color.New(color.FgRed),
		hunk:   color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{p.header, p.ok, p.warn, p.fail, p.added, p.remove, p.hunk} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func newApp(stdin io.Reader, stdout io.Writer, stderr io.Writer) *app {
	table := procs.New()
	return &app{
		stdin:       stdin,
		stdout:      stdout,
		stderr:      stderr,
		logLevel:    "warn",
		logFormat:   logging.FormatConsole,
		lockWait:    lock.DefaultWait,
		system:      install.RealSystem{},
		factory:     backend.DefaultFactory{Procs: table},
		procs:       table,
		lockDir:     lock.DefaultDir(),
		interactive: terminal.IsInteractive,
		confirm:     confirmHuh,
		palette:     newPalette(terminal.ColorEnabled(stdout)),
	}
}

// setupLogging builds the logger from the persistent flags. Logs go to stderr
// so stdout stays parseable.
func (a *app) setupLogging() error {
	logger, err := logging.New(logging.Options{
		Level:  a.logLevel,
		Format: a.logFormat,
		Output: a.stderr,
		Color:  terminal.ColorEnabled(a.stderr),
	})
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// installer builds an Installer whose stop-process prompt follows --yes and
// terminal availability.
func (a *app) installer(diffMaxLines int) (*install.Installer, error) {
	return install.New(install.Options{
		System:       a.system,
		Backends:     a.factory,
		Procs:        a.procs,
		Prompter:     a.stopPrompter(),
		Logger:       a.logger,
		BackupRoot:   a.backupRoot,
		DiffMaxLines: diffMaxLines,
	})
}

func (a *app) stopPrompter() install.Prompter {
	switch {
	case a.yes:
		return install.PromptFuncs{ConfirmStopProcessFunc: func(procs.Process) (bool, error) { return true, nil }}
	case a.interactive():
		return install.PromptFuncs{ConfirmStopProcessFunc: func(p procs.Process) (bool, error) {
			return a.confirm(fmt.Sprintf(messages.CLIConfirmStopFmt, p.PID, p.Exe))
		}}
	default:
		return nil
	}
}
