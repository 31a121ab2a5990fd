package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/conn-castle/service-install/internal/install"
	"github.com/conn-castle/service-install/internal/messages"
)

// Version, Commit, and BuildDate are overridden at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Exit codes by failure kind.
const (
	exitFailure  = 1
	exitSpec     = 2
	exitLocation = 3
	exitConflict = 4
	exitBackend  = 5
	exitRollback = 6
	exitPartial  = 7
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, newApp(os.Stdin, os.Stdout, os.Stderr), os.Args)
	stop()
	os.Exit(code)
}

// SilentExitError reports an exit code without emitting error output.
type SilentExitError struct {
	Code int
}

func (e *SilentExitError) Error() string {
	return fmt.Sprintf("exit %d", e.Code)
}

// execute runs the CLI command with the provided args.
func execute(ctx context.Context, a *app, args []string) error {
	cmd := newRootCmd(a)
	cmd.Version = versionString()
	cmd.SetVersionTemplate(messages.VersionTemplate)
	if len(args) > 1 {
		cmd.SetArgs(args[1:])
	} else {
		cmd.SetArgs([]string{})
	}
	cmd.SetIn(a.stdin)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	return cmd.ExecuteContext(ctx)
}

// runMain executes the CLI and maps the outcome to an exit code.
func runMain(ctx context.Context, a *app, args []string) int {
	err := execute(ctx, a, args)
	if err == nil {
		return 0
	}
	var silent *SilentExitError
	if errors.As(err, &silent) {
		return silent.Code
	}
	_, _ = fmt.Fprintln(a.stderr, err)
	return exitCode(err)
}

func exitCode(err error) int {
	switch install.KindOf(err) {
	case install.KindSpec:
		return exitSpec
	case install.KindLocation:
		return exitLocation
	case install.KindConflict:
		return exitConflict
	case install.KindBackend:
		return exitBackend
	case install.KindRollback:
		return exitRollback
	case install.KindAggregate:
		return exitPartial
	default:
		return exitFailure
	}
}

// versionString formats Version with optional commit and build date metadata.
func versionString() string {
	meta := []string{}
	if Commit != "" && Commit != "unknown" {
		meta = append(meta, fmt.Sprintf(messages.VersionCommitFmt, Commit))
	}
	if BuildDate != "" && BuildDate != "unknown" {
		meta = append(meta, fmt.Sprintf(messages.VersionBuildFmt, BuildDate))
	}
	if len(meta) == 0 {
		return Version
	}
	return fmt.Sprintf(messages.VersionFullFmt, Version, strings.Join(meta, ", "))
}
