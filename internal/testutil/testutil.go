// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// WriteScript writes an executable /bin/sh script with body to dir/name and
// returns its path.
func WriteScript(t *testing.T, dir string, name string, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

// WriteStubWithExit writes an executable stub that exits with exitCode.
func WriteStubWithExit(t *testing.T, dir string, name string, exitCode int) string {
	t.Helper()
	return WriteScript(t, dir, name, fmt.Sprintf("exit %d\n", exitCode))
}

// WriteFakeCrontab writes a crontab(1) stand-in that keeps one table per
// user under dir. It understands `-l`, `-` and a leading `-u user`, and it
// appends each invocation's arguments to dir/calls.
func WriteFakeCrontab(t *testing.T, dir string) string {
	t.Helper()
	body := fmt.Sprintf(`state=%q
echo "$*" >> "$state/calls"
user=self
if [ "$1" = "-u" ]; then user=$2; shift 2; fi
case "$1" in
-l)
	if [ -f "$state/$user.tab" ]; then cat "$state/$user.tab"; exit 0; fi
	echo "no crontab for $user" >&2
	exit 1
	;;
-)
	cat > "$state/$user.tab"
	;;
*)
	echo "unsupported: $*" >&2
	exit 2
	;;
esac
`, dir)
	return WriteScript(t, dir, "crontab", body)
}
