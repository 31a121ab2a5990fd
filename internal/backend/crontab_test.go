package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conn-castle/service-install/internal/testutil"
)

func TestParseCrontabDropsListHeader(t *testing.T) {
	text := "# DO NOT EDIT THIS FILE - edit the master and reinstall.\n# (- installed on Thu)\n# (Cron version)\n0 0 * * * /bin/true\n"

	doc := parseCrontab(text)

	assert.Equal(t, []string{"0 0 * * * /bin/true"}, doc.lines)
	assert.Equal(t, "0 0 * * * /bin/true\n", doc.String())
}

func TestParseCrontabEmpty(t *testing.T) {
	doc := parseCrontab("\n")
	assert.Empty(t, doc.lines)
	assert.Equal(t, "", doc.String())
}

func TestRemoveManagedKeepsNeighbours(t *testing.T) {
	doc := parseCrontab("a\n" + Marker("svc") + "\n@reboot /bin/svc\nb\n")

	at, ok := doc.removeManaged("svc")
	require.True(t, ok)
	assert.Equal(t, 1, at)
	assert.Equal(t, []string{"a", "b"}, doc.lines)

	doc.insertLines(at, "x", "y")
	assert.Equal(t, []string{"a", "x", "y", "b"}, doc.lines)
}

func TestCronRuleRoundTrip(t *testing.T) {
	rule := cronRule{
		when:       "*/15 * * * *",
		workingDir: "/srv/my app",
		env:        map[string]string{"TOKEN": "a'b", "LEVEL": "debug"},
		execPath:   "/usr/local/bin/agent",
		args:       []string{"--pct", "10%", "with space"},
	}

	parsed, err := parseCronRule(rule.String())
	require.NoError(t, err)

	assert.Equal(t, rule, parsed)
}

func TestParseCronRuleDisabledAndNickname(t *testing.T) {
	parsed, err := parseCronRule(disabledPrefix + "@reboot /opt/bin/x --flag")
	require.NoError(t, err)

	assert.Equal(t, "@reboot", parsed.when)
	assert.True(t, parsed.onBoot())
	assert.Equal(t, "/opt/bin/x", parsed.execPath)
	assert.Equal(t, []string{"--flag"}, parsed.args)
}

func TestParseCronRuleRejectsShortLine(t *testing.T) {
	_, err := parseCronRule("0 0 * *")
	require.Error(t, err)
}

func TestCommandCrontabReadWrite(t *testing.T) {
	dir := t.TempDir()
	c := CommandCrontab{Path: testutil.WriteFakeCrontab(t, dir)}
	ctx := context.Background()

	content, err := c.Read(ctx, "svc")
	require.NoError(t, err)
	assert.Empty(t, content)

	require.NoError(t, c.Write(ctx, "svc", "@reboot /bin/true\n"))
	content, err = c.Read(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, "@reboot /bin/true\n", content)

	content, err = c.Read(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, content)

	calls, err := os.ReadFile(filepath.Join(dir, "calls"))
	require.NoError(t, err)
	assert.Equal(t, "-u svc -l\n-u svc -\n-u svc -l\n-l\n", string(calls))
}

func TestCommandCrontabFailure(t *testing.T) {
	c := CommandCrontab{Path: testutil.WriteScript(t, t.TempDir(), "crontab", "echo permission denied >&2\nexit 1\n")}

	_, err := c.Read(context.Background(), "svc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")

	err = c.Write(context.Background(), "svc", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}
