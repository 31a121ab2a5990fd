package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"
)

const (
	// disabledPrefix comments out a managed rule without losing it.
	disabledPrefix = "#disabled: "
	// listHeader starts the three comment lines some crontab implementations
	// prepend to `crontab -l` output.
	listHeader      = "# DO NOT EDIT THIS FILE"
	listHeaderLines = 3
	noCrontabText   = "no crontab for"
)

var envName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Crontab reads and replaces a user's crontab.
type Crontab interface {
	// Read returns the crontab of user, or "" when the user has none.
	Read(ctx context.Context, user string) (string, error)
	Write(ctx context.Context, user string, content string) error
}

// CommandCrontab drives the crontab(1) program. An empty user means the
// invoking user.
type CommandCrontab struct {
	// Path is the crontab binary; empty means look it up on PATH.
	Path string
}

func (c CommandCrontab) binary() (string, error) {
	if c.Path != "" {
		return c.Path, nil
	}
	return exec.LookPath("crontab")
}

func crontabArgs(user string, tail ...string) []string {
	if user == "" {
		return tail
	}
	return append([]string{"-u", user}, tail...)
}

// Read runs `crontab -l`.
func (c CommandCrontab) Read(ctx context.Context, user string) (string, error) {
	bin, err := c.binary()
	if err != nil {
		return "", err
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, crontabArgs(user, "-l")...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if strings.Contains(stderr.String(), noCrontabText) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Write replaces the crontab through `crontab -`, which installs it atomically.
func (c CommandCrontab) Write(ctx context.Context, user string, content string) error {
	bin, err := c.binary()
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, crontabArgs(user, "-")...)
	cmd.Stdin = strings.NewReader(content)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// crontabDoc is a crontab split into lines. Managed entries are a marker line
// immediately followed by their rule.
type crontabDoc struct {
	lines []string
}

func parseCrontab(text string) crontabDoc {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return crontabDoc{}
	}
	lines := strings.Split(text, "\n")
	if strings.HasPrefix(lines[0], listHeader) && len(lines) >= listHeaderLines {
		lines = lines[listHeaderLines:]
	}
	return crontabDoc{lines: lines}
}

func (d crontabDoc) String() string {
	if len(d.lines) == 0 {
		return ""
	}
	return strings.Join(d.lines, "\n") + "\n"
}

// findManaged returns the index of name's marker line. The rule is the next
// line; a marker on the last line is reported as corrupt.
func (d crontabDoc) findManaged(name string) (int, bool, error) {
	for i, line := range d.lines {
		if found, ok := markerName(line); ok && found == name {
			if i+1 >= len(d.lines) || strings.TrimSpace(d.lines[i+1]) == "" {
				return i, true, errCorruptEntry
			}
			return i, true, nil
		}
	}
	return 0, false, nil
}

// findRule returns the index of a line holding rule, enabled or disabled.
func (d crontabDoc) findRule(rule string) (int, bool) {
	for i, line := range d.lines {
		if line == rule || line == disabledPrefix+rule {
			return i, true
		}
	}
	return 0, false
}

var errCorruptEntry = errors.New("marker without rule")

// removeManaged drops name's marker and rule and returns where they were.
func (d *crontabDoc) removeManaged(name string) (int, bool) {
	i, ok, err := d.findManaged(name)
	if !ok {
		return 0, false
	}
	end := i + 2
	if err != nil {
		end = i + 1
	}
	d.lines = append(d.lines[:i:i], d.lines[end:]...)
	return i, true
}

func (d *crontabDoc) appendLines(lines ...string) {
	d.lines = append(d.lines, lines...)
}

// insertLines inserts lines before index at.
func (d *crontabDoc) insertLines(at int, lines ...string) {
	rest := append([]string(nil), d.lines[at:]...)
	d.lines = append(append(d.lines[:at], lines...), rest...)
}

func isDisabled(rule string) bool {
	return strings.HasPrefix(rule, disabledPrefix)
}

func enabledRule(rule string) string {
	return strings.TrimPrefix(rule, disabledPrefix)
}

func disabledRule(rule string) string {
	if isDisabled(rule) {
		return rule
	}
	return disabledPrefix + rule
}

// cronRule is a rendered or parsed crontab rule.
type cronRule struct {
	when       string
	workingDir string
	env        map[string]string
	execPath   string
	args       []string
}

func (r cronRule) String() string {
	words := make([]string, 0, len(r.env)+len(r.args)+4)
	if r.workingDir != "" {
		words = append(words, "cd", shellQuote(r.workingDir), "&&")
	}
	keys := make([]string, 0, len(r.env))
	for key := range r.env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		words = append(words, key+"="+shellQuote(r.env[key]))
	}
	words = append(words, shellQuote(r.execPath))
	for _, arg := range r.args {
		words = append(words, shellQuote(arg))
	}
	return r.when + " " + cronEscape(strings.Join(words, " "))
}

func (r cronRule) command() string {
	rule := r.String()
	return strings.Replace(strings.TrimPrefix(rule, r.when+" "), `\%`, "%", -1)
}

func (r cronRule) onBoot() bool {
	return r.when == "@reboot"
}

// parseCronRule parses a rule produced by cronRule.String, and tolerates the
// general `<when> <command>` shape for foreign rules.
func parseCronRule(line string) (cronRule, error) {
	line = strings.TrimSpace(enabledRule(line))
	var when, command string
	if strings.HasPrefix(line, "@") {
		when, command, _ = strings.Cut(line, " ")
	} else {
		fields := strings.Fields(line)
		if len(fields) < 6 {
			return cronRule{}, errors.New("expected five time fields and a command")
		}
		when = strings.Join(fields[:5], " ")
		rest := line
		for range 5 {
			rest = strings.TrimLeft(rest, " \t")
			rest = rest[strings.IndexAny(rest, " \t"):]
		}
		command = rest
	}
	words, err := shellSplit(strings.ReplaceAll(strings.TrimSpace(command), `\%`, "%"))
	if err != nil {
		return cronRule{}, err
	}
	if len(words) == 0 {
		return cronRule{}, errors.New("empty command")
	}

	rule := cronRule{when: when}
	if len(words) >= 3 && words[0] == "cd" && words[2] == "&&" {
		rule.workingDir = words[1]
		words = words[3:]
	}
	for len(words) > 0 {
		key, value, ok := strings.Cut(words[0], "=")
		if !ok || !envName.MatchString(key) {
			break
		}
		if rule.env == nil {
			rule.env = map[string]string{}
		}
		rule.env[key] = value
		words = words[1:]
	}
	if len(words) == 0 {
		return cronRule{}, errors.New("no command after environment")
	}
	rule.execPath = words[0]
	rule.args = words[1:]
	return rule, nil
}
