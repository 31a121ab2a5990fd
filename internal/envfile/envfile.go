// Package envfile reads dotenv files that supply a service's environment.
package envfile

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/conn-castle/service-install/internal/messages"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load reads and parses the dotenv file at path.
func Load(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf(messages.EnvfileReadFileFmt, path, err)
	}
	env, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf(messages.EnvfileInvalidFileFmt, path, err)
	}
	return env, nil
}

// ValidKey reports whether key can be exported to a service environment.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// Parse reads dotenv content into a key-value map. Later assignments win.
func Parse(content string) (map[string]string, error) {
	env := make(map[string]string)
	if content == "" {
		return env, nil
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		key, value, ok, err := parseLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf(messages.EnvfileLineErrorFmt, lineNo, err)
		}
		if !ok {
			continue
		}
		env[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf(messages.EnvfileReadFailedFmt, err)
	}
	return env, nil
}

// parseLine returns the assignment on line, or ok=false for blanks and comments.
func parseLine(line string) (key string, value string, ok bool, err error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false, nil
	}
	trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "export "))

	before, after, found := strings.Cut(trimmed, "=")
	key = strings.TrimSpace(before)
	if !found || key == "" {
		return "", "", false, fmt.Errorf(messages.EnvfileExpectedKeyValue)
	}
	if !ValidKey(key) {
		return "", "", false, fmt.Errorf(messages.EnvfileInvalidKeyFmt, key)
	}

	value = strings.TrimSpace(after)
	switch {
	case strings.HasPrefix(value, `"`):
		value, err = parseDoubleQuoted(value)
	case strings.HasPrefix(value, `'`):
		value, err = parseSingleQuoted(value)
	default:
		value = stripInlineComment(value)
	}
	if err != nil {
		return "", "", false, err
	}
	return key, value, true, nil
}

// stripInlineComment drops a " #" comment from an unquoted value.
func stripInlineComment(value string) string {
	for i := 1; i < len(value); i++ {
		if value[i] == '#' && (value[i-1] == ' ' || value[i-1] == '\t') {
			return strings.TrimSpace(value[:i])
		}
	}
	return value
}

func parseDoubleQuoted(value string) (string, error) {
	closing := closingDoubleQuote(value)
	if closing < 0 {
		return "", fmt.Errorf(messages.EnvfileUnterminatedQuotedValue)
	}
	if err := checkQuotedSuffix(value[closing+1:]); err != nil {
		return "", err
	}
	return unescape(value[1:closing]), nil
}

func parseSingleQuoted(value string) (string, error) {
	closing := strings.IndexByte(value[1:], '\'')
	if closing < 0 {
		return "", fmt.Errorf(messages.EnvfileUnterminatedQuotedValue)
	}
	closing++
	if err := checkQuotedSuffix(value[closing+1:]); err != nil {
		return "", err
	}
	return value[1:closing], nil
}

// closingDoubleQuote returns the index of the first unescaped quote after the opening one.
func closingDoubleQuote(value string) int {
	escaped := false
	for i := 1; i < len(value); i++ {
		if escaped {
			escaped = false
			continue
		}
		switch value[i] {
		case '\\':
			escaped = true
		case '"':
			return i
		}
	}
	return -1
}

// checkQuotedSuffix allows only whitespace and a comment after a closing quote.
func checkQuotedSuffix(suffix string) error {
	trimmed := strings.TrimSpace(suffix)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil
	}
	return fmt.Errorf(messages.EnvfileInvalidQuotedSuffix)
}

// unescape decodes \\, \", \n and \r inside a double-quoted value.
func unescape(escaped string) string {
	var b strings.Builder
	b.Grow(len(escaped))
	for i := 0; i < len(escaped); i++ {
		if escaped[i] == '\\' && i+1 < len(escaped) {
			switch escaped[i+1] {
			case '\\', '"':
				b.WriteByte(escaped[i+1])
				i++
				continue
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case 'r':
				b.WriteByte('\r')
				i++
				continue
			}
		}
		b.WriteByte(escaped[i])
	}
	return b.String()
}
