package backend

import (
	"fmt"
	"strings"
)

func isShellSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("_@%+=:,./-", r)
}

// shellQuote quotes s for a POSIX shell, leaving it bare when that is safe.
func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool { return !isShellSafe(r) }) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// cronEscape escapes characters cron itself interprets inside the command field.
func cronEscape(s string) string {
	return strings.ReplaceAll(s, "%", `\%`)
}

// shellSplit splits a command line into words using POSIX shell quoting rules
// (single quotes, double quotes, backslash). Expansions are not performed.
func shellSplit(line string) ([]string, error) {
	var (
		words   []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
			inWord = true
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case quote == '"':
			switch r {
			case '"':
				quote = 0
			case '\\':
				escaped = true
			default:
				current.WriteRune(r)
			}
		case r == '\\':
			escaped = true
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote in %q", quote, line)
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash in %q", line)
	}
	if inWord {
		words = append(words, current.String())
	}
	return words, nil
}

// systemdQuote quotes s for an Exec*= or Environment= line. Specifier and
// variable expansion characters are always doubled.
func systemdQuote(s string) string {
	s = strings.ReplaceAll(s, "%", "%%")
	s = strings.ReplaceAll(s, "$", "$$")
	if s != "" && !strings.ContainsAny(s, " \t\"'\\;") {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// systemdSplit splits an ExecStart= value into words, undoing systemdQuote.
func systemdSplit(value string) ([]string, error) {
	value = strings.TrimLeft(strings.TrimSpace(value), "-@:+!")
	words, err := shellSplit(value)
	if err != nil {
		return nil, err
	}
	for i, word := range words {
		word = strings.ReplaceAll(word, "%%", "%")
		words[i] = strings.ReplaceAll(word, "$$", "$")
	}
	return words, nil
}
