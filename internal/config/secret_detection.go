package config

import "regexp"

var (
	secretKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|passwd|authorization|credential)`)
	bearerPattern    = regexp.MustCompile(`(?i)^bearer\s+[a-z0-9_\-\.\/+=]{8,}`)
)

// SecretLikeKeys returns the sorted keys of env whose values look like
// literal secrets.
func SecretLikeKeys(env map[string]string) []string {
	var out []string
	for _, key := range sortedKeys(env) {
		value := env[key]
		if bearerPattern.MatchString(value) || (secretKeyPattern.MatchString(key) && len(value) >= 8) {
			out = append(out, key)
		}
	}
	return out
}
