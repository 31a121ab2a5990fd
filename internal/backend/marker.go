package backend

import "strings"

// MarkerPrefix starts every comment this tool embeds in an artifact it writes.
const MarkerPrefix = "# service-install managed:"

// Marker returns the marker comment for the named service.
func Marker(name string) string {
	return MarkerPrefix + " " + name
}

// HasMarker reports whether content carries a marker for any service.
func HasMarker(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), MarkerPrefix) {
			return true
		}
	}
	return false
}

// markerName extracts the service name from a marker line, if it is one.
func markerName(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, MarkerPrefix) {
		return "", false
	}
	name := strings.TrimSpace(strings.TrimPrefix(trimmed, MarkerPrefix))
	if name == "" {
		return "", false
	}
	return name, true
}
