package docker

import "strings"

// ParseEnvOverlay parses KEY=VALUE lines from an environment overlay file.
// Blank lines and # comments are skipped; lines without an = are ignored.
// The first = splits key from value, so values may themselves contain =.
func ParseEnvOverlay(data []byte) map[string]string {
	env := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}
