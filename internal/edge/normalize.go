package edge

import "strings"

// NormalizeHostname lowercases a hostname and strips any port suffix and
// trailing dot, so cache keys and allow-list checks see one canonical form.
func NormalizeHostname(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndex(host, ":"); i != -1 {
		// Bracketed IPv6 literals keep their colons; everything after the
		// closing bracket is a port.
		if j := strings.LastIndex(host, "]"); j == -1 || i > j {
			host = host[:i]
		}
	}
	host = strings.TrimSuffix(host, ".")
	return host
}
