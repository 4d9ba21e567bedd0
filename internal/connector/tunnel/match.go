package tunnel

import "strings"

const (
	tunnelDomain = "trycloudflare.com"

	// minURLLength rejects the bare domain that cloudflared prints in its
	// banner before the assigned subdomain is known.
	minURLLength = 30
)

// MatchURL extracts a quick-tunnel address from one line of cloudflared
// output. https:// is preferred over http://, which is upgraded.
func MatchURL(line string) (string, bool) {
	if !strings.Contains(line, tunnelDomain) {
		return "", false
	}

	var candidate string
	switch {
	case strings.Contains(line, "https://"):
		candidate = cut(line[strings.Index(line, "https://"):])
	case strings.Contains(line, "http://"):
		candidate = cut(line[strings.Index(line, "http://"):])
		candidate = "https://" + strings.TrimPrefix(candidate, "http://")
	default:
		return "", false
	}

	candidate = strings.TrimRight(candidate, ".,;:|")
	if len(candidate) <= minURLLength {
		return "", false
	}
	return candidate, true
}

func cut(s string) string {
	if i := strings.IndexAny(s, " |\n\r\t"); i >= 0 {
		return s[:i]
	}
	return s
}
