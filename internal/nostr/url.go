package nostr

import (
	"net/url"
	"strings"
)

// NormalizeRelayURL returns the canonical form of a websocket relay url
// (lowercase scheme and host, no trailing slash), or "" when the url is
// unusable: other schemes, garbage text, private-looking hosts.
func NormalizeRelayURL(relayURL string) string {
	relayURL = strings.TrimSpace(relayURL)
	if strings.Count(relayURL, "://") != 1 || strings.ContainsAny(relayURL, " +") || strings.Contains(relayURL, "%20") {
		return ""
	}

	u, err := url.Parse(relayURL)
	if err != nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "ws" && scheme != "wss" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if len(host) < 3 || isInternalHost(host) {
		return ""
	}
	if !strings.Contains(host, ".") && !isLoopbackHost(host) {
		return ""
	}

	var b strings.Builder
	b.WriteString(scheme + "://" + host)
	if port := u.Port(); port != "" {
		b.WriteString(":" + port)
	}
	if u.Path != "/" {
		b.WriteString(u.Path)
	}
	return b.String()
}

// .onion, .local and friends are unreachable from a normal client
func isInternalHost(host string) bool {
	for _, suffix := range []string{".local", ".internal", ".onion", ".localhost"} {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "::1" || strings.HasPrefix(host, "127.")
}

// NormalizeRelayURLs normalizes a list, dropping invalid entries and duplicates.
func NormalizeRelayURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		n := NormalizeRelayURL(u)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
