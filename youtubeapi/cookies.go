package youtubeapi

import (
	"os"
	"strings"
)

// LoadCookieHeader reads a Netscape-format cookie file and returns a Cookie
// header value with cookies scoped to youtube.com. The bundle is opaque to the
// rest of the system: it is read once at client construction and passed
// through on every request. Missing or unreadable files yield an empty string.
func LoadCookieHeader(path string) string {
	if path == "" {
		return ""
	}
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	pairs := make([]string, 0, 16)
	for _, ln := range strings.Split(string(data), "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "#") {
			continue
		}
		// Netscape format: domain\tflag\tpath\tsecure\texpiry\tname\tvalue
		cols := strings.Split(ln, "\t")
		if len(cols) < 7 {
			continue
		}
		domain, name, value := cols[0], cols[5], cols[6]
		if !cookieDomainMatches(domain) || name == "" {
			continue
		}
		value = strings.NewReplacer(";", "", "\n", "", "\r", "").Replace(value)
		pairs = append(pairs, name+"="+value)
	}
	return strings.Join(pairs, "; ")
}

func cookieDomainMatches(domain string) bool {
	domain = strings.TrimPrefix(domain, ".")
	return domain == "youtube.com" || strings.HasSuffix(domain, ".youtube.com") ||
		domain == "google.com" || strings.HasSuffix(domain, ".google.com")
}
