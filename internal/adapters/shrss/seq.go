package shrss

import (
	"net/url"
	"strings"
)

// ExtractSeq returns the "seq" query value of a notice link, matching the key
// case-insensitively. It returns "" when the link has no usable seq.
func ExtractSeq(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.RawQuery == "" {
		return ""
	}
	for _, pair := range strings.Split(u.RawQuery, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || !strings.EqualFold(key, "seq") {
			continue
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		return strings.TrimSpace(value)
	}
	return ""
}
