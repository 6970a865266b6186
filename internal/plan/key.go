package plan

import (
	"net/url"
	"strings"
)

// KeyPolicy controls how page identifiers from both domains are made comparable.
// GA4 reports paths ("/pricing") while the crawl reports absolute URLs
// ("https://example.com/pricing/").
type KeyPolicy struct {
	StripHost         bool
	StripQuery        bool
	TrimTrailingSlash bool
	CaseInsensitive   bool
}

func DefaultKeyPolicy() KeyPolicy {
	return KeyPolicy{StripHost: true, StripQuery: true, TrimTrailingSlash: true, CaseInsensitive: true}
}

// Normalize maps a raw page identifier to its join key. The site root always
// normalises to "/".
func (p KeyPolicy) Normalize(raw string) string {
	key := strings.TrimSpace(raw)
	if key == "" {
		return ""
	}

	if p.StripHost {
		if i := strings.Index(key, "://"); i >= 0 {
			if u, err := url.Parse(key); err == nil && u.Host != "" {
				key = u.EscapedPath()
				if u.RawQuery != "" {
					key += "?" + u.RawQuery
				}
				if u.Fragment != "" {
					key += "#" + u.Fragment
				}
			} else {
				rest := key[i+3:]
				if j := strings.IndexAny(rest, "/?#"); j >= 0 {
					key = rest[j:]
				} else {
					key = ""
				}
			}
		}
	}

	if p.StripQuery {
		if i := strings.IndexAny(key, "?#"); i >= 0 {
			key = key[:i]
		}
	}

	if key == "" || key[0] == '?' || key[0] == '#' {
		key = "/" + key
	}

	if p.TrimTrailingSlash {
		path, suffix := key, ""
		if i := strings.IndexAny(key, "?#"); i >= 0 {
			path, suffix = key[:i], key[i:]
		}
		for len(path) > 1 && strings.HasSuffix(path, "/") {
			path = strings.TrimSuffix(path, "/")
		}
		key = path + suffix
	}

	if p.CaseInsensitive {
		key = strings.ToLower(key)
	}
	return key
}

// NormalizeAll normalises and de-duplicates keys, preserving first-seen order.
func (p KeyPolicy) NormalizeAll(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		k := p.Normalize(r)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
