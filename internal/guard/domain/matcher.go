package domain

import "strings"

// Matches reports whether any pattern, compared case-insensitively, occurs
// anywhere inside url. There is no anchoring and no host-boundary awareness:
// "able.com" matches "https://disable.com/". Empty patterns never match.
func Matches(url string, patterns ...[]string) bool {
	lower := strings.ToLower(url)
	for _, list := range patterns {
		for _, p := range list {
			if p == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(p)) {
				return true
			}
		}
	}
	return false
}
