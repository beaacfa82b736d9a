package fsutil

import "unicode/utf8"

// WildcardMatch reports whether candidate matches pattern. '?' matches exactly
// one character and '*' matches any run of characters, including an empty
// one. Every other character matches itself, case-sensitively. There is no
// escaping and there are no character classes. An empty pattern matches
// everything.
//
// The matcher backtracks over every split point for each '*', so patterns
// with many unanchored stars can take exponential time on long candidates.
func WildcardMatch(pattern, candidate string) bool {
	if pattern == "" {
		pattern = "*"
	}
	return wildcardMatch(pattern, candidate)
}

func wildcardMatch(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '?':
			if len(s) == 0 {
				return false
			}
			_, width := utf8.DecodeRuneInString(s)
			s = s[width:]
		case '*':
			rest := pattern[1:]
			if len(rest) == 0 {
				return true
			}
			for i := 0; ; {
				if wildcardMatch(rest, s[i:]) {
					return true
				}
				if i == len(s) {
					return false
				}
				_, width := utf8.DecodeRuneInString(s[i:])
				i += width
			}
		default:
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
			s = s[1:]
		}
		pattern = pattern[1:]
	}
	return len(s) == 0
}
