// ABOUTME: Allowlist recipient matching: exact email, wildcard domain, normalized phone
// ABOUTME: An empty allowlist means the key is unrestricted

package policy

import "strings"

// MatchesAllowlist reports whether a recipient matches any pattern. Patterns
// are exact addresses or domain wildcards like "*@acme.com". Empty pattern
// lists match everything.
func MatchesAllowlist(patterns []string, recipient string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if matchesPattern(p, recipient) {
			return true
		}
	}
	return false
}

func matchesPattern(pattern, recipient string) bool {
	pattern = strings.TrimSpace(pattern)
	if after, ok := strings.CutPrefix(pattern, "*@"); ok {
		return strings.HasSuffix(strings.ToLower(recipient), "@"+strings.ToLower(after))
	}
	if looksLikePhone(pattern) && looksLikePhone(recipient) {
		return normalizePhone(pattern) == normalizePhone(recipient)
	}
	return strings.EqualFold(pattern, recipient)
}

// looksLikePhone is a loose heuristic: starts with + or a digit, contains at
// least 7 digits, and only phone punctuation.
func looksLikePhone(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	first := s[0]
	if first != '+' && (first < '0' || first > '9') {
		return false
	}
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return digits >= 7
}

// normalizePhone strips everything except digits, including the leading +,
// so "+1 (555) 123-4567" and "1-555-123-4567" compare equal.
func normalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
