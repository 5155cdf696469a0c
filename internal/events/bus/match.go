package bus

import "strings"

// subjectMatches reports whether subject matches a NATS-style pattern.
func subjectMatches(pattern, subject string) bool {
	if !strings.ContainsAny(pattern, "*>") {
		return pattern == subject
	}

	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")
	for i, p := range pTokens {
		if p == ">" {
			return i == len(pTokens)-1 && len(sTokens) > i
		}
		if i >= len(sTokens) {
			return false
		}
		if p != "*" && p != sTokens[i] {
			return false
		}
	}
	return len(pTokens) == len(sTokens)
}
