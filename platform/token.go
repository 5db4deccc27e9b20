package platform

import "regexp"

var expoTokenPattern = regexp.MustCompile(`^Expo(nent)?PushToken\[[A-Za-z0-9_-]+\]$`)

// ValidToken reports whether token has the Expo push token shape. Anything
// else is treated as no token at all.
func ValidToken(token string) bool {
	return expoTokenPattern.MatchString(token)
}

// Redact shortens a token for log output.
func Redact(token string) string {
	if len(token) <= 20 {
		return token
	}
	return token[:20] + "..."
}
