package logger

import "strings"

// SanitizedEmail masks an email for log output, keeping just enough shape
// to correlate repeated attempts: first character of the local part and the
// TLD survive, everything else is starred.
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" {
		return "[invalid-email]"
	}

	masked := local[:1]
	if len(local) > 1 {
		masked += strings.Repeat("*", len(local)-1)
	}

	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels)-1; i++ {
		labels[i] = strings.Repeat("*", len(labels[i]))
	}

	return masked + "@" + strings.Join(labels, ".")
}

// Parameter names that mark a query string as credential-bearing. Matched
// as substrings, so "refresh_token" and "x-api-key" trip too.
var sensitiveParams = []string{
	"password",
	"token",
	"secret",
	"api_key",
	"apikey",
	"email",
	"auth",
	"csrf",
	"mfa_code",
	"backup_code",
}

// SanitizeQueryString reports whether the raw query string mentions any
// credential-bearing parameter and should be dropped from logs wholesale.
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
