package apierr

import "regexp"

var (
	urlCredsRe  = regexp.MustCompile(`(?i)(https?://)[^/\s:@]+:[^/\s@]+@`)
	keyValueRe  = regexp.MustCompile(`(?i)\b(api_token|password|token)(\s*=\s*)[^\s&"']+`)
	authValueRe = regexp.MustCompile(`(?i)\b(Bearer|Basic)\s+[A-Za-z0-9+/=._~-]+`)
)

// Sanitize strips credentials from a message before it reaches logs or
// terminal output. URL userinfo, api_token=/password=/token= values, and
// Bearer/Basic authorization values are redacted. Machine-readable fields
// such as code= pass through untouched.
func Sanitize(msg string) string {
	msg = urlCredsRe.ReplaceAllString(msg, "${1}***:***@")
	msg = keyValueRe.ReplaceAllString(msg, "${1}${2}***")
	msg = authValueRe.ReplaceAllString(msg, "${1} ***")
	return msg
}
