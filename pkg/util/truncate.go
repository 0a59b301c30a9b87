package util

// TruncateString bounds s to at most max runes, reporting whether anything
// was cut. A non-positive max yields an empty string
func TruncateString(s string, max int) (string, bool) {
	if max <= 0 {
		return "", s != ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s, false
	}
	return string(runes[:max]), true
}
