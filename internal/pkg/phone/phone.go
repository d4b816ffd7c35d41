package phone

import "strings"

// Normalize strips formatting from a phone number and returns it in E.164 form.
// Ten-digit numbers are treated as North American and get a +1 prefix; numbers
// already starting with '+' keep their country code.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	international := strings.HasPrefix(raw, "+")

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if !international && len(digits) == 10 {
		digits = "1" + digits
	}
	return "+" + digits
}
