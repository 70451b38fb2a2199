package services

import (
	"strings"
	"unicode"
	"unicode/utf8"

	strip "github.com/grokify/html-strip-tags-go"
	"golang.org/x/text/unicode/norm"
)

var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Sanitize removes markup and control characters from untrusted input.
// Tags are stripped first; any stray angle brackets left over are dropped so
// downstream renderers never see markup. Output is NFC-normalized and
// trimmed. Newlines and tabs survive.
func Sanitize(s string) string {
	s = strip.StripTags(s)
	s = newlines.Replace(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '<' || r == '>':
			return -1
		case r == '\n' || r == '\t':
			return r
		case r == utf8.RuneError, unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(norm.NFC.String(s))
}

// SanitizeName is Sanitize for single-line fields: whitespace runs collapse
// to one space and the result is clipped to max runes (max <= 0 disables).
func SanitizeName(s string, max int) string {
	s = strings.Join(strings.Fields(Sanitize(s)), " ")
	if max > 0 && utf8.RuneCountInString(s) > max {
		s = strings.TrimSpace(string([]rune(s)[:max]))
	}
	return s
}
