// Package textnorm folds Vietnamese text to plain lowercase ASCII letters.
package textnorm

import "strings"

var diacritics = map[rune]rune{}

func init() {
	groups := map[rune]string{
		'a': "àáạảãâầấậẩẫăằắặẳẵ",
		'e': "èéẹẻẽêềếệểễ",
		'i': "ìíịỉĩ",
		'o': "òóọỏõôồốộổỗơờớợởỡ",
		'u': "ùúụủũưừứựửữ",
		'y': "ỳýỵỷỹ",
		'd': "đ",
	}
	for base, marked := range groups {
		for _, r := range marked {
			diacritics[r] = base
		}
	}
}

// Normalize strips Vietnamese diacritics, lowercases and trims s.
// Characters outside the table only have their case folded.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if base, ok := diacritics[r]; ok {
			r = base
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// HasDiacritics reports whether s contains a character Normalize would fold.
func HasDiacritics(s string) bool {
	for _, r := range strings.ToLower(s) {
		if _, ok := diacritics[r]; ok {
			return true
		}
	}
	return false
}
