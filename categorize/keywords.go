package categorize

import (
	"regexp"
	"strings"

	"money-tracker-go-be/textnorm"
)

const maxKeywords = 3

var stopWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`
		the a an and or but in on at to for of with by from up about into over after
		payment purchase transaction transfer
		chuyen tien thanh toan giao dich ma so ngay thang nam qua tai khoan ngan hang vnd dong`) {
		stopWords[w] = true
	}
}

var (
	nonWord   = regexp.MustCompile(`[^a-z0-9\s]`)
	numericRe = regexp.MustCompile(`^\d+$`)
)

// ExtractKeywords returns up to three distinct significant words of description, in order of appearance.
func ExtractKeywords(description string) []string {
	text := nonWord.ReplaceAllString(textnorm.Normalize(description), " ")

	seen := map[string]bool{}
	var out []string
	for _, w := range strings.Fields(text) {
		if len(w) <= 2 || stopWords[w] || numericRe.MatchString(w) || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}
