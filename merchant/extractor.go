// Package merchant isolates a canonical merchant name from free-text bank descriptions.
package merchant

import (
	"regexp"
	"strings"

	"money-tracker-go-be/textnorm"
)

// rule is one extraction heuristic. Rules run in slice order and the first hit wins.
type rule struct {
	name    string
	extract func(desc string) (string, bool)
}

func capture(expr string) func(string) (string, bool) {
	re := regexp.MustCompile(`(?i)` + expr)
	return func(desc string) (string, bool) {
		m := re.FindStringSubmatch(desc)
		if m == nil {
			return "", false
		}
		return m[1], true
	}
}

var rules = []rule{
	{"dash", capture(`^([A-Z0-9\s&'.]+?)\s*-\s*`)},
	{"pos_atm", capture(`^(?:POS|ATM)\s+(.+?)(?:\s+\d|$)`)},
	{"asterisk", capture(`^(.+?)\s*\*\s*`)},
	{"hash", capture(`^(.+?)\s*#\s*`)},
	{"city_state", capture(`^([A-Z][A-Z0-9\s&'.]{2,}?)(?:\s+[A-Z]{2,}){2,}`)},
	{"domain", capture(`^(?:WWW\.)?([A-Z0-9]+)\.(?:COM|NET|ORG)`)},
	{"trailing_date", capture(`^(.+?)\s+\d{8}$`)},
	{"trailing_card", capture(`^(.+?)\s+(?:CARD|XXXX)\s*\d+$`)},
	{"leading_token", capture(`^([A-Z][A-Z\s&'.]{2,}?)(?:\s+\d|\s+[^A-Z\s])`)},
	{"first_words", firstWords},
}

// Generic words that never name a merchant on their own.
var genericWords = map[string]bool{
	"PAYMENT": true, "TRANSFER": true, "WITHDRAWAL": true, "DEPOSIT": true, "TRANSACTION": true,
	"PURCHASE": true, "DEBIT": true, "CREDIT": true, "FEE": true, "CHARGE": true,
}

var allDigits = regexp.MustCompile(`^\d+$`)

func firstWords(desc string) (string, bool) {
	words := strings.Fields(desc)
	if len(words) == 0 || len(words[0]) < 3 {
		return "", false
	}
	if len(words) > 3 {
		words = words[:3]
	}
	candidate := strings.Join(words, " ")
	if len(candidate) < 3 || allDigits.MatchString(candidate) || genericWords[strings.ToUpper(candidate)] {
		return "", false
	}
	return candidate, true
}

var (
	spaces     = regexp.MustCompile(`\s+`)
	disallowed = regexp.MustCompile(`[^A-Za-z0-9\s&'.]`)
)

func clean(name string) string {
	name = spaces.ReplaceAllString(strings.TrimSpace(name), " ")
	name = disallowed.ReplaceAllString(name, "")
	name = spaces.ReplaceAllString(name, " ")
	return strings.ToUpper(strings.TrimSpace(name))
}

// Extract returns the merchant named in description, upper-cased and single-spaced.
// ok is false for blank input or when no rule recognises a merchant.
func Extract(description string) (name string, ok bool) {
	name, _, ok = ExtractWithRule(description)
	return name, ok
}

// ExtractWithRule is Extract that also reports which rule matched.
func ExtractWithRule(description string) (name, ruleName string, ok bool) {
	desc := textnorm.Normalize(description)
	if desc == "" {
		return "", "", false
	}
	for _, r := range rules {
		raw, hit := r.extract(desc)
		if !hit {
			continue
		}
		if name = clean(raw); name == "" {
			return "", r.name, false
		}
		return name, r.name, true
	}
	return "", "", false
}
