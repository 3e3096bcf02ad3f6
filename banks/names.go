package banks

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Gateway codes as sent by the aggregator, mapped to display names.
var bankNames = map[string]string{
	"MBBANK":      "MB Bank",
	"MB":          "MB Bank",
	"VCB":         "Vietcombank",
	"VIETCOMBANK": "Vietcombank",
	"TCB":         "Techcombank",
	"TECHCOMBANK": "Techcombank",
	"BIDV":        "BIDV",
	"ACB":         "ACB",
	"VPB":         "VPBank",
	"VPBANK":      "VPBank",
	"TPB":         "TPBank",
	"TPBANK":      "TPBank",
	"MSB":         "MSB",
	"SHB":         "SHB",
	"VIB":         "VIB",
	"SACOMBANK":   "Sacombank",
	"STB":         "Sacombank",
	"AGRIBANK":    "Agribank",
	"VIETINBANK":  "VietinBank",
	"CTG":         "VietinBank",
	"MOMO":        "MoMo",
	"ZALOPAY":     "ZaloPay",
	"VNPAY":       "VNPay",
}

// Short codes differ from each other by one letter (ACB, VCB), so only long
// codes are matched approximately.
const (
	fuzzyMinLen  = 5
	fuzzyMaxDist = 2
)

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]`)

// Code canonicalizes a gateway name: "MB Bank" and "mbbank" both become "MBBANK".
func Code(gateway string) string {
	return nonAlnum.ReplaceAllString(strings.ToUpper(strings.TrimSpace(gateway)), "")
}

// BankName returns the display name for a gateway code. Misspelt long codes
// resolve to the nearest known code; unknown codes are returned unchanged.
func BankName(gateway string) string {
	code := Code(gateway)
	if name, ok := bankNames[code]; ok {
		return name
	}
	if len(code) >= fuzzyMinLen {
		bestKey, bestDist := "", fuzzyMaxDist+1
		for known := range bankNames {
			if len(known) < fuzzyMinLen {
				continue
			}
			d := levenshtein.ComputeDistance(code, known)
			if d < bestDist || (d == bestDist && known < bestKey) {
				bestKey, bestDist = known, d
			}
		}
		if bestKey != "" {
			return bankNames[bestKey]
		}
	}
	return strings.TrimSpace(gateway)
}

// Mask hides all but the last four characters of an account number.
func Mask(accountNumber string) string {
	n := AccountNumber(accountNumber)
	if len(n) <= 4 {
		return n
	}
	return strings.Repeat("*", len(n)-4) + n[len(n)-4:]
}

// Last4 returns the suffix used to match incoming account numbers.
func Last4(accountNumber string) string {
	n := AccountNumber(accountNumber)
	if len(n) <= 4 {
		return n
	}
	return n[len(n)-4:]
}

// AccountNumber strips separators from an account number.
func AccountNumber(accountNumber string) string {
	return nonAlnum.ReplaceAllString(strings.ToUpper(accountNumber), "")
}
