package sepay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrBadSignature     = errors.New("invalid webhook signature")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside tolerance")
)

// Verifier checks HMAC-SHA256 webhook signatures. The signed message is the raw
// body, or "<timestamp>.<body>" when a millisecond timestamp header is sent.
type Verifier struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

// Enabled reports whether a secret is configured.
func (v Verifier) Enabled() bool { return v.Secret != "" }

// Sign returns the hex signature a sender with secret would attach.
func Sign(secret string, body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	if timestamp != "" {
		mac.Write([]byte(timestamp))
		mac.Write([]byte("."))
	}
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify returns nil when signature matches body. A timestamp further than
// Tolerance from now is rejected even when the signature is valid.
func (v Verifier) Verify(body []byte, signature, timestamp string) error {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		return ErrMissingSignature
	}
	timestamp = strings.TrimSpace(timestamp)
	if timestamp != "" {
		ms, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return ErrStaleTimestamp
		}
		now := time.Now
		if v.Now != nil {
			now = v.Now
		}
		diff := now().Sub(time.UnixMilli(ms))
		if diff < 0 {
			diff = -diff
		}
		if v.Tolerance > 0 && diff > v.Tolerance {
			return ErrStaleTimestamp
		}
	}

	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return ErrBadSignature
	}
	want, _ := hex.DecodeString(Sign(v.Secret, body, timestamp))
	if !hmac.Equal(got, want) {
		return ErrBadSignature
	}
	return nil
}
