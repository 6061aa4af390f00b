// Package signature verifies HMAC-SHA256 webhook signatures.
package signature

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
	ErrNoSecret         = errors.New("webhook secret not configured")
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrMissingTimestamp = errors.New("missing webhook timestamp")
	ErrBadTimestamp     = errors.New("invalid webhook timestamp")
	ErrStale            = errors.New("webhook timestamp outside replay window")
	ErrMismatch         = errors.New("invalid webhook signature")
)

// Sign returns hex(HMAC-SHA256(secret, msg)).
func Sign(secret string, msg []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(msg)
	return hex.EncodeToString(h.Sum(nil))
}

// ZoomSignature returns the x-zm-signature value for a body signed at timestamp.
func ZoomSignature(secret, timestamp string, body []byte) string {
	msg := make([]byte, 0, len(body)+len(timestamp)+4)
	msg = append(msg, "v0:"...)
	msg = append(msg, timestamp...)
	msg = append(msg, ':')
	msg = append(msg, body...)
	return "v0=" + Sign(secret, msg)
}

// ZoomVerifier checks the v0 scheme: "v0=" + hex(HMAC(secret, "v0:" + ts + ":" + body)).
type ZoomVerifier struct {
	// Window bounds |now - ts|. Zero disables the check.
	Window time.Duration
	Now    func() time.Time
}

// Verify validates a Zoom signature header against the raw body.
func (v ZoomVerifier) Verify(secret string, body []byte, sig, timestamp string) error {
	if secret == "" {
		return ErrNoSecret
	}
	if sig == "" {
		return ErrMissingSignature
	}
	if timestamp == "" {
		return ErrMissingTimestamp
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrBadTimestamp
	}
	if v.Window > 0 {
		now := time.Now
		if v.Now != nil {
			now = v.Now
		}
		skew := now().Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > v.Window {
			return ErrStale
		}
	}
	expected := ZoomSignature(secret, timestamp, body)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrMismatch
	}
	return nil
}

// VerifyBody validates a plain hex HMAC-SHA256 of the raw body, with an optional "sha256=" prefix.
func VerifyBody(secret string, body []byte, sig string) error {
	if secret == "" {
		return ErrNoSecret
	}
	sig = strings.TrimPrefix(strings.TrimSpace(sig), "sha256=")
	if sig == "" {
		return ErrMissingSignature
	}
	expected := Sign(secret, body)
	if !hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected)) {
		return ErrMismatch
	}
	return nil
}
