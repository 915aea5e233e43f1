package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"card-server/internal/tracking/events"
)

// emailPattern is deliberately minimal: local@domain.tld. Anything the
// pattern rejects degrades to an absent field rather than failing the event.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]{2,}$`)

var digitsOnly = regexp.MustCompile(`\D`)

const (
	// Brazilian national numbers: 2-digit area code plus 8 or 9 digits.
	brCountryCode = "55"

	minPhoneDigits = 8
	maxPhoneDigits = 15

	// sessionBucket collapses anonymous visitors into the same pseudonymous
	// id for the duration of a logical session.
	sessionBucket = time.Hour
)

// Normalize canonicalizes and hashes the identity fields of an event.
// It is a pure function over its inputs: invalid fields degrade to an
// absent marker, never an error, because partial identity is still
// valuable for scoring. The returned ExternalIDHash is always non-empty.
func Normalize(raw events.RawIdentity, evCtx events.Context, now time.Time) events.NormalizedIdentity {
	var normalized events.NormalizedIdentity

	if email, ok := normalizeEmail(raw.Email); ok {
		normalized.EmailHash = hashSHA256(email)
		normalized.Coverage.HasEmail = true
	}

	if phone, ok := normalizePhone(raw.Phone); ok {
		normalized.PhoneHash = hashSHA256(phone)
		normalized.Coverage.HasPhone = true
	}

	if externalID := strings.TrimSpace(raw.ExternalID); externalID != "" {
		normalized.ExternalIDHash = hashSHA256(externalID)
		normalized.Coverage.HasExternalID = true
	} else {
		normalized.ExternalIDHash = hashSHA256(fallbackExternalID(raw, evCtx, now))
	}

	return normalized
}

// normalizeEmail trims, lowercases and validates the minimal
// local@domain.tld shape.
func normalizeEmail(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !emailPattern.MatchString(email) {
		return "", false
	}
	return email, true
}

// normalizePhone strips punctuation and reconstructs an E.164 number,
// assuming Brazilian national numbers when no country code is present.
func normalizePhone(phone string) (string, bool) {
	digits := digitsOnly.ReplaceAllString(phone, "")
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", false
	}

	switch {
	case strings.HasPrefix(digits, brCountryCode) && len(digits) >= 12:
		// Already carries the country code.
		return "+" + digits, true
	case len(digits) == 10 || len(digits) == 11:
		// National number with a 2-digit area code.
		return "+" + brCountryCode + digits, true
	default:
		// Assume the caller supplied an international number without the plus.
		return "+" + digits, true
	}
}

// fallbackExternalID synthesizes a deterministic pseudonymous identifier
// from whatever identity or context is available plus a coarse time bucket,
// so repeated calls within the same logical session collapse to one id.
func fallbackExternalID(raw events.RawIdentity, evCtx events.Context, now time.Time) string {
	bucket := now.UTC().Truncate(sessionBucket).Unix()

	if email, ok := normalizeEmail(raw.Email); ok {
		return fmt.Sprintf("em:%s:%d", email, bucket)
	}
	if phone, ok := normalizePhone(raw.Phone); ok {
		return fmt.Sprintf("ph:%s:%d", phone, bucket)
	}
	return fmt.Sprintf("ua:%s|%s:%d", evCtx.IP, evCtx.UserAgent, bucket)
}

// hashSHA256 returns the lowercase hex SHA-256 digest. Hex keeps the hash
// interoperable with the attribution API's advanced matching format.
func hashSHA256(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
