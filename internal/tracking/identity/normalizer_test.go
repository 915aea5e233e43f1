package identity

import (
	"testing"
	"time"

	"card-server/internal/tracking/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC)

func TestNormalizeEmailCaseAndWhitespaceInvariant(t *testing.T) {
	variants := []string{
		"A@B.com",
		"a@b.com ",
		"  a@B.COM",
		"a@b.com",
	}

	var hashes []string
	for _, v := range variants {
		n := Normalize(events.RawIdentity{Email: v}, events.Context{}, testNow)
		require.True(t, n.Coverage.HasEmail, "email %q should normalize", v)
		hashes = append(hashes, n.EmailHash)
	}

	for i := 1; i < len(hashes); i++ {
		assert.Equal(t, hashes[0], hashes[i], "variant %d should hash identically", i)
	}
}

func TestNormalizeEmailRejectsMalformed(t *testing.T) {
	for _, email := range []string{"", "no-at-sign", "a@b", "two@@signs.com", "spaces in@local.com"} {
		n := Normalize(events.RawIdentity{Email: email}, events.Context{}, testNow)
		assert.False(t, n.Coverage.HasEmail, "email %q should be rejected", email)
		assert.Empty(t, n.EmailHash)
	}
}

func TestNormalizePhonePunctuationInvariant(t *testing.T) {
	variants := []string{
		"(11) 98765-4321",
		"11987654321",
		"11 98765 4321",
		"+55 11 98765-4321",
		"5511987654321",
	}

	var hashes []string
	for _, v := range variants {
		n := Normalize(events.RawIdentity{Phone: v}, events.Context{}, testNow)
		require.True(t, n.Coverage.HasPhone, "phone %q should normalize", v)
		hashes = append(hashes, n.PhoneHash)
	}

	for i := 1; i < len(hashes); i++ {
		assert.Equal(t, hashes[0], hashes[i], "variant %q should hash identically", variants[i])
	}
}

func TestNormalizePhoneCanonicalForm(t *testing.T) {
	got, ok := normalizePhone("(11) 98765-4321")
	require.True(t, ok)
	assert.Equal(t, "+5511987654321", got)
}

func TestNormalizePhoneRejectsOutOfRange(t *testing.T) {
	for _, phone := range []string{"", "1234567", "12345678901234567890"} {
		n := Normalize(events.RawIdentity{Phone: phone}, events.Context{}, testNow)
		assert.False(t, n.Coverage.HasPhone, "phone %q should be rejected", phone)
	}
}

func TestExternalIDHashNeverEmpty(t *testing.T) {
	cases := []struct {
		name string
		raw  events.RawIdentity
		ctx  events.Context
	}{
		{"caller supplied id", events.RawIdentity{ExternalID: "user-42"}, events.Context{}},
		{"email only", events.RawIdentity{Email: "a@b.com"}, events.Context{}},
		{"phone only", events.RawIdentity{Phone: "11987654321"}, events.Context{}},
		{"context only", events.RawIdentity{}, events.Context{IP: "203.0.113.9", UserAgent: "Mozilla/5.0"}},
		{"nothing at all", events.RawIdentity{}, events.Context{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := Normalize(tc.raw, tc.ctx, testNow)
			assert.NotEmpty(t, n.ExternalIDHash)
		})
	}
}

func TestFallbackExternalIDStableWithinSession(t *testing.T) {
	ctx := events.Context{IP: "203.0.113.9", UserAgent: "Mozilla/5.0"}

	first := Normalize(events.RawIdentity{}, ctx, testNow)
	second := Normalize(events.RawIdentity{}, ctx, testNow.Add(10*time.Minute))
	assert.Equal(t, first.ExternalIDHash, second.ExternalIDHash,
		"same visitor within the session bucket should collapse to one id")

	later := Normalize(events.RawIdentity{}, ctx, testNow.Add(2*time.Hour))
	assert.NotEqual(t, first.ExternalIDHash, later.ExternalIDHash,
		"a new session bucket should produce a new pseudonymous id")
}

func TestCallerExternalIDPreferredOverFallback(t *testing.T) {
	withID := Normalize(events.RawIdentity{ExternalID: "user-42", Email: "a@b.com"}, events.Context{}, testNow)
	require.True(t, withID.Coverage.HasExternalID)

	same := Normalize(events.RawIdentity{ExternalID: "user-42"}, events.Context{}, testNow.Add(48*time.Hour))
	assert.Equal(t, withID.ExternalIDHash, same.ExternalIDHash,
		"caller-supplied ids must not depend on the time bucket")
}

func TestPlaintextNeverInOutput(t *testing.T) {
	n := Normalize(events.RawIdentity{
		Email: "buyer@example.com",
		Phone: "(11) 98765-4321",
	}, events.Context{}, testNow)

	for _, hash := range []string{n.EmailHash, n.PhoneHash, n.ExternalIDHash} {
		assert.NotContains(t, hash, "buyer@example.com")
		assert.NotContains(t, hash, "98765")
		assert.Len(t, hash, 64, "hashes are hex-encoded SHA-256")
	}
}
