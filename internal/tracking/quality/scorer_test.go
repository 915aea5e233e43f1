package quality

import (
	"testing"
	"time"

	"card-server/internal/tracking/events"
	"card-server/internal/tracking/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC)

func fullInputs() Inputs {
	evCtx := events.Context{
		IP:        "203.0.113.9",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
		TTCLID:    "E.C.P.v1abcdef",
		Country:   "BR",
		Timezone:  "America/Sao_Paulo",
		Language:  "pt-BR",
	}
	return Inputs{
		Identity: identity.Normalize(events.RawIdentity{
			Email:      "buyer@example.com",
			Phone:      "(11) 98765-4321",
			ExternalID: "user-42",
		}, evCtx, testNow),
		Context: evCtx,
		Properties: events.Properties{
			ContentID:   "card-premium",
			ContentName: "Cartão Premium",
			Value:       17.99,
			Currency:    "BRL",
			OrderID:     "7d5c9a3e",
		},
		EventTime: testNow.Add(-10 * time.Second),
		Now:       testNow,
	}
}

func TestScoreDeterministic(t *testing.T) {
	in := fullInputs()

	first := Score(in)
	second := Score(in)

	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, first.Grade, second.Grade)
	assert.Equal(t, first.Breakdown, second.Breakdown)
	assert.Equal(t, first.Recommendations, second.Recommendations)
}

func TestScoreAlwaysInRange(t *testing.T) {
	cases := []Inputs{
		{},
		{Now: testNow},
		fullInputs(),
		{Identity: identity.Normalize(events.RawIdentity{}, events.Context{}, testNow), Now: testNow},
	}

	for _, in := range cases {
		score := Score(in)
		assert.GreaterOrEqual(t, score.Total, 0)
		assert.LessOrEqual(t, score.Total, 100)
	}
}

func TestScoreFullSignalsClampsTo100(t *testing.T) {
	in := fullInputs()
	in.Context.DeviceFingerprint = "fp-1"

	score := Score(in)
	assert.Equal(t, 100, score.Total)
	assert.Equal(t, events.GradeExcellent, score.Grade)
	assert.Empty(t, score.Recommendations)
}

func TestGradeThresholds(t *testing.T) {
	tests := []struct {
		total int
		want  events.Grade
	}{
		{100, events.GradeExcellent},
		{80, events.GradeExcellent},
		{79, events.GradeGood},
		{60, events.GradeGood},
		{59, events.GradeFair},
		{40, events.GradeFair},
		{39, events.GradePoor},
		{0, events.GradePoor},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, gradeFor(tt.total), "total=%d", tt.total)
	}
}

func TestPurchaseScenarioAtLeastGood(t *testing.T) {
	// Full identity, IP, user agent and a click id with value=17.99 BRL.
	score := Score(fullInputs())

	require.GreaterOrEqual(t, score.Total, 60)
	assert.Contains(t, []events.Grade{events.GradeGood, events.GradeExcellent}, score.Grade)
}

func TestPrivateIPGetsPartialCredit(t *testing.T) {
	in := Inputs{Context: events.Context{IP: "192.168.1.10"}, Now: testNow}
	score := Score(in)
	assert.Equal(t, ptsIP/2, score.Breakdown[SignalIP])

	in.Context.IP = "127.0.0.1"
	score = Score(in)
	assert.Equal(t, ptsIP/2, score.Breakdown[SignalIP])

	in.Context.IP = "203.0.113.9"
	score = Score(in)
	assert.Equal(t, ptsIP, score.Breakdown[SignalIP])

	in.Context.IP = "not-an-ip"
	score = Score(in)
	assert.Equal(t, 0, score.Breakdown[SignalIP])
}

func TestMalformedPhoneContributesZeroNotNegative(t *testing.T) {
	evCtx := events.Context{}
	in := Inputs{
		Identity: identity.Normalize(events.RawIdentity{Phone: "123"}, evCtx, testNow),
		Context:  evCtx,
		Now:      testNow,
	}

	score := Score(in)
	assert.Equal(t, 0, score.Breakdown[SignalPhone])
	assert.GreaterOrEqual(t, score.Total, 0)
}

func TestMissingValueForfeitsMetadataPointsOnly(t *testing.T) {
	in := fullInputs()
	withValue := Score(in)

	in.Properties.Value = 0
	withoutValue := Score(in)

	assert.Equal(t, withValue.Breakdown[SignalMetadata]-3, withoutValue.Breakdown[SignalMetadata])
}

func TestRecommendationsOrderedByForgonePoints(t *testing.T) {
	// No identity at all: email (28) must outrank phone (22), which must
	// outrank the click id (12).
	evCtx := events.Context{}
	in := Inputs{
		Identity: identity.Normalize(events.RawIdentity{}, evCtx, testNow),
		Context:  evCtx,
		Now:      testNow,
	}

	score := Score(in)
	require.NotEmpty(t, score.Recommendations)
	assert.Equal(t, "improve email capture (+28 pts)", score.Recommendations[0])
	assert.Equal(t, "improve phone capture (+22 pts)", score.Recommendations[1])
	assert.Contains(t, score.Recommendations, "improve click id propagation (ttclid/ttp) (+12 pts)")
}

func TestFreshnessBands(t *testing.T) {
	base := Inputs{Now: testNow}

	base.EventTime = testNow.Add(-10 * time.Second)
	assert.Equal(t, ptsFreshness, Score(base).Breakdown[SignalFreshness])

	base.EventTime = testNow.Add(-60 * time.Second)
	assert.Equal(t, ptsFreshness*2/3, Score(base).Breakdown[SignalFreshness])

	base.EventTime = testNow.Add(-200 * time.Second)
	assert.Equal(t, ptsFreshness/3, Score(base).Breakdown[SignalFreshness])

	base.EventTime = testNow.Add(-10 * time.Minute)
	assert.Equal(t, 0, Score(base).Breakdown[SignalFreshness])
}
