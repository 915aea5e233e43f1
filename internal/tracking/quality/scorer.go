package quality

import (
	"fmt"
	"net"
	"sort"
	"time"

	"card-server/internal/tracking/events"
)

// Signal names used in the score breakdown.
const (
	SignalEmail       = "email"
	SignalPhone       = "phone"
	SignalExternalID  = "external_id"
	SignalUserAgent   = "user_agent"
	SignalIP          = "ip"
	SignalClickID     = "click_id"
	SignalMetadata    = "content_metadata"
	SignalFreshness   = "timestamp_freshness"
	SignalFingerprint = "device_fingerprint"
	SignalLocale      = "locale"
)

// Default signal weights. Tuned empirically; totals above 100 are clamped,
// so adding a signal never requires rebalancing the others.
const (
	ptsEmail      = 28
	ptsPhone      = 22
	ptsExternalID = 16
	ptsUserAgent  = 10
	ptsIP         = 10
	ptsClickID    = 12
	ptsMetadata   = 8
	ptsFreshness  = 6
	ptsFingerprnt = 4
	ptsLocale     = 4

	userAgentFullLen    = 25
	userAgentPartialLen = 10

	freshnessFullBand    = 30 * time.Second
	freshnessMidBand     = 120 * time.Second
	freshnessLowBand     = 300 * time.Second
	contentIDPlaceholder = "unknown"
)

// Grade thresholds.
const (
	gradeExcellentMin = 80
	gradeGoodMin      = 60
	gradeFairMin      = 40
)

// Inputs is everything the scorer looks at. Now is injected so scoring is
// deterministic under test.
type Inputs struct {
	Identity   events.NormalizedIdentity
	Context    events.Context
	Properties events.Properties
	EventTime  time.Time
	Now        time.Time
}

// signalResult holds one evaluated signal for breakdown and recommendations.
type signalResult struct {
	name        string
	awarded     int
	max         int
	recommend   bool
	improvement string
}

// Score computes the event match quality estimate. Pure and deterministic:
// the same inputs always produce the same total, grade and breakdown.
// Missing signals forfeit points, they never produce an error or a
// negative contribution.
func Score(in Inputs) events.QualityScore {
	results := []signalResult{
		scoreEmail(in),
		scorePhone(in),
		scoreExternalID(in),
		scoreClickID(in),
		scoreUserAgent(in),
		scoreIP(in),
		scoreMetadata(in),
		scoreFreshness(in),
		scoreFingerprint(in),
		scoreLocale(in),
	}

	total := 0
	breakdown := make(map[string]int, len(results))
	for _, r := range results {
		breakdown[r.name] = r.awarded
		total += r.awarded
	}
	if total > 100 {
		total = 100
	}

	return events.QualityScore{
		Total:           total,
		Grade:           gradeFor(total),
		Breakdown:       breakdown,
		Recommendations: recommendations(results),
	}
}

// gradeFor maps a clamped total to its grade bucket.
func gradeFor(total int) events.Grade {
	switch {
	case total >= gradeExcellentMin:
		return events.GradeExcellent
	case total >= gradeGoodMin:
		return events.GradeGood
	case total >= gradeFairMin:
		return events.GradeFair
	default:
		return events.GradePoor
	}
}

// recommendations lists the zero-scoring improvable signals, ordered by
// forgone points descending.
func recommendations(results []signalResult) []string {
	var missing []signalResult
	for _, r := range results {
		if r.recommend && r.awarded == 0 {
			missing = append(missing, r)
		}
	}

	sort.SliceStable(missing, func(i, j int) bool {
		return missing[i].max > missing[j].max
	})

	recs := make([]string, 0, len(missing))
	for _, r := range missing {
		recs = append(recs, fmt.Sprintf("improve %s (+%d pts)", r.improvement, r.max))
	}
	return recs
}

func scoreEmail(in Inputs) signalResult {
	r := signalResult{name: SignalEmail, max: ptsEmail, recommend: true, improvement: "email capture"}
	if in.Identity.Coverage.HasEmail {
		r.awarded = ptsEmail
	}
	return r
}

func scorePhone(in Inputs) signalResult {
	r := signalResult{name: SignalPhone, max: ptsPhone, recommend: true, improvement: "phone capture"}
	if in.Identity.Coverage.HasPhone {
		r.awarded = ptsPhone
	}
	return r
}

func scoreExternalID(in Inputs) signalResult {
	// The normalizer guarantees a pseudonymous fallback, so this signal is
	// always awarded and never recommended.
	r := signalResult{name: SignalExternalID, max: ptsExternalID}
	if in.Identity.ExternalIDHash != "" {
		r.awarded = ptsExternalID
	}
	return r
}

func scoreClickID(in Inputs) signalResult {
	r := signalResult{name: SignalClickID, max: ptsClickID, recommend: true, improvement: "click id propagation (ttclid/ttp)"}
	if in.Context.TTCLID != "" || in.Context.TTP != "" {
		r.awarded = ptsClickID
	}
	return r
}

func scoreUserAgent(in Inputs) signalResult {
	r := signalResult{name: SignalUserAgent, max: ptsUserAgent, recommend: true, improvement: "user agent forwarding"}
	switch {
	case len(in.Context.UserAgent) >= userAgentFullLen:
		r.awarded = ptsUserAgent
	case len(in.Context.UserAgent) >= userAgentPartialLen:
		r.awarded = ptsUserAgent / 2
	}
	return r
}

func scoreIP(in Inputs) signalResult {
	r := signalResult{name: SignalIP, max: ptsIP, recommend: true, improvement: "client ip forwarding"}
	ip := net.ParseIP(in.Context.IP)
	if ip == nil {
		return r
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		// Private addresses still help a little with coarse matching.
		r.awarded = ptsIP / 2
		return r
	}
	r.awarded = ptsIP
	return r
}

func scoreMetadata(in Inputs) signalResult {
	r := signalResult{name: SignalMetadata, max: ptsMetadata, recommend: true, improvement: "order metadata completeness"}
	p := in.Properties
	if p.Value > 0 && p.Currency != "" {
		r.awarded += 3
	}
	if p.ContentID != "" && p.ContentID != contentIDPlaceholder {
		r.awarded += 2
	}
	if p.ContentName != "" {
		r.awarded += 1
	}
	if p.OrderID != "" {
		r.awarded += 2
	}
	return r
}

func scoreFreshness(in Inputs) signalResult {
	r := signalResult{name: SignalFreshness, max: ptsFreshness, recommend: true, improvement: "timestamp freshness"}
	if in.EventTime.IsZero() {
		return r
	}
	age := in.Now.Sub(in.EventTime)
	if age < 0 {
		age = -age
	}
	switch {
	case age <= freshnessFullBand:
		r.awarded = ptsFreshness
	case age <= freshnessMidBand:
		r.awarded = ptsFreshness * 2 / 3
	case age <= freshnessLowBand:
		r.awarded = ptsFreshness / 3
	}
	return r
}

func scoreFingerprint(in Inputs) signalResult {
	// Optional signal, never recommended.
	r := signalResult{name: SignalFingerprint, max: ptsFingerprnt}
	if in.Context.DeviceFingerprint != "" {
		r.awarded = ptsFingerprnt
	}
	return r
}

func scoreLocale(in Inputs) signalResult {
	// Optional signal, never recommended.
	r := signalResult{name: SignalLocale, max: ptsLocale}
	if in.Context.Timezone != "" {
		r.awarded += 2
	}
	if in.Context.Language != "" {
		r.awarded += 1
	}
	if in.Context.Country != "" {
		r.awarded += 1
	}
	return r
}
