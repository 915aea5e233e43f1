package events

import "time"

// Name identifies a conversion event. The standard names mirror the
// attribution API's event catalog; any other string is forwarded as a
// custom event.
type Name string

const (
	PageView         Name = "PageView"
	ViewContent      Name = "ViewContent"
	AddToCart        Name = "AddToCart"
	InitiateCheckout Name = "InitiateCheckout"
	AddPaymentInfo   Name = "AddPaymentInfo"
	Lead             Name = "Lead"
	Contact          Name = "Contact"
	Purchase         Name = "Purchase"
)

// Properties carries the free-form commerce metadata attached to an event.
type Properties struct {
	ContentID   string  `json:"content_id,omitempty"`
	ContentName string  `json:"content_name,omitempty"`
	ContentType string  `json:"content_type,omitempty"`
	Value       float64 `json:"value,omitempty"`
	Currency    string  `json:"currency,omitempty"`
	OrderID     string  `json:"order_id,omitempty"`
}

// RawIdentity holds plaintext identity exactly as supplied by the caller.
// It is consumed synchronously by the normalizer and never persisted.
type RawIdentity struct {
	Email      string
	Phone      string
	ExternalID string
}

// Context holds the page and device signals captured once at the call
// boundary. Downstream components never branch on where a value came from.
type Context struct {
	IP                string
	UserAgent         string
	PageURL           string
	ReferrerURL       string
	TTCLID            string
	TTP               string
	Country           string
	Timezone          string
	Language          string
	DeviceFingerprint string
	EventTime         time.Time
}

// Intent is the unvalidated request to emit a conversion signal.
type Intent struct {
	Name             Name
	Properties       Properties
	Identity         RawIdentity
	Context          Context
	RequestedEventID string
}

// Coverage records which identity fields survived normalization.
type Coverage struct {
	HasEmail      bool
	HasPhone      bool
	HasExternalID bool
}

// NormalizedIdentity is the privacy-safe projection of RawIdentity.
// ExternalIDHash is non-empty for every event, so there is always a
// minimum dedupe/match key.
type NormalizedIdentity struct {
	EmailHash      string
	PhoneHash      string
	ExternalIDHash string
	Coverage       Coverage
}

// Grade buckets a quality score for dashboards and recommendations.
type Grade string

const (
	GradeExcellent Grade = "EXCELLENT"
	GradeGood      Grade = "GOOD"
	GradeFair      Grade = "FAIR"
	GradePoor      Grade = "POOR"
)

// QualityScore is the event match quality estimate for one event.
type QualityScore struct {
	Total           int            `json:"total"`
	Grade           Grade          `json:"grade"`
	Breakdown       map[string]int `json:"breakdown"`
	Recommendations []string       `json:"recommendations"`
}

// ScoredEvent is a fully normalized, scored event ready for delivery.
type ScoredEvent struct {
	EventID    string
	Name       Name
	EventTime  time.Time
	Properties Properties
	Identity   NormalizedIdentity
	Context    Context
	Quality    QualityScore
}
