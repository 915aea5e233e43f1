package delivery

import "card-server/internal/tracking/events"

// WirePayload is the request body sent to the attribution API, one event
// per request.
type WirePayload struct {
	PixelID string      `json:"pixel_id"`
	Data    []WireEvent `json:"data"`
}

// WireEvent is one conversion event on the wire.
type WireEvent struct {
	Event      string         `json:"event"`
	EventID    string         `json:"event_id"`
	EventTime  int64          `json:"event_time"`
	User       WireUser       `json:"user"`
	Properties WireProperties `json:"properties"`
}

// WireUser carries only hashed identity plus raw network context. Plaintext
// email and phone never reach this struct.
type WireUser struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	ExternalID  string `json:"external_id"`
	IP          string `json:"ip,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	TTCLID      string `json:"ttclid,omitempty"`
	TTP         string `json:"ttp,omitempty"`
	Country     string `json:"country,omitempty"`
}

// WireProperties carries the commerce metadata of the event.
type WireProperties struct {
	ContentID   string  `json:"content_id,omitempty"`
	ContentName string  `json:"content_name,omitempty"`
	ContentType string  `json:"content_type,omitempty"`
	Value       float64 `json:"value,omitempty"`
	Currency    string  `json:"currency,omitempty"`
	OrderID     string  `json:"order_id,omitempty"`
	PageURL     string  `json:"page_url,omitempty"`
	ReferrerURL string  `json:"referrer_url,omitempty"`
}

// buildPayload projects a scored event onto the wire format.
func buildPayload(pixelID string, ev events.ScoredEvent) WirePayload {
	return WirePayload{
		PixelID: pixelID,
		Data: []WireEvent{
			{
				Event:     string(ev.Name),
				EventID:   ev.EventID,
				EventTime: ev.EventTime.Unix(),
				User: WireUser{
					Email:       ev.Identity.EmailHash,
					PhoneNumber: ev.Identity.PhoneHash,
					ExternalID:  ev.Identity.ExternalIDHash,
					IP:          ev.Context.IP,
					UserAgent:   ev.Context.UserAgent,
					TTCLID:      ev.Context.TTCLID,
					TTP:         ev.Context.TTP,
					Country:     ev.Context.Country,
				},
				Properties: WireProperties{
					ContentID:   ev.Properties.ContentID,
					ContentName: ev.Properties.ContentName,
					ContentType: ev.Properties.ContentType,
					Value:       ev.Properties.Value,
					Currency:    ev.Properties.Currency,
					OrderID:     ev.Properties.OrderID,
					PageURL:     ev.Context.PageURL,
					ReferrerURL: ev.Context.ReferrerURL,
				},
			},
		},
	}
}
