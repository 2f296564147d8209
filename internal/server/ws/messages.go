package ws

import (
	"encoding/json"

	"github.com/arbflow/arbflow/internal/domain"
)

// Message types on the realtime wire protocol. All frames are JSON text.
const (
	TypeConnected          = "CONNECTED"
	TypeNewOpportunity     = "NEW_OPPORTUNITY"
	TypeOpportunityExpired = "OPPORTUNITY_EXPIRED"
	TypePing               = "PING"
	TypePong               = "PONG"
	TypeSubscribe          = "SUBSCRIBE"
	TypeSubscribed         = "SUBSCRIBED"
	TypeError              = "ERROR"
)

// SubscriptionFilter narrows which sports/markets a client declares interest
// in. Filters are recorded per connection but broadcasts currently go to all
// authenticated clients; delivery-side filtering is not applied.
type SubscriptionFilter struct {
	Sport  string `json:"sport,omitempty"`
	Market string `json:"market,omitempty"`
}

// clientMessage is the envelope for client→server frames.
type clientMessage struct {
	Type          string               `json:"type"`
	Subscriptions []SubscriptionFilter `json:"subscriptions,omitempty"`
}

// connectedMessage acknowledges a new connection.
type connectedMessage struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	Authenticated bool   `json:"authenticated"`
}

// pongMessage answers a client PING.
type pongMessage struct {
	Type string `json:"type"`
}

// subscribedMessage acknowledges a subscription request.
type subscribedMessage struct {
	Type          string               `json:"type"`
	Subscriptions []SubscriptionFilter `json:"subscriptions"`
}

// errorMessage reports a protocol violation to the offending client only.
type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// opportunityMessage carries a newly detected opportunity.
type opportunityMessage struct {
	Type string             `json:"type"`
	Data domain.Opportunity `json:"data"`
}

// expiredMessage announces a deactivated opportunity.
type expiredMessage struct {
	Type          string `json:"type"`
	OpportunityID string `json:"opportunityId"`
}

// mustMarshal encodes a message that is known to marshal cleanly.
func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// All message types above are plain data structs; a marshal failure
		// is a programming error.
		panic(err)
	}
	return data
}
