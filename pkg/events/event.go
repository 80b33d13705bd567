package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "SUBSCRIPTION_RENEWED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Billing lifecycle event codes. Subjects on the wire are the lowercased
// form prefixed with "billing." (see pkg/nats).
const (
	TypeSubscriptionActivated    = "SUBSCRIPTION_ACTIVATED"
	TypeSubscriptionTrialStarted = "SUBSCRIPTION_TRIAL_STARTED"
	TypeSubscriptionRenewed      = "SUBSCRIPTION_RENEWED"
	TypeSubscriptionPastDue      = "SUBSCRIPTION_PAST_DUE"
	TypeSubscriptionDowngraded   = "SUBSCRIPTION_DOWNGRADED"
	TypeSubscriptionCanceled     = "SUBSCRIPTION_CANCELED"
)

// BaseEvent helps embed common logic if needed,
// strictly creating valid implementations is preferred though.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NewSubscriptionEvent builds a billing lifecycle event for the given user
// and subscription.
func NewSubscriptionEvent(eventType, userId, subscriptionId, planSlug string, extra map[string]interface{}) Event {
	data := map[string]interface{}{
		"user_id":         userId,
		"subscription_id": subscriptionId,
		"plan_slug":       planSlug,
	}
	for k, v := range extra {
		data[k] = v
	}
	return BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}
