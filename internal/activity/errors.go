package activity

import "errors"

var (
	// ErrUnauthorized: the caller's scope does not permit the operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidEventType: the event type is not {entity}.{action} shaped.
	ErrInvalidEventType = errors.New("invalid event type")
	// ErrPayloadTooLarge: the payload exceeds the configured limit.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrInvalidPayload: the payload is not valid JSON.
	ErrInvalidPayload = errors.New("payload is not valid json")
	// ErrSubscriptionClosed: the subscription was already terminated.
	ErrSubscriptionClosed = errors.New("subscription closed")
	// ErrInvalidFilter: the filter expression failed to compile.
	ErrInvalidFilter = errors.New("invalid filter expression")
)

// ValidateEventType checks the {entity}.{action} shape: at least two
// non-empty dot-separated segments of lowercase letters, digits and
// underscores.
func ValidateEventType(eventType string) error {
	segs := 0
	start := 0
	for i := 0; i <= len(eventType); i++ {
		if i == len(eventType) || eventType[i] == '.' {
			if i == start {
				return ErrInvalidEventType
			}
			segs++
			start = i + 1
			continue
		}
		c := eventType[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' {
			return ErrInvalidEventType
		}
	}
	if segs < 2 {
		return ErrInvalidEventType
	}
	return nil
}
