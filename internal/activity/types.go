package activity

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/tdaniel1925/easemail-redux-sub002/internal/activitylog"
)

// Scope is the account/user boundary that determines event visibility.
// It always derives from the authenticated caller, never from client input.
type Scope struct {
	AccountID string `json:"account_id"`
	UserID    string `json:"user_id,omitempty"`
}

// Event types follow the {entity}.{action} convention. The set is
// extensible; these constants cover the mutations the mail backend emits.
const (
	TypeContactCreated = "contact.created"
	TypeContactUpdated = "contact.updated"
	TypeContactDeleted = "contact.deleted"

	TypeDraftCreated = "draft.created"
	TypeDraftUpdated = "draft.updated"
	TypeDraftDeleted = "draft.deleted"

	TypeMessageCreated = "message.created"
	TypeMessageUpdated = "message.updated"
	TypeMessageDeleted = "message.deleted"

	TypeEmailAccountCreated = "email_account.created"
	TypeEmailAccountUpdated = "email_account.updated"
	TypeEmailAccountDeleted = "email_account.deleted"

	TypeEmailTemplateCreated = "email_template.created"
	TypeEmailTemplateUpdated = "email_template.updated"
	TypeEmailTemplateDeleted = "email_template.deleted"

	TypeSignatureCreated = "signature.created"
	TypeSignatureUpdated = "signature.updated"
	TypeSignatureDeleted = "signature.deleted"

	TypeWebhookCreated = "webhook.created"
	TypeWebhookUpdated = "webhook.updated"
	TypeWebhookDeleted = "webhook.deleted"

	TypeUserCreated     = "user.created"
	TypeUserUpdated     = "user.updated"
	TypeUserDeleted     = "user.deleted"
	TypeUserRoleChanged = "user.role_changed"
)

// EventRecord is the canonical shape of a persisted domain event.
// The id is assigned by the store at write time and is the sole ordering
// authority; CreatedAtMs is informational.
type EventRecord struct {
	ID          uint64          `json:"id"`
	AccountID   string          `json:"account_id"`
	UserID      string          `json:"user_id,omitempty"`
	Type        string          `json:"type"`
	EntityID    string          `json:"entity_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAtMs int64           `json:"created_at_ms"`
}

// ListOptions controls a snapshot read.
type ListOptions struct {
	// Limit bounds the page size. Zero picks the configured default; values
	// above the configured cap are clamped.
	Limit int
	// BeforeID is the exclusive pagination key: only events with id < BeforeID
	// are returned. Zero starts from the newest event.
	BeforeID uint64
	// Types restricts results to matching {entity}.{action} patterns.
	Types []string
	// Wait blocks up to this duration for new activity when the page would
	// otherwise be empty.
	Wait time.Duration
}

// SearchOptions controls a historical search.
type SearchOptions struct {
	Limit    int
	BeforeID uint64
	Types    []string
	// Filter is an optional CEL expression evaluated per event.
	Filter string
}

// SubscribeOptions controls a live subscription.
type SubscribeOptions struct {
	// Replay requests history replay before going live. ResumeAfter is the
	// last event id the client has seen; all persisted events with
	// id > ResumeAfter are delivered first, in order. ResumeAfter zero with
	// Replay set replays the full retained history.
	Replay      bool
	ResumeAfter uint64
	// Types restricts delivery to matching {entity}.{action} patterns.
	Types []string
	// Filter is an optional CEL expression evaluated per event.
	Filter string
}

// StatsInfo summarizes one account's activity log.
type StatsInfo struct {
	AccountID         string `json:"account_id"`
	FirstID           uint64 `json:"first_id"`
	LastID            uint64 `json:"last_id"`
	Count             uint64 `json:"count"`
	Bytes             uint64 `json:"bytes"`
	ActiveSubscribers int    `json:"active_subscribers"`
}

// CloseReason explains why a subscription terminated.
type CloseReason string

const (
	// CloseReasonClient: the client disconnected or unsubscribed.
	CloseReasonClient CloseReason = "client"
	// CloseReasonOverflow: the outbound buffer filled because the reader was
	// too slow; the client should reconnect and resume from its cursor.
	CloseReasonOverflow CloseReason = "overflow"
	// CloseReasonError: replay or delivery failed server-side.
	CloseReasonError CloseReason = "error"
	// CloseReasonShutdown: the server is shutting down.
	CloseReasonShutdown CloseReason = "shutdown"
)

// eventHeader is the JSON portion of a stored record header, following the
// 8-byte big-endian write timestamp.
type eventHeader struct {
	UserID   string `json:"user_id,omitempty"`
	Type     string `json:"type"`
	EntityID string `json:"entity_id,omitempty"`
}

// encodeHeader builds the stored header: ts8 then JSON metadata.
func encodeHeader(tsMs int64, userID, eventType, entityID string) ([]byte, error) {
	hb, err := json.Marshal(eventHeader{UserID: userID, Type: eventType, EntityID: entityID})
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8, 8+len(hb))
	binary.BigEndian.PutUint64(out, uint64(tsMs))
	return append(out, hb...), nil
}

// eventFromItem rebuilds an EventRecord from a decoded log entry. Returns
// false when the header is unreadable.
func eventFromItem(account string, it activitylog.Item) (EventRecord, bool) {
	if len(it.Header) < 8 {
		return EventRecord{}, false
	}
	var hdr eventHeader
	if err := json.Unmarshal(it.Header[8:], &hdr); err != nil {
		return EventRecord{}, false
	}
	return EventRecord{
		ID:          it.Seq,
		AccountID:   account,
		UserID:      hdr.UserID,
		Type:        hdr.Type,
		EntityID:    hdr.EntityID,
		Payload:     json.RawMessage(it.Payload),
		CreatedAtMs: int64(binary.BigEndian.Uint64(it.Header[:8])),
	}, true
}
