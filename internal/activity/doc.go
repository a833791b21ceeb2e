// Package activity implements the domain event subsystem: validated,
// durable event emission, newest-first feed reads, historical search and
// live fan-out to bounded subscriptions.
//
// Events are scoped to an account. Within a scope the store-assigned id is
// strictly increasing and is the only ordering and pagination authority.
// Emission persists first, then fans out; a consumer that is too slow is
// disconnected (overflow) rather than allowed to stall the publisher, and
// reconnects with its last seen id to resume without gaps.
package activity
