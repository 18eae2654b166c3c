// Package webhooks accepts registry webhooks.
//
// Deliveries are verified (Ed25519 over "timestamp|body"), parsed into a typed
// event, and enqueued with the event id as idempotency key before the HTTP
// response is written. Workers later route the event to the registration
// handlers, so a restart between acceptance and handling loses nothing.
package webhooks
