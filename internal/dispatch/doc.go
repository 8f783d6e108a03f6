// Package dispatch runs a campaign over an ordered list of recipients.
//
// For each recipient the engine derives the idempotency key for today,
// skips recipients already in the ledger, renders the message, and sends it
// through the gateway with a fixed number of attempts and a fixed backoff
// between them. Successful deliveries are recorded in the ledger. A throttle
// delay separates consecutive recipients, never after the last one.
//
// Recipient states:
//
//	pending -> skipped
//	pending -> sending -> sent
//	pending -> sending -> failed
//	pending -> render_failed
//
// The engine is single-threaded: the gateway is never called concurrently.
// Cancelling the context stops the run at the next suspension point (backoff
// sleep, throttle sleep or gateway call); the ledger is then persisted on a
// best-effort basis and Run returns an error wrapping ErrInterrupted.
package dispatch
