// Package hub implements transport-agnostic fan-out of giveaway change
// events.
//
// Each subscriber owns a bounded queue; Publish performs a non-blocking send
// to every queue so one slow or dead consumer never delays the rest.
// Delivery is best-effort at-least-once per connection: a full queue is
// resolved by the configured Policy, and the session layer compensates by
// pushing the current snapshot to every subscriber on (re)connect.
//
// The hub serialises Subscribe, Unsubscribe and Publish under one lock, which
// is what makes Unsubscribe idempotent and guarantees no delivery to a handle
// after Unsubscribe returns, even when a publish was already in progress.
package hub
