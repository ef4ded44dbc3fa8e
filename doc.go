// Package imagesource produces pixel data for many observers from a single
// encoded image stream, decoding it at most once at a time.
//
// Sources
// A Source owns a registry of observers and at most one active Decoder.
// Subscribing an interested observer while nothing runs asks the Scheduler to
// admit a decode attempt. The attempt latches the interested observers present
// when it starts; observers arriving later are served by the next attempt.
//
// Notifications
//   - Progress carries a codec.Block of decoded rows.
//   - Completed and Error are terminal. Each latched observer receives exactly
//     one of them per attempt, after which its subscription is retired.
//   - Callbacks run on scheduler workers and never under the source lock.
//
// Supersession
// Flush and Close supersede the active attempt. It keeps running until the
// codec returns and closes its stream, but its outcome is discarded.
//
// Trust
// The first non-empty TrustTag registered on a Source is recorded for its
// lifetime. Registering a different tag fails with ErrTrustViolation and
// terminates every tagged subscription.
//
// Backpressure
// A rejected admission fails every interested observer with
// ErrAdmissionRejected. Nothing is retried until a new Subscribe or Flush.
package imagesource
