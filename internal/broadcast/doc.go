// Package broadcast fans out phase transition events to observers. Delivery
// is best effort: a subscriber that cannot keep up is dropped rather than
// applying backpressure to the publisher. A bounded replay buffer lets API
// consumers poll for events they missed.
package broadcast
