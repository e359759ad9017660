// Package ws provides the broadcast hub and WebSocket transport for the relay.
//
// The package implements:
//   - Hub: the shared publish point that fans each message out to every live Subscription
//   - Subscription: a bounded per-consumer queue that drops its oldest message when full
//   - Conn: a gorilla/websocket connection adapted to the Transport interface
//   - Upgrader: turns HTTP requests into Conns, with an optional origin allow-list
//
// Key properties:
//   - Publish never blocks: a slow subscriber loses its own oldest messages instead
//   - All subscribers observe one global publish order
//   - Unsubscribe is idempotent and never disturbs other subscriptions
//   - Closing the hub closes every subscription's Done channel
package ws
