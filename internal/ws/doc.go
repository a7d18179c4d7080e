// Package ws is the client side of the push channel.
//
// A Manager owns one WebSocket connection and reconnects it with linear
// backoff. Inbound frames go to a Throttler, which parses them, rate limits
// delivery and keeps a bounded history. A Router projects that history by
// event kind. A Gate opens and closes the connection as the session logs in
// and out, and joins the organization channel after every connect.
package ws
