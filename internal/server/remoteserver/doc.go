// Package remoteserver accepts remote-execution clients over TCP.
//
// Each accepted connection goes through the transport handshake with a
// timeout, then runs two loops. The request loop reads requests and hands
// them to a handler.Handler. The response loop drains a bounded queue and
// writes responses back. When the queue is full, producers block, which in
// turn stops the request loop from reading more input.
//
// Client state is removed exactly once per connection, after its request
// loop ends. Connection errors never stop the server; only a listener
// failure does.
package remoteserver
