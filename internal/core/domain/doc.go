// Package domain defines the core domain models for remotely.
//
// Domain models are value objects without IO or framework coupling,
// apart from name resolution deferred to connect time. This package
// contains:
//
//   - Session: server endpoint descriptor (host, port, shared key)
//   - SecretKey: shared secret held in encrypted memory
//   - Request/Response: the message envelopes exchanged over a transport
//   - Error: coded failures shared by the transport, server and client
package domain
