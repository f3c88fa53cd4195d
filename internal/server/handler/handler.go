// Package handler executes client requests against the local machine.
//
// A Handler receives one decoded request at a time from a connection's
// request loop. It answers through a Responder, the connection's bounded
// response queue. Work that outlives the request, such as a running process
// streaming its output, retains the Responder so the queue stays open until
// that work is done.
package handler

import (
	"context"

	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/internal/server/state"
)

// Responder delivers responses to one client.
type Responder interface {
	// Send enqueues resp, blocking while the queue is full. It fails with
	// domain.ErrQueueClosed once the connection can no longer deliver.
	Send(ctx context.Context, resp *domain.Response) error

	// Retain registers an additional sender for background work. The
	// returned func must be called exactly once when that work ends.
	Retain() (release func(), err error)
}

// Handler processes one request for the client identified by clientID.
// A returned error ends the client's connection; failures of individual
// payload entries are reported to the client instead.
type Handler interface {
	Process(ctx context.Context, clientID string, st *state.ServerState, req *domain.Request, out Responder) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, clientID string, st *state.ServerState, req *domain.Request, out Responder) error

// Process calls f.
func (f HandlerFunc) Process(ctx context.Context, clientID string, st *state.ServerState, req *domain.Request, out Responder) error {
	return f(ctx, clientID, st, req, out)
}
