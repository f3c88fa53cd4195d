package handler

import (
	"context"

	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/internal/server/state"
	"github.com/yndnr/remotely/internal/telemetry/logger"
)

// DefaultOutputChunk is the read size for process output.
const DefaultOutputChunk = 4096

// DefaultMaxRead bounds the file bytes one response may carry.
const DefaultMaxRead = 16<<20 - 64<<10

// ReadLimit returns the file bytes a response may carry when one frame
// holds at most frameSize bytes. The rest is left for the envelope.
func ReadLimit(frameSize int) int64 {
	headroom := min(frameSize/4, 64<<10)
	return int64(frameSize - headroom)
}

// Local runs requests against the local filesystem and process table. It
// logs through the logger carried by the request context.
type Local struct {
	outputChunk int
	maxRead     int64
}

// Option configures a Local handler.
type Option func(*Local)

// WithOutputChunk sets the read size for process output.
func WithOutputChunk(n int) Option {
	return func(h *Local) {
		if n > 0 {
			h.outputChunk = n
		}
	}
}

// WithMaxRead sets how many file bytes one response may carry. Reads
// beyond it fail with an invalid error entry instead of producing a frame
// the transport refuses to send.
func WithMaxRead(n int64) Option {
	return func(h *Local) {
		if n > 0 {
			h.maxRead = n
		}
	}
}

// NewLocal creates a Local handler.
func NewLocal(opts ...Option) *Local {
	h := &Local{outputChunk: DefaultOutputChunk, maxRead: DefaultMaxRead}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// call carries what one payload entry needs.
type call struct {
	ctx      context.Context
	clientID string
	state    *state.ServerState
	req      *domain.Request
	out      Responder

	// budget is what is left of maxRead for this request's file reads.
	budget int64

	// after runs once the response for req is queued, so that output of
	// started processes never overtakes their proc_start entry.
	after []func()
}

// Process implements Handler. Each payload entry yields exactly one entry in
// the response, in order.
func (h *Local) Process(ctx context.Context, clientID string, st *state.ServerState, req *domain.Request, out Responder) error {
	c := &call{ctx: ctx, clientID: clientID, state: st, req: req, out: out, budget: h.maxRead}

	payload := make([]domain.ResponseData, 0, len(req.Payload))
	for _, d := range req.Payload {
		payload = append(payload, h.dispatch(c, d))
	}

	err := out.Send(ctx, domain.NewResponse(req.Tenant, req.ID, payload...))
	for _, fn := range c.after {
		fn()
	}
	if err != nil {
		return domain.ErrHandler.WithDetails("queue response").WithCause(err)
	}
	return nil
}

func (h *Local) dispatch(c *call, d domain.RequestData) domain.ResponseData {
	log := logger.L(c.ctx).With("type", string(d.Type))
	log.Debug("processing request entry", "path", d.Path)

	var (
		res domain.ResponseData
		err error
	)
	switch d.Type {
	case domain.ReqFileRead:
		res, err = fileRead(c, d)
	case domain.ReqFileReadText:
		res, err = fileReadText(c, d)
	case domain.ReqFileWrite, domain.ReqFileWriteText:
		res, err = fileWrite(d, false)
	case domain.ReqFileAppend, domain.ReqFileAppendText:
		res, err = fileWrite(d, true)
	case domain.ReqDirRead:
		res, err = dirRead(d)
	case domain.ReqDirCreate:
		res, err = dirCreate(d)
	case domain.ReqRemove:
		res, err = remove(d)
	case domain.ReqCopy:
		res, err = copyPath(d)
	case domain.ReqRename:
		res, err = rename(d)
	case domain.ReqExists:
		res, err = exists(d)
	case domain.ReqMetadata:
		res, err = metadata(d)
	case domain.ReqProcRun:
		res, err = h.procRun(c, d)
	case domain.ReqProcKill:
		res, err = procKill(c, d)
	case domain.ReqProcStdin:
		res, err = procStdin(c, d)
	case domain.ReqProcList:
		res, err = procList(c)
	case domain.ReqSystemInfo:
		res, err = systemInfo()
	default:
		err = domain.ErrUnsupportedRequest.WithDetails(string(d.Type))
	}

	if err != nil {
		log.Debug("request entry failed", "error", err)
		return domain.ErrorData(errorKind(err), err)
	}
	return res
}
