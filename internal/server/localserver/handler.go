package localserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yndnr/remotely/internal/infra/buildinfo"
	"github.com/yndnr/remotely/internal/server/remoteserver"
	"github.com/yndnr/remotely/internal/server/state"
	"github.com/yndnr/remotely/internal/telemetry/logger"
)

// Reply is the JSON document written for every command.
type Reply struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Status is the data of the status command.
type Status struct {
	Version     string `json:"version" yaml:"version"`
	Addr        string `json:"addr" yaml:"addr"`
	Encrypted   bool   `json:"encrypted" yaml:"encrypted"`
	Uptime      string `json:"uptime" yaml:"uptime"`
	Clients     int    `json:"clients" yaml:"clients"`
	Processes   int    `json:"processes" yaml:"processes"`
	Connections int    `json:"connections" yaml:"connections"`
	LogLevel    string `json:"log_level" yaml:"log_level"`
}

// Backend is the server surface the handler reports on.
type Backend interface {
	State() *state.ServerState
	Connections() []remoteserver.ConnInfo
}

// Handler executes local management commands.
type Handler struct {
	backend   Backend
	addr      string
	encrypted bool
	started   time.Time
	shutdown  func()
}

// NewHandler creates a handler. shutdown is called at most once per
// shutdown command and must not block.
func NewHandler(backend Backend, addr string, encrypted bool, shutdown func()) *Handler {
	return &Handler{
		backend:   backend,
		addr:      addr,
		encrypted: encrypted,
		started:   time.Now(),
		shutdown:  shutdown,
	}
}

// Execute runs one command line and returns its reply.
func (h *Handler) Execute(ctx context.Context, line string) Reply {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return errorReply(fmt.Errorf("empty command"))
	}
	cmd, args := fields[0], fields[1:]
	logger.L(ctx).Debug("local command", "command", cmd)

	switch cmd {
	case "status":
		return dataReply(h.status())
	case "clients":
		return dataReply(h.backend.State().Clients())
	case "connections":
		return dataReply(h.backend.Connections())
	case "log-level":
		return h.logLevel(ctx, args)
	case "shutdown":
		logger.L(ctx).Warn("shutdown requested over local socket")
		if h.shutdown != nil {
			h.shutdown()
		}
		return Reply{OK: true}
	default:
		return errorReply(fmt.Errorf("unknown command: %s", cmd))
	}
}

func (h *Handler) status() Status {
	st := h.backend.State()
	return Status{
		Version:     buildinfo.Version,
		Addr:        h.addr,
		Encrypted:   h.encrypted,
		Uptime:      time.Since(h.started).Round(time.Second).String(),
		Clients:     st.ClientCount(),
		Processes:   st.ProcessCount(),
		Connections: len(h.backend.Connections()),
		LogLevel:    logger.CurrentLevel(),
	}
}

func (h *Handler) logLevel(ctx context.Context, args []string) Reply {
	switch len(args) {
	case 0:
	case 1:
		if err := logger.SetLevel(args[0]); err != nil {
			return errorReply(err)
		}
		logger.L(ctx).Info("log level changed", "level", logger.CurrentLevel())
	default:
		return errorReply(fmt.Errorf("log-level takes at most one argument"))
	}
	return dataReply(map[string]string{"level": logger.CurrentLevel()})
}

func dataReply(v any) Reply {
	data, err := json.Marshal(v)
	if err != nil {
		return errorReply(err)
	}
	return Reply{OK: true, Data: data}
}

func errorReply(err error) Reply {
	return Reply{Error: err.Error()}
}
