package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/yndnr/remotely/internal/infra/buildinfo"
	"github.com/yndnr/remotely/internal/telemetry/logger"
)

// HealthSource reports live server state for /healthz.
type HealthSource interface {
	ClientCount() int
	ProcessCount() int
}

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Metrics serves /metrics. Nil leaves the route unregistered.
	Metrics http.Handler

	// Health feeds /healthz. Nil reports only liveness.
	Health HealthSource

	// Connections reports the number of live connections.
	Connections func() int

	// Logger for access and panic logs.
	Logger logger.Logger

	// AllowList is the IP/CIDR allow list (empty = no restriction).
	AllowList []string

	// Started is the server start time used for uptime.
	Started time.Time
}

// HealthStatus is the /healthz document.
type HealthStatus struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime"`
	Clients     int    `json:"clients"`
	Processes   int    `json:"processes"`
	Connections int    `json:"connections"`
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	started := cfg.Started
	if started.IsZero() {
		started = time.Now()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:  "ok",
			Version: buildinfo.Version,
			Uptime:  time.Since(started).Round(time.Second).String(),
		}
		if cfg.Health != nil {
			status.Clients = cfg.Health.ClientCount()
			status.Processes = cfg.Health.ProcessCount()
		}
		if cfg.Connections != nil {
			status.Connections = cfg.Connections()
		}
		writeJSON(w, http.StatusOK, status)
	})
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	allow, err := ParseAllowList(cfg.AllowList)
	if err != nil {
		log.Warn("ignoring invalid allow list entries", "error", err)
	}

	return Chain(mux,
		RequestID(),
		Recover(log),
		AccessLog(log),
		NetworkACL(allow, log),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
