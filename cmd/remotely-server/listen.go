package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/internal/infra/buildinfo"
	"github.com/yndnr/remotely/internal/infra/confloader"
	"github.com/yndnr/remotely/internal/infra/shutdown"
	"github.com/yndnr/remotely/internal/infra/tlsroots"
	"github.com/yndnr/remotely/internal/server/config"
	"github.com/yndnr/remotely/internal/server/handler"
	"github.com/yndnr/remotely/internal/server/httpserver"
	"github.com/yndnr/remotely/internal/server/localserver"
	"github.com/yndnr/remotely/internal/server/remoteserver"
	"github.com/yndnr/remotely/internal/server/state"
	"github.com/yndnr/remotely/internal/telemetry/logger"
	"github.com/yndnr/remotely/internal/telemetry/metric"
	"github.com/yndnr/remotely/pkg/crypto/adaptive"
)

// flagKeys maps listen flags to configuration keys. Only flags given on the
// command line override the file and the environment.
var flagKeys = map[string]string{
	"host":             "server.listen.host",
	"port":             "server.listen.port",
	"use-ipv6":         "server.listen.use_ipv6",
	"shutdown-after":   "server.shutdown_after",
	"current-dir":      "server.current_dir",
	"max-msg-capacity": "server.max_msg_capacity",
	"metrics-addr":     "server.metrics.addr",
	"metrics-cert":     "server.metrics.tls.cert_file",
	"metrics-key":      "server.metrics.tls.key_file",
	"socket":           "server.local.path",
	"cipher":           "security.cipher",
	"key-file":         "security.key_file",
	"log-level":        "log.level",
	"log-format":       "log.format",
}

func listenCommand() *cli.Command {
	return &cli.Command{
		Name:  "listen",
		Usage: "Bind a port, print the session and serve",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to configuration file", EnvVars: []string{"REMOTELY_CONFIG"}},
			&cli.StringFlag{Name: "host", Usage: `Address to bind: an IP, a name, "localhost" or "any"`},
			&cli.StringFlag{Name: "port", Usage: `Port or inclusive range "start:end"; the first free port is used`},
			&cli.BoolFlag{Name: "use-ipv6", Usage: `Resolve "localhost" and "any" to IPv6`},
			&cli.DurationFlag{Name: "shutdown-after", Usage: "Stop after this long without connections (0 = never)"},
			&cli.StringFlag{Name: "current-dir", Usage: "Working directory for requests"},
			&cli.IntFlag{Name: "max-msg-capacity", Usage: "Queued responses per connection"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "Serve /metrics and /healthz on this address"},
			&cli.StringFlag{Name: "metrics-cert", Usage: "Serve metrics over HTTPS with this certificate"},
			&cli.StringFlag{Name: "metrics-key", Usage: "Key for --metrics-cert"},
			&cli.StringFlag{Name: "socket", Usage: "Local management socket path"},
			&cli.StringFlag{Name: "cipher", Usage: "Cipher: auto, aes-gcm or chacha20"},
			&cli.StringFlag{Name: "key-file", Usage: "File holding a hex key instead of a fresh one"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "text or json"},
		},
		Action: runListen,
	}
}

// loadConfig layers defaults, the file, the environment and the flags set
// on c. The loader is returned for reloading.
func loadConfig(c *cli.Context) (*config.ServerConfig, *confloader.Loader, error) {
	var opts []confloader.Option
	if path := c.String("config"); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	loader := confloader.NewLoader(opts...)

	overrides := make(map[string]any)
	for name, key := range flagKeys {
		if c.IsSet(name) {
			overrides[key] = c.Value(name)
		}
	}
	if len(overrides) > 0 {
		if err := loader.LoadMap(overrides); err != nil {
			return nil, nil, err
		}
	}

	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader, nil
}

func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// loadKey returns the configured key or a fresh one.
func loadKey(sec config.SecuritySection) (*domain.SecretKey, error) {
	switch {
	case sec.Key != "":
		return domain.SecretKeyFromHex(sec.Key)
	case sec.KeyFile != "":
		data, err := os.ReadFile(sec.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		return domain.SecretKeyFromHex(strings.TrimSpace(string(data)))
	default:
		return domain.GenerateSecretKey()
	}
}

func remoteConfig(cfg *config.ServerConfig) (*remoteserver.Config, error) {
	cipher, err := adaptive.ParseCipherType(cfg.Security.Cipher)
	if err != nil {
		return nil, err
	}
	return &remoteserver.Config{
		MaxMsgCapacity:   cfg.Server.MaxMsgCapacity,
		MaxFrameSize:     cfg.Server.MaxFrameSize,
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		Cipher:           cipher,
		RateLimit:        cfg.Server.RateLimit.PerSecond,
		RateBurst:        cfg.Server.RateLimit.Burst,
	}, nil
}

func runListen(c *cli.Context) error {
	cfg, loader, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log.Info("starting remotely-server", "version", buildinfo.Version, "commit", buildinfo.Commit,
		"config", cfg)

	key, err := loadKey(cfg.Security)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	rcfg, err := remoteConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := context.WithCancel(c.Context)
	defer stop()

	ln, err := cfg.Server.Listen.Listen(ctx)
	if err != nil {
		return err
	}
	port := uint16(ln.Addr().(*net.TCPAddr).Port)

	sess, err := domain.NewSession(domain.UnspecifiedHost, port, key)
	if err != nil {
		_ = ln.Close()
		return err
	}
	fmt.Fprintln(c.App.Writer, sess.UnprotectedString())

	if dir := cfg.Server.CurrentDir; dir != "" {
		if err := os.Chdir(dir); err != nil {
			_ = ln.Close()
			return fmt.Errorf("change directory: %w", err)
		}
	}

	st := state.New()
	metrics := metric.NewRegistry()
	metrics.MustRegister(metric.NewStateCollector(st))
	runner := handler.NewLocal(handler.WithMaxRead(handler.ReadLimit(cfg.Server.MaxFrameSize)))
	srv := remoteserver.New(rcfg, key, runner, st,
		remoteserver.WithLogger(log), remoteserver.WithMetrics(metrics))

	hooks := shutdown.NewHandler(cfg.Server.ShutdownTimeout)
	hooks.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down remote server")
		return srv.Shutdown(ctx)
	})

	if addr := cfg.Server.Metrics.Addr; addr != "" {
		if err := startHTTP(ctx, hooks, cfg, srv, metrics, log); err != nil {
			_ = ln.Close()
			return err
		}
	}
	if path := cfg.Server.Local.Path; path != "" {
		h := localserver.NewHandler(srv, ln.Addr().String(), key != nil, stop)
		local := localserver.New(path, h, log)
		if err := local.Listen(); err != nil {
			_ = ln.Close()
			return fmt.Errorf("local socket: %w", err)
		}
		go func() {
			if err := local.Serve(ctx); err != nil {
				log.Error("local socket failed", "error", err)
			}
		}()
		hooks.OnShutdown(func(ctx context.Context) error {
			log.Info("closing local socket")
			return local.Shutdown(ctx)
		})
	}
	if path := loader.FilePath(); path != "" {
		if err := watchConfig(hooks, loader, path, log); err != nil {
			log.Warn("config file not watched", "path", path, "error", err)
		}
	}

	idle := shutdown.NewIdleCoordinator(cfg.Server.ShutdownAfter)
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(ctx, ln, idle)
		stop()
	}()

	reason, err := hooks.Wait(ctx)
	serveErr := <-served
	log.Info("server stopped", "reason", reason)
	return errors.Join(serveErr, err)
}

func startHTTP(ctx context.Context, hooks *shutdown.Handler, cfg *config.ServerConfig,
	srv *remoteserver.Server, metrics *metric.Registry, log logger.Logger) error {
	addr := cfg.Server.Metrics.Addr
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	if tcfg := cfg.Server.Metrics.TLS; tcfg.Enabled() {
		tlsLn, err := serveTLS(hooks, ln, tcfg, log)
		if err != nil {
			_ = ln.Close()
			return err
		}
		ln = tlsLn
	}

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Metrics:     metrics.Handler(),
		Health:      srv.State(),
		Connections: func() int { return len(srv.Connections()) },
		Logger:      log.With("component", "http"),
		AllowList:   cfg.Server.Metrics.AllowList,
		Started:     time.Now(),
	})
	hs := httpserver.New(addr, router)
	go func() {
		log.Info("metrics listening", "address", ln.Addr().String())
		if err := hs.Serve(ln); err != nil {
			log.Error("metrics server failed", "error", err)
		}
	}()
	hooks.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down metrics server")
		return hs.Shutdown(ctx)
	})
	return nil
}

// serveTLS wraps ln in TLS with a key pair reloaded on change.
func serveTLS(hooks *shutdown.Handler, ln net.Listener, cfg config.TLSConfig, log logger.Logger) (net.Listener, error) {
	var clientCAs *tlsroots.Pool
	if cfg.ClientCAFile != "" {
		pool, err := tlsroots.LoadPool(cfg.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("metrics client CAs: %w", err)
		}
		clientCAs = pool
	}
	w, err := tlsroots.NewWatcher(cfg.CertFile, cfg.KeyFile, tlsroots.WithLogger(log.With("component", "tls")))
	if err != nil {
		return nil, fmt.Errorf("metrics certificate: %w", err)
	}
	hooks.OnShutdown(func(context.Context) error {
		return w.Stop()
	})
	return tls.NewListener(ln, tlsroots.ServerConfig(w, clientCAs)), nil
}

// watchConfig reapplies log.level when the configuration file changes.
// Other settings need a restart.
func watchConfig(hooks *shutdown.Handler, loader *confloader.Loader, path string, log logger.Logger) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return err
	}
	w.OnChange(func(string) {
		next := config.Default()
		if err := loader.Reload(next); err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		if err := config.Verify(next); err != nil {
			log.Warn("reloaded config invalid, keeping current settings", "error", err)
			return
		}
		if next.Log.Level != logger.CurrentLevel() {
			if err := logger.SetLevel(next.Log.Level); err != nil {
				log.Warn("ignoring log level", "error", err)
				return
			}
			log.Info("log level changed", "level", logger.CurrentLevel())
		}
	})
	w.StartAsync()
	hooks.OnShutdown(func(context.Context) error {
		return w.Stop()
	})
	return nil
}
