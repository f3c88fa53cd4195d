package config

import "log/slog"

// KeySource says where the session key comes from without revealing it:
// "inline", "file" or "generated".
func (s SecuritySection) KeySource() string {
	switch {
	case s.Key != "":
		return "inline"
	case s.KeyFile != "":
		return "file"
	}
	return "generated"
}

// LogValue lets the whole configuration be logged at startup. Key material
// is replaced by its source.
func (c *ServerConfig) LogValue() slog.Value {
	srv := c.Server
	return slog.GroupValue(
		slog.Group("listen",
			slog.String("host", srv.Listen.Host),
			slog.String("port", srv.Listen.Port),
			slog.Bool("ipv6", srv.Listen.UseIPv6),
		),
		slog.Duration("shutdown_after", srv.ShutdownAfter),
		slog.Int("max_msg_capacity", srv.MaxMsgCapacity),
		slog.Int("max_frame_size", srv.MaxFrameSize),
		slog.String("current_dir", srv.CurrentDir),
		slog.Float64("rate_limit", srv.RateLimit.PerSecond),
		slog.String("metrics_addr", srv.Metrics.Addr),
		slog.Bool("metrics_tls", srv.Metrics.TLS.Enabled()),
		slog.String("socket", srv.Local.Path),
		slog.String("cipher", c.Security.Cipher),
		// Named so the redacting log handler does not mask it.
		slog.String("psk_origin", c.Security.KeySource()),
		slog.String("log_level", c.Log.Level),
	)
}
