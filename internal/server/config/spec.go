package config

import "time"

// ServerConfig is the root configuration for remotely-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Security SecuritySection `koanf:"security"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures the listener and connection handling.
type ServerSection struct {
	Listen ListenConfig `koanf:"listen"`

	// ShutdownAfter stops the server once it has had no connection for this
	// long. Zero keeps it running.
	ShutdownAfter time.Duration `koanf:"shutdown_after"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxMsgCapacity bounds each connection's response queue.
	MaxMsgCapacity int `koanf:"max_msg_capacity"`

	// MaxFrameSize bounds one decoded frame in bytes.
	MaxFrameSize int `koanf:"max_frame_size"`

	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`

	// CurrentDir, when set, becomes the working directory before serving.
	CurrentDir string `koanf:"current_dir"`

	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Local     LocalConfig     `koanf:"local"`
}

// ListenConfig selects the address to bind.
type ListenConfig struct {
	// Host is an IP address, a resolvable name, "localhost" or "any".
	Host string `koanf:"host"`

	// Port is a single port or an inclusive range "start:end". The first
	// free port in the range is used. "0" lets the system choose.
	Port string `koanf:"port"`

	// UseIPv6 makes "localhost" and "any" resolve to IPv6 addresses.
	UseIPv6 bool `koanf:"use_ipv6"`
}

// RateLimitConfig limits new connections per client IP.
type RateLimitConfig struct {
	// PerSecond is the sustained rate. Zero disables limiting.
	PerSecond float64 `koanf:"per_second"`
	Burst     int     `koanf:"burst"`
}

// MetricsConfig configures the Prometheus HTTP endpoint.
type MetricsConfig struct {
	// Addr is the listen address. Empty disables the endpoint.
	Addr string `koanf:"addr"`

	// AllowList restricts callers by IP or CIDR. Empty allows everyone.
	AllowList []string `koanf:"allow_list"`

	TLS TLSConfig `koanf:"tls"`
}

// TLSConfig serves the metrics endpoint over HTTPS when CertFile is set.
// The key pair is reloaded when its files change.
type TLSConfig struct {
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`

	// ClientCAFile, when set, requires scrapers to present a certificate
	// signed by one of its CAs.
	ClientCAFile string `koanf:"client_ca_file"`
}

// Enabled reports whether a key pair is configured.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != ""
}

// LocalConfig configures the local management socket.
type LocalConfig struct {
	// Path is the unix socket path. Empty disables the socket.
	Path string `koanf:"path"`
}

// SecuritySection configures the session key and cipher.
type SecuritySection struct {
	// Cipher forces the AEAD: auto, aes-gcm or chacha20.
	Cipher string `koanf:"cipher"`

	// KeyFile holds a hex key to use instead of generating one per run.
	KeyFile string `koanf:"key_file"`

	// Key is a hex key, typically from REMOTELY_SECURITY__KEY.
	Key string `koanf:"key"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
