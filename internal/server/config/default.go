package config

import "time"

// Default configuration values.
const (
	DefaultHost             = "localhost"
	DefaultPort             = "8080:8099"
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultMaxMsgCapacity   = 100
	DefaultMaxFrameSize     = 16 << 20
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultRatePerSecond    = 20
	DefaultRateBurst        = 40
	DefaultCipher           = "auto"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Default returns the default server configuration. Metrics and the local
// socket are off unless configured.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Listen: ListenConfig{
				Host: DefaultHost,
				Port: DefaultPort,
			},
			ShutdownTimeout:  DefaultShutdownTimeout,
			MaxMsgCapacity:   DefaultMaxMsgCapacity,
			MaxFrameSize:     DefaultMaxFrameSize,
			HandshakeTimeout: DefaultHandshakeTimeout,
			RateLimit: RateLimitConfig{
				PerSecond: DefaultRatePerSecond,
				Burst:     DefaultRateBurst,
			},
		},
		Security: SecuritySection{
			Cipher: DefaultCipher,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
