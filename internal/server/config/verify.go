package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"

	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/internal/telemetry/logger"
	"github.com/yndnr/remotely/pkg/crypto/adaptive"
)

// Verify validates the configuration and reports every problem at once.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifySecurity(&cfg.Security),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	var errs []error
	if _, err := ParsePortRange(cfg.Listen.Port); err != nil {
		errs = append(errs, fmt.Errorf("server.listen.port: %w", err))
	}
	if cfg.Listen.Host != "" && strings.ContainsAny(cfg.Listen.Host, " \t\n") {
		errs = append(errs, errors.New("server.listen.host must not contain whitespace"))
	}
	if cfg.ShutdownAfter < 0 {
		errs = append(errs, errors.New("server.shutdown_after must not be negative"))
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if cfg.MaxMsgCapacity < 1 {
		errs = append(errs, errors.New("server.max_msg_capacity must be at least 1"))
	}
	if cfg.MaxFrameSize < 1024 {
		errs = append(errs, errors.New("server.max_frame_size must be at least 1024"))
	}
	if cfg.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("server.handshake_timeout must be positive"))
	}
	if cfg.RateLimit.PerSecond < 0 {
		errs = append(errs, errors.New("server.rate_limit.per_second must not be negative"))
	}
	if cfg.RateLimit.PerSecond > 0 && cfg.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("server.rate_limit.burst must be at least 1"))
	}
	for _, entry := range cfg.Metrics.AllowList {
		if !validAllowEntry(entry) {
			errs = append(errs, fmt.Errorf("server.metrics.allow_list entry %q is not an IP or CIDR", entry))
		}
	}
	if tls := cfg.Metrics.TLS; (tls.CertFile == "") != (tls.KeyFile == "") {
		errs = append(errs, errors.New("server.metrics.tls.cert_file and key_file must be set together"))
	}
	if tls := cfg.Metrics.TLS; tls.ClientCAFile != "" && tls.CertFile == "" {
		errs = append(errs, errors.New("server.metrics.tls.client_ca_file requires cert_file"))
	}
	if cfg.CurrentDir != "" {
		if info, err := os.Stat(cfg.CurrentDir); err != nil || !info.IsDir() {
			errs = append(errs, fmt.Errorf("server.current_dir %q is not a directory", cfg.CurrentDir))
		}
	}
	return errors.Join(errs...)
}

func verifySecurity(cfg *SecuritySection) error {
	var errs []error
	if _, err := adaptive.ParseCipherType(cfg.Cipher); err != nil {
		errs = append(errs, fmt.Errorf("security.cipher: %w", err))
	}
	if cfg.Key != "" && cfg.KeyFile != "" {
		errs = append(errs, errors.New("security.key and security.key_file are mutually exclusive"))
	}
	if cfg.Key != "" {
		if _, err := domain.SecretKeyFromHex(cfg.Key); err != nil {
			errs = append(errs, fmt.Errorf("security.key: %w", err))
		}
	}
	return errors.Join(errs...)
}

func verifyLog(cfg *LogSection) error {
	var errs []error
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or text", cfg.Format))
	}
	return errors.Join(errs...)
}

func validAllowEntry(entry string) bool {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		_, err := netip.ParsePrefix(entry)
		return err == nil
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}
