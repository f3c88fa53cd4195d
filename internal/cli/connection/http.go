package connection

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/remotely/internal/infra/buildinfo"
)

// Endpoint is the server's operational HTTP endpoint (/healthz, /metrics).
type Endpoint struct {
	base   string
	client *http.Client
}

// NewEndpoint accepts "host:port" or a full URL. A bare address uses https
// when tlsCfg is set and http otherwise.
func NewEndpoint(addr string, tlsCfg *tls.Config) *Endpoint {
	base := strings.TrimSuffix(addr, "/")
	if !strings.Contains(base, "://") {
		scheme := "http://"
		if tlsCfg != nil {
			scheme = "https://"
		}
		base = scheme + base
	}
	client := &http.Client{Timeout: 30 * time.Second}
	if tlsCfg != nil {
		client.Transport = &http.Transport{TLSClientConfig: tlsCfg}
	}
	return &Endpoint{base: base, client: client}
}

// URL returns the absolute URL of path.
func (e *Endpoint) URL(path string) string {
	return e.base + path
}

// GetJSON fetches path and decodes the JSON body into v. A non-2xx status
// becomes an error carrying the server's message when it sent one.
func (e *Endpoint) GetJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL(path), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "remotely-cli/"+buildinfo.Version)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var body struct {
			Message string `json:"message"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body) == nil && body.Message != "" {
			return fmt.Errorf("%s: %s", resp.Status, body.Message)
		}
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	if v == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
