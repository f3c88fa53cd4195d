package remoteserver

import (
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConnInfo describes a live connection.
type ConnInfo struct {
	ID        string    `json:"id" yaml:"id"`
	Client    string    `json:"client" yaml:"client"`
	Since     time.Time `json:"since" yaml:"since"`
	Encrypted bool      `json:"encrypted" yaml:"encrypted"`
	Tag       string    `json:"tag,omitempty" yaml:"tag,omitempty"`
}

type connEntry struct {
	info ConnInfo
	conn net.Conn
}

// meteredConn counts bytes in both directions.
type meteredConn struct {
	net.Conn
	rx prometheus.Counter
	tx prometheus.Counter
}

func (c *meteredConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 {
		c.rx.Add(float64(n))
	}
	return n, err
}

func (c *meteredConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 {
		c.tx.Add(float64(n))
	}
	return n, err
}

// CloseWrite forwards half-close to connections that support it.
func (c *meteredConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.Conn.Close()
}
