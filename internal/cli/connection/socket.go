package connection

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/yndnr/remotely/internal/server/localserver"
)

const socketTimeout = 10 * time.Second

// SocketClient provides Unix socket communication for local management.
type SocketClient struct {
	path   string
	conn   net.Conn
	reader *bufio.Reader
}

// NewSocketClient creates a new socket client.
func NewSocketClient(socketPath string) *SocketClient {
	return &SocketClient{path: socketPath}
}

// Connect connects to the local socket.
func (c *SocketClient) Connect() error {
	conn, err := net.DialTimeout("unix", c.path, socketTimeout)
	if err != nil {
		return err
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// Close closes the socket connection.
func (c *SocketClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Execute sends a command line and decodes the reply. A reply carrying an
// error is returned as an error.
func (c *SocketClient) Execute(cmd string) (*localserver.Reply, error) {
	if c.conn == nil {
		if err := c.Connect(); err != nil {
			return nil, err
		}
	}
	_ = c.conn.SetDeadline(time.Now().Add(socketTimeout))

	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		return nil, err
	}
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	var reply localserver.Reply
	if err := json.Unmarshal(line, &reply); err != nil {
		return nil, err
	}
	if !reply.OK {
		return &reply, errors.New(reply.Error)
	}
	return &reply, nil
}

// ExecuteInto runs cmd and decodes the reply data into target.
func (c *SocketClient) ExecuteInto(cmd string, target any) error {
	reply, err := c.Execute(cmd)
	if err != nil {
		return err
	}
	if target == nil || len(reply.Data) == 0 {
		return nil
	}
	return json.Unmarshal(reply.Data, target)
}
