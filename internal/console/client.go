package console

import (
	"bufio"
	"net"

	"github.com/bytedance/sonic"

	"main/internal/schema"
)

// Client dials the console socket and runs one command at a time.
type Client struct {
	conn   *net.UnixConn
	reader *bufio.Reader
}

// Dial connects to the console socket.
func Dial(path string) (*Client, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	conn, err := net.DialUnix(unixNetwork, nil, &net.UnixAddr{Name: path, Net: unixNetwork})
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}, nil
}

// Do sends one command and waits for its response line.
func (c *Client) Do(cmd schema.Command) (schema.Command, error) {
	data, err := sonic.Marshal(cmd)
	if err != nil {
		return schema.Command{}, err
	}
	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		return schema.Command{}, err
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return schema.Command{}, err
	}
	var resp schema.Command
	if err := sonic.Unmarshal(line, &resp); err != nil {
		return schema.Command{}, err
	}
	return resp, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
