package panelconn

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"sync"
)

// jsonlConn frames UTF-8 JSON objects as newline-delimited lines over a
// byte stream. Blank lines are skipped; frame content is otherwise
// passed through untouched so a malformed frame still reaches the
// handler for its "Invalid message" notice.
type jsonlConn struct {
	reader *bufio.Reader
	rwc    io.ReadWriteCloser
	wmu    sync.Mutex
}

// NewJSONLConn wraps a byte stream in a line-delimited frame connection.
func NewJSONLConn(rwc io.ReadWriteCloser) FrameConn {
	return &jsonlConn{reader: bufio.NewReader(rwc), rwc: rwc}
}

func (c *jsonlConn) ReadFrame() ([]byte, error) {
	for {
		line, err := c.reader.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}
		return line, nil
	}
}

func (c *jsonlConn) WriteFrame(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.rwc.Write(frame); err != nil {
		return err
	}
	_, err := c.rwc.Write([]byte{'\n'})
	return err
}

func (c *jsonlConn) Close() error {
	return c.rwc.Close()
}

// NetDialer dials a network address and speaks JSONL frames over it.
type NetDialer struct {
	Network string
	Addr    string
}

// Dial implements Dialer.
func (d NetDialer) Dial(ctx context.Context) (FrameConn, error) {
	network := d.Network
	if network == "" {
		network = "unix"
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, d.Addr)
	if err != nil {
		return nil, err
	}
	return NewJSONLConn(conn), nil
}
