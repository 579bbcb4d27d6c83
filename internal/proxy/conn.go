package proxy

import "net"

// prefixConn wraps a net.Conn and replays a small pushback buffer before
// resuming reads from the underlying connection. It exists because the
// dispatcher consumes exactly one sniff byte before it knows which
// handler should own the stream; HTTP parsing needs that byte back.
type prefixConn struct {
	net.Conn
	prefix []byte
}

func (c *prefixConn) Read(b []byte) (int, error) {
	if len(c.prefix) > 0 {
		n := copy(b, c.prefix)
		c.prefix = c.prefix[n:]
		return n, nil
	}
	return c.Conn.Read(b)
}

// CloseWrite forwards half-close to the underlying connection so the
// traffic pump's half-close logic still works through this wrapper.
func (c *prefixConn) CloseWrite() error {
	if wc, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return wc.CloseWrite()
	}
	return c.Conn.Close()
}
