package proxy

import (
	"net"
	"testing"

	"github.com/Slothtron/easyproxy/internal/config"
	"github.com/Slothtron/easyproxy/internal/logging"
)

// newTestServer builds a *Server wired to a no-op logger and a config
// overridden by the supplied mutators, starting from config.Default().
func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.BufferSize = 4096
	cfg.ConnectionTimeout = 2
	cfg.IdleTimeout = 2
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg, logging.NewNop())
}

// echoTarget starts a TCP listener that echoes back whatever it receives
// on every accepted connection, standing in for an upstream target.
func echoTarget(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if n > 0 {
						if _, werr := c.Write(buf[:n]); werr != nil {
							return
						}
					}
					if err != nil {
						return
					}
				}
			}(c)
		}
	}()
	return ln
}

// clientServerPipe returns a connected TCP pair: one end given to the
// Server's connection handler (as if just accepted), the other kept by
// the test to act as the remote client.
func clientServerPipe(t *testing.T) (client, serverSide net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		acceptCh <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	serverSide = <-acceptCh
	if serverSide == nil {
		t.Fatal("accept failed")
	}
	return client, serverSide
}
