package proxy

import (
	"io"
	"net"
	"testing"
)

func TestPrefixConn_ReadReplaysPrefixThenUnderlying(t *testing.T) {
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

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	server := <-acceptCh
	defer server.Close()

	if _, err := client.Write([]byte("rest-of-stream")); err != nil {
		t.Fatalf("write: %v", err)
	}

	pc := &prefixConn{Conn: server, prefix: []byte{'X'}}
	buf := make([]byte, len("rest-of-stream")+1)
	n, err := io.ReadFull(pc, buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("short read: got %d want %d", n, len(buf))
	}
	if string(buf) != "Xrest-of-stream" {
		t.Fatalf("got %q, want prefix byte followed by stream contents", buf)
	}
}

func TestPrefixConn_CloseWriteDelegatesHalfClose(t *testing.T) {
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

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	server := <-acceptCh
	defer server.Close()

	pc := &prefixConn{Conn: server, prefix: []byte{0x05}}
	if err := pc.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}

	// The peer should observe EOF on its read side now that our write half
	// is closed.
	buf := make([]byte, 1)
	if _, err := client.Read(buf); err != io.EOF {
		t.Fatalf("expected EOF after half-close, got %v", err)
	}
}
