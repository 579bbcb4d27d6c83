// Package pump implements the bidirectional traffic copier shared by the
// HTTP CONNECT tunnel and the SOCKS5 relay: two independent one-direction
// copy loops, each with its own byte counter, joined at the end.
package pump

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Result reports the bytes copied in each direction once both directions
// have terminated.
type Result struct {
	ClientToTarget int64
	TargetToClient int64
}

// Run bridges client and target until both directions hit EOF or error.
// bufferSize is the read buffer used by each direction (must be >= 1).
// idleTimeout, if non-zero, cancels a direction that sits idle for that
// long by applying a read deadline before every read; exceeding it closes
// both streams. Exceptions in one direction never cancel the other except
// through the natural EOF/error caused by the resulting close.
func Run(client, target net.Conn, bufferSize int, idleTimeout time.Duration) Result {
	var clientToTarget, targetToClient atomic.Int64

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		copyDirection(target, client, bufferSize, idleTimeout, &clientToTarget)
	}()
	go func() {
		defer wg.Done()
		copyDirection(client, target, bufferSize, idleTimeout, &targetToClient)
	}()
	wg.Wait()

	return Result{
		ClientToTarget: clientToTarget.Load(),
		TargetToClient: targetToClient.Load(),
	}
}

// copyDirection reads from src and writes to dst until src reports EOF or
// either side errors, then half-closes dst's write side (or closes it
// fully if the connection type doesn't support half-close). An idle
// timeout on src instead closes both src and dst fully, which ends the
// other direction as well.
func copyDirection(dst, src net.Conn, bufferSize int, idleTimeout time.Duration, counter *atomic.Int64) {
	buf := make([]byte, bufferSize)
	for {
		if idleTimeout > 0 {
			_ = src.SetReadDeadline(time.Now().Add(idleTimeout))
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				break
			}
			counter.Add(int64(n))
		}
		if readErr != nil {
			if ne, ok := readErr.(net.Error); ok && ne.Timeout() {
				_ = src.Close()
				_ = dst.Close()
				return
			}
			break
		}
	}
	halfClose(dst)
}

// halfClose closes only the writing half of conn when the underlying type
// supports it, so the peer can still drain inbound bytes until its own EOF.
func halfClose(conn net.Conn) {
	type writeCloser interface {
		CloseWrite() error
	}
	if wc, ok := conn.(writeCloser); ok {
		_ = wc.CloseWrite()
		return
	}
	_ = conn.Close()
}
