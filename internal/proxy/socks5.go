package proxy

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/Slothtron/easyproxy/internal/pump"
)

// SOCKS5 wire constants, per RFC 1928/1929.
const (
	socks5Version = 0x05

	socks5AuthNone     = 0x00
	socks5AuthUserPass = 0x02
	socks5AuthNoAccept = 0xFF

	socks5CmdConnect = 0x01

	socks5ATYPIPv4   = 0x01
	socks5ATYPDomain = 0x03
	socks5ATYPIPv6   = 0x04

	socks5ReplySuccess             = 0x00
	socks5ReplyConnectionRefused   = 0x05
	socks5ReplyTTLExpired          = 0x06
	socks5ReplyCommandNotSupported = 0x07
	socks5ReplyAddressNotSupported = 0x08
)

// handleSOCKS5 runs the SOCKS5 state machine of §4.4, starting right
// after the sniff byte (0x05) has already been consumed by the dispatcher.
func (s *Server) handleSOCKS5(conn net.Conn, rec *Record) {
	rec.Dialect = "socks5"
	s.stats.IncDialect("socks5")

	// S0: method negotiation.
	nmethods, err := readByte(conn)
	if err != nil {
		rec.Status, rec.Error = "error", "protocol_error"
		return
	}
	methods := make([]byte, nmethods)
	if nmethods > 0 {
		if _, err := io.ReadFull(conn, methods); err != nil {
			rec.Status, rec.Error = "error", "protocol_error"
			return
		}
	}

	if s.auth.Enabled() {
		if !bytes.Contains(methods, []byte{socks5AuthUserPass}) {
			_, _ = conn.Write([]byte{socks5Version, socks5AuthNoAccept})
			rec.Status, rec.Error = "error", "no_acceptable_auth_method"
			return
		}
		_, _ = conn.Write([]byte{socks5Version, socks5AuthUserPass})

		// S1: username/password subnegotiation.
		username, password, ok := s.readSOCKS5Credentials(conn)
		if !ok {
			rec.Status, rec.Error = "error", "protocol_error"
			return
		}
		if !s.auth.SOCKS5Auth(username, password) {
			_, _ = conn.Write([]byte{0x01, 0x01})
			s.logger.Warnw("socks5_auth_failed", "username", username, "client_ip", rec.ClientIP)
			rec.Status, rec.Error = "error", "auth_failed"
			return
		}
		_, _ = conn.Write([]byte{0x01, 0x00})
		s.logger.Infow("socks5_auth_success", "username", username, "client_ip", rec.ClientIP)
	} else {
		_, _ = conn.Write([]byte{socks5Version, socks5AuthNone})
	}

	// S2: connection request.
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		rec.Status, rec.Error = "error", "protocol_error"
		return
	}
	ver, cmd, atyp := header[0], header[1], header[3]
	if ver != socks5Version {
		rec.Status, rec.Error = "error", "protocol_error"
		return
	}
	if cmd != socks5CmdConnect {
		_, _ = conn.Write(socks5ErrorReply(socks5ReplyCommandNotSupported))
		rec.Status, rec.Error = "error", "command_not_supported"
		return
	}

	// S3: address.
	host, port, err := readSOCKS5Address(conn, atyp)
	if err != nil {
		_, _ = conn.Write(socks5ErrorReply(socks5ReplyAddressNotSupported))
		rec.Status, rec.Error = "error", "address_type_not_supported"
		return
	}
	rec.TargetHost, rec.TargetPort = host, port

	// S4: connect.
	ctx, cancel := context.WithTimeout(context.Background(), s.connectTimeout())
	defer cancel()

	targetConn, err := (&net.Dialer{}).DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			_, _ = conn.Write(socks5ErrorReply(socks5ReplyTTLExpired))
			rec.Error = "dial_timeout"
		} else {
			_, _ = conn.Write(socks5ErrorReply(socks5ReplyConnectionRefused))
			rec.Error = "dial_failed"
		}
		rec.Status = "error"
		return
	}
	defer targetConn.Close()

	if _, err := conn.Write(socks5ErrorReply(socks5ReplySuccess)); err != nil {
		rec.Status, rec.Error = "error", "write_failed"
		return
	}

	// S5: relay.
	result := pump.Run(conn, targetConn, s.cfg.BufferSize, s.idleTimeout())
	rec.BytesClientToTarget = result.ClientToTarget
	rec.BytesTargetToClient = result.TargetToClient
	rec.Status = "success"
}

// readSOCKS5Credentials reads the RFC 1929 username/password
// subnegotiation message: VER(0x01) ULEN UNAME PLEN PASSWD.
func (s *Server) readSOCKS5Credentials(conn net.Conn) (username, password string, ok bool) {
	verByte, err := readByte(conn)
	if err != nil || verByte != 0x01 {
		return "", "", false
	}
	ulen, err := readByte(conn)
	if err != nil {
		return "", "", false
	}
	uname := make([]byte, ulen)
	if ulen > 0 {
		if _, err := io.ReadFull(conn, uname); err != nil {
			return "", "", false
		}
	}
	plen, err := readByte(conn)
	if err != nil {
		return "", "", false
	}
	passwd := make([]byte, plen)
	if plen > 0 {
		if _, err := io.ReadFull(conn, passwd); err != nil {
			return "", "", false
		}
	}
	return string(uname), string(passwd), true
}

// readSOCKS5Address parses DST.ADDR/DST.PORT per the address type.
func readSOCKS5Address(conn net.Conn, atyp byte) (host string, port int, err error) {
	switch atyp {
	case socks5ATYPIPv4:
		b := make([]byte, 4)
		if _, err = io.ReadFull(conn, b); err != nil {
			return "", 0, err
		}
		host = net.IP(b).String()
	case socks5ATYPDomain:
		length, err := readByte(conn)
		if err != nil {
			return "", 0, err
		}
		domain := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(conn, domain); err != nil {
				return "", 0, err
			}
		}
		host = string(domain)
	case socks5ATYPIPv6:
		b := make([]byte, 16)
		if _, err = io.ReadFull(conn, b); err != nil {
			return "", 0, err
		}
		host = net.IP(b).String()
	default:
		return "", 0, fmt.Errorf("unsupported SOCKS5 address type %d", atyp)
	}

	portBuf := make([]byte, 2)
	if _, err = io.ReadFull(conn, portBuf); err != nil {
		return "", 0, err
	}
	port = int(binary.BigEndian.Uint16(portBuf))
	return host, port, nil
}

// socks5ErrorReply builds a 10-byte SOCKS5 reply with the given REP code
// and ATYP=IPv4, BND.ADDR=0.0.0.0, BND.PORT=0, per §4.4.
func socks5ErrorReply(rep byte) []byte {
	return []byte{socks5Version, rep, 0x00, socks5ATYPIPv4, 0, 0, 0, 0, 0, 0}
}

func readByte(conn net.Conn) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(conn, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
