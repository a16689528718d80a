package web

import (
	"log/slog"
	"net"
)

// LocalhostListener wraps a net.Listener and only accepts connections from
// localhost. The listener is already bound to a loopback address; this is a
// socket-level check that rejects anything else before HTTP processing.
type LocalhostListener struct {
	net.Listener
	logger *slog.Logger
}

// NewLocalhostListener creates a localhost-only listener.
func NewLocalhostListener(l net.Listener, logger *slog.Logger) *LocalhostListener {
	return &LocalhostListener{Listener: l, logger: logger}
}

// Accept waits for and returns the next connection, closing any connection
// that does not originate from 127.0.0.0/8 or ::1.
func (l *LocalhostListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}

		if !isLocalhostConn(conn) {
			if l.logger != nil {
				l.logger.Warn("Rejected non-localhost connection",
					"remote_addr", conn.RemoteAddr().String())
			}
			conn.Close()
			continue
		}

		return conn, nil
	}
}

func isLocalhostConn(conn net.Conn) bool {
	addr := conn.RemoteAddr()
	if addr == nil {
		return false
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
