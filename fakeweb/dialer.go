package fakeweb

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Dialer abstracts the outbound dials made by real connections.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewSystemDialer returns a Dialer backed by net.Dialer.
func NewSystemDialer() Dialer {
	return &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
}

func dialTarget(ctx context.Context, d Dialer, cfg *tls.Config, t *target) (net.Conn, error) {
	conn, err := d.DialContext(ctx, "tcp", t.address())
	if err != nil {
		return nil, err
	}
	if !t.secure() {
		return conn, nil
	}
	if cfg == nil {
		cfg = &tls.Config{}
	} else {
		cfg = cfg.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = t.hostname
	}
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}
