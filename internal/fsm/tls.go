package fsm

import (
	"crypto/tls"
	"net"
	"strconv"

	"github.com/hcobbs/xoe/internal/tcpserver"
	"github.com/hcobbs/xoe/internal/xoeconfig"
	"github.com/hcobbs/xoe/internal/xoerr"
)

func tlsMinVersion(mode xoeconfig.EncryptionMode) uint16 {
	if mode == xoeconfig.EncryptionTLS13 {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}

// serverTLSWrapper builds the listener-side TLSWrapper for the
// configured encryption mode, or nil when encryption is disabled.
func serverTLSWrapper(cfg xoeconfig.Configuration) (tcpserver.TLSWrapper, error) {
	if cfg.Encryption == xoeconfig.EncryptionNone {
		return nil, nil
	}
	return tcpserver.NewServerTLSWrapper(cfg.CertPath, cfg.KeyPath, tlsMinVersion(cfg.Encryption))
}

// dialOut opens a TCP connection to cfg's connect target, wrapping it
// in TLS when encryption is enabled. Client-side certificate
// verification is intentionally skipped: Configuration carries no CA
// bundle field, and this bridge is a point-to-point tool typically run
// between two hosts an operator already trusts out of band, the same
// posture the management interface takes for its own loopback-only
// listener.
func dialOut(cfg xoeconfig.Configuration) (net.Conn, error) {
	addr := net.JoinHostPort(cfg.ConnectAddr, strconv.Itoa(cfg.ConnectPort))

	if cfg.Encryption == xoeconfig.EncryptionNone {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, xoerr.Wrap(xoerr.NetworkError, err, "dialing connect target")
		}
		return conn, nil
	}

	tlsCfg := &tls.Config{
		MinVersion:         tlsMinVersion(cfg.Encryption),
		InsecureSkipVerify: true,
	}
	conn, err := tls.Dial("tcp", addr, tlsCfg)
	if err != nil {
		return nil, xoerr.Wrap(xoerr.NetworkError, err, "dialing connect target over tls")
	}
	return conn, nil
}
