package tcpserver

import (
	"crypto/tls"
	"net"

	"github.com/hcobbs/xoe/internal/xoerr"
)

// CryptoTLSWrapper adapts crypto/tls to the TLSWrapper interface,
// performing the handshake synchronously on the accept path the way
// the Bridge wants failures surfaced (closed connection, logged
// error) rather than deferred to the first read.
type CryptoTLSWrapper struct {
	Config *tls.Config
}

// NewServerTLSWrapper loads certPath/keyPath and returns a wrapper
// configured for minVersion, or an error if the credential files
// cannot be loaded.
func NewServerTLSWrapper(certPath, keyPath string, minVersion uint16) (*CryptoTLSWrapper, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, xoerr.Wrap(xoerr.FileNotFound, err, "loading tls credentials")
	}
	return &CryptoTLSWrapper{Config: &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
	}}, nil
}

// Wrap performs the server-side TLS handshake over conn.
func (w *CryptoTLSWrapper) Wrap(conn net.Conn) (net.Conn, error) {
	tlsConn := tls.Server(conn, w.Config)
	if err := tlsConn.Handshake(); err != nil {
		return nil, xoerr.Wrap(xoerr.NetworkError, err, "tls handshake failed")
	}
	return tlsConn, nil
}
