package server

import (
	"crypto/tls"

	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/linematch/pkg/errors"
)

// LoadTLSConfig builds the listener's TLS settings from the configured key
// pair. Client certificates are not requested.
func LoadTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrTLSSetup, "server.tls",
			"loading key pair (cert=%s key=%s): %v", cfg.CertFile, cfg.KeyFile, err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   cfg.TLSMinVersion(),
		ClientAuth:   tls.NoClientCert,
	}, nil
}
