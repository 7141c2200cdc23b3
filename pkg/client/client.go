// Package client sends one-shot lookup queries to a linematch server.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linematch/internal/protocol"
	apperrors "github.com/Adithya-Monish-Kumar-K/linematch/pkg/errors"
)

// maxReplySize is larger than any valid reply; anything longer is an error.
const maxReplySize = 64

type Options struct {
	Addr    string
	Timeout time.Duration
	// Newline terminates the query with "\n", for servers that strip it.
	Newline bool

	TLS bool
	// CAFile, if set, is the PEM bundle used to verify the server.
	CAFile string
	// ServerName overrides the name checked against the certificate.
	ServerName         string
	InsecureSkipVerify bool
}

func (o Options) tlsConfig() (*tls.Config, error) {
	conf := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         o.ServerName,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
	if conf.ServerName == "" {
		host, _, err := net.SplitHostPort(o.Addr)
		if err != nil {
			return nil, fmt.Errorf("parsing address %q: %w", o.Addr, err)
		}
		conf.ServerName = host
	}
	if o.CAFile != "" {
		pem, err := os.ReadFile(o.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", o.CAFile)
		}
		conf.RootCAs = pool
	}
	return conf, nil
}

// Query dials the server, sends query in a single write and returns the
// decoded reply. The query is sent as is unless opts.Newline is set.
func Query(ctx context.Context, opts Options, query string) (protocol.Reply, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	conn, err := dial(ctx, opts)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if opts.Newline {
		query += "\n"
	}
	if _, err := io.WriteString(conn, query); err != nil {
		return "", fmt.Errorf("sending query: %w", err)
	}
	raw, err := io.ReadAll(io.LimitReader(conn, maxReplySize))
	if err != nil {
		return "", fmt.Errorf("reading reply: %w", err)
	}
	return protocol.ParseReply(raw)
}

func dial(ctx context.Context, opts Options) (net.Conn, error) {
	if !opts.TLS {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", opts.Addr)
		if err != nil {
			return nil, fmt.Errorf("dialing %s: %w", opts.Addr, err)
		}
		return conn, nil
	}
	conf, err := opts.tlsConfig()
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrTLSSetup, "client.dial", "%v", err)
	}
	d := tls.Dialer{Config: conf}
	conn, err := d.DialContext(ctx, "tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s over tls: %w", opts.Addr, err)
	}
	return conn, nil
}
