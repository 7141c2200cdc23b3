// Package protocol implements the one-shot wire format: a client sends a
// single query of at most one buffer, the server answers with one of three
// newline-terminated replies and closes the connection.
package protocol

import (
	"bytes"
	"errors"
	"io"
	"os"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/linematch/pkg/errors"
)

// DefaultBufferSize is the largest request a client may send.
const DefaultBufferSize = 1024

// Reply is one of the three literal server responses.
type Reply string

const (
	ReplyExists   Reply = "STRING EXISTS\n"
	ReplyNotFound Reply = "STRING NOT FOUND\n"
	ReplyError    Reply = "ERROR\n"
)

func (r Reply) Bytes() []byte { return []byte(r) }

// Valid reports whether r is one of the three protocol replies.
func (r Reply) Valid() bool {
	switch r {
	case ReplyExists, ReplyNotFound, ReplyError:
		return true
	}
	return false
}

// Query is the raw token a client asked about.
type Query string

// ParseOptions tunes how a raw request becomes a Query.
type ParseOptions struct {
	// StripLineTerminator also drops one trailing "\n" and then one "\r"
	// after the NUL padding. Off, the query is the padded buffer minus
	// its NULs and nothing else.
	StripLineTerminator bool
}

// ReadQuery performs the single receive that makes up a request. Whatever
// arrives in that receive, up to bufSize bytes, is the query; nothing else
// is read from the connection.
func ReadQuery(r io.Reader, bufSize int, opts ParseOptions) (Query, error) {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	buf := make([]byte, bufSize)
	n, err := r.Read(buf)
	if n == 0 && err != nil && !errors.Is(err, io.EOF) {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return "", apperrors.New(apperrors.ErrMalformedRequest, "protocol.read", "no data before read deadline")
		}
		return "", apperrors.Newf(apperrors.ErrInternal, "protocol.read", "%v", err)
	}
	return ParseQuery(buf[:n], opts)
}

// ParseQuery strips trailing NUL padding. Empty input is
// ErrMalformedRequest; input that is not UTF-8 is ErrEncoding.
func ParseQuery(raw []byte, opts ParseOptions) (Query, error) {
	raw = bytes.TrimRight(raw, "\x00")
	if opts.StripLineTerminator {
		raw = bytes.TrimSuffix(raw, []byte("\n"))
		raw = bytes.TrimSuffix(raw, []byte("\r"))
	}
	if len(raw) == 0 {
		return "", apperrors.New(apperrors.ErrMalformedRequest, "protocol.parse", "empty request")
	}
	if !utf8.Valid(raw) {
		return "", apperrors.Newf(apperrors.ErrEncoding, "protocol.parse", "%d byte request", len(raw))
	}
	return Query(raw), nil
}

// ReplyFor encodes a lookup outcome. A nil err means the lookup ran and
// found reports its result; otherwise the error class decides the reply.
func ReplyFor(found bool, err error) Reply {
	if err != nil {
		if apperrors.Classify(err) == apperrors.OutcomeNotFound {
			return ReplyNotFound
		}
		return ReplyError
	}
	if found {
		return ReplyExists
	}
	return ReplyNotFound
}

// WriteReply writes r in full.
func WriteReply(w io.Writer, r Reply) error {
	_, err := io.WriteString(w, string(r))
	return err
}

// ParseReply decodes a server reply read by a client.
func ParseReply(raw []byte) (Reply, error) {
	r := Reply(raw)
	if !r.Valid() {
		return "", apperrors.Newf(apperrors.ErrInternal, "protocol.reply", "unexpected reply %q", raw)
	}
	return r, nil
}
