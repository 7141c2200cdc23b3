package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/linematch/pkg/errors"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Query
		err  error
	}{
		{"plain", "bob", "bob", nil},
		{"nul padding", "bob\x00\x00\x00", "bob", nil},
		{"newline is part of the query", "bob\n", "bob\n", nil},
		{"crlf is part of the query", "bob\r\n", "bob\r\n", nil},
		{"inner spaces kept", "7;0;6;28;0;23;5;0; ", "7;0;6;28;0;23;5;0; ", nil},
		{"empty", "", "", apperrors.ErrMalformedRequest},
		{"only padding", "\x00\x00", "", apperrors.ErrMalformedRequest},
		{"invalid utf8", "\xff\xfebob", "", apperrors.ErrEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuery([]byte(tt.raw), ParseOptions{})
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseQueryStripLineTerminator(t *testing.T) {
	opts := ParseOptions{StripLineTerminator: true}
	tests := []struct {
		name string
		raw  string
		want Query
		err  error
	}{
		{"newline", "bob\n", "bob", nil},
		{"crlf", "bob\r\n", "bob", nil},
		{"padding after newline", "bob\n\x00\x00", "bob", nil},
		{"only one terminator stripped", "bob\n\n", "bob\n", nil},
		{"only newline", "\n", "", apperrors.ErrMalformedRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuery([]byte(tt.raw), opts)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInvalidEncodingRepliesError(t *testing.T) {
	_, err := ParseQuery([]byte("\xc3\x28"), ParseOptions{})
	require.ErrorIs(t, err, apperrors.ErrEncoding)
	assert.Equal(t, ReplyError, ReplyFor(false, err))
}

func TestReadQueryIsSingleReceive(t *testing.T) {
	r := io.MultiReader(strings.NewReader("bob"), strings.NewReader("by"))
	q, err := ReadQuery(r, DefaultBufferSize, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, Query("bob"), q)
}

func TestReadQueryTruncatesToBuffer(t *testing.T) {
	q, err := ReadQuery(strings.NewReader("abcdefgh"), 4, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, Query("abcd"), q)
}

func TestReadQueryEOF(t *testing.T) {
	_, err := ReadQuery(strings.NewReader(""), DefaultBufferSize, ParseOptions{})
	assert.ErrorIs(t, err, apperrors.ErrMalformedRequest)
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestReadQueryIOError(t *testing.T) {
	_, err := ReadQuery(failingReader{errors.New("connection reset")}, DefaultBufferSize, ParseOptions{})
	assert.ErrorIs(t, err, apperrors.ErrInternal)
	assert.Equal(t, ReplyError, ReplyFor(false, err))
}

func TestReplyFor(t *testing.T) {
	assert.Equal(t, ReplyExists, ReplyFor(true, nil))
	assert.Equal(t, ReplyNotFound, ReplyFor(false, nil))
	assert.Equal(t, ReplyNotFound, ReplyFor(false, apperrors.New(apperrors.ErrFileUnavailable, "", "gone")))
	assert.Equal(t, ReplyNotFound, ReplyFor(false, apperrors.New(apperrors.ErrMalformedRequest, "", "empty")))
	assert.Equal(t, ReplyError, ReplyFor(false, apperrors.New(apperrors.ErrEncoding, "", "bad bytes")))
	assert.Equal(t, ReplyError, ReplyFor(false, apperrors.New(apperrors.ErrRateLimited, "", "slow down")))
	assert.Equal(t, ReplyError, ReplyFor(true, errors.New("anything else")))
}

func TestWriteAndParseReply(t *testing.T) {
	for _, r := range []Reply{ReplyExists, ReplyNotFound, ReplyError} {
		var buf bytes.Buffer
		require.NoError(t, WriteReply(&buf, r))
		got, err := ParseReply(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := ParseReply([]byte("MAYBE\n"))
	assert.Error(t, err)
}
