package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Query  string `json:"query"`
	Result string `json:"result"`
}

func TestToMessage(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg, err := toMessage(Event{Key: "127.0.0.1", Value: payload{Query: "bob", Result: "exists"}, Time: ts})
	require.NoError(t, err)
	assert.Equal(t, []byte("127.0.0.1"), msg.Key)
	assert.JSONEq(t, `{"query":"bob","result":"exists"}`, string(msg.Value))
	assert.Equal(t, ts, msg.Time)

	_, err = toMessage(Event{Value: make(chan int)})
	assert.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	got, err := DecodeJSON[payload]([]byte(`{"query":"alice","result":"not_found"}`))
	require.NoError(t, err)
	assert.Equal(t, payload{Query: "alice", Result: "not_found"}, got)

	_, err = DecodeJSON[payload]([]byte("{"))
	assert.Error(t, err)
}
