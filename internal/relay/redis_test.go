package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() Record {
	return Record{
		EnvelopeID: "E1",
		Type:       "events_api",
		Subtype:    "app_mention",
		ReceivedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		Payload:    json.RawMessage(`{"type":"event_callback"}`),
	}
}

func TestRedisSink_Publish(t *testing.T) {
	client := &fakeRedis{}
	sink := newRedisSink(client, RedisOptions{MaxLen: 500})

	require.NoError(t, sink.Publish(context.Background(), sampleRecord()))

	require.Len(t, client.xadds, 1)
	args := client.xadds[0]
	assert.Equal(t, "socketmode:events", args.Stream)
	assert.Equal(t, int64(500), args.MaxLen)
	assert.True(t, args.Approx)

	values, ok := args.Values.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "E1", values["envelope_id"])
	assert.Equal(t, "app_mention", values["subtype"])

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(values["record"].(string)), &rec))
	assert.Equal(t, sampleRecord().EnvelopeID, rec.EnvelopeID)
	assert.JSONEq(t, `{"type":"event_callback"}`, string(rec.Payload))

	msgs := client.published["socketmode:evt:events_api"]
	require.Len(t, msgs, 1)
	assert.JSONEq(t, values["record"].(string), string(msgs[0].([]byte)))
}

func TestRedisSink_NoTrim(t *testing.T) {
	client := &fakeRedis{}
	sink := newRedisSink(client, RedisOptions{Stream: "custom", ChannelPrefix: "evt."})

	require.NoError(t, sink.Publish(context.Background(), sampleRecord()))
	assert.Equal(t, "custom", client.xadds[0].Stream)
	assert.False(t, client.xadds[0].Approx)
	assert.Len(t, client.published["evt.events_api"], 1)
}

func TestRedisSink_ErrorsAreJoined(t *testing.T) {
	xaddErr := errors.New("READONLY")
	publishErr := errors.New("connection reset")
	client := &fakeRedis{xaddErr: xaddErr, publishErr: publishErr}
	sink := newRedisSink(client, RedisOptions{})

	err := sink.Publish(context.Background(), sampleRecord())
	assert.ErrorIs(t, err, xaddErr)
	assert.ErrorIs(t, err, publishErr)
	assert.Contains(t, err.Error(), "xadd socketmode:events")
	assert.Len(t, client.published["socketmode:evt:events_api"], 1)
}

func TestRedisSink_PingClose(t *testing.T) {
	client := &fakeRedis{}
	sink := newRedisSink(client, RedisOptions{})
	assert.NoError(t, sink.Ping(context.Background()))
	assert.NoError(t, sink.Close())
	assert.True(t, client.closed)
	assert.Equal(t, "redis", sink.Name())
}

func TestNewRedisSink_BadURL(t *testing.T) {
	_, err := NewRedisSink("http://not-redis", RedisOptions{})
	assert.Error(t, err)

	sink, err := NewRedisSink("redis://127.0.0.1:6379/0", RedisOptions{})
	require.NoError(t, err)
	assert.NoError(t, sink.Close())
}
