package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs     []kafka.Message
	deadline bool
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, w.deadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishWritesJSONWithKey(t *testing.T) {
	w := &recordingWriter{}
	p := newPublisher(w, 0)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	require.NoError(t, p.Publish(context.Background(), "BTC", map[string]string{"side": "buy"}))
	require.Len(t, w.msgs, 1)
	assert.True(t, w.deadline)
	assert.Equal(t, "BTC", string(w.msgs[0].Key))
	assert.Equal(t, at, w.msgs[0].Time)
	var got map[string]string
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "buy", got["side"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishWrapsWriteError(t *testing.T) {
	p := newPublisher(&recordingWriter{err: errors.New("broker down")}, time.Second)
	err := p.Publish(context.Background(), "ETH", struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestNewKafkaPublisherValidates(t *testing.T) {
	_, err := NewKafkaPublisher(Config{Brokers: []string{" "}, Topic: "fills"})
	assert.Error(t, err)
	_, err = NewKafkaPublisher(Config{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	p, err := NewKafkaPublisher(Config{Brokers: []string{"localhost:9092"}, Topic: "fills"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}
