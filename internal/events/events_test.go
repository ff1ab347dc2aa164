package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	require.NoError(t, n.Publish(context.Background(), KeyPrepared, map[string]any{"collection": "x"}))
}

type published struct {
	exchange, key        string
	mandatory, immediate bool
	msg                  amqp.Publishing
}

type recordingChannel struct {
	sent   []published
	err    error
	closed bool
}

func (r *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, published{exchange, key, mandatory, immediate, msg})
	return nil
}

func (r *recordingChannel) Close() error {
	r.closed = true
	return nil
}

func TestAMQPNotifier_PublishesJSON(t *testing.T) {
	ch := &recordingChannel{}
	n := &AMQPNotifier{channel: ch, exchange: "agentgraph"}

	require.NoError(t, n.Publish(context.Background(), KeyPrepared, map[string]any{"collection": "swiss", "chunks": 12}))
	require.Len(t, ch.sent, 1)

	got := ch.sent[0]
	require.Equal(t, "agentgraph", got.exchange)
	require.Equal(t, KeyPrepared, got.key)
	require.False(t, got.mandatory)
	require.False(t, got.immediate)
	require.Equal(t, "application/json", got.msg.ContentType)
	require.False(t, got.msg.Timestamp.IsZero())

	var body map[string]any
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	require.Equal(t, map[string]any{"collection": "swiss", "chunks": float64(12)}, body)

	n.Close()
	require.True(t, ch.closed)
}

func TestAMQPNotifier_Errors(t *testing.T) {
	ch := &recordingChannel{}
	n := &AMQPNotifier{channel: ch, exchange: "agentgraph"}

	require.Error(t, n.Publish(context.Background(), KeyFailed, make(chan int)))
	require.Empty(t, ch.sent)

	ch.err = errors.New("channel/connection is not open")
	require.ErrorContains(t, n.Publish(context.Background(), KeyFailed, map[string]string{"error": "x"}), "not open")
}
