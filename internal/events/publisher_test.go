package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func TestPublisher_Publish_EnvelopeShape(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync(SubjectTurnCompleted)
	require.NoError(t, err)

	pub := NewPublisher(nc, "shopd-test", zap.NewNop())
	eventID := pub.Publish(context.Background(), SubjectTurnCompleted, EventTypeTurnCompleted, map[string]any{
		"threadId": "t1",
		"task":     "search",
	}, "t1")
	require.NotEmpty(t, eventID)

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var envelope struct {
		Meta Meta           `json:"meta"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &envelope))

	assert.Equal(t, eventID, envelope.Meta.EventID)
	assert.Equal(t, EventTypeTurnCompleted, envelope.Meta.EventType)
	assert.Equal(t, 1, envelope.Meta.SchemaVersion)
	assert.Equal(t, "shopd-test", envelope.Meta.Producer)
	assert.Equal(t, "t1", envelope.Meta.CorrelationID)
	assert.Equal(t, EventTypeTurnCompleted+":"+eventID, envelope.Meta.IdempotencyKey)

	occurred, err := time.Parse(time.RFC3339Nano, envelope.Meta.OccurredAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), occurred, time.Minute)

	assert.Equal(t, "t1", envelope.Data["threadId"])
	assert.Equal(t, "search", envelope.Data["task"])
}

func TestPublisher_Publish_GeneratesCorrelationID(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync(SubjectApprovalDecided)
	require.NoError(t, err)

	pub := NewPublisher(nc, "", zap.NewNop())
	pub.Publish(context.Background(), SubjectApprovalDecided, EventTypeApprovalDecide, map[string]any{"approved": true}, "")

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &envelope))
	assert.NotEmpty(t, envelope.Meta.CorrelationID)
	assert.Equal(t, "shopd", envelope.Meta.Producer)
}

func TestPublisher_Publish_DeliveryFailureDoesNotPanic(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	nc.Close() // force publish failure on the closed connection

	pub := NewPublisher(nc, "shopd-test", zap.NewNop())
	eventID := pub.Publish(context.Background(), SubjectTurnCompleted, EventTypeTurnCompleted, map[string]any{}, "t1")

	// Best-effort delivery still yields an event id.
	assert.NotEmpty(t, eventID)
}

func TestPublisher_Publish_NilConnectionIsNoop(t *testing.T) {
	pub := NewPublisher(nil, "shopd-test", zap.NewNop())

	eventID := pub.Publish(context.Background(), SubjectTurnCompleted, EventTypeTurnCompleted, map[string]any{}, "t1")
	assert.NotEmpty(t, eventID)
}
