package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(4)

	audit := ScanAudit{StudentID: "stu-1", SessionID: "s1", Action: "ENTRY", DeviceID: "kiosk-1", At: time.Now().UTC()}
	body, err := json.Marshal(audit)
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, Message{Type: "scan", Body: body}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		assert.Equal(t, "scan", msg.Type)
		var got ScanAudit
		require.NoError(t, json.Unmarshal(msg.Body, &got))
		assert.Equal(t, audit.StudentID, got.StudentID)
		assert.Equal(t, audit.Action, got.Action)
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestInMemoryPublishHonorsContext(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, Message{Type: "scan"}))

	// Queue full; a cancelled context must unblock the publisher.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(cancelled, Message{Type: "scan"}), context.Canceled)
}
