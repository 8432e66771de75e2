package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDispatch(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	msg := IngestMessage{JobID: "job-1", RawPath: "/tmp/a.png", Checksum: "abc"}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var got IngestMessage
	var deadline bool
	dispatch(context.Background(), logger, data, func(ctx context.Context, m IngestMessage) error {
		got = m
		_, deadline = ctx.Deadline()
		return nil
	})
	require.Equal(t, msg, got)
	require.True(t, deadline)
	require.Zero(t, logs.Len())

	dispatch(context.Background(), logger, data, func(context.Context, IngestMessage) error {
		return errors.New("hash failed")
	})
	require.Equal(t, 1, logs.FilterMessage("ingest handler failed").Len())
}

func TestDispatchDropsBadPayloads(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	called := false
	handler := func(context.Context, IngestMessage) error {
		called = true
		return nil
	}
	dispatch(context.Background(), logger, []byte("{not json"), handler)
	dispatch(context.Background(), logger, []byte(`{"raw_path":"/tmp/x"}`), handler)

	require.False(t, called)
	require.Equal(t, 2, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestDispatchInheritsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data, err := json.Marshal(IngestMessage{JobID: "job-2"})
	require.NoError(t, err)

	dispatch(ctx, zap.NewNop(), data, func(hCtx context.Context, _ IngestMessage) error {
		select {
		case <-hCtx.Done():
			return hCtx.Err()
		case <-time.After(time.Second):
			t.Fatal("handler context was not cancelled")
			return nil
		}
	})
}

func TestNewNATSQueueRequiresURL(t *testing.T) {
	_, err := NewNATSQueue("", zap.NewNop())
	require.Error(t, err)
}

func TestConsumeIngestRequiresHandler(t *testing.T) {
	q := &NATSQueue{logger: zap.NewNop()}
	require.Error(t, q.ConsumeIngest(context.Background(), nil))
}

func TestPublishIngestRequiresJobID(t *testing.T) {
	q := &NATSQueue{logger: zap.NewNop()}
	require.Error(t, q.PublishIngest(context.Background(), IngestMessage{}))
}
