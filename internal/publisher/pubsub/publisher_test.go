package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPublishDeliversJSON(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close() //nolint:errcheck

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client, err := pubsub.NewClient(ctx, "proj", option.WithGRPCConn(conn))
	require.NoError(t, err)
	_, err = client.CreateTopic(ctx, "runs")
	require.NoError(t, err)

	pub := New(client, "runs")
	defer pub.Close() //nolint:errcheck

	id, err := pub.Publish(ctx, "", map[string]any{"task_id": "t1", "new_postings": 7})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.JSONEq(t, `{"task_id":"t1","new_postings":7}`, string(msgs[0].Data))
	require.Equal(t, "application/json", msgs[0].Attributes["content-type"])
}

func TestPublishRequiresClient(t *testing.T) {
	t.Parallel()

	var p *Publisher
	_, err := p.Publish(context.Background(), "runs", nil)
	require.Error(t, err)
	require.NoError(t, p.Close())

	_, err = Open(context.Background(), "", "runs")
	require.Error(t, err)
}
