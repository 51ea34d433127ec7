package redis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishJSONToStream_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	id, err := PublishJSONToStream(ctx, client, "maintenance:predictions", 100, map[string]any{
		"device_id": "printer-1",
		"severity":  "High",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := ReadRange(ctx, client, "maintenance:predictions", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &decoded))
	assert.Equal(t, "printer-1", decoded["device_id"])
}

func TestPublishToStream_StringifiesValues(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	_, err := PublishToStream(ctx, client, "s", 0, map[string]interface{}{
		"count": 3,
		"ratio": 0.25,
		"ok":    true,
	})
	require.NoError(t, err)

	msgs, err := ReadRange(ctx, client, "s", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "3", msgs[0].Values["count"])
	assert.Equal(t, "0.25", msgs[0].Values["ratio"])
	assert.Equal(t, "true", msgs[0].Values["ok"])
}
