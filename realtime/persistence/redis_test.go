package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "roomhub:topic:room1", RedisKey("room1"))
}

func TestRedisSinkIntegration(t *testing.T) {
	addr := os.Getenv("ROOMHUB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ROOMHUB_TEST_REDIS_ADDR not set; skipping redis integration test")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	topic := fmt.Sprintf("test-%d", os.Getpid())
	s := NewRedisSink(client, 2)
	defer s.Close()
	defer client.Del(ctx, RedisKey(topic))

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Save(ctx, Record{Topic: topic, Data: json.RawMessage(fmt.Sprintf(`%d`, i))}))
	}

	recs, err := s.Load(ctx, topic)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2", string(recs[0].Data))
	assert.Equal(t, "3", string(recs[1].Data))
}

func TestOpenDrivers(t *testing.T) {
	sink, err := Open(context.Background(), Config{Driver: DriverNone})
	require.NoError(t, err)
	assert.Nil(t, sink)

	sink, err = Open(context.Background(), Config{Driver: DriverFile, File: FileConfig{Dir: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &FileSink{}, sink)

	_, err = Open(context.Background(), Config{Driver: DriverFile})
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: "mongo"})
	assert.ErrorContains(t, err, "unknown persistence driver")
}
