package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkRetention(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir, 3)

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Save(context.Background(), Record{
			Topic:     "room1",
			Data:      json.RawMessage(fmt.Sprintf(`%d`, i)),
			Timestamp: int64(i),
		}))
	}

	recs, err := s.Load("room1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "3", string(recs[0].Data))
	assert.Equal(t, "5", string(recs[2].Data))

	_, err = os.Stat(s.path("room1") + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileSinkSeparatesTopics(t *testing.T) {
	s := NewFileSink(t.TempDir(), 0)

	require.NoError(t, s.Save(context.Background(), Record{Topic: "a", Data: json.RawMessage(`1`)}))
	require.NoError(t, s.Save(context.Background(), Record{Topic: "team/b", Data: json.RawMessage(`2`)}))

	a, err := s.Load("a")
	require.NoError(t, err)
	assert.Len(t, a, 1)

	b, err := s.Load("team/b")
	require.NoError(t, err)
	require.Len(t, b, 1)
	assert.Equal(t, "team/b", b[0].Topic)

	// Names that a lossy escape would fold together stay apart.
	for _, topic := range []string{"team_b", "team\\b", "team..b", "TEAM/B"} {
		require.NoError(t, s.Save(context.Background(), Record{Topic: topic, Data: json.RawMessage(`3`)}))
	}
	b, err = s.Load("team/b")
	require.NoError(t, err)
	require.Len(t, b, 1)
	assert.Equal(t, "team/b", b[0].Topic)

	underscore, err := s.Load("team_b")
	require.NoError(t, err)
	require.Len(t, underscore, 1)
	assert.Equal(t, "team_b", underscore[0].Topic)

	upper, err := s.Load("TEAM/B")
	require.NoError(t, err)
	require.Len(t, upper, 1)
	assert.Equal(t, "TEAM/B", upper[0].Topic)

	none, err := s.Load("missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFileSinkCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir, 10)
	require.NoError(t, os.WriteFile(s.path("room1"), []byte("{"), 0o644))

	err := s.Save(context.Background(), Record{Topic: "room1", Data: json.RawMessage(`1`)})
	assert.ErrorContains(t, err, "parse topic file")
}
