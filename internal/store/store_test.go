package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "messages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	bridgeID := NewBridgeID()
	require.NoError(t, s.SaveMapping(ctx, bridgeID, "tg_main", "-1001", "1001"))
	require.NoError(t, s.SaveMapping(ctx, bridgeID, "qq_main", "123456", "778899"))

	got, err := s.BridgeID(ctx, "tg_main", "1001")
	require.NoError(t, err)
	assert.Equal(t, bridgeID, got)

	// Cross-platform resolution: telegram reply threads onto the qq copy.
	msgID, err := s.PlatformMsgID(ctx, bridgeID, "qq_main")
	require.NoError(t, err)
	assert.Equal(t, "778899", msgID)
}

func TestStore_MissIsNotAnError(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	got, err := s.BridgeID(ctx, "tg_main", "never-seen")
	require.NoError(t, err)
	assert.Empty(t, got)

	msgID, err := s.PlatformMsgID(ctx, "no-such-bridge-id", "tg_main")
	require.NoError(t, err)
	assert.Empty(t, msgID)
}

func TestStore_UpsertOverwrites(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMapping(ctx, "bridge-a", "tg_main", "-1001", "5"))
	require.NoError(t, s.SaveMapping(ctx, "bridge-b", "tg_main", "-1001", "5"))

	got, err := s.BridgeID(ctx, "tg_main", "5")
	require.NoError(t, err)
	assert.Equal(t, "bridge-b", got)
}

func TestStore_EmptyKeyRejected(t *testing.T) {
	s := openTemp(t)
	assert.Error(t, s.SaveMapping(context.Background(), "", "tg_main", "-1001", "1"))
	assert.Error(t, s.SaveMapping(context.Background(), "b", "", "-1001", "1"))
}
