package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"torchverso/models"
	"torchverso/presence"
	"torchverso/repository"

	"github.com/stretchr/testify/require"
)

func next(t *testing.T, sub presence.Subscription) presence.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	return presence.Event{}
}

func TestMemoryPresence(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryPresence()
	require.NoError(t, store.PublishPose(ctx, "alice", models.Pose{X: 1}))

	sub, err := store.Subscribe(ctx)
	require.NoError(t, err)

	ev := next(t, sub)
	require.Equal(t, presence.Upserted, ev.Kind)
	require.Equal(t, "alice", ev.ID)
	require.Equal(t, 1.0, ev.Pose.X)

	require.NoError(t, store.PublishPose(ctx, "bob", models.Pose{Z: 2}))
	ev = next(t, sub)
	require.Equal(t, "bob", ev.ID)

	require.NoError(t, store.RemovePose(ctx, "alice"))
	ev = next(t, sub)
	require.Equal(t, presence.Removed, ev.Kind)
	require.Equal(t, "alice", ev.ID)

	require.NoError(t, store.RemovePose(ctx, "nobody"))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	_, ok := <-sub.Events()
	require.False(t, ok)
	require.NoError(t, store.PublishPose(ctx, "carol", models.Pose{}))
}

func TestMemoryPresence_SlowReaderKeepsRemovals(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryPresence()
	sub, err := store.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	const players = 300
	for i := 0; i < players; i++ {
		require.NoError(t, store.PublishPose(ctx, fmt.Sprintf("p%d", i), models.Pose{X: float64(i)}))
	}
	for i := 0; i < 50; i++ {
		require.NoError(t, store.PublishPose(ctx, "p1", models.Pose{X: float64(1000 + i)}))
	}
	require.NoError(t, store.RemovePose(ctx, "p0"))
	require.NoError(t, store.RemovePose(ctx, "p2"))
	require.NoError(t, store.PublishPose(ctx, "p2", models.Pose{Z: 9}))

	seen := make(map[string]models.Pose)
	removed := make(map[string]bool)
drain:
	for {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok, "subscription closed")
			switch ev.Kind {
			case presence.Upserted:
				seen[ev.ID] = ev.Pose
			case presence.Removed:
				delete(seen, ev.ID)
				removed[ev.ID] = true
			}
		case <-time.After(200 * time.Millisecond):
			break drain
		}
	}

	require.True(t, removed["p0"], "removal was delivered")
	require.Len(t, seen, players-1)
	require.NotContains(t, seen, "p0")
	require.Equal(t, 1049.0, seen["p1"].X)
	require.Equal(t, 9.0, seen["p2"].Z)
}
