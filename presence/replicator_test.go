package presence_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"torchverso/models"
	"torchverso/presence"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	published []models.Pose
	removed   []string
	failWith  error
	events    chan presence.Event
	closed    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: make(chan presence.Event, 16)}
}

func (f *fakeStore) PublishPose(ctx context.Context, id string, pose models.Pose) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.published = append(f.published, pose)
	return nil
}

func (f *fakeStore) RemovePose(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeStore) Subscribe(ctx context.Context) (presence.Subscription, error) {
	return f, nil
}

func (f *fakeStore) Events() <-chan presence.Event { return f.events }

func (f *fakeStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStore) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func newReplicator(store *fakeStore, cfg presence.Config) *presence.Replicator {
	r := presence.NewReplicator("me", store, store, cfg, nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return now })
	return r
}

func TestReplicator_PublishThrottle(t *testing.T) {
	store := newFakeStore()
	r := newReplicator(store, presence.DefaultConfig())
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.True(t, r.Publish(ctx, models.Pose{X: 1}, t0))
	require.False(t, r.Publish(ctx, models.Pose{X: 2}, t0.Add(16*time.Millisecond)))
	require.False(t, r.Publish(ctx, models.Pose{X: 3}, t0.Add(50*time.Millisecond)))
	require.True(t, r.Publish(ctx, models.Pose{X: 4}, t0.Add(150*time.Millisecond)))
	require.Equal(t, 2, store.publishedCount())
	require.Equal(t, 4.0, store.published[1].X)
	require.Equal(t, t0.Add(150*time.Millisecond), store.published[1].Timestamp)
}

func TestReplicator_PublishErrorIsDropped(t *testing.T) {
	store := newFakeStore()
	store.failWith = errors.New("backend down")
	r := newReplicator(store, presence.DefaultConfig())
	t0 := time.Now()

	require.True(t, r.Publish(context.Background(), models.Pose{}, t0))
	store.failWith = nil
	require.True(t, r.Publish(context.Background(), models.Pose{X: 9}, t0.Add(time.Second)))
	require.Equal(t, 1, store.publishedCount())
}

func TestReplicator_SnapshotLifecycle(t *testing.T) {
	store := newFakeStore()
	r := newReplicator(store, presence.DefaultConfig())

	r.OnRemoteSnapshot("me", models.Pose{X: 1})
	r.OnRemoteSnapshot("bob", models.Pose{X: 1, Y: 2, Z: 3, Yaw: 0.5})
	require.Empty(t, r.Avatars(), "snapshots are staged until the next tick")

	changes := r.Tick(0)
	require.Equal(t, []string{"bob"}, changes.Joined)
	a, ok := r.Avatar("bob")
	require.True(t, ok)
	require.Equal(t, models.Vec3{X: 1, Y: 2, Z: 3}, a.Position)

	r.OnRemoteSnapshot("bob", models.Pose{X: 5})
	r.OnRemoteSnapshot("bob", models.Pose{X: 10})
	r.Tick(0)
	a, _ = r.Avatar("bob")
	require.Equal(t, 10.0, a.TargetPosition.X, "last write wins")
	require.Equal(t, 1.0, a.LastPosition.X)
	require.Len(t, r.Avatars(), 1)

	r.OnRemoteRemoved("bob")
	changes = r.Tick(0)
	require.Equal(t, []string{"bob"}, changes.Left)
	require.Empty(t, r.Avatars())

	r.OnRemoteRemoved("ghost")
	require.Empty(t, r.Tick(0).Left)
}

func TestReplicator_PositionConverges(t *testing.T) {
	store := newFakeStore()
	r := newReplicator(store, presence.DefaultConfig())
	r.OnRemoteSnapshot("bob", models.Pose{})
	r.Tick(0)
	r.OnRemoteSnapshot("bob", models.Pose{X: 10, Z: -4})
	r.Tick(0)

	dist := func() float64 {
		a, _ := r.Avatar("bob")
		return math.Hypot(a.TargetPosition.X-a.Position.X, a.TargetPosition.Z-a.Position.Z)
	}
	prev := dist()
	for i := 0; i < 60; i++ {
		r.Tick(16 * time.Millisecond)
		d := dist()
		require.LessOrEqual(t, d, prev)
		a, _ := r.Avatar("bob")
		require.LessOrEqual(t, a.Position.X, 10.0, "never overshoots")
		prev = d
	}
	require.Less(t, prev, 0.01)
}

func TestReplicator_LargeStepClamps(t *testing.T) {
	store := newFakeStore()
	r := newReplicator(store, presence.DefaultConfig())
	r.OnRemoteSnapshot("bob", models.Pose{})
	r.Tick(0)
	r.OnRemoteSnapshot("bob", models.Pose{X: 3})
	r.Tick(0)

	r.Tick(time.Second)
	a, _ := r.Avatar("bob")
	require.Equal(t, 3.0, a.Position.X)
}

func TestReplicator_RotationShortestPath(t *testing.T) {
	store := newFakeStore()
	r := newReplicator(store, presence.DefaultConfig())
	r.OnRemoteSnapshot("bob", models.Pose{Yaw: 3.0})
	r.Tick(0)
	r.OnRemoteSnapshot("bob", models.Pose{Yaw: -3.0})
	r.Tick(0)

	r.Tick(10 * time.Millisecond)
	a, _ := r.Avatar("bob")
	// Moving through π means the yaw grows past 3.0 or wraps to near -π.
	require.True(t, a.Yaw > 3.0 || a.Yaw < -3.0, "yaw %v took the long way", a.Yaw)

	for i := 0; i < 100; i++ {
		r.Tick(16 * time.Millisecond)
	}
	a, _ = r.Avatar("bob")
	require.InDelta(t, -3.0, a.Yaw, 1e-3)
}

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{in: 0, want: 0},
		{in: math.Pi, want: math.Pi},
		{in: -math.Pi, want: math.Pi},
		{in: -6, want: 2*math.Pi - 6},
		{in: 3 * math.Pi / 2, want: -math.Pi / 2},
	}
	for _, tt := range tests {
		got := presence.NormalizeAngle(tt.in)
		require.InDelta(t, tt.want, got, 1e-9)
		require.Greater(t, got, -math.Pi)
		require.LessOrEqual(t, got, math.Pi)
	}
}

func TestReplicator_StaleAfter(t *testing.T) {
	store := newFakeStore()
	r := presence.NewReplicator("me", store, store, presence.Config{StaleAfter: time.Second}, nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return now })

	r.OnRemoteSnapshot("bob", models.Pose{})
	r.Tick(0)
	now = now.Add(500 * time.Millisecond)
	require.Empty(t, r.Tick(0).Left)
	now = now.Add(time.Second)
	require.Equal(t, []string{"bob"}, r.Tick(0).Left)
}

func TestReplicator_ConnectDisconnect(t *testing.T) {
	store := newFakeStore()
	r := newReplicator(store, presence.DefaultConfig())
	ctx := context.Background()

	require.NoError(t, r.Connect(ctx))
	require.Error(t, r.Connect(ctx))

	store.events <- presence.Event{Kind: presence.Upserted, ID: "bob", Pose: models.Pose{X: 2}}
	require.Eventually(t, func() bool {
		r.Tick(0)
		_, ok := r.Avatar("bob")
		return ok
	}, time.Second, 5*time.Millisecond)

	store.events <- presence.Event{Kind: presence.Removed, ID: "bob"}
	require.Eventually(t, func() bool {
		r.Tick(0)
		return len(r.Avatars()) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Disconnect(ctx))
	require.True(t, store.closed)
	require.Equal(t, []string{"me"}, store.removed)
}
