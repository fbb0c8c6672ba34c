package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"torchverso/models"
	"torchverso/presence"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	posesKey       = "presence:players"
	changesChannel = "presence:changes"
	eventBuffer    = 64
)

type poseChange struct {
	Type string       `json:"type"`
	ID   string       `json:"id"`
	Pose *models.Pose `json:"pose,omitempty"`
}

// RedisPresence keeps the current pose of every player in a hash and
// broadcasts each change on a pub/sub channel.
type RedisPresence struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisPresence(rdb *redis.Client, logger *zap.Logger) *RedisPresence {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPresence{rdb: rdb, logger: logger.With(zap.String("component", "redis_presence"))}
}

func (p *RedisPresence) PublishPose(ctx context.Context, id string, pose models.Pose) error {
	data, err := json.Marshal(pose)
	if err != nil {
		return err
	}
	change, err := json.Marshal(poseChange{Type: "modified", ID: id, Pose: &pose})
	if err != nil {
		return err
	}
	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, posesKey, id, data)
		pipe.Publish(ctx, changesChannel, change)
		return nil
	})
	return err
}

func (p *RedisPresence) RemovePose(ctx context.Context, id string) error {
	change, err := json.Marshal(poseChange{Type: "removed", ID: id})
	if err != nil {
		return err
	}
	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, posesKey, id)
		pipe.Publish(ctx, changesChannel, change)
		return nil
	})
	return err
}

// Subscribe listens to the change channel before reading the hash so no
// change between the two is lost.
func (p *RedisPresence) Subscribe(ctx context.Context) (presence.Subscription, error) {
	pubsub := p.rdb.Subscribe(ctx, changesChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", changesChannel, err)
	}
	current, err := p.rdb.HGetAll(ctx, posesKey).Result()
	if err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("read %s: %w", posesKey, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan presence.Event, eventBuffer),
	}
	go sub.run(current, p.logger)
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan presence.Event
}

func (s *redisSubscription) run(current map[string]string, logger *zap.Logger) {
	defer close(s.events)
	for id, raw := range current {
		var pose models.Pose
		if err := json.Unmarshal([]byte(raw), &pose); err != nil {
			logger.Warn("skip malformed pose", zap.String("id", id), zap.Error(err))
			continue
		}
		s.events <- presence.Event{Kind: presence.Upserted, ID: id, Pose: pose}
	}
	for msg := range s.pubsub.Channel() {
		var change poseChange
		if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
			logger.Warn("skip malformed change", zap.Error(err))
			continue
		}
		switch {
		case change.Type == "removed":
			s.events <- presence.Event{Kind: presence.Removed, ID: change.ID}
		case change.Pose != nil:
			s.events <- presence.Event{Kind: presence.Upserted, ID: change.ID, Pose: *change.Pose}
		}
	}
}

func (s *redisSubscription) Events() <-chan presence.Event {
	return s.events
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}

// MemoryPresence is an in-process presence store for a single server
// without Redis.
type MemoryPresence struct {
	mu    sync.Mutex
	poses map[string]models.Pose
	subs  map[*memorySubscription]struct{}
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{
		poses: make(map[string]models.Pose),
		subs:  make(map[*memorySubscription]struct{}),
	}
}

func (m *MemoryPresence) PublishPose(_ context.Context, id string, pose models.Pose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poses[id] = pose
	m.broadcast(presence.Event{Kind: presence.Upserted, ID: id, Pose: pose})
	return nil
}

func (m *MemoryPresence) RemovePose(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.poses[id]; !ok {
		return nil
	}
	delete(m.poses, id)
	m.broadcast(presence.Event{Kind: presence.Removed, ID: id})
	return nil
}

func (m *MemoryPresence) broadcast(ev presence.Event) {
	for sub := range m.subs {
		sub.push(ev)
	}
}

func (m *MemoryPresence) Subscribe(_ context.Context) (presence.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &memorySubscription{
		owner:   m,
		events:  make(chan presence.Event),
		pending: make(map[string]presence.Event),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for id, pose := range m.poses {
		sub.push(presence.Event{Kind: presence.Upserted, ID: id, Pose: pose})
	}
	m.subs[sub] = struct{}{}
	go sub.run()
	return sub, nil
}

// memorySubscription queues at most one event per player: a newer change
// replaces the one not yet delivered, so a slow reader never loses the
// latest state of anyone, removals included.
type memorySubscription struct {
	owner  *MemoryPresence
	events chan presence.Event
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	pending map[string]presence.Event
	order   []string
}

func (s *memorySubscription) push(ev presence.Event) {
	s.mu.Lock()
	if _, queued := s.pending[ev.ID]; !queued {
		s.order = append(s.order, ev.ID)
	}
	s.pending[ev.ID] = ev
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memorySubscription) pop() (presence.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return presence.Event{}, false
	}
	id := s.order[0]
	s.order = s.order[1:]
	ev := s.pending[id]
	delete(s.pending, id)
	return ev, true
}

func (s *memorySubscription) run() {
	defer close(s.events)
	for {
		select {
		case <-s.done:
			return
		default:
		}
		ev, ok := s.pop()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *memorySubscription) Events() <-chan presence.Event {
	return s.events
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.owner.mu.Lock()
		delete(s.owner.subs, s)
		s.owner.mu.Unlock()
		close(s.done)
	})
	return nil
}
