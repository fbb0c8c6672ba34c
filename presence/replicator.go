// Package presence publishes the local avatar pose at a bounded rate and
// keeps a smoothed copy of every remote avatar for rendering.
package presence

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"torchverso/models"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Publisher interface {
	PublishPose(ctx context.Context, id string, pose models.Pose) error
	RemovePose(ctx context.Context, id string) error
}

type EventKind int

const (
	Upserted EventKind = iota
	Removed
)

type Event struct {
	Kind EventKind
	ID   string
	Pose models.Pose
}

// Feed delivers the current poses as Upserted events followed by every
// subsequent change.
type Feed interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

type Subscription interface {
	Events() <-chan Event
	Close() error
}

type Avatar struct {
	ID             string      `json:"id"`
	Position       models.Vec3 `json:"position"`
	Yaw            float64     `json:"rotation"`
	LastPosition   models.Vec3 `json:"-"`
	TargetPosition models.Vec3 `json:"-"`
	TargetYaw      float64     `json:"-"`
	LastUpdate     time.Time   `json:"-"`
}

// Changes lists avatars created or destroyed by one Tick.
type Changes struct {
	Joined []string
	Left   []string
}

type Config struct {
	PublishInterval time.Duration
	Smoothing       float64
	// StaleAfter drops avatars that have not been updated for this long.
	// Zero leaves removal to the backend.
	StaleAfter time.Duration
}

func DefaultConfig() Config {
	return Config{PublishInterval: 100 * time.Millisecond, Smoothing: 10}
}

type staged struct {
	removed bool
	pose    models.Pose
	at      time.Time
}

type Replicator struct {
	localID string
	pub     Publisher
	feed    Feed
	logger  *zap.Logger
	cfg     Config
	limiter *rate.Limiter
	now     func() time.Time

	avatars map[string]*Avatar

	stageMu sync.Mutex
	staging map[string]staged

	cancel context.CancelFunc
	sub    Subscription
	done   chan struct{}
}

func NewReplicator(localID string, pub Publisher, feed Feed, cfg Config, logger *zap.Logger) *Replicator {
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = DefaultConfig().PublishInterval
	}
	if cfg.Smoothing <= 0 {
		cfg.Smoothing = DefaultConfig().Smoothing
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replicator{
		localID: localID,
		pub:     pub,
		feed:    feed,
		logger:  logger.With(zap.String("component", "presence"), zap.String("uid", localID)),
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.PublishInterval), 1),
		now:     time.Now,
		avatars: make(map[string]*Avatar),
		staging: make(map[string]staged),
	}
}

// SetClock replaces the wall clock used for receive timestamps.
func (r *Replicator) SetClock(now func() time.Time) {
	r.now = now
}

// Connect subscribes to the feed. Events are staged and applied on Tick.
func (r *Replicator) Connect(ctx context.Context) error {
	if r.sub != nil {
		return errors.New("presence: already connected")
	}
	ctx, cancel := context.WithCancel(ctx)
	sub, err := r.feed.Subscribe(ctx)
	if err != nil {
		cancel()
		return err
	}
	r.cancel = cancel
	r.sub = sub
	r.done = make(chan struct{})
	go r.consume(ctx, sub)
	return nil
}

func (r *Replicator) consume(ctx context.Context, sub Subscription) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case Upserted:
				r.OnRemoteSnapshot(ev.ID, ev.Pose)
			case Removed:
				r.OnRemoteRemoved(ev.ID)
			}
		}
	}
}

// Disconnect stops the subscription and removes the local pose from the store.
func (r *Replicator) Disconnect(ctx context.Context) error {
	if r.sub != nil {
		r.cancel()
		if err := r.sub.Close(); err != nil {
			r.logger.Warn("close presence subscription", zap.Error(err))
		}
		<-r.done
		r.sub = nil
	}
	if err := r.pub.RemovePose(ctx, r.localID); err != nil {
		r.logger.Warn("remove local pose", zap.Error(err))
		return err
	}
	return nil
}

// Publish sends pose if at least one publish interval has passed since the
// last send. It reports whether a send was attempted. Send errors are
// logged and dropped.
func (r *Replicator) Publish(ctx context.Context, pose models.Pose, now time.Time) bool {
	if !r.limiter.AllowN(now, 1) {
		return false
	}
	if pose.Timestamp.IsZero() {
		pose.Timestamp = now
	}
	if err := r.pub.PublishPose(ctx, r.localID, pose); err != nil {
		r.logger.Warn("publish pose", zap.Error(err))
	}
	return true
}

func (r *Replicator) OnRemoteSnapshot(id string, pose models.Pose) {
	if id == r.localID {
		return
	}
	r.stageMu.Lock()
	r.staging[id] = staged{pose: pose, at: r.now()}
	r.stageMu.Unlock()
}

func (r *Replicator) OnRemoteRemoved(id string) {
	if id == r.localID {
		return
	}
	r.stageMu.Lock()
	r.staging[id] = staged{removed: true}
	r.stageMu.Unlock()
}

// Tick applies staged snapshots and moves every avatar a fraction
// Smoothing*dt of the way to its target.
func (r *Replicator) Tick(dt time.Duration) Changes {
	changes := r.applyStaged()

	if r.cfg.StaleAfter > 0 {
		now := r.now()
		for _, id := range r.sortedIDs() {
			if now.Sub(r.avatars[id].LastUpdate) > r.cfg.StaleAfter {
				delete(r.avatars, id)
				changes.Left = append(changes.Left, id)
				r.logger.Info("remote avatar went stale", zap.String("remote", id))
			}
		}
	}

	f := r.cfg.Smoothing * dt.Seconds()
	if f > 1 {
		f = 1
	}
	if f <= 0 {
		return changes
	}
	for _, a := range r.avatars {
		a.Position.X += (a.TargetPosition.X - a.Position.X) * f
		a.Position.Y += (a.TargetPosition.Y - a.Position.Y) * f
		a.Position.Z += (a.TargetPosition.Z - a.Position.Z) * f
		a.Yaw = NormalizeAngle(a.Yaw + NormalizeAngle(a.TargetYaw-a.Yaw)*f)
	}
	return changes
}

func (r *Replicator) applyStaged() Changes {
	r.stageMu.Lock()
	pending := r.staging
	r.staging = make(map[string]staged, len(pending))
	r.stageMu.Unlock()

	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var changes Changes
	for _, id := range ids {
		s := pending[id]
		a, exists := r.avatars[id]
		switch {
		case s.removed:
			if exists {
				delete(r.avatars, id)
				changes.Left = append(changes.Left, id)
			}
		case !exists:
			pos := s.pose.Position()
			r.avatars[id] = &Avatar{
				ID:             id,
				Position:       pos,
				Yaw:            NormalizeAngle(s.pose.Yaw),
				LastPosition:   pos,
				TargetPosition: pos,
				TargetYaw:      s.pose.Yaw,
				LastUpdate:     s.at,
			}
			changes.Joined = append(changes.Joined, id)
		default:
			a.LastPosition = a.TargetPosition
			a.TargetPosition = s.pose.Position()
			a.TargetYaw = s.pose.Yaw
			a.LastUpdate = s.at
		}
	}
	return changes
}

func (r *Replicator) sortedIDs() []string {
	ids := make([]string, 0, len(r.avatars))
	for id := range r.avatars {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Avatars returns the rendered state of every remote avatar ordered by id.
func (r *Replicator) Avatars() []Avatar {
	out := make([]Avatar, 0, len(r.avatars))
	for _, id := range r.sortedIDs() {
		out = append(out, *r.avatars[id])
	}
	return out
}

func (r *Replicator) Avatar(id string) (Avatar, bool) {
	a, ok := r.avatars[id]
	if !ok {
		return Avatar{}, false
	}
	return *a, true
}

// NormalizeAngle maps a into (-π, π].
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
