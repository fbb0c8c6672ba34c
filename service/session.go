package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"torchverso/builder"
	"torchverso/chat"
	"torchverso/economy"
	"torchverso/land"
	"torchverso/models"
	"torchverso/presence"
	"torchverso/repository"
	"torchverso/world"

	"go.uber.org/zap"
)

const citizenCount = 5

// Session is the game state of one identity. All of its state is guarded
// by mu; the tick loop and the API handlers share it.
type Session struct {
	svc    *Service
	uid    string
	name   string
	logger *zap.Logger

	mu         sync.Mutex
	land       *land.Registry
	econ       *economy.Economy
	builder    *builder.Builder
	entities   *world.Entities
	replicator *presence.Replicator
	player     models.Vec3
	sinceSave  time.Duration
	closed     bool

	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Service) layout() world.Layout {
	return world.Layout{
		CitySize:    s.tuning.CitySize,
		BlockSize:   s.tuning.BlockSize,
		StreetWidth: s.tuning.StreetWidth,
		BasePrice:   s.tuning.BasePlotPrice,
	}
}

func (s *Service) open(ctx context.Context, uid, name string) (*Session, error) {
	logger := s.logger.With(zap.String("uid", uid))
	if name == "" {
		name = "User-" + uid
	}
	sess := &Session{svc: s, uid: uid, name: name, logger: logger}

	doc := s.initialSave()
	raw, err := s.repo.LoadCity(ctx, uid)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		logger.Info("no save found, starting fresh")
	case err != nil:
		logger.Warn("load city", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	default:
		loaded, err := s.decodeSave(raw)
		if err != nil {
			logger.Warn("discarding unreadable save", zap.Error(err))
		} else {
			doc = loaded
		}
	}
	if err := sess.rebuild(doc); err != nil {
		logger.Warn("discarding unreadable save", zap.Error(err))
		if err := sess.rebuild(s.initialSave()); err != nil {
			return nil, err
		}
	}

	sess.entities = world.NewEntities()
	if err := world.SpawnCitizens(sess.entities, citizenCount, s.tuning.WorldSeed, s.brain); err != nil {
		return nil, err
	}

	sess.replicator = presence.NewReplicator(uid, s.presence, s.presence, presence.Config{
		PublishInterval: s.tuning.PublishInterval(),
		Smoothing:       s.tuning.Interpolation,
		StaleAfter:      s.tuning.StaleAfter(),
	}, logger)
	sess.replicator.SetClock(s.now)

	loopCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	if err := sess.replicator.Connect(loopCtx); err != nil {
		logger.Warn("presence unavailable", zap.Error(err))
	}
	sess.SyncClaims(ctx)

	sess.done = make(chan struct{})
	if s.manualTicks {
		close(sess.done)
	} else {
		go sess.run(loopCtx, s.tuning.TickInterval())
	}
	logger.Info("session opened", zap.Int("wallet", sess.land.Wallet()))
	return sess, nil
}

// rebuild replaces land, economy and buildings with a fresh city holding
// doc. Callers hold sess.mu or own the session exclusively.
func (sess *Session) rebuild(doc models.SaveDocument) error {
	reg := land.NewRegistry(
		sess.uid,
		sess.svc.tuning.StartingWallet,
		land.WithClock(sess.svc.now),
		land.WithExpiryInterval(sess.svc.tuning.ExpiryInterval()),
	)
	if err := sess.svc.layout().Populate(reg); err != nil {
		return err
	}
	econ := economy.New(sess.svc.tuning.StartingBalance)
	b := builder.New(reg, econ)

	prevLand, prevEcon, prevBuilder := sess.land, sess.econ, sess.builder
	sess.land, sess.econ, sess.builder = reg, econ, b
	if err := sess.apply(doc); err != nil {
		sess.land, sess.econ, sess.builder = prevLand, prevEcon, prevBuilder
		return err
	}
	return nil
}

func (sess *Session) run(ctx context.Context, interval time.Duration) {
	defer close(sess.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := sess.svc.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := sess.svc.now()
			sess.Tick(ctx, now.Sub(last))
			last = now
		}
	}
}

func (sess *Session) close(ctx context.Context) {
	sess.mu.Lock()
	sess.closed = true
	sess.mu.Unlock()
	sess.cancel()
	<-sess.done
	if err := sess.Save(ctx); err != nil {
		sess.logger.Warn("final save", zap.Error(err))
	}
	sess.mu.Lock()
	err := sess.replicator.Disconnect(ctx)
	sess.mu.Unlock()
	if err != nil {
		sess.logger.Warn("presence disconnect", zap.Error(err))
	}
	sess.logger.Info("session closed")
}

type TickResult struct {
	Joined  []string
	Left    []string
	Expired []string
	Income  int
	Saved   bool
}

// Tick advances the session by dt: remote avatars, lease expiry, passive
// income, NPCs and autosave.
func (sess *Session) Tick(ctx context.Context, dt time.Duration) TickResult {
	sess.mu.Lock()
	changes := sess.replicator.Tick(dt)
	expired := sess.land.Advance(dt)
	income := sess.econ.Update(dt)
	sess.entities.Update(dt, sess.player)
	sess.sinceSave += dt
	due := sess.sinceSave >= sess.svc.tuning.AutosaveInterval()
	sess.mu.Unlock()

	for _, id := range expired {
		sess.logger.Info("lease expired", zap.String("plot", id))
		if err := sess.svc.repo.ReleasePlot(ctx, id, sess.uid); err != nil {
			sess.logger.Warn("release plot", zap.String("plot", id), zap.Error(err))
		}
	}
	res := TickResult{Joined: changes.Joined, Left: changes.Left, Expired: expired, Income: income}
	if due {
		sess.SyncClaims(ctx)
		res.Saved = sess.Save(ctx) == nil
	}
	return res
}

// SyncClaims refreshes the plots held by other players from the claim
// store. Failures are logged and the previous view is kept.
func (sess *Session) SyncClaims(ctx context.Context) {
	claims, err := sess.svc.repo.ListClaims(ctx, sess.svc.now().UTC())
	if err != nil {
		sess.logger.Warn("list claims", zap.Error(err))
		return
	}
	held := make(map[string]models.PlotClaim, len(claims))
	for _, c := range claims {
		held[c.PlotID] = c
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	for _, p := range sess.land.Plots() {
		if p.Owner == "" || p.Owner == sess.uid {
			continue
		}
		if _, ok := held[p.ID]; !ok {
			sess.land.ReleaseRemoteClaim(p.ID)
		}
	}
	for _, c := range claims {
		if c.Owner != sess.uid {
			sess.land.ApplyRemoteClaim(c.PlotID, c.Owner, c.RentExpires)
		}
	}
}

func (sess *Session) UID() string  { return sess.uid }
func (sess *Session) Name() string { return sess.name }

type PlotView struct {
	models.Plot
	State      string          `json:"state"`
	Appearance land.Appearance `json:"appearance"`
}

func plotView(p models.Plot, localActor string) PlotView {
	state := land.StateOf(p, localActor)
	return PlotView{Plot: p, State: state.String(), Appearance: state.Appearance()}
}

type CityView struct {
	UID        string            `json:"uid"`
	Name       string            `json:"name"`
	Wallet     int               `json:"wallet"`
	Balance    int               `json:"balance"`
	IncomeRate int               `json:"incomeRate"`
	Plots      []PlotView        `json:"plots"`
	Buildings  []models.Building `json:"buildings"`
	Prefabs    []builder.Prefab  `json:"prefabs"`
}

func (sess *Session) City() CityView {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	plots := sess.land.Plots()
	views := make([]PlotView, 0, len(plots))
	for _, p := range plots {
		views = append(views, plotView(p, sess.uid))
	}
	return CityView{
		UID:        sess.uid,
		Name:       sess.name,
		Wallet:     sess.land.Wallet(),
		Balance:    sess.econ.Balance(),
		IncomeRate: sess.econ.IncomeRate(),
		Plots:      views,
		Buildings:  sess.builder.Buildings(),
		Prefabs:    builder.Catalogue(),
	}
}

func (sess *Session) PlotAt(x, z float64) (PlotView, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	p, ok := sess.land.PlotAt(x, z)
	if !ok {
		return PlotView{}, false
	}
	return plotView(p, sess.uid), true
}

func (sess *Session) BuyPlot(ctx context.Context, plotID string) (PlotView, error) {
	return sess.acquire(ctx, func() (land.Receipt, error) {
		return sess.land.Buy(plotID, sess.uid)
	})
}

func (sess *Session) RentPlot(ctx context.Context, plotID, duration string) (PlotView, error) {
	kind, err := land.ParseRentKind(duration)
	if err != nil {
		return PlotView{}, err
	}
	return sess.acquire(ctx, func() (land.Receipt, error) {
		return sess.land.Rent(plotID, sess.uid, kind)
	})
}

// acquire runs a local purchase, then records it in the shared claim
// store. A refused or failed claim rolls the purchase back.
func (sess *Session) acquire(ctx context.Context, purchase func() (land.Receipt, error)) (PlotView, error) {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return PlotView{}, ErrSessionClosed
	}
	rc, err := purchase()
	sess.mu.Unlock()
	if err != nil {
		return PlotView{}, err
	}

	claim := models.PlotClaim{PlotID: rc.PlotID, Owner: sess.uid, RentExpires: rc.RentExpires}
	if err := sess.svc.repo.ClaimPlot(ctx, claim, sess.svc.now().UTC()); err != nil {
		sess.mu.Lock()
		sess.land.Rollback(rc)
		sess.mu.Unlock()
		if errors.Is(err, repository.ErrPlotClaimed) {
			sess.SyncClaims(ctx)
			return PlotView{}, fmt.Errorf("%w: %s", land.ErrPlotUnavailable, rc.PlotID)
		}
		sess.logger.Warn("claim plot", zap.String("plot", rc.PlotID), zap.Error(err))
		return PlotView{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	sess.logger.Info("plot acquired",
		zap.String("plot", rc.PlotID),
		zap.String("kind", rc.Kind),
		zap.Int("charged", rc.Charged),
	)
	if err := sess.Save(ctx); err != nil {
		sess.logger.Warn("save after purchase", zap.Error(err))
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	p, _ := sess.land.Plot(rc.PlotID)
	return plotView(p, sess.uid), nil
}

func (sess *Session) PlaceBuilding(typ string, x, z, rotation float64) (models.Building, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.builder.Place(sess.uid, typ, x, z, rotation)
}

func (sess *Session) MoveBuilding(index int, x, z, rotation float64) (models.Building, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.builder.Move(sess.uid, index, x, z, rotation)
}

func (sess *Session) RemoveBuilding(index int) (models.Building, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.builder.Remove(sess.uid, index)
}

// UpdatePose records the player's pose and publishes it at the throttled
// rate. A closed session publishes nothing.
func (sess *Session) UpdatePose(ctx context.Context, pose models.Pose) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return false
	}
	sess.player = pose.Position()
	return sess.replicator.Publish(ctx, pose, sess.svc.now())
}

func (sess *Session) Avatars() []presence.Avatar {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.replicator.Avatars()
}

type EntityView struct {
	ID       string      `json:"id"`
	Name     string      `json:"name,omitempty"`
	Position models.Vec3 `json:"position"`
	Dialog   string      `json:"dialog,omitempty"`
}

func (sess *Session) Entities() []EntityView {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	var out []EntityView
	for _, e := range sess.entities.All() {
		v := EntityView{ID: e.ID(), Position: e.Position()}
		caps := e.Capabilities()
		if caps.Has(world.CapHoverable) {
			v.Name = e.(world.Hoverable).HoverText()
		}
		if caps.Has(world.CapSpeaking) {
			if text, showing := e.(world.Speaking).Dialog(); showing {
				v.Dialog = text
			}
		}
		out = append(out, v)
	}
	return out
}

// Interact talks to the closest interactable entity within reach of the
// given point.
func (sess *Session) Interact(ctx context.Context, x, z float64, message string) (world.Reply, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.player = models.Vec3{X: x, Y: sess.player.Y, Z: z}
	return sess.entities.TryInteract(ctx, sess.player, message)
}

type ChatFeed struct {
	Messages []models.ChatMessage `json:"messages"`
	Bubbles  []models.ChatMessage `json:"bubbles"`
}

// ChatFeed returns recent global chat and the messages of other players
// young enough to show as bubbles.
func (sess *Session) ChatFeed(ctx context.Context) (ChatFeed, error) {
	msgs, err := sess.svc.RecentChat(ctx)
	if err != nil {
		return ChatFeed{}, err
	}
	return ChatFeed{
		Messages: msgs,
		Bubbles:  chat.Bubbles(msgs, sess.uid, sess.svc.now()),
	}, nil
}

// SendChat posts text to global chat, or to the NPC named by to when the
// player stands next to it.
func (sess *Session) SendChat(ctx context.Context, text, to string) (chat.Result, error) {
	var target world.Interactable
	if to != "" {
		sess.mu.Lock()
		e, ok := sess.entities.Get(to)
		player := sess.player
		sess.mu.Unlock()
		if !ok {
			return chat.Result{}, fmt.Errorf("%w: %s", ErrNoSuchEntity, to)
		}
		it, ok := e.(world.Interactable)
		if !ok {
			return chat.Result{}, fmt.Errorf("%w: %s", ErrNoSuchEntity, to)
		}
		if dist(player, it.Position()) > world.InteractRange {
			return chat.Result{}, fmt.Errorf("%w: %s", ErrOutOfRange, to)
		}
		target = lockedTarget{Interactable: it, mu: &sess.mu}
	}
	res, err := sess.svc.chat.Send(ctx, sess.uid, sess.name, text, target)
	if err != nil && !errors.Is(err, chat.ErrEmptyMessage) && !errors.Is(err, chat.ErrFlood) && !errors.Is(err, chat.ErrTooLong) {
		return chat.Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return res, err
}

// lockedTarget serialises an NPC conversation with the tick loop.
type lockedTarget struct {
	world.Interactable
	mu *sync.Mutex
}

func (t lockedTarget) Interact(ctx context.Context, message string) world.Reply {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Interactable.Interact(ctx, message)
}

func dist(a, b models.Vec3) float64 {
	dx, dz := a.X-b.X, a.Z-b.Z
	return math.Sqrt(dx*dx + dz*dz)
}
