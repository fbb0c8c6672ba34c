package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"torchverso/chat"
	"torchverso/config"
	"torchverso/models"
	"torchverso/presence"
	"torchverso/repository"
	"torchverso/world"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

//go:generate mockgen -destination=./mocks/mock_repository.go -package=mocks torchverso/service Repository

type Repository interface {
	CreateIdentity(ctx context.Context, ident models.Identity) error
	GetIdentity(ctx context.Context, id string) (models.Identity, error)
	SaveCity(ctx context.Context, userID string, doc models.SaveDocument) error
	LoadCity(ctx context.Context, userID string) ([]byte, error)
	ClaimPlot(ctx context.Context, claim models.PlotClaim, now time.Time) error
	ReleasePlot(ctx context.Context, plotID, owner string) error
	ListClaims(ctx context.Context, now time.Time) ([]models.PlotClaim, error)
	AppendMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	RecentMessages(ctx context.Context, limit int) ([]models.ChatMessage, error)
}

// PresenceStore holds live poses and streams their changes.
type PresenceStore interface {
	presence.Publisher
	presence.Feed
}

var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSuchEntity       = errors.New("no such entity")
	ErrOutOfRange         = errors.New("entity out of range")
	ErrSessionClosed      = errors.New("session closed")
)

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithBrain(brain world.Brain) Option {
	return func(s *Service) { s.brain = brain }
}

// WithManualTicks disables the per-session tick loop; callers drive
// Session.Tick themselves.
func WithManualTicks() Option {
	return func(s *Service) { s.manualTicks = true }
}

type Service struct {
	repo        Repository
	presence    PresenceStore
	jwtSecret   string
	tuning      config.Tuning
	logger      *zap.Logger
	brain       world.Brain
	chat        *chat.Chat
	schema      *jsonschema.Schema
	now         func() time.Time
	manualTicks bool

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	closing  map[string]chan struct{}
}

func NewService(
	repo Repository,
	store PresenceStore,
	jwtSecret string,
	tuning config.Tuning,
	logger *zap.Logger,
	opts ...Option,
) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	schema, err := compileSaveSchema()
	if err != nil {
		return nil, err
	}
	s := &Service{
		repo:      repo,
		presence:  store,
		jwtSecret: jwtSecret,
		tuning:    tuning,
		logger:    logger,
		schema:    schema,
		now:       time.Now,
		sessions:  make(map[string]*sessionEntry),
		closing:   make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.chat = chat.New(repo, tuning.ChatHistory, tuning.ChatPerSecond, logger)
	return s, nil
}

type AuthResult struct {
	Token  string `json:"token"`
	UID    string `json:"uid"`
	Name   string `json:"name"`
	Secret string `json:"secret,omitempty"`
}

// AuthenticateAnonymous signs in with a device secret. An empty uid
// creates a new identity and returns its secret once.
func (s *Service) AuthenticateAnonymous(
	ctx context.Context,
	uid, secret string,
) (AuthResult, error) {
	if uid == "" {
		return s.createIdentity(ctx)
	}
	ident, err := s.repo.GetIdentity(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !bcryptCompare(ident.SecretHash, secret) {
		return AuthResult{}, ErrInvalidCredentials
	}
	token, err := s.generateJWT(ident.ID, ident.Name)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, UID: ident.ID, Name: ident.Name}, nil
}

func (s *Service) createIdentity(ctx context.Context) (AuthResult, error) {
	uid := uuid.NewString()
	secret := uuid.NewString()
	hashed, err := bcryptHash(secret)
	if err != nil {
		return AuthResult{}, err
	}
	ident := models.Identity{
		ID:         uid,
		SecretHash: hashed,
		Name:       "User-" + uid[:4],
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.CreateIdentity(ctx, ident); err != nil {
		return AuthResult{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	s.logger.Info("identity created", zap.String("uid", uid))
	token, err := s.generateJWT(uid, ident.Name)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, UID: uid, Name: ident.Name, Secret: secret}, nil
}

func (s *Service) generateJWT(uid, name string) (string, error) {
	claims := jwt.MapClaims{
		"uid":  uid,
		"name": name,
		"exp":  s.now().Add(72 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// ParseToken validates an HS256 token and returns its identity.
func (s *Service) ParseToken(tokenStr string) (uid, name string, err error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return "", "", ErrInvalidCredentials
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrInvalidCredentials
	}
	uid, _ = claims["uid"].(string)
	name, _ = claims["name"].(string)
	if uid == "" {
		return "", "", ErrInvalidCredentials
	}
	return uid, name, nil
}

func bcryptHash(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(hash), err
}

func bcryptCompare(hashed, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(secret)) == nil
}

// sessionEntry is the session of one uid and who is using it. The first
// caller opens the session while later callers wait on ready. refs counts
// attached connections and in-flight requests.
type sessionEntry struct {
	ready    chan struct{}
	sess     *Session
	err      error
	refs     int
	sockets  int
	attached bool
	lastUsed time.Time
}

// Attach opens or joins the session of uid for a live connection. The
// session stays open until every attached connection has called Detach.
func (s *Service) Attach(ctx context.Context, uid, name string) (*Session, error) {
	e, err := s.acquire(ctx, uid, name, true)
	if err != nil {
		return nil, err
	}
	return e.sess, nil
}

// Detach releases a connection taken with Attach. When the last one
// leaves and no request is running, the session is saved and closed.
func (s *Service) Detach(ctx context.Context, sess *Session) {
	s.mu.Lock()
	e, ok := s.sessions[sess.uid]
	if !ok || e.sess != sess || e.sockets == 0 {
		s.mu.Unlock()
		return
	}
	e.sockets--
	s.drop(ctx, sess.uid, e)
}

// Use opens or joins the session of uid for a single request. release
// must be called once the request is done; sessions used only this way
// are closed by ExpireIdle.
func (s *Service) Use(ctx context.Context, uid, name string) (sess *Session, release func(), err error) {
	e, err := s.acquire(ctx, uid, name, false)
	if err != nil {
		return nil, nil, err
	}
	var once sync.Once
	release = func() {
		once.Do(func() {
			s.mu.Lock()
			s.drop(context.WithoutCancel(ctx), uid, e)
		})
	}
	return e.sess, release, nil
}

func (s *Service) acquire(ctx context.Context, uid, name string, socket bool) (*sessionEntry, error) {
	s.mu.Lock()
	e, joined := s.sessions[uid]
	if !joined {
		e = &sessionEntry{ready: make(chan struct{})}
		s.sessions[uid] = e
	}
	e.refs++
	if socket {
		e.sockets++
		e.attached = true
	}
	e.lastUsed = s.now()
	closing := s.closing[uid]
	s.mu.Unlock()

	if joined {
		<-e.ready
	} else {
		// a previous session of uid may still be writing its final save
		if closing != nil {
			<-closing
		}
		sess, err := s.open(ctx, uid, name)
		s.mu.Lock()
		e.sess, e.err = sess, err
		if err != nil && s.sessions[uid] == e {
			delete(s.sessions, uid)
		}
		s.mu.Unlock()
		close(e.ready)
	}
	if e.err != nil {
		return nil, e.err
	}
	return e, nil
}

// drop releases one reference of e. It is called with s.mu held and
// unlocks it.
func (s *Service) drop(ctx context.Context, uid string, e *sessionEntry) {
	e.refs--
	e.lastUsed = s.now()
	if e.refs > 0 || !e.attached || s.sessions[uid] != e {
		s.mu.Unlock()
		return
	}
	done := s.retire(uid)
	s.mu.Unlock()
	s.finish(ctx, uid, e.sess, done)
}

// retire removes uid from the open sessions. Callers hold s.mu.
func (s *Service) retire(uid string) chan struct{} {
	delete(s.sessions, uid)
	done := make(chan struct{})
	s.closing[uid] = done
	return done
}

func (s *Service) finish(ctx context.Context, uid string, sess *Session, done chan struct{}) {
	sess.close(ctx)
	s.mu.Lock()
	if s.closing[uid] == done {
		delete(s.closing, uid)
	}
	s.mu.Unlock()
	close(done)
}

// ExpireIdle closes sessions that have had no connection or request for
// the idle timeout and returns how many it closed.
func (s *Service) ExpireIdle(ctx context.Context) int {
	idle := s.tuning.SessionIdle()
	now := s.now()
	type victim struct {
		uid  string
		sess *Session
		done chan struct{}
	}
	var victims []victim
	s.mu.Lock()
	for uid, e := range s.sessions {
		if e.refs > 0 || now.Sub(e.lastUsed) < idle {
			continue
		}
		victims = append(victims, victim{uid: uid, sess: e.sess, done: s.retire(uid)})
	}
	s.mu.Unlock()

	for _, v := range victims {
		s.logger.Info("session idle", zap.String("uid", v.uid))
		s.finish(ctx, v.uid, v.sess, v.done)
	}
	return len(victims)
}

// ExpireIdleLoop runs ExpireIdle every interval until ctx is done.
func (s *Service) ExpireIdleLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ExpireIdle(ctx)
		}
	}
}

// Close ends every open session and waits for those already closing.
func (s *Service) Close(ctx context.Context) {
	s.mu.Lock()
	entries := s.sessions
	s.sessions = make(map[string]*sessionEntry)
	closing := make([]chan struct{}, 0, len(s.closing))
	for _, done := range s.closing {
		closing = append(closing, done)
	}
	s.mu.Unlock()

	for _, e := range entries {
		<-e.ready
		if e.sess != nil {
			e.sess.close(ctx)
		}
	}
	for _, done := range closing {
		<-done
	}
}

func (s *Service) RecentChat(ctx context.Context) ([]models.ChatMessage, error) {
	msgs, err := s.chat.Recent(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return msgs, nil
}
