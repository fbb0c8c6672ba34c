package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"torchverso/models"
	"torchverso/world"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrEmptyMessage = errors.New("empty message")
	ErrFlood        = errors.New("sending messages too fast")
	ErrTooLong      = errors.New("message too long")
)

const (
	MaxLength    = 500
	BubbleWindow = 5 * time.Second
)

type Store interface {
	AppendMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	// RecentMessages returns at most limit messages, newest first.
	RecentMessages(ctx context.Context, limit int) ([]models.ChatMessage, error)
}

// Result tells whether a message went to global chat or to an NPC.
type Result struct {
	Message models.ChatMessage `json:"message"`
	Reply   *world.Reply       `json:"reply,omitempty"`
}

// Burst is how many messages a player may send back to back before the
// per-second limit applies.
const Burst = 3

type Chat struct {
	store   Store
	history int
	limit   rate.Limit
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(store Store, history int, perSecond float64, logger *zap.Logger) *Chat {
	if logger == nil {
		logger = zap.NewNop()
	}
	if history <= 0 {
		history = 50
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Chat{
		store:    store,
		history:  history,
		limit:    limit,
		logger:   logger.With(zap.String("component", "chat")),
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *Chat) limiter(senderID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[senderID]
	if !ok {
		l = rate.NewLimiter(c.limit, Burst)
		c.limiters[senderID] = l
	}
	return l
}

// Send posts text to global chat, or hands it to target when the player
// is talking to an NPC.
func (c *Chat) Send(ctx context.Context, senderID, senderName, text string, target world.Interactable) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyMessage
	}
	if len(text) > MaxLength {
		return Result{}, fmt.Errorf("%w: %d bytes", ErrTooLong, len(text))
	}
	now := c.now()
	local := models.ChatMessage{Text: text, SenderID: senderID, SenderName: senderName, Timestamp: now}
	if target != nil {
		reply := target.Interact(ctx, text)
		return Result{Message: local, Reply: &reply}, nil
	}
	if !c.limiter(senderID).AllowN(now, 1) {
		return Result{}, ErrFlood
	}
	saved, err := c.store.AppendMessage(ctx, local)
	if err != nil {
		c.logger.Warn("append message", zap.String("sender", senderID), zap.Error(err))
		return Result{}, fmt.Errorf("send message: %w", err)
	}
	return Result{Message: saved}, nil
}

// Recent returns the latest messages oldest first.
func (c *Chat) Recent(ctx context.Context) ([]models.ChatMessage, error) {
	msgs, err := c.store.RecentMessages(ctx, c.history)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	out := make([]models.ChatMessage, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

// Bubbles picks the messages from other players recent enough to show
// above their avatars.
func Bubbles(msgs []models.ChatMessage, selfID string, now time.Time) []models.ChatMessage {
	var out []models.ChatMessage
	for _, m := range msgs {
		if m.SenderID == selfID || m.Timestamp.IsZero() {
			continue
		}
		if now.Sub(m.Timestamp) < BubbleWindow {
			out = append(out, m)
		}
	}
	return out
}
