package world

import (
	"context"
	"math"
	"math/rand"
	"time"

	"torchverso/models"
)

// Brain produces free-form NPC dialogue.
type Brain interface {
	Generate(ctx context.Context, persona, message string) string
}

var phrases = []string{
	"Welcome to Torchverso!",
	"Nice office, isn't it?",
	"The future is bright.",
	"I'm looking for an apartment.",
	"Have you seen the park?",
	"System online.",
}

const (
	npcSpeed      = 2.0
	npcBounds     = 50.0
	dialogSeconds = 3 * time.Second
)

type NPC struct {
	id      string
	name    string
	persona string
	pos     models.Vec3
	dir     models.Vec3
	rng     *rand.Rand
	brain   Brain

	changeDirIn time.Duration
	dialog      string
	dialogLeft  time.Duration
}

var (
	_ Interactable = (*NPC)(nil)
	_ Hoverable    = (*NPC)(nil)
)

func NewNPC(id, name, persona string, pos models.Vec3, seed int64, brain Brain) *NPC {
	n := &NPC{
		id:      id,
		name:    name,
		persona: persona,
		pos:     models.Vec3{X: pos.X, Y: 1, Z: pos.Z},
		rng:     rand.New(rand.NewSource(seed)),
		brain:   brain,
	}
	n.pickDirection()
	return n
}

func (n *NPC) ID() string               { return n.id }
func (n *NPC) Position() models.Vec3    { return n.pos }
func (n *NPC) Capabilities() Capability { return CapInteractable | CapHoverable | CapSpeaking }
func (n *NPC) HoverText() string        { return n.name }
func (n *NPC) Dialog() (string, bool)   { return n.dialog, n.dialogLeft > 0 }
func (n *NPC) Direction() models.Vec3   { return n.dir }

func (n *NPC) pickDirection() {
	x, z := n.rng.Float64()-0.5, n.rng.Float64()-0.5
	l := math.Hypot(x, z)
	if l == 0 {
		x, l = 1, 1
	}
	n.dir = models.Vec3{X: x / l, Z: z / l}
	n.changeDirIn = time.Duration((n.rng.Float64()*3 + 2) * float64(time.Second))
}

// Update wanders the NPC and counts down its speech bubble.
func (n *NPC) Update(dt time.Duration, _ models.Vec3) {
	n.changeDirIn -= dt
	if n.changeDirIn <= 0 {
		n.pickDirection()
	}
	step := npcSpeed * dt.Seconds()
	n.pos.X += n.dir.X * step
	n.pos.Z += n.dir.Z * step

	if math.Hypot(n.pos.X, n.pos.Z) > npcBounds {
		n.dir.X, n.dir.Z = -n.dir.X, -n.dir.Z
		n.pos.X += n.dir.X
		n.pos.Z += n.dir.Z
	}

	if n.dialogLeft > 0 {
		n.dialogLeft -= dt
		if n.dialogLeft <= 0 {
			n.dialog = ""
		}
	}
}

// Interact answers with a scripted phrase, or with the brain when the
// player said something and a brain is attached.
func (n *NPC) Interact(ctx context.Context, message string) Reply {
	var text string
	if message != "" && n.brain != nil {
		text = n.brain.Generate(ctx, n.persona, message)
	} else {
		text = phrases[n.rng.Intn(len(phrases))]
	}
	n.dialog = text
	n.dialogLeft = dialogSeconds
	return Reply{Speaker: n.name, Text: text}
}
