package world

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"torchverso/models"
)

// Capability is declared by an entity when it is constructed.
type Capability uint8

const (
	CapInteractable Capability = 1 << iota
	CapHoverable
	CapNetworked
	CapSpeaking
)

func (c Capability) Has(o Capability) bool {
	return c&o == o
}

type Entity interface {
	ID() string
	Position() models.Vec3
	Capabilities() Capability
	Update(dt time.Duration, player models.Vec3)
}

type Reply struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type Interactable interface {
	Entity
	Interact(ctx context.Context, message string) Reply
}

type Hoverable interface {
	Entity
	HoverText() string
}

type Networked interface {
	Entity
	NetworkID() string
}

// Speaking entities show a dialog line above their head while showing is
// true.
type Speaking interface {
	Entity
	Dialog() (text string, showing bool)
}

const InteractRange = 5.0

// Entities holds the world's NPCs and pets. Capability declarations are
// checked against the entity's methods when it is added.
type Entities struct {
	items map[string]Entity
}

func NewEntities() *Entities {
	return &Entities{items: make(map[string]Entity)}
}

func (es *Entities) Add(e Entity) error {
	caps := e.Capabilities()
	if caps.Has(CapInteractable) {
		if _, ok := e.(Interactable); !ok {
			return fmt.Errorf("entity %s declares interactable but cannot interact", e.ID())
		}
	}
	if caps.Has(CapHoverable) {
		if _, ok := e.(Hoverable); !ok {
			return fmt.Errorf("entity %s declares hoverable but has no hover text", e.ID())
		}
	}
	if caps.Has(CapNetworked) {
		if _, ok := e.(Networked); !ok {
			return fmt.Errorf("entity %s declares networked but has no network id", e.ID())
		}
	}
	if caps.Has(CapSpeaking) {
		if _, ok := e.(Speaking); !ok {
			return fmt.Errorf("entity %s declares speaking but has no dialog", e.ID())
		}
	}
	if _, dup := es.items[e.ID()]; dup {
		return fmt.Errorf("entity %s already exists", e.ID())
	}
	es.items[e.ID()] = e
	return nil
}

func (es *Entities) Get(id string) (Entity, bool) {
	e, ok := es.items[id]
	return e, ok
}

func (es *Entities) All() []Entity {
	out := make([]Entity, 0, len(es.items))
	for _, e := range es.items {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (es *Entities) Update(dt time.Duration, player models.Vec3) {
	for _, e := range es.All() {
		e.Update(dt, player)
	}
}

// Nearest returns the closest interactable entity within InteractRange of from.
func (es *Entities) Nearest(from models.Vec3) (Interactable, bool) {
	var (
		best    Interactable
		minDist = InteractRange
	)
	for _, e := range es.All() {
		if !e.Capabilities().Has(CapInteractable) {
			continue
		}
		d := distance(e.Position(), from)
		if d < minDist {
			minDist = d
			best = e.(Interactable)
		}
	}
	return best, best != nil
}

// TryInteract interacts with the nearest interactable entity, if any.
func (es *Entities) TryInteract(ctx context.Context, from models.Vec3, message string) (Reply, bool) {
	target, ok := es.Nearest(from)
	if !ok {
		return Reply{}, false
	}
	return target.Interact(ctx, message), true
}

func distance(a, b models.Vec3) float64 {
	return math.Sqrt((a.X-b.X)*(a.X-b.X) + (a.Y-b.Y)*(a.Y-b.Y) + (a.Z-b.Z)*(a.Z-b.Z))
}
