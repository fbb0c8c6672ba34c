package world

import (
	"context"
	"math"
	"time"

	"torchverso/models"
)

type DogState string

const (
	DogIdle   DogState = "IDLE"
	DogFollow DogState = "FOLLOW"
)

const (
	dogSpeed       = 4.0
	dogMinDistance = 3.0
	dogMaxDistance = 8.0
)

// Dog follows the player once it falls more than dogMaxDistance behind and
// settles again within dogMinDistance.
type Dog struct {
	id    string
	pos   models.Vec3
	state DogState
}

var _ Interactable = (*Dog)(nil)

func NewDog(id string, pos models.Vec3) *Dog {
	return &Dog{id: id, pos: models.Vec3{X: pos.X, Z: pos.Z}, state: DogIdle}
}

func (d *Dog) ID() string               { return d.id }
func (d *Dog) Position() models.Vec3    { return d.pos }
func (d *Dog) Capabilities() Capability { return CapInteractable }
func (d *Dog) State() DogState          { return d.state }

func (d *Dog) Update(dt time.Duration, player models.Vec3) {
	dx, dz := player.X-d.pos.X, player.Z-d.pos.Z
	dist := math.Hypot(dx, dz)
	switch {
	case dist > dogMaxDistance:
		d.state = DogFollow
	case dist < dogMinDistance:
		d.state = DogIdle
	}
	if d.state != DogFollow || dist == 0 {
		return
	}
	step := math.Min(dogSpeed*dt.Seconds(), dist)
	d.pos.X += dx / dist * step
	d.pos.Z += dz / dist * step
}

func (d *Dog) Interact(context.Context, string) Reply {
	return Reply{Speaker: "Dog", Text: "Woof!"}
}
