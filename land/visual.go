package land

import "torchverso/models"

type VisualState int

const (
	Unowned VisualState = iota
	OwnedPermanent
	OwnedLeased
	OwnedByOther
)

func (s VisualState) String() string {
	switch s {
	case OwnedPermanent:
		return "owned-by-self-permanent"
	case OwnedLeased:
		return "owned-by-self-leased"
	case OwnedByOther:
		return "owned-by-other"
	default:
		return "unowned"
	}
}

// StateOf derives the visual state from ownership alone.
func StateOf(p models.Plot, localActor string) VisualState {
	switch {
	case p.Owner == "":
		return Unowned
	case p.Owner != localActor:
		return OwnedByOther
	case p.RentExpires != nil:
		return OwnedLeased
	default:
		return OwnedPermanent
	}
}

// Appearance is the colour treatment of a plot's ground, border and sign.
type Appearance struct {
	Border        uint32  `json:"border"`
	Ground        uint32  `json:"ground"`
	Sign          uint32  `json:"sign"`
	GroundOpacity float64 `json:"groundOpacity"`
	BorderOpacity float64 `json:"borderOpacity"`
	SignEmissive  float64 `json:"signEmissive"`
}

func (s VisualState) Appearance() Appearance {
	switch s {
	case OwnedPermanent:
		return Appearance{Border: 0x00ff00, Ground: 0x00ff00, Sign: 0x00aa00, GroundOpacity: 0.3, BorderOpacity: 1.0, SignEmissive: 0.3}
	case OwnedLeased:
		return Appearance{Border: 0xffff00, Ground: 0xffff00, Sign: 0xffaa00, GroundOpacity: 0.3, BorderOpacity: 1.0, SignEmissive: 0.3}
	case OwnedByOther:
		return Appearance{Border: 0xff00ff, Ground: 0x8800ff, Sign: 0xaa00aa, GroundOpacity: 0.1, BorderOpacity: 0.8, SignEmissive: 0.6}
	default:
		return Appearance{Border: 0x00ffff, Ground: 0x0088ff, Sign: 0xff3333, GroundOpacity: 0.1, BorderOpacity: 0.8, SignEmissive: 0.6}
	}
}
