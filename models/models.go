package models

import "time"

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Size struct {
	Width float64 `json:"width"`
	Depth float64 `json:"depth"`
}

// Plot is one parcel of land. Position and Size never change after
// registration; Owner and RentExpires describe the ownership state.
type Plot struct {
	ID          string     `json:"id"`
	Price       int        `json:"price"`
	Position    Vec3       `json:"position"`
	Size        Size       `json:"size"`
	Owner       string     `json:"owner,omitempty"`
	RentExpires *time.Time `json:"rentExpires,omitempty"`
}

func (p Plot) Available() bool {
	return p.Owner == ""
}

func (p Plot) Leased() bool {
	return p.Owner != "" && p.RentExpires != nil
}

func (p Plot) Contains(x, z float64) bool {
	dx := x - p.Position.X
	if dx < 0 {
		dx = -dx
	}
	dz := z - p.Position.Z
	if dz < 0 {
		dz = -dz
	}
	return dx < p.Size.Width/2 && dz < p.Size.Depth/2
}

// Pose is the replicated position and yaw of an avatar.
type Pose struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	Yaw       float64   `json:"rotation"`
	Timestamp time.Time `json:"lastSeen"`
}

func (p Pose) Position() Vec3 {
	return Vec3{X: p.X, Y: p.Y, Z: p.Z}
}

type Building struct {
	Type     string  `json:"type"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Rotation float64 `json:"rotation"`
}

type ChatMessage struct {
	ID         int64     `json:"id"`
	Text       string    `json:"text"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Timestamp  time.Time `json:"timestamp"`
}

type PlotRecord struct {
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	RentExpires *int64 `json:"rentExpires"`
}

type LandState struct {
	Wallet     int          `json:"wallet"`
	Plots      []PlotRecord `json:"plots"`
	OwnedPlots []PlotRecord `json:"ownedPlots,omitempty"`
}

type EconomyState struct {
	Balance    int `json:"balance"`
	IncomeRate int `json:"incomeRate"`
}

// SaveDocument is the per-identity city save.
type SaveDocument struct {
	Economy   EconomyState `json:"economy"`
	Land      LandState    `json:"land"`
	Buildings []Building   `json:"buildings"`
	LastSaved time.Time    `json:"lastSaved"`
}

// PlotClaim is the shared record of who holds a plot.
type PlotClaim struct {
	PlotID      string
	Owner       string
	RentExpires *time.Time
}

type Identity struct {
	ID         string
	SecretHash string
	Name       string
	CreatedAt  time.Time
}
