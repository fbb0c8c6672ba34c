package world

import (
	"fmt"
	"math"

	"torchverso/models"
)

// Layout is the street grid of the city. Each block between streets is
// split into a 2×2 grid of plots.
type Layout struct {
	CitySize    int
	BlockSize   float64
	StreetWidth float64
	BasePrice   int
}

type PlotSpec struct {
	ID       string
	Price    int
	Position models.Vec3
	Size     models.Size
}

type PlotRegistrar interface {
	RegisterPlot(id string, price int, position models.Vec3, size models.Size) error
}

func (l Layout) span() float64 {
	return float64(l.CitySize) * (l.BlockSize + l.StreetWidth)
}

// BlockCenter returns the centre of block (bx, bz).
func (l Layout) BlockCenter(bx, bz int) (float64, float64) {
	half := l.span() / 2
	step := l.BlockSize + l.StreetWidth
	x := float64(bx)*step + l.BlockSize/2 - half + l.StreetWidth
	z := float64(bz)*step + l.BlockSize/2 - half + l.StreetWidth
	return x, z
}

// Plots lists every plot of the layout. Plots closer to the city centre
// cost more; prices are rounded down to hundreds.
func (l Layout) Plots() []PlotSpec {
	quarter := l.BlockSize / 4
	size := models.Size{Width: l.BlockSize / 2, Depth: l.BlockSize / 2}
	maxDist := math.Hypot(l.span()/2, l.span()/2)

	var out []PlotSpec
	for bx := 0; bx < l.CitySize; bx++ {
		for bz := 0; bz < l.CitySize; bz++ {
			cx, cz := l.BlockCenter(bx, bz)
			for i := 0; i < 4; i++ {
				x := cx - quarter
				if i%2 == 1 {
					x = cx + quarter
				}
				z := cz - quarter
				if i >= 2 {
					z = cz + quarter
				}
				premium := 1 - math.Hypot(x, z)/maxDist
				if premium < 0 {
					premium = 0
				}
				price := l.BasePrice + int(float64(l.BasePrice)*premium)/100*100
				out = append(out, PlotSpec{
					ID:       fmt.Sprintf("plot_%d_%d_%d", bx, bz, i),
					Price:    price,
					Position: models.Vec3{X: x, Z: z},
					Size:     size,
				})
			}
		}
	}
	return out
}

// Populate registers every plot of the layout.
func (l Layout) Populate(reg PlotRegistrar) error {
	for _, p := range l.Plots() {
		if err := reg.RegisterPlot(p.ID, p.Price, p.Position, p.Size); err != nil {
			return err
		}
	}
	return nil
}
